package fake

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/slrig/pipeline/metadata"
	"go.viam.com/slrig/rig"
	"go.viam.com/slrig/rimage"
	"go.viam.com/slrig/utils"
)

// Camera sees its projector's current frame through a linear response: a sample is
// (Offset + Gain·intensity)·MaxValue of its format, nearest neighbor scaled to the camera size.
type Camera struct {
	id        int
	width     int
	height    int
	format    rimage.PixelFormat
	projector *Projector

	Gain   float64
	Offset float64
	// Fail, if set, makes a trigger fail when it returns true.
	Fail func(rec metadata.FrameRecord) bool

	mu       sync.Mutex
	buf      []byte
	triggers int
	closed   bool
}

// NewCamera returns a camera looking at projector. Only single channel formats are supported.
func NewCamera(id, width, height int, format rimage.PixelFormat, projector *Projector) (*Camera, error) {
	if format.Channels() != 1 {
		return nil, errors.Errorf("fake camera cannot produce %s frames", format)
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid camera size %dx%d", width, height)
	}
	return &Camera{
		id:        id,
		width:     width,
		height:    height,
		format:    format,
		projector: projector,
		Gain:      1,
		buf:       make([]byte, width*height*format.BytesPerPixel()),
	}, nil
}

// ID returns the camera id.
func (c *Camera) ID() int {
	return c.id
}

// Trigger captures the projector's current frame. The returned buffer is reused by the next
// trigger.
func (c *Camera) Trigger(ctx context.Context, rec metadata.FrameRecord) (rig.Capture, error) {
	if err := ctx.Err(); err != nil {
		return rig.Capture{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return rig.Capture{}, errors.New("camera is closed")
	}
	c.triggers++
	if c.Fail != nil && c.Fail(rec) {
		return rig.Capture{}, errors.Errorf("trigger of frame %d failed", rec.Key)
	}

	scene := c.projector.Current()
	bps := c.format.BytesPerSample()
	maxValue := c.format.MaxValue()
	stride := c.width * bps
	for y := 0; y < c.height; y++ {
		sy := y * scene.Height() / c.height
		for x := 0; x < c.width; x++ {
			sx := x * scene.Width() / c.width
			v := (c.Offset + c.Gain*scene.At(sx, sy)) * maxValue
			v = math.Round(utils.Clamp(v, 0, maxValue))
			off := y*stride + x*bps
			if bps == 2 {
				binary.LittleEndian.PutUint16(c.buf[off:], uint16(v))
			} else {
				c.buf[off] = uint8(v)
			}
		}
	}
	return rig.Capture{Data: c.buf, Width: c.width, Height: c.height, Stride: stride, Format: c.format}, nil
}

// Triggers returns how many times the camera was triggered.
func (c *Camera) Triggers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggers
}

// Close stops the camera.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
