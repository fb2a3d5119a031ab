// Package fake implements an in-memory projector and cameras that see exactly what it shows.
package fake

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"go.viam.com/slrig/pipeline"
	"go.viam.com/slrig/pipeline/decoder"
	"go.viam.com/slrig/rimage"
)

// Projector keeps the last presented pattern as a frame of its own size.
type Projector struct {
	id       int
	width    int
	height   int
	clk      clock.Clock
	interval time.Duration

	mu        sync.RWMutex
	current   *rimage.FloatImage
	presented int
	closed    bool
}

// NewProjector returns a width x height projector. Present takes interval on clk, which may
// be zero.
func NewProjector(id, width, height int, clk clock.Clock, interval time.Duration) *Projector {
	if clk == nil {
		clk = clock.New()
	}
	return &Projector{
		id:       id,
		width:    width,
		height:   height,
		clk:      clk,
		interval: interval,
		current:  rimage.NewFloatImage(width, height),
	}
}

// ID returns the projector id.
func (p *Projector) ID() int {
	return p.id
}

// Present renders item into the projector's frame, scaled to its size, as intensities in [0, 1].
func (p *Projector) Present(ctx context.Context, item *decoder.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var frame *rimage.FloatImage
	switch item.RenderType {
	case pipeline.RenderSolidColor:
		frame = rimage.NewFloatImage(p.width, p.height)
		c := item.Color.Clamped()
		frame.Fill((c.R + c.G + c.B) / 3)
	case pipeline.RenderBlank:
		frame = rimage.NewFloatImage(p.width, p.height)
	case pipeline.RenderImage:
		if item.Image == nil {
			return errors.Errorf("pattern %d has no image", item.Index)
		}
		frame = p.render(item.Image)
	default:
		return errors.Errorf("cannot render %s", item.RenderType)
	}
	if p.interval > 0 {
		p.clk.Sleep(p.interval)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("projector is closed")
	}
	p.current = frame
	p.presented++
	return nil
}

func (p *Projector) render(img image.Image) *rimage.FloatImage {
	b := img.Bounds()
	if b.Dx() != p.width || b.Dy() != p.height {
		img = imaging.Resize(img, p.width, p.height, imaging.NearestNeighbor)
	}
	frame := rimage.FloatImageFromImage(imaging.Grayscale(img))
	for i := range frame.Data {
		frame.Data[i] /= 255
	}
	return frame
}

// Current returns the frame on screen.
func (p *Projector) Current() *rimage.FloatImage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Presented returns how many patterns were shown.
func (p *Projector) Presented() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.presented
}

// Close turns the projector off.
func (p *Projector) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
