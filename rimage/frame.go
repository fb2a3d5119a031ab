package rimage

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
)

// ErrInvalidFrame is returned when frame dimensions, stride or buffer size are inconsistent.
var ErrInvalidFrame = errors.New("invalid frame")

// A Frame is an owned raw camera buffer. Rows are Stride bytes apart; samples wider than 8 bits
// are little endian.
type Frame struct {
	Width  int
	Height int
	Stride int
	Format PixelFormat
	Data   []byte
}

// NewFrame allocates a zeroed frame. A stride of 0 means tightly packed rows.
func NewFrame(width, height, stride int, format PixelFormat) (*Frame, error) {
	f := &Frame{Width: width, Height: height, Stride: stride, Format: format}
	if f.Stride == 0 {
		f.Stride = width * format.BytesPerPixel()
	}
	if err := f.validateShape(); err != nil {
		return nil, err
	}
	f.Data = make([]byte, f.Stride*height)
	return f, nil
}

// NewFrameFromBuffer deep copies buf into a new frame. Camera drivers reuse their buffers as soon
// as the frame callback returns, so the copy is made before anything else touches it.
func NewFrameFromBuffer(buf []byte, width, height, stride int, format PixelFormat) (*Frame, error) {
	f, err := NewFrame(width, height, stride, format)
	if err != nil {
		return nil, err
	}
	if len(buf) < len(f.Data) {
		return nil, errors.Wrapf(ErrInvalidFrame, "buffer holds %d bytes, %dx%d %s with stride %d needs %d",
			len(buf), width, height, format, f.Stride, len(f.Data))
	}
	copy(f.Data, buf)
	return f, nil
}

func (f *Frame) validateShape() error {
	if !f.Format.Valid() {
		return errors.Wrapf(ErrInvalidFrame, "unsupported pixel format %d", int(f.Format))
	}
	if f.Width <= 0 || f.Height <= 0 {
		return errors.Wrapf(ErrInvalidFrame, "dimensions %dx%d", f.Width, f.Height)
	}
	if f.Stride < f.Width*f.Format.BytesPerPixel() {
		return errors.Wrapf(ErrInvalidFrame, "stride %d too small for %d %s pixels", f.Stride, f.Width, f.Format)
	}
	return nil
}

// Validate checks that the frame is self consistent.
func (f *Frame) Validate() error {
	if err := f.validateShape(); err != nil {
		return err
	}
	if len(f.Data) < f.Stride*f.Height {
		return errors.Wrapf(ErrInvalidFrame, "buffer holds %d bytes, need %d", len(f.Data), f.Stride*f.Height)
	}
	return nil
}

// Size returns the number of bytes of pixel data.
func (f *Frame) Size() int {
	return f.Stride * f.Height
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := *f
	out.Data = make([]byte, len(f.Data))
	copy(out.Data, f.Data)
	return &out
}

// SameShape reports whether other has identical dimensions, stride and format.
func (f *Frame) SameShape(other *Frame) bool {
	return other != nil && f.Width == other.Width && f.Height == other.Height &&
		f.Stride == other.Stride && f.Format == other.Format
}

// Bounds returns the frame rectangle.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Sample returns channel c of pixel (x, y) in storage order.
func (f *Frame) Sample(x, y, c int) float64 {
	bps := f.Format.BytesPerSample()
	off := y*f.Stride + (x*f.Format.Channels()+c)*bps
	if bps == 2 {
		return float64(binary.LittleEndian.Uint16(f.Data[off:]))
	}
	return float64(f.Data[off])
}

// rgb returns the color samples of a color format pixel.
func (f *Frame) rgb(x, y int) (float64, float64, float64) {
	switch f.Format {
	case PixelFormatRGB8:
		return f.Sample(x, y, 0), f.Sample(x, y, 1), f.Sample(x, y, 2)
	case PixelFormatBGR8, PixelFormatBGRA8:
		return f.Sample(x, y, 2), f.Sample(x, y, 1), f.Sample(x, y, 0)
	default:
		v := f.Sample(x, y, 0)
		return v, v, v
	}
}

// Intensity returns the single channel value used by the phase and texture engines: the raw
// sample for monochrome and mosaic formats, luminance for color formats.
func (f *Frame) Intensity(x, y int) float64 {
	if f.Format.Channels() == 1 {
		return f.Sample(x, y, 0)
	}
	r, g, b := f.rgb(x, y)
	return 0.299*r + 0.587*g + 0.114*b
}

// Gray returns the single channel view of the frame.
func (f *Frame) Gray() *FloatImage {
	out := NewFloatImage(f.Width, f.Height)
	f.GrayInto(out)
	return out
}

// GrayInto writes the single channel view into dst, which must match the frame size.
func (f *Frame) GrayInto(dst *FloatImage) {
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			dst.Set(x, y, f.Intensity(x, y))
		}
	}
}

// Sum returns the sum of all intensities.
func (f *Frame) Sum() float64 {
	var sum float64
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			sum += f.Intensity(x, y)
		}
	}
	return sum
}

// BGR returns an 8-bit color view. Mosaics are demosaiced, monochrome frames are replicated into
// all channels and wide samples are scaled down by the format's bit depth.
func (f *Frame) BGR() *image.NRGBA {
	out := image.NewNRGBA(f.Bounds())
	scale := 255 / f.Format.MaxValue()
	put := func(x, y int, r, g, b float64) {
		i := out.PixOffset(x, y)
		out.Pix[i+0] = toByte(r * scale)
		out.Pix[i+1] = toByte(g * scale)
		out.Pix[i+2] = toByte(b * scale)
		out.Pix[i+3] = 0xff
	}

	if f.Format.IsBayer() {
		r, g, b := Debayer(f.Gray(), f.Format.BayerPattern())
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				put(x, y, r.At(x, y), g.At(x, y), b.At(x, y))
			}
		}
		return out
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := f.rgb(x, y)
			put(x, y, r, g, b)
		}
	}
	return out
}

// ToImage converts the frame to a standard image suitable for encoding. Monochrome frames keep
// their precision (Gray or Gray16 scaled to the full 16-bit range); everything else goes through
// BGR.
func (f *Frame) ToImage() image.Image {
	switch f.Format {
	case PixelFormatMono8:
		out := image.NewGray(f.Bounds())
		for y := 0; y < f.Height; y++ {
			copy(out.Pix[y*out.Stride:y*out.Stride+f.Width], f.Data[y*f.Stride:])
		}
		return out
	case PixelFormatMono10, PixelFormatMono12, PixelFormatMono16:
		out := image.NewGray16(f.Bounds())
		shift := uint(16 - f.Format.BitDepth())
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				out.SetGray16(x, y, color.Gray16{Y: uint16(f.Sample(x, y, 0)) << shift})
			}
		}
		return out
	default:
		return f.BGR()
	}
}

// FrameFromImage converts a decoded image into a frame: Gray to Mono8, Gray16 to Mono16 and
// everything else to BGR8.
func FrameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	switch src := img.(type) {
	case *image.Gray:
		f, _ := NewFrame(w, h, 0, PixelFormatMono8)
		for y := 0; y < h; y++ {
			copy(f.Data[y*f.Stride:(y+1)*f.Stride], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return f
	case *image.Gray16:
		f, _ := NewFrame(w, h, 0, PixelFormatMono16)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				binary.LittleEndian.PutUint16(f.Data[y*f.Stride+2*x:], src.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return f
	default:
		f, _ := NewFrame(w, h, 0, PixelFormatBGR8)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				off := y*f.Stride + 3*x
				f.Data[off], f.Data[off+1], f.Data[off+2] = c.B, c.G, c.R
			}
		}
		return f
	}
}

func toByte(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(255, v))))
}
