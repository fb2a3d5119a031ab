package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// FloatImage is a single channel, row major, double precision image used for accumulators,
// thresholds and phase maps.
type FloatImage struct {
	width  int
	height int
	Data   []float64
}

// NewFloatImage returns a zeroed width x height image.
func NewFloatImage(width, height int) *FloatImage {
	return &FloatImage{width: width, height: height, Data: make([]float64, width*height)}
}

// NewFloatImageFromData wraps data, which must hold width*height values.
func NewFloatImageFromData(width, height int, data []float64) (*FloatImage, error) {
	if width <= 0 || height <= 0 || len(data) != width*height {
		return nil, errors.Errorf("cannot make %dx%d image from %d values", width, height, len(data))
	}
	return &FloatImage{width: width, height: height, Data: data}, nil
}

// Width returns the number of columns.
func (fi *FloatImage) Width() int {
	return fi.width
}

// Height returns the number of rows.
func (fi *FloatImage) Height() int {
	return fi.height
}

// Bounds returns the image rectangle.
func (fi *FloatImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, fi.width, fi.height)
}

// At returns the value at (x, y).
func (fi *FloatImage) At(x, y int) float64 {
	return fi.Data[y*fi.width+x]
}

// Set stores v at (x, y).
func (fi *FloatImage) Set(x, y int, v float64) {
	fi.Data[y*fi.width+x] = v
}

// SameSize reports whether both images have identical dimensions.
func (fi *FloatImage) SameSize(other *FloatImage) bool {
	return other != nil && fi.width == other.width && fi.height == other.height
}

// Clone returns a deep copy.
func (fi *FloatImage) Clone() *FloatImage {
	out := NewFloatImage(fi.width, fi.height)
	copy(out.Data, fi.Data)
	return out
}

// Fill sets every pixel to v.
func (fi *FloatImage) Fill(v float64) {
	for i := range fi.Data {
		fi.Data[i] = v
	}
}

// MinMax returns the smallest and largest finite values.
func (fi *FloatImage) MinMax() (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range fi.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}

// ToGray maps [lo, hi] linearly onto [0, 255]; values outside are clamped.
func (fi *FloatImage) ToGray(lo, hi float64) *image.Gray {
	out := image.NewGray(fi.Bounds())
	span := hi - lo
	for i, v := range fi.Data {
		var b uint8
		if span > 0 && !math.IsNaN(v) {
			b = uint8(math.Round(255 * math.Max(0, math.Min(1, (v-lo)/span))))
		}
		out.Pix[i] = b
	}
	return out
}

// ToGray16 maps [lo, hi] linearly onto [0, 65535]; values outside are clamped.
func (fi *FloatImage) ToGray16(lo, hi float64) *image.Gray16 {
	out := image.NewGray16(fi.Bounds())
	span := hi - lo
	for y := 0; y < fi.height; y++ {
		for x := 0; x < fi.width; x++ {
			v := fi.At(x, y)
			var g uint16
			if span > 0 && !math.IsNaN(v) {
				g = uint16(math.Round(65535 * math.Max(0, math.Min(1, (v-lo)/span))))
			}
			out.SetGray16(x, y, color.Gray16{Y: g})
		}
	}
	return out
}

// ToPrettyPicture colors the image's own value range from orange (low) to blue (high).
// NaN pixels stay black.
func (fi *FloatImage) ToPrettyPicture() *image.NRGBA {
	lo, hi := fi.MinMax()
	span := hi - lo
	out := image.NewNRGBA(fi.Bounds())
	for y := 0; y < fi.height; y++ {
		for x := 0; x < fi.width; x++ {
			v := fi.At(x, y)
			if math.IsNaN(v) {
				out.SetNRGBA(x, y, color.NRGBA{A: 255})
				continue
			}
			ratio := 0.0
			if span > 0 {
				ratio = math.Max(0, math.Min(1, (v-lo)/span))
			}
			r, g, b := colorful.Hsv(30+200*ratio, 1, 1).Clamped().RGB255()
			out.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return out
}

// FloatImageFromImage converts any image to luminance values in the source's native scale
// (0-255 for 8-bit images, 0-65535 for 16-bit ones).
func FloatImageFromImage(img image.Image) *FloatImage {
	b := img.Bounds()
	out := NewFloatImage(b.Dx(), b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var v float64
			switch c := img.At(x, y).(type) {
			case color.Gray:
				v = float64(c.Y)
			case color.Gray16:
				v = float64(c.Y)
			default:
				v = float64(color.GrayModel.Convert(c).(color.Gray).Y)
			}
			out.Set(x-b.Min.X, y-b.Min.Y, v)
		}
	}
	return out
}

// Float32Image is the single precision counterpart of FloatImage.
type Float32Image struct {
	width  int
	height int
	Data   []float32
}

// NewFloat32Image returns a zeroed width x height image.
func NewFloat32Image(width, height int) *Float32Image {
	return &Float32Image{width: width, height: height, Data: make([]float32, width*height)}
}

// Width returns the number of columns.
func (fi *Float32Image) Width() int {
	return fi.width
}

// Height returns the number of rows.
func (fi *Float32Image) Height() int {
	return fi.height
}

// At returns the value at (x, y).
func (fi *Float32Image) At(x, y int) float32 {
	return fi.Data[y*fi.width+x]
}

// Set stores v at (x, y).
func (fi *Float32Image) Set(x, y int, v float32) {
	fi.Data[y*fi.width+x] = v
}
