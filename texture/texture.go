// Package texture estimates per pixel dynamic range and texture (reflectance) images from the
// frames of a batch, and converts textures for display and storage.
package texture

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/slrig/phase"
	"go.viam.com/slrig/rimage"
	"go.viam.com/slrig/utils"
)

// ErrSizeMismatch is returned when images of one computation differ in size.
var ErrSizeMismatch = errors.New("image sizes differ")

// EstimateDynamicRange returns the per pixel difference between the brightest and darkest value
// over frames [first, last].
func EstimateDynamicRange(src phase.Source, first, last int) (*rimage.FloatImage, error) {
	dr, _, err := UpdateDynamicRangeAndTexture(src, first, last, nil, nil, false)
	return dr, err
}

// UpdateDynamicRangeAndTexture computes the dynamic range of frames [first, last] in one pass
// and, if withTexture is set, their texture: (2/num)·Σframe, which for phase shifted fringes is
// the fully lit intensity. A non-nil dr is merged by per pixel minimum and a non-nil texture is
// added to, so calls over disjoint spans of one batch compose.
func UpdateDynamicRangeAndTexture(
	src phase.Source,
	first, last int,
	dr, texture *rimage.FloatImage,
	withTexture bool,
) (*rimage.FloatImage, *rimage.FloatImage, error) {
	if first < 0 || last >= src.Len() || last < first {
		return nil, nil, errors.Wrapf(phase.ErrInvalidSpan, "[%d, %d] of %d frames", first, last, src.Len())
	}
	num := last - first + 1

	var lo, hi *rimage.FloatImage
	var sum *rimage.FloatImage
	for i := first; i <= last; i++ {
		frame, err := src.Gray(i)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "reading frame %d", i)
		}
		if lo == nil {
			lo, hi = frame.Clone(), frame.Clone()
			if withTexture {
				sum = rimage.NewFloatImage(frame.Width(), frame.Height())
			}
		} else if !frame.SameSize(lo) {
			return nil, nil, errors.Wrapf(ErrSizeMismatch, "frame %d", i)
		}
		for p, v := range frame.Data {
			lo.Data[p] = math.Min(lo.Data[p], v)
			hi.Data[p] = math.Max(hi.Data[p], v)
		}
		if sum != nil {
			for p, v := range frame.Data {
				sum.Data[p] += v
			}
		}
	}

	span := hi
	for p := range span.Data {
		span.Data[p] -= lo.Data[p]
	}
	if dr != nil {
		merged, err := CombineDynamicRanges(dr, span)
		if err != nil {
			return nil, nil, err
		}
		span = merged
	}

	if !withTexture {
		return span, texture, nil
	}
	scale := 2 / float64(num)
	out := rimage.NewFloatImage(sum.Width(), sum.Height())
	if texture != nil {
		if !texture.SameSize(sum) {
			return nil, nil, errors.Wrap(ErrSizeMismatch, "texture")
		}
		copy(out.Data, texture.Data)
	}
	for p, v := range sum.Data {
		out.Data[p] += scale * v
	}
	return span, out, nil
}

func combine(a, b *rimage.FloatImage, f func(x, y float64) float64) (*rimage.FloatImage, error) {
	if a == nil || b == nil || !a.SameSize(b) {
		return nil, ErrSizeMismatch
	}
	out := rimage.NewFloatImage(a.Width(), a.Height())
	for p := range out.Data {
		out.Data[p] = f(a.Data[p], b.Data[p])
	}
	return out, nil
}

// CombineDynamicRanges merges dynamic ranges computed independently by per pixel minimum.
func CombineDynamicRanges(a, b *rimage.FloatImage) (*rimage.FloatImage, error) {
	return combine(a, b, math.Min)
}

// CombinePhaseDeviationOrDistance merges deviation or constellation distance images by per pixel
// maximum, keeping the worst quality seen.
func CombinePhaseDeviationOrDistance(a, b *rimage.FloatImage) (*rimage.FloatImage, error) {
	return combine(a, b, math.Max)
}

// FetchTexture converts a texture in the sample range of format into an 8-bit gray image.
func FetchTexture(texture *rimage.FloatImage, format rimage.PixelFormat) (*image.Gray, error) {
	if texture == nil {
		return nil, errors.New("no texture")
	}
	if !format.Valid() {
		return nil, errors.Errorf("unsupported pixel format %d", int(format))
	}
	return texture.ToGray(0, format.MaxValue()), nil
}

// ScaleAndDebayerTexture converts a texture in the sample range of format into an 8-bit color
// image. Textures of Bayer formats are still mosaics and are demosaiced first.
func ScaleAndDebayerTexture(texture *rimage.FloatImage, format rimage.PixelFormat) (*image.NRGBA, error) {
	if texture == nil {
		return nil, errors.New("no texture")
	}
	if !format.Valid() {
		return nil, errors.Errorf("unsupported pixel format %d", int(format))
	}
	r, g, b := rimage.Debayer(texture, format.BayerPattern())
	scale := 255 / format.MaxValue()
	toByte := func(v float64) uint8 {
		return uint8(math.Round(utils.Clamp(v*scale, 0, 255)))
	}
	out := image.NewNRGBA(image.Rect(0, 0, texture.Width(), texture.Height()))
	for y := 0; y < texture.Height(); y++ {
		for x := 0; x < texture.Width(); x++ {
			out.SetNRGBA(x, y, color.NRGBA{R: toByte(r.At(x, y)), G: toByte(g.At(x, y)), B: toByte(b.At(x, y)), A: 255})
		}
	}
	return out, nil
}
