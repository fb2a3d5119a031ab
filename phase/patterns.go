package phase

import (
	"math"

	"github.com/pkg/errors"

	"go.viam.com/slrig/rimage"
)

// Patterns are vertical fringes in [0, 1], sampled at pixel centers so that no pixel lies exactly
// on a period or stripe boundary.

// PhaseShiftPattern returns frame i of n of a fringe pattern with the given wavelength in pixels:
// 0.5 - 0.5·cos(φ(x) + 2πi/n) with φ(x) the phase of x within its period.
func PhaseShiftPattern(width, height int, wavelength float64, i, n int) (*rimage.FloatImage, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid pattern size %dx%d", width, height)
	}
	if !(wavelength > 0) || n < 3 || i < 0 || i >= n {
		return nil, errors.Errorf("invalid phase shift pattern: wavelength %g, frame %d of %d", wavelength, i, n)
	}
	out := rimage.NewFloatImage(width, height)
	shift := 2 * math.Pi * float64(i) / float64(n)
	row := make([]float64, width)
	for x := range row {
		row[x] = 0.5 - 0.5*math.Cos(FringePhase(x, wavelength)+shift)
	}
	fillRows(out, row)
	return out, nil
}

// FringePhase returns the wrapped phase in [0, 2π) of pixel column x for the given wavelength.
func FringePhase(x int, wavelength float64) float64 {
	pos := (float64(x) + 0.5) / wavelength
	return 2 * math.Pi * (pos - math.Floor(pos))
}

// GrayCodePattern returns bit plane plane (most significant first) of a bits wide Gray code
// numbering 2^bits stripes across width. The shifted code is offset by half a stripe.
func GrayCodePattern(width, height, bits, plane int, shifted bool) (*rimage.FloatImage, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid pattern size %dx%d", width, height)
	}
	if bits < 1 || bits > MaxGrayCodeBits || plane < 0 || plane >= bits {
		return nil, errors.Errorf("invalid gray code pattern: plane %d of %d bits", plane, bits)
	}
	out := rimage.NewFloatImage(width, height)
	row := make([]float64, width)
	for x := range row {
		code := GrayEncode(Stripe(x, width, bits, shifted))
		if code&(1<<uint(bits-1-plane)) != 0 {
			row[x] = 1
		}
	}
	fillRows(out, row)
	return out, nil
}

// Stripe returns the stripe number of pixel column x in a bits wide code.
func Stripe(x, width, bits int, shifted bool) uint32 {
	stripes := 1 << bits
	pos := (float64(x) + 0.5) * float64(stripes) / float64(width)
	if shifted {
		pos += 0.5
	}
	return uint32(int(math.Floor(pos)) % stripes)
}

// SolidPattern returns a uniform pattern.
func SolidPattern(width, height int, v float64) *rimage.FloatImage {
	out := rimage.NewFloatImage(width, height)
	out.Fill(v)
	return out
}

func fillRows(img *rimage.FloatImage, row []float64) {
	for y := 0; y < img.Height(); y++ {
		copy(img.Data[y*img.Width():(y+1)*img.Width()], row)
	}
}
