package phase

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/slrig/rimage"
)

// MaxGrayCodeBits bounds the number of bit planes of one Gray code.
const MaxGrayCodeBits = 20

// GrayEncode returns the reflected binary code of v.
func GrayEncode(v uint32) uint32 {
	return v ^ (v >> 1)
}

// GrayDecode returns the integer whose reflected binary code is g.
func GrayDecode(g uint32) uint32 {
	for shift := uint32(1); shift < 32; shift <<= 1 {
		g ^= g >> shift
	}
	return g
}

// grayWeights caches one weight table per bit count.
var grayWeights sync.Map

// GrayWeights returns the table mapping every num bit Gray code to its normalized coordinate
// GrayDecode(g)/2^num. Tables are built once per bit count and shared, so callers must not
// modify them.
func GrayWeights(num int) ([]float64, error) {
	if num < 1 || num > MaxGrayCodeBits {
		return nil, errors.Errorf("gray code bit count must be in [1, %d], got %d", MaxGrayCodeBits, num)
	}
	if cached, ok := grayWeights.Load(num); ok {
		return cached.([]float64), nil
	}
	n := 1 << num
	weights := make([]float64, n)
	for g := range weights {
		weights[g] = float64(GrayDecode(uint32(g))) / float64(n)
	}
	cached, _ := grayWeights.LoadOrStore(num, weights)
	return cached.([]float64), nil
}

// DecodeGrayCode decodes the bit planes [first, last], most significant first, into a normalized
// coordinate in [0, 1). A pixel is a one bit where it is brighter than threshold.
func DecodeGrayCode(src Source, threshold *rimage.FloatImage, first, last int) (*rimage.FloatImage, error) {
	if err := checkSpan(src, first, last, 1); err != nil {
		return nil, err
	}
	weights, err := GrayWeights(last - first + 1)
	if err != nil {
		return nil, err
	}
	frames, err := loadSpan(src, first, last)
	if err != nil {
		return nil, err
	}
	if threshold == nil || !threshold.SameSize(frames[0]) {
		return nil, errors.Wrap(ErrSizeMismatch, "threshold")
	}

	codes := make([]uint32, len(threshold.Data))
	for _, frame := range frames {
		for p, v := range frame.Data {
			codes[p] <<= 1
			if v > threshold.Data[p] {
				codes[p] |= 1
			}
		}
	}
	out := rimage.NewFloatImage(threshold.Width(), threshold.Height())
	for p, code := range codes {
		out.Data[p] = weights[code]
	}
	return out, nil
}

// GrayCodeLayout locates the frames of a Gray code sequence in a batch. The secondary code is
// optional (SecondaryFirst < 0); when present it has as many bits as the primary one and is
// shifted by half a stripe.
type GrayCodeLayout struct {
	PrimaryFirst   int
	PrimaryLast    int
	SecondaryFirst int
	SecondaryLast  int
	Black          int
	White          int
}

// HasSecondary reports whether the layout includes the shifted code.
func (l GrayCodeLayout) HasSecondary() bool {
	return l.SecondaryFirst >= 0
}

// Threshold returns the per pixel midpoint between the black and white reference frames.
func Threshold(src Source, black, white int) (*rimage.FloatImage, error) {
	b, err := src.Gray(black)
	if err != nil {
		return nil, errors.Wrap(err, "reading black reference")
	}
	w, err := src.Gray(white)
	if err != nil {
		return nil, errors.Wrap(err, "reading white reference")
	}
	if !b.SameSize(w) {
		return nil, errors.Wrap(ErrSizeMismatch, "black and white references")
	}
	out := rimage.NewFloatImage(b.Width(), b.Height())
	for p := range out.Data {
		out.Data[p] = (b.Data[p] + w.Data[p]) / 2
	}
	return out, nil
}

// UnwrapPhaseGrayCode unwraps a wrapped phase image with a Gray code that numbers its fringes.
// The result is the absolute position in [0, 1) over the whole code. With only the primary code,
// stripe number and wrapped phase are simply combined. With the secondary code, pixels whose
// wrapped phase is close to a wrap take their stripe from the shifted code, whose transitions lie
// in the middle of the primary stripes, so a misread bit at the stripe edge cannot cause an
// off by one period.
func UnwrapPhaseGrayCode(src Source, layout GrayCodeLayout, wrapped *rimage.FloatImage) (*rimage.FloatImage, error) {
	threshold, err := Threshold(src, layout.Black, layout.White)
	if err != nil {
		return nil, err
	}
	if wrapped == nil || !wrapped.SameSize(threshold) {
		return nil, errors.Wrap(ErrSizeMismatch, "wrapped phase")
	}
	primary, err := DecodeGrayCode(src, threshold, layout.PrimaryFirst, layout.PrimaryLast)
	if err != nil {
		return nil, errors.Wrap(err, "decoding primary gray code")
	}
	bits := layout.PrimaryLast - layout.PrimaryFirst + 1
	stripes := float64(int(1) << bits)

	out := rimage.NewFloatImage(wrapped.Width(), wrapped.Height())
	if !layout.HasSecondary() {
		for p := range out.Data {
			out.Data[p] = primary.Data[p] + wrapped.Data[p]/(2*math.Pi*stripes)
		}
		return out, nil
	}

	if layout.SecondaryLast-layout.SecondaryFirst+1 != bits {
		return nil, errors.Errorf("secondary gray code has %d bits, primary has %d",
			layout.SecondaryLast-layout.SecondaryFirst+1, bits)
	}
	secondary, err := DecodeGrayCode(src, threshold, layout.SecondaryFirst, layout.SecondaryLast)
	if err != nil {
		return nil, errors.Wrap(err, "decoding secondary gray code")
	}
	n := int(stripes)
	for p := range out.Data {
		frac := wrapped.Data[p] / (2 * math.Pi)
		var stripe int
		switch {
		case frac < 0.25:
			stripe = int(math.Round(secondary.Data[p] * stripes))
		case frac >= 0.75:
			stripe = int(math.Round(secondary.Data[p]*stripes)) - 1
		default:
			stripe = int(math.Round(primary.Data[p] * stripes))
		}
		stripe = ((stripe % n) + n) % n
		out.Data[p] = (float64(stripe) + frac) / stripes
	}
	return out, nil
}
