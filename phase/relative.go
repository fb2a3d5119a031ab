package phase

import (
	"math"

	"go.viam.com/slrig/rimage"
)

// EstimateRelativePhase computes the wrapped phase of frames [first, last], which must be
// phase shifted by 2π/N each. Frame i is expected to be A - B·cos(φ + 2πi/N); the result holds
// φ in [0, 2π) for every pixel.
func EstimateRelativePhase(src Source, first, last int) (*rimage.FloatImage, error) {
	if err := checkSpan(src, first, last, 3); err != nil {
		return nil, err
	}
	frames, err := loadSpan(src, first, last)
	if err != nil {
		return nil, err
	}
	num := len(frames)
	w, h := frames[0].Width(), frames[0].Height()
	numAcc := make([]float64, w*h)
	denAcc := make([]float64, w*h)
	for i, frame := range frames {
		angle := 2 * math.Pi * float64(i) / float64(num)
		c, s := math.Cos(angle), -math.Sin(angle)
		for p, v := range frame.Data {
			denAcc[p] += v * c
			numAcc[p] += v * s
		}
	}

	out := rimage.NewFloatImage(w, h)
	for p := range out.Data {
		out.Data[p] = wrapPhase(math.Atan2(numAcc[p], denAcc[p]) + math.Pi)
	}
	return out, nil
}

// EstimateRelativePhaseFloat32 is EstimateRelativePhase with single precision accumulators.
func EstimateRelativePhaseFloat32(src Source, first, last int) (*rimage.Float32Image, error) {
	if err := checkSpan(src, first, last, 3); err != nil {
		return nil, err
	}
	frames, err := loadSpan(src, first, last)
	if err != nil {
		return nil, err
	}
	num := len(frames)
	w, h := frames[0].Width(), frames[0].Height()
	numAcc := make([]float32, w*h)
	denAcc := make([]float32, w*h)
	for i, frame := range frames {
		angle := 2 * math.Pi * float64(i) / float64(num)
		c, s := float32(math.Cos(angle)), float32(-math.Sin(angle))
		for p, v := range frame.Data {
			denAcc[p] += float32(v) * c
			numAcc[p] += float32(v) * s
		}
	}

	out := rimage.NewFloat32Image(w, h)
	for p := range out.Data {
		v := float32(wrapPhase(math.Atan2(float64(numAcc[p]), float64(denAcc[p])) + math.Pi))
		if v >= float32(2*math.Pi) {
			v = 0
		}
		out.Data[p] = v
	}
	return out, nil
}

// wrapPhase maps v into [0, 2π).
func wrapPhase(v float64) float64 {
	v = math.Mod(v, 2*math.Pi)
	if v < 0 {
		v += 2 * math.Pi
	}
	if v >= 2*math.Pi {
		v = 0
	}
	return v
}
