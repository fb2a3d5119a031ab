package phase

import (
	"math"
	"testing"

	"go.viam.com/test"

	"go.viam.com/slrig/rimage"
)

func circularDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 2*math.Pi)
	return math.Min(d, 2*math.Pi-d)
}

// shiftedFrames samples A - B·cos(φ0 + 2πi/n) for a phase φ0 that varies across the image.
func shiftedFrames(n, width, height int) (Frames, func(x, y int) float64) {
	phi := func(x, y int) float64 {
		return 2 * math.Pi * float64(y*width+x) / float64(width*height)
	}
	frames := make(Frames, n)
	for i := range frames {
		img := rimage.NewFloatImage(width, height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.Set(x, y, 100-50*math.Cos(phi(x, y)+2*math.Pi*float64(i)/float64(n)))
			}
		}
		frames[i] = img
	}
	return frames, phi
}

func TestEstimateRelativePhase(t *testing.T) {
	for _, n := range []int{3, 4, 8} {
		frames, phi := shiftedFrames(n, 16, 5)
		wrapped, err := EstimateRelativePhase(frames, 0, n-1)
		test.That(t, err, test.ShouldBeNil)
		wrapped32, err := EstimateRelativePhaseFloat32(frames, 0, n-1)
		test.That(t, err, test.ShouldBeNil)
		for y := 0; y < 5; y++ {
			for x := 0; x < 16; x++ {
				v := wrapped.At(x, y)
				test.That(t, v, test.ShouldBeGreaterThanOrEqualTo, 0)
				test.That(t, v, test.ShouldBeLessThan, 2*math.Pi)
				test.That(t, circularDistance(v, phi(x, y)), test.ShouldBeLessThan, 1e-9)

				v32 := float64(wrapped32.At(x, y))
				test.That(t, v32, test.ShouldBeLessThan, 2*math.Pi)
				test.That(t, circularDistance(v32, phi(x, y)), test.ShouldBeLessThan, 1e-4)
			}
		}
	}
}

func TestEstimateRelativePhaseSpan(t *testing.T) {
	frames, phi := shiftedFrames(4, 4, 4)
	// a span inside a longer sequence
	padded := append(Frames{SolidPattern(4, 4, 0)}, frames...)
	wrapped, err := EstimateRelativePhase(padded, 1, 4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, circularDistance(wrapped.At(2, 3), phi(2, 3)), test.ShouldBeLessThan, 1e-9)

	_, err = EstimateRelativePhase(frames, 0, 1)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = EstimateRelativePhase(frames, 2, 4)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = EstimateRelativePhase(frames, -1, 2)
	test.That(t, err, test.ShouldNotBeNil)

	mixed := append(Frames(nil), frames...)
	mixed[2] = rimage.NewFloatImage(3, 4)
	_, err = EstimateRelativePhase(mixed, 0, 3)
	test.That(t, err, test.ShouldNotBeNil)

	missing := append(Frames(nil), frames...)
	missing[1] = nil
	_, err = EstimateRelativePhaseFloat32(missing, 0, 3)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPhaseShiftPattern(t *testing.T) {
	const width, wavelength = 40, 10.0
	var frames Frames
	for i := 0; i < 5; i++ {
		img, err := PhaseShiftPattern(width, 1, wavelength, i, 5)
		test.That(t, err, test.ShouldBeNil)
		min, max := img.MinMax()
		test.That(t, min, test.ShouldBeGreaterThanOrEqualTo, 0)
		test.That(t, max, test.ShouldBeLessThanOrEqualTo, 1)
		frames = append(frames, img)
	}
	wrapped, err := EstimateRelativePhase(frames, 0, 4)
	test.That(t, err, test.ShouldBeNil)
	for x := 0; x < width; x++ {
		test.That(t, circularDistance(wrapped.At(x, 0), FringePhase(x, wavelength)), test.ShouldBeLessThan, 1e-9)
	}

	_, err = PhaseShiftPattern(width, 1, wavelength, 5, 5)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = PhaseShiftPattern(width, 1, 0, 0, 5)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = GrayCodePattern(width, 1, 3, 3, false)
	test.That(t, err, test.ShouldNotBeNil)
}
