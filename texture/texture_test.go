package texture

import (
	"math"
	"math/rand"
	"testing"

	"go.viam.com/test"

	"go.viam.com/slrig/phase"
	"go.viam.com/slrig/rimage"
)

func randomImage(rng *rand.Rand, width, height int) *rimage.FloatImage {
	img := rimage.NewFloatImage(width, height)
	for i := range img.Data {
		img.Data[i] = rng.Float64() * 255
	}
	return img
}

func TestEstimateDynamicRange(t *testing.T) {
	frames := phase.Frames{
		phase.SolidPattern(3, 2, 10),
		phase.SolidPattern(3, 2, 200),
		phase.SolidPattern(3, 2, 50),
	}
	frames[1].Set(1, 1, 5)

	dr, err := EstimateDynamicRange(frames, 0, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dr.At(0, 0), test.ShouldEqual, 190)
	test.That(t, dr.At(1, 1), test.ShouldEqual, 45)

	dr, err = EstimateDynamicRange(frames, 1, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dr.At(0, 0), test.ShouldEqual, 0)

	_, err = EstimateDynamicRange(frames, 2, 3)
	test.That(t, err, test.ShouldNotBeNil)
	frames[2] = rimage.NewFloatImage(2, 2)
	_, err = EstimateDynamicRange(frames, 0, 2)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestTextureOfPhaseShiftedFrames(t *testing.T) {
	const n = 4
	var frames phase.Frames
	for i := 0; i < n; i++ {
		img, err := phase.PhaseShiftPattern(16, 2, 8, i, n)
		test.That(t, err, test.ShouldBeNil)
		// scale to a 0..200 response with an offset of 20
		for p := range img.Data {
			img.Data[p] = 20 + 200*img.Data[p]
		}
		frames = append(frames, img)
	}

	dr, texture, err := UpdateDynamicRangeAndTexture(frames, 0, n-1, nil, nil, true)
	test.That(t, err, test.ShouldBeNil)
	for p := range texture.Data {
		// the fringes average to 20 + 100, doubled
		test.That(t, texture.Data[p], test.ShouldAlmostEqual, 240, 1e-9)
		test.That(t, dr.Data[p], test.ShouldBeGreaterThan, 100)
	}

	// splitting the span and merging gives the same texture
	dr1, tex1, err := UpdateDynamicRangeAndTexture(frames, 0, 1, nil, nil, true)
	test.That(t, err, test.ShouldBeNil)
	dr2, tex2, err := UpdateDynamicRangeAndTexture(frames, 2, 3, dr1, tex1, true)
	test.That(t, err, test.ShouldBeNil)
	for p := range tex2.Data {
		// each half is scaled by 2/2 instead of 2/4
		test.That(t, tex2.Data[p], test.ShouldAlmostEqual, 2*texture.Data[p], 1e-9)
		test.That(t, dr2.Data[p], test.ShouldBeLessThanOrEqualTo, dr.Data[p])
		test.That(t, dr2.Data[p], test.ShouldBeLessThanOrEqualTo, dr1.Data[p])
	}

	_, _, err = UpdateDynamicRangeAndTexture(frames, 0, 1, rimage.NewFloatImage(2, 2), nil, false)
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = UpdateDynamicRangeAndTexture(frames, 0, 1, nil, rimage.NewFloatImage(2, 2), true)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCombineAssociative(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	a, b, c := randomImage(rng, 7, 5), randomImage(rng, 7, 5), randomImage(rng, 7, 5)

	for _, combine := range []func(x, y *rimage.FloatImage) (*rimage.FloatImage, error){
		CombineDynamicRanges, CombinePhaseDeviationOrDistance,
	} {
		ab, err := combine(a, b)
		test.That(t, err, test.ShouldBeNil)
		left, err := combine(ab, c)
		test.That(t, err, test.ShouldBeNil)
		bc, err := combine(b, c)
		test.That(t, err, test.ShouldBeNil)
		right, err := combine(a, bc)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, left.Data, test.ShouldResemble, right.Data)
	}

	min, err := CombineDynamicRanges(a, b)
	test.That(t, err, test.ShouldBeNil)
	max, err := CombinePhaseDeviationOrDistance(a, b)
	test.That(t, err, test.ShouldBeNil)
	for p := range a.Data {
		test.That(t, min.Data[p], test.ShouldEqual, math.Min(a.Data[p], b.Data[p]))
		test.That(t, max.Data[p], test.ShouldEqual, math.Max(a.Data[p], b.Data[p]))
	}

	_, err = CombineDynamicRanges(a, rimage.NewFloatImage(1, 1))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = CombinePhaseDeviationOrDistance(nil, a)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFetchTexture(t *testing.T) {
	texture := rimage.NewFloatImage(2, 1)
	texture.Set(0, 0, 4095)
	texture.Set(1, 0, 1000)
	gray, err := FetchTexture(texture, rimage.PixelFormatMono12)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gray.GrayAt(0, 0).Y, test.ShouldEqual, 255)
	test.That(t, gray.GrayAt(1, 0).Y, test.ShouldEqual, 62)

	_, err = FetchTexture(texture, rimage.PixelFormatUnknown)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = FetchTexture(nil, rimage.PixelFormatMono8)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestScaleAndDebayerTexture(t *testing.T) {
	// an RGGB mosaic of a uniformly colored scene
	texture := rimage.NewFloatImage(4, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			switch {
			case x%2 == 0 && y%2 == 0:
				texture.Set(x, y, 200)
			case x%2 == 1 && y%2 == 1:
				texture.Set(x, y, 40)
			default:
				texture.Set(x, y, 100)
			}
		}
	}
	img, err := ScaleAndDebayerTexture(texture, rimage.PixelFormatBayerRG8)
	test.That(t, err, test.ShouldBeNil)
	c := img.NRGBAAt(1, 1)
	test.That(t, c.R, test.ShouldEqual, 200)
	test.That(t, c.G, test.ShouldEqual, 100)
	test.That(t, c.B, test.ShouldEqual, 40)

	gray, err := ScaleAndDebayerTexture(texture, rimage.PixelFormatMono16)
	test.That(t, err, test.ShouldBeNil)
	c = gray.NRGBAAt(0, 0)
	test.That(t, c.R, test.ShouldEqual, c.B)
	test.That(t, c.R, test.ShouldEqual, 1)
}
