package phase

import (
	"math"

	"github.com/pkg/errors"

	"go.viam.com/slrig/rimage"
)

// PhaseOrderAndDeviation computes the mean and standard deviation of abs over a windowW x windowH
// window around every pixel, the window's top left corner being windowW/2 and windowH/2 pixels
// up and left of the pixel. Unwrapping errors show up as a large local deviation. Pixels whose
// window does not fit in the image are zero in both results.
func PhaseOrderAndDeviation(abs *rimage.FloatImage, windowW, windowH int) (mean, dev *rimage.FloatImage, err error) {
	if abs == nil {
		return nil, nil, errors.New("no phase image")
	}
	if windowW <= 0 || windowH <= 0 {
		return nil, nil, errors.Errorf("window must be positive, got %dx%d", windowW, windowH)
	}
	width, height := abs.Width(), abs.Height()
	mean = rimage.NewFloatImage(width, height)
	dev = rimage.NewFloatImage(width, height)
	if windowW > width || windowH > height {
		return mean, dev, nil
	}

	offX, offY := windowW/2, windowH/2
	for y := offY; y-offY+windowH <= height; y++ {
		for x := offX; x-offX+windowW <= width; x++ {
			var n, m, m2 float64
			for wy := y - offY; wy < y-offY+windowH; wy++ {
				row := abs.Data[wy*width : (wy+1)*width]
				for _, v := range row[x-offX : x-offX+windowW] {
					n++
					delta := v - m
					m += delta / n
					m2 += delta * (v - m)
				}
			}
			mean.Set(x, y, m)
			dev.Set(x, y, math.Sqrt(m2/n))
		}
	}
	return mean, dev, nil
}
