package rimage

// Debayer performs bilinear interpolation of a raw mosaic and returns the red, green and blue
// planes. Edge pixels use clamped (replicated) neighbors.
func Debayer(raw *FloatImage, pattern BayerPattern) (r, g, b *FloatImage) {
	width, height := raw.Width(), raw.Height()
	r, g, b = NewFloatImage(width, height), NewFloatImage(width, height), NewFloatImage(width, height)
	if pattern == BayerNone {
		copy(r.Data, raw.Data)
		copy(g.Data, raw.Data)
		copy(b.Data, raw.Data)
		return r, g, b
	}

	px := func(x, y int) float64 {
		x = clampInt(x, 0, width-1)
		y = clampInt(y, 0, height-1)
		return raw.At(x, y)
	}
	cross := func(x, y int) float64 {
		return (px(x-1, y) + px(x+1, y) + px(x, y-1) + px(x, y+1)) / 4
	}
	diagonal := func(x, y int) float64 {
		return (px(x-1, y-1) + px(x+1, y-1) + px(x-1, y+1) + px(x+1, y+1)) / 4
	}
	horizontal := func(x, y int) float64 {
		return (px(x-1, y) + px(x+1, y)) / 2
	}
	vertical := func(x, y int) float64 {
		return (px(x, y-1) + px(x, y+1)) / 2
	}

	rx, ry := pattern.redOffset()
	for y := 0; y < height; y++ {
		redRow := y%2 == ry
		for x := 0; x < width; x++ {
			redCol := x%2 == rx
			var rv, gv, bv float64
			switch {
			case redRow && redCol:
				rv, gv, bv = px(x, y), cross(x, y), diagonal(x, y)
			case !redRow && !redCol:
				rv, gv, bv = diagonal(x, y), cross(x, y), px(x, y)
			case redRow:
				rv, gv, bv = horizontal(x, y), px(x, y), vertical(x, y)
			default:
				rv, gv, bv = vertical(x, y), px(x, y), horizontal(x, y)
			}
			r.Set(x, y, rv)
			g.Set(x, y, gv)
			b.Set(x, y, bv)
		}
	}
	return r, g, b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
