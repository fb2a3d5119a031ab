package utils

import (
	"math"

	"github.com/pkg/errors"
)

// MaxExactInteger is the largest integer magnitude a float64 represents exactly (2^53).
const MaxExactInteger = int64(1) << 53

// wholeTolerance is the relative distance from an integer under which a float is treated as whole.
const wholeTolerance = 1e-6

// ErrPrecisionOverflow is returned when integer period arithmetic leaves the exactly
// representable float64 range.
var ErrPrecisionOverflow = errors.New("value exceeds 53-bit float precision")

// WholeNumber rounds x to the nearest integer and reports whether x was already a whole number.
// Values that are not finite or whose magnitude exceeds MaxExactInteger are never whole.
func WholeNumber(x float64) (int64, bool) {
	if math.IsNaN(x) || math.IsInf(x, 0) || math.Abs(x) >= float64(MaxExactInteger) {
		return 0, false
	}
	r := math.Round(x)
	return int64(r), math.Abs(x-r) <= wholeTolerance*math.Max(1, math.Abs(x))
}

// GCD returns the greatest common divisor of a and b using Euclid's algorithm. The result is
// never negative; GCD(0, 0) is 0.
func GCD(a, b int64) int64 {
	a, b = AbsInt64(a), AbsInt64(b)
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// LCM returns the least common multiple of a and b. It fails if the result cannot be
// represented exactly as a float64.
func LCM(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	a, b = AbsInt64(a), AbsInt64(b)
	q := a / GCD(a, b)
	if q > MaxExactInteger/b {
		return 0, errors.Wrapf(ErrPrecisionOverflow, "lcm(%d, %d)", a, b)
	}
	return q * b, nil
}

// GCDOf returns the greatest common divisor of all values.
func GCDOf(values ...int64) int64 {
	var g int64
	for _, v := range values {
		g = GCD(g, v)
	}
	return g
}

// LCMOf returns the least common multiple of all values.
func LCMOf(values ...int64) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	l := AbsInt64(values[0])
	for _, v := range values[1:] {
		var err error
		if l, err = LCM(l, v); err != nil {
			return 0, err
		}
	}
	return l, nil
}

// AbsInt64 returns the absolute value of n.
func AbsInt64(n int64) int64 {
	if n < 0 {
		return -1 * n
	}
	return n
}

// Square is faster than math.Pow(n, 2).
func Square(n float64) float64 {
	return n * n
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
