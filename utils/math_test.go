package utils

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestWholeNumber(t *testing.T) {
	n, ok := WholeNumber(35)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, n, test.ShouldEqual, 35)

	n, ok = WholeNumber(34.9999999999)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, n, test.ShouldEqual, 35)

	n, ok = WholeNumber(7.4)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, n, test.ShouldEqual, 7)

	_, ok = WholeNumber(math.NaN())
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = WholeNumber(math.Ldexp(1, 60))
	test.That(t, ok, test.ShouldBeFalse)
}

func TestGCDAndLCM(t *testing.T) {
	test.That(t, GCD(12, 18), test.ShouldEqual, 6)
	test.That(t, GCD(-12, 18), test.ShouldEqual, 6)
	test.That(t, GCD(5, 7), test.ShouldEqual, 1)
	test.That(t, GCD(0, 9), test.ShouldEqual, 9)
	test.That(t, GCDOf(16, 24, 40), test.ShouldEqual, 8)

	l, err := LCM(5, 7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, l, test.ShouldEqual, 35)

	l, err = LCMOf(4, 6, 10)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, l, test.ShouldEqual, 60)

	_, err = LCM(MaxExactInteger-1, MaxExactInteger-3)
	test.That(t, errors.Is(err, ErrPrecisionOverflow), test.ShouldBeTrue)
}
