package framebuffer

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/slrig/rimage"
)

func monoFrame(t *testing.T, value byte) *rimage.Frame {
	t.Helper()
	f, err := rimage.NewFrame(4, 3, 0, rimage.PixelFormatMono8)
	test.That(t, err, test.ShouldBeNil)
	for i := range f.Data {
		f.Data[i] = value
	}
	return f
}

func TestImageSetInsertAndRead(t *testing.T) {
	s := NewImageSet(0)
	shape := ShapeOf(monoFrame(t, 0))
	test.That(t, s.Reallocate(3, shape), test.ShouldBeNil)
	test.That(t, s.Matches(3, shape), test.ShouldBeTrue)
	test.That(t, s.Len(), test.ShouldEqual, 3)

	_, err := s.Frame(1)
	test.That(t, errors.Is(err, ErrSlotEmpty), test.ShouldBeTrue)

	src := monoFrame(t, 9)
	test.That(t, s.Insert(1, src), test.ShouldBeNil)
	src.Data[0] = 0
	gray, err := s.Gray(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gray.At(0, 0), test.ShouldEqual, 9)

	bgr, err := s.BGR(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bgr.NRGBAAt(3, 2).G, test.ShouldEqual, 9)

	test.That(t, s.Filled(), test.ShouldEqual, 1)
	test.That(t, s.Complete(), test.ShouldBeFalse)
}

func TestImageSetSlotIndexIsAuthoritative(t *testing.T) {
	// frames arriving out of order (e.g. after a retry) land in their declared slot
	s := NewImageSet(0)
	test.That(t, s.Reallocate(4, ShapeOf(monoFrame(t, 0))), test.ShouldBeNil)
	for _, idx := range []int{2, 0, 3, 1, 2} {
		test.That(t, s.Insert(idx, monoFrame(t, byte(10*idx+1))), test.ShouldBeNil)
	}
	test.That(t, s.Filled(), test.ShouldEqual, 4)
	test.That(t, s.Complete(), test.ShouldBeTrue)
	for idx := 0; idx < 4; idx++ {
		f, err := s.Frame(idx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, f.Data[0], test.ShouldEqual, 10*idx+1)
	}
}

func TestImageSetRejects(t *testing.T) {
	s := NewImageSet(0)
	test.That(t, s.Reallocate(0, ShapeOf(monoFrame(t, 0))), test.ShouldNotBeNil)
	test.That(t, s.Reallocate(2, Shape{Width: 4, Height: 3, Format: rimage.PixelFormatUnknown}), test.ShouldNotBeNil)
	test.That(t, s.Reallocate(2, ShapeOf(monoFrame(t, 0))), test.ShouldBeNil)

	err := s.Insert(2, monoFrame(t, 1))
	test.That(t, errors.Is(err, ErrSlotOutOfRange), test.ShouldBeTrue)

	other, err := rimage.NewFrame(5, 3, 0, rimage.PixelFormatMono8)
	test.That(t, err, test.ShouldBeNil)
	err = s.Insert(0, other)
	test.That(t, errors.Is(err, ErrShapeMismatch), test.ShouldBeTrue)
	test.That(t, s.Insert(0, nil), test.ShouldNotBeNil)

	test.That(t, s.Insert(0, monoFrame(t, 1)), test.ShouldBeNil)
	s.Clear()
	test.That(t, s.Filled(), test.ShouldEqual, 0)
	test.That(t, s.Len(), test.ShouldEqual, 2)

	test.That(t, s.Reallocate(5, ShapeOf(monoFrame(t, 0))), test.ShouldBeNil)
	test.That(t, s.Len(), test.ShouldEqual, 5)
}
