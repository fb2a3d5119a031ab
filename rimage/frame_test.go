package rimage

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"golang.org/x/image/tiff"
)

func TestNewFrameFromBufferCopies(t *testing.T) {
	buf := []byte{1, 2, 3, 0, 4, 5, 6, 0}
	f, err := NewFrameFromBuffer(buf, 3, 2, 4, PixelFormatMono8)
	test.That(t, err, test.ShouldBeNil)
	buf[0] = 99
	test.That(t, f.Sample(0, 0, 0), test.ShouldEqual, 1)
	test.That(t, f.Sample(2, 1, 0), test.ShouldEqual, 6)
	test.That(t, f.Sum(), test.ShouldEqual, 21)

	_, err = NewFrameFromBuffer(buf[:5], 3, 2, 4, PixelFormatMono8)
	test.That(t, errors.Is(err, ErrInvalidFrame), test.ShouldBeTrue)
	_, err = NewFrame(3, 2, 2, PixelFormatMono8)
	test.That(t, errors.Is(err, ErrInvalidFrame), test.ShouldBeTrue)
	_, err = NewFrame(0, 2, 0, PixelFormatMono8)
	test.That(t, errors.Is(err, ErrInvalidFrame), test.ShouldBeTrue)
	_, err = NewFrame(2, 2, 0, PixelFormatUnknown)
	test.That(t, errors.Is(err, ErrInvalidFrame), test.ShouldBeTrue)
}

func TestFrameIntensity(t *testing.T) {
	f, err := NewFrame(2, 1, 0, PixelFormatMono12)
	test.That(t, err, test.ShouldBeNil)
	binary.LittleEndian.PutUint16(f.Data[2:], 4095)
	test.That(t, f.Intensity(1, 0), test.ShouldEqual, 4095)
	g16 := f.ToImage().(*image.Gray16)
	test.That(t, g16.Gray16At(1, 0).Y, test.ShouldEqual, 4095<<4)

	bgr, err := NewFrameFromBuffer([]byte{10, 20, 30}, 1, 1, 0, PixelFormatBGR8)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bgr.Intensity(0, 0), test.ShouldAlmostEqual, 0.299*30+0.587*20+0.114*10)
	c := bgr.BGR().NRGBAAt(0, 0)
	test.That(t, c, test.ShouldResemble, color.NRGBA{R: 30, G: 20, B: 10, A: 255})
}

func TestFrameFromImage(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 2))
	gray.SetGray(2, 1, color.Gray{Y: 77})
	f := FrameFromImage(gray)
	test.That(t, f.Format, test.ShouldEqual, PixelFormatMono8)
	test.That(t, f.Intensity(2, 1), test.ShouldEqual, 77)

	rgba := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	rgba.SetNRGBA(0, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	f = FrameFromImage(rgba)
	test.That(t, f.Format, test.ShouldEqual, PixelFormatBGR8)
	test.That(t, f.Data, test.ShouldResemble, []byte{3, 2, 1})
}

func TestRAWRoundTrip(t *testing.T) {
	f, err := NewFrame(4, 3, 10, PixelFormatMono16)
	test.That(t, err, test.ShouldBeNil)
	for i := range f.Data {
		f.Data[i] = byte(i)
	}
	base := filepath.Join(t.TempDir(), "frame_007")
	test.That(t, WriteRAW(base, f, 100, 250), test.ShouldBeNil)

	sidecar, err := os.ReadFile(base + RawMetadataExt)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(sidecar), test.ShouldContainSubstring, "<BufferSize>30</BufferSize>")
	test.That(t, string(sidecar), test.ShouldContainSubstring, "<PixelFormat>Mono16</PixelFormat>")
	test.That(t, string(sidecar), test.ShouldContainSubstring, "<QPCAfterTrigger>250</QPCAfterTrigger>")

	got, md, err := ReadRAW(base + RawExt)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, md.QPCBeforeTrigger, test.ShouldEqual, 100)
	test.That(t, got.SameShape(f), test.ShouldBeTrue)
	test.That(t, got.Data, test.ShouldResemble, f.Data)

	viaFile, err := ReadImageFile(base + RawMetadataExt)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, viaFile.Data, test.ShouldResemble, f.Data)
}

func TestPNGRoundTrip(t *testing.T) {
	f, err := NewFrame(5, 4, 0, PixelFormatMono8)
	test.That(t, err, test.ShouldBeNil)
	for i := range f.Data {
		f.Data[i] = byte(10 * i)
	}
	fn := filepath.Join(t.TempDir(), "frame.png")
	test.That(t, WritePNG(fn, f), test.ShouldBeNil)

	got, err := ReadImageFile(fn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Width, test.ShouldEqual, 5)
	test.That(t, got.Intensity(4, 3), test.ShouldEqual, f.Intensity(4, 3))
}

func TestReadPPMAndTIFF(t *testing.T) {
	dir := t.TempDir()

	rgb := image.NewRGBA(image.Rect(0, 0, 3, 2))
	rgb.SetRGBA(2, 1, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	ppmFile := filepath.Join(dir, "pattern.ppm")
	f, err := os.Create(ppmFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ppm.Encode(f, rgb), test.ShouldBeNil)
	test.That(t, f.Close(), test.ShouldBeNil)

	got, err := ReadImageFile(ppmFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Format, test.ShouldEqual, PixelFormatBGR8)
	test.That(t, got.Data[got.Stride+6:got.Stride+9], test.ShouldResemble, []byte{50, 100, 200})

	fi := NewFloatImage(4, 1)
	for x := 0; x < 4; x++ {
		fi.Set(x, 0, float64(x)/3)
	}
	tiffFile := filepath.Join(dir, "phase.tiff")
	f, err = os.Create(tiffFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tiff.Encode(f, fi.ToGray16(0, 1), nil), test.ShouldBeNil)
	test.That(t, f.Close(), test.ShouldBeNil)

	got, err = ReadImageFile(tiffFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Format, test.ShouldEqual, PixelFormatMono16)
	test.That(t, got.Sample(0, 0, 0), test.ShouldEqual, 0.0)
	test.That(t, got.Sample(3, 0, 0), test.ShouldEqual, 65535.0)
}

func TestToPrettyPicture(t *testing.T) {
	fi := NewFloatImage(3, 1)
	fi.Set(0, 0, -1)
	fi.Set(1, 0, math.NaN())
	fi.Set(2, 0, 3)

	img := fi.ToPrettyPicture()
	low := img.NRGBAAt(0, 0)
	test.That(t, low.R, test.ShouldEqual, uint8(255))
	test.That(t, low.B, test.ShouldEqual, uint8(0))
	test.That(t, img.NRGBAAt(1, 0), test.ShouldResemble, color.NRGBA{A: 255})
	high := img.NRGBAAt(2, 0)
	test.That(t, high.B, test.ShouldEqual, uint8(255))
	test.That(t, high.R, test.ShouldEqual, uint8(0))
}
