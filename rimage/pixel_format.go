package rimage

import (
	"strings"

	"github.com/pkg/errors"
)

// PixelFormat describes how a camera frame's bytes encode pixels. Samples wider than 8 bits are
// stored unpacked as little endian uint16.
type PixelFormat int

// Supported pixel formats.
const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatMono8
	PixelFormatMono10
	PixelFormatMono12
	PixelFormatMono16
	PixelFormatBayerRG8
	PixelFormatBayerGR8
	PixelFormatBayerGB8
	PixelFormatBayerBG8
	PixelFormatBayerRG12
	PixelFormatBayerGR12
	PixelFormatBayerGB12
	PixelFormatBayerBG12
	PixelFormatRGB8
	PixelFormatBGR8
	PixelFormatBGRA8
)

var pixelFormatNames = map[PixelFormat]string{
	PixelFormatUnknown:   "Unknown",
	PixelFormatMono8:     "Mono8",
	PixelFormatMono10:    "Mono10",
	PixelFormatMono12:    "Mono12",
	PixelFormatMono16:    "Mono16",
	PixelFormatBayerRG8:  "BayerRG8",
	PixelFormatBayerGR8:  "BayerGR8",
	PixelFormatBayerGB8:  "BayerGB8",
	PixelFormatBayerBG8:  "BayerBG8",
	PixelFormatBayerRG12: "BayerRG12",
	PixelFormatBayerGR12: "BayerGR12",
	PixelFormatBayerGB12: "BayerGB12",
	PixelFormatBayerBG12: "BayerBG12",
	PixelFormatRGB8:      "RGB8",
	PixelFormatBGR8:      "BGR8",
	PixelFormatBGRA8:     "BGRA8",
}

func (f PixelFormat) String() string {
	if name, ok := pixelFormatNames[f]; ok {
		return name
	}
	return pixelFormatNames[PixelFormatUnknown]
}

// ParsePixelFormat converts a name such as "Mono12" or "bayerrg8" to a PixelFormat.
func ParsePixelFormat(name string) (PixelFormat, error) {
	for f, n := range pixelFormatNames {
		if f != PixelFormatUnknown && strings.EqualFold(n, name) {
			return f, nil
		}
	}
	return PixelFormatUnknown, errors.Errorf("unknown pixel format %q", name)
}

// Valid reports whether f is a known, concrete format.
func (f PixelFormat) Valid() bool {
	return f > PixelFormatUnknown && f <= PixelFormatBGRA8
}

// Channels returns the number of samples stored per pixel. Bayer mosaics store one.
func (f PixelFormat) Channels() int {
	switch f {
	case PixelFormatRGB8, PixelFormatBGR8:
		return 3
	case PixelFormatBGRA8:
		return 4
	case PixelFormatUnknown:
		return 0
	default:
		return 1
	}
}

// BytesPerSample returns the storage size of one sample.
func (f PixelFormat) BytesPerSample() int {
	switch f {
	case PixelFormatMono10, PixelFormatMono12, PixelFormatMono16,
		PixelFormatBayerRG12, PixelFormatBayerGR12, PixelFormatBayerGB12, PixelFormatBayerBG12:
		return 2
	case PixelFormatUnknown:
		return 0
	default:
		return 1
	}
}

// BytesPerPixel returns the storage size of one pixel.
func (f PixelFormat) BytesPerPixel() int {
	return f.Channels() * f.BytesPerSample()
}

// BitDepth returns the number of significant bits per sample.
func (f PixelFormat) BitDepth() int {
	switch f {
	case PixelFormatMono10:
		return 10
	case PixelFormatMono12, PixelFormatBayerRG12, PixelFormatBayerGR12, PixelFormatBayerGB12, PixelFormatBayerBG12:
		return 12
	case PixelFormatMono16:
		return 16
	case PixelFormatUnknown:
		return 0
	default:
		return 8
	}
}

// MaxValue returns the largest sample value the format can carry.
func (f PixelFormat) MaxValue() float64 {
	return float64(uint32(1)<<uint(f.BitDepth()) - 1)
}

// IsBayer reports whether the format is a raw color mosaic.
func (f PixelFormat) IsBayer() bool {
	return f.BayerPattern() != BayerNone
}

// BayerPattern identifies the 2x2 color filter layout of a mosaic, named by its first row.
type BayerPattern int

// Known Bayer layouts.
const (
	BayerNone BayerPattern = iota
	BayerRGGB
	BayerGRBG
	BayerGBRG
	BayerBGGR
)

// BayerPattern returns the mosaic layout of f, or BayerNone.
func (f PixelFormat) BayerPattern() BayerPattern {
	switch f {
	case PixelFormatBayerRG8, PixelFormatBayerRG12:
		return BayerRGGB
	case PixelFormatBayerGR8, PixelFormatBayerGR12:
		return BayerGRBG
	case PixelFormatBayerGB8, PixelFormatBayerGB12:
		return BayerGBRG
	case PixelFormatBayerBG8, PixelFormatBayerBG12:
		return BayerBGGR
	default:
		return BayerNone
	}
}

// redOffset returns the position of the red sample inside the 2x2 tile.
func (p BayerPattern) redOffset() (int, int) {
	switch p {
	case BayerGRBG:
		return 1, 0
	case BayerGBRG:
		return 0, 1
	case BayerBGGR:
		return 1, 1
	default:
		return 0, 0
	}
}
