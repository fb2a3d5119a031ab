// Package pipeline contains what the metadata, decoder and encoder queues share: pattern
// identities and the watermark signals that drive their producer and consumer threads.
package pipeline

import (
	"strings"

	"github.com/pkg/errors"
)

// PatternType identifies what a projected pattern is used for.
type PatternType int

// Known pattern types. The four delay calibration types are the frames the encoder keeps
// intensity sums for.
const (
	PatternUnknown PatternType = iota
	PatternSolidWhite
	PatternSolidBlack
	PatternWhiteToBlack
	PatternBlackToWhite
	PatternPhaseShift
	PatternGrayCode
	PatternSolidColor
	PatternFile
)

var patternTypeNames = map[PatternType]string{
	PatternUnknown:      "unknown",
	PatternSolidWhite:   "white",
	PatternSolidBlack:   "black",
	PatternWhiteToBlack: "white_to_black",
	PatternBlackToWhite: "black_to_white",
	PatternPhaseShift:   "phase_shift",
	PatternGrayCode:     "gray_code",
	PatternSolidColor:   "solid_color",
	PatternFile:         "file",
}

func (p PatternType) String() string {
	if name, ok := patternTypeNames[p]; ok {
		return name
	}
	return patternTypeNames[PatternUnknown]
}

// ParsePatternType converts a configured name into a PatternType.
func ParsePatternType(name string) (PatternType, error) {
	for p, n := range patternTypeNames {
		if strings.EqualFold(n, name) {
			return p, nil
		}
	}
	return PatternUnknown, errors.Errorf("unknown pattern type %q", name)
}

// IsDelayCalibration reports whether frames of this type feed the trigger delay measurement.
func (p PatternType) IsDelayCalibration() bool {
	switch p {
	case PatternSolidWhite, PatternSolidBlack, PatternWhiteToBlack, PatternBlackToWhite:
		return true
	default:
		return false
	}
}

// RenderType says how the render loop puts a pattern on screen.
type RenderType int

// Render types.
const (
	RenderImage RenderType = iota
	RenderSolidColor
	RenderBlank
)

func (r RenderType) String() string {
	switch r {
	case RenderImage:
		return "image"
	case RenderSolidColor:
		return "solid_color"
	case RenderBlank:
		return "blank"
	}
	return "unknown"
}
