// Package phase turns captured structured light sequences into phase maps: wrapped phase from
// phase shifted fringes, Gray code decoding, dual Gray code unwrapping, multi-period-set
// unwrapping, and a local deviation quality metric.
//
// All functions are synchronous and read their frames through a Source, which must not change
// while a function runs.
package phase

import (
	"github.com/pkg/errors"

	"go.viam.com/slrig/rimage"
)

var (
	// ErrInvalidSpan is returned for frame spans outside the source.
	ErrInvalidSpan = errors.New("invalid frame span")
	// ErrSizeMismatch is returned when images of one computation differ in size.
	ErrSizeMismatch = errors.New("image sizes differ")
)

// A Source provides single channel views of the frames of a batch. *framebuffer.ImageSet is
// a Source.
type Source interface {
	Len() int
	Gray(idx int) (*rimage.FloatImage, error)
}

// Frames is a Source over images already in memory.
type Frames []*rimage.FloatImage

// Len returns the number of frames.
func (f Frames) Len() int {
	return len(f)
}

// Gray returns frame idx.
func (f Frames) Gray(idx int) (*rimage.FloatImage, error) {
	if idx < 0 || idx >= len(f) {
		return nil, errors.Wrapf(ErrInvalidSpan, "frame %d of %d", idx, len(f))
	}
	if f[idx] == nil {
		return nil, errors.Errorf("frame %d is missing", idx)
	}
	return f[idx], nil
}

func checkSpan(src Source, first, last, minFrames int) error {
	if first < 0 || last >= src.Len() || last < first {
		return errors.Wrapf(ErrInvalidSpan, "[%d, %d] of %d frames", first, last, src.Len())
	}
	if n := last - first + 1; n < minFrames {
		return errors.Wrapf(ErrInvalidSpan, "need at least %d frames, got %d", minFrames, n)
	}
	return nil
}

// loadSpan reads frames [first, last] and checks they share a size.
func loadSpan(src Source, first, last int) ([]*rimage.FloatImage, error) {
	frames := make([]*rimage.FloatImage, 0, last-first+1)
	for i := first; i <= last; i++ {
		img, err := src.Gray(i)
		if err != nil {
			return nil, errors.Wrapf(err, "reading frame %d", i)
		}
		if len(frames) > 0 && !img.SameSize(frames[0]) {
			return nil, errors.Wrapf(ErrSizeMismatch, "frame %d", i)
		}
		frames = append(frames, img)
	}
	return frames, nil
}
