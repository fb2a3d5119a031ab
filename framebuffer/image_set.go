// Package framebuffer holds the frames of one batch acquisition, indexed by their position in the
// projected pattern sequence.
package framebuffer

import (
	"image"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/slrig/rimage"
)

var (
	// ErrSlotOutOfRange is returned for slot indices outside [0, Len()).
	ErrSlotOutOfRange = errors.New("slot index out of range")
	// ErrSlotEmpty is returned when reading a slot nothing was inserted into.
	ErrSlotEmpty = errors.New("slot is empty")
	// ErrShapeMismatch is returned when a frame does not match the batch's shape.
	ErrShapeMismatch = errors.New("frame shape does not match image set")
)

// Shape is the geometry and pixel format shared by every frame of a batch.
type Shape struct {
	Width  int
	Height int
	Stride int
	Format rimage.PixelFormat
}

// ShapeOf returns the shape of f.
func ShapeOf(f *rimage.Frame) Shape {
	return Shape{Width: f.Width, Height: f.Height, Stride: f.Stride, Format: f.Format}
}

// ImageSet is a fixed number of equally shaped frame slots. Writers (Reallocate, Insert, Clear)
// take the exclusive lock; readers take the shared one. The phase and texture engines read an
// ImageSet only after its batch has been fully drained.
type ImageSet struct {
	mu     sync.RWMutex
	shape  Shape
	slots  []*rimage.Frame
	filled int
}

// NewImageSet returns an image set with n empty slots and no shape yet.
func NewImageSet(n int) *ImageSet {
	return &ImageSet{slots: make([]*rimage.Frame, n)}
}

// Reallocate resizes the set to n slots of the given shape, dropping all previous contents.
func (s *ImageSet) Reallocate(n int, shape Shape) error {
	if n <= 0 {
		return errors.Errorf("cannot allocate %d slots", n)
	}
	if _, err := rimage.NewFrame(shape.Width, shape.Height, shape.Stride, shape.Format); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.shape = shape
	s.slots = make([]*rimage.Frame, n)
	s.filled = 0
	return nil
}

// Matches reports whether the set has n slots of the given shape, i.e. whether a Reallocate
// would be a no-op apart from clearing.
func (s *ImageSet) Matches(n int, shape Shape) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots) == n && s.shape == shape
}

// Clear empties every slot, keeping size and shape.
func (s *ImageSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		s.slots[i] = nil
	}
	s.filled = 0
}

// Insert stores a copy of f at slot idx, replacing any previous frame there. The frame must
// have the set's shape.
func (s *ImageSet) Insert(idx int, f *rimage.Frame) error {
	if f == nil {
		return errors.New("nil frame")
	}
	if err := f.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.slots) {
		return errors.Wrapf(ErrSlotOutOfRange, "slot %d of %d", idx, len(s.slots))
	}
	if ShapeOf(f) != s.shape {
		return errors.Wrapf(ErrShapeMismatch, "got %+v, want %+v", ShapeOf(f), s.shape)
	}
	if s.slots[idx] == nil {
		s.filled++
	}
	s.slots[idx] = f.Clone()
	return nil
}

// Len returns the number of slots.
func (s *ImageSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Filled returns the number of populated slots.
func (s *ImageSet) Filled() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filled
}

// Complete reports whether every slot is populated.
func (s *ImageSet) Complete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots) > 0 && s.filled == len(s.slots)
}

// Shape returns the shape of the batch.
func (s *ImageSet) Shape() Shape {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shape
}

// Frame returns the raw frame at idx. The frame must not be modified.
func (s *ImageSet) Frame(idx int) (*rimage.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx < 0 || idx >= len(s.slots) {
		return nil, errors.Wrapf(ErrSlotOutOfRange, "slot %d of %d", idx, len(s.slots))
	}
	if s.slots[idx] == nil {
		return nil, errors.Wrapf(ErrSlotEmpty, "slot %d", idx)
	}
	return s.slots[idx], nil
}

// Gray returns the single channel view of slot idx.
func (s *ImageSet) Gray(idx int) (*rimage.FloatImage, error) {
	f, err := s.Frame(idx)
	if err != nil {
		return nil, err
	}
	return f.Gray(), nil
}

// BGR returns the 8-bit color view of slot idx.
func (s *ImageSet) BGR(idx int) (*image.NRGBA, error) {
	f, err := s.Frame(idx)
	if err != nil {
		return nil, err
	}
	return f.BGR(), nil
}
