package rimage

import (
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	// PPM and TIFF pattern images.
	_ "github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	_ "golang.org/x/image/tiff"
)

// WritePNG encodes f as a PNG at fn.
func WritePNG(fn string, f *Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	return errors.Wrapf(imaging.Save(f.ToImage(), fn), "saving %s", fn)
}

// ReadImageFile loads a frame from disk: RAW dumps (by their .raw or .xml name) are read back
// exactly, anything else goes through the image decoders.
func ReadImageFile(fn string) (*Frame, error) {
	switch strings.ToLower(filepath.Ext(fn)) {
	case RawExt, RawMetadataExt:
		f, _, err := ReadRAW(fn)
		return f, err
	}
	img, err := imaging.Open(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", fn)
	}
	return FrameFromImage(img), nil
}
