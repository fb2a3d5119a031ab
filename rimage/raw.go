package rimage

import (
	"encoding/xml"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	// RawExt is the extension of flat binary frame dumps.
	RawExt = ".raw"
	// RawMetadataExt is the extension of the sidecar describing a RAW dump.
	RawMetadataExt = ".xml"
)

// RawMetadata is the sidecar written next to every RAW dump.
type RawMetadata struct {
	XMLName          xml.Name `xml:"ImageMetadata"`
	BufferSize       int      `xml:"BufferSize"`
	PixelFormat      string   `xml:"PixelFormat"`
	Width            int      `xml:"Width"`
	Height           int      `xml:"Height"`
	Stride           int      `xml:"Stride"`
	QPCBeforeTrigger int64    `xml:"QPCBeforeTrigger"`
	QPCAfterTrigger  int64    `xml:"QPCAfterTrigger"`
}

func rawBase(fn string) string {
	ext := filepath.Ext(fn)
	if ext == RawExt || ext == RawMetadataExt {
		return fn[:len(fn)-len(ext)]
	}
	return fn
}

// WriteRAW dumps f to "<base>.raw" and its description to "<base>.xml". base may carry either
// extension. Both files are attempted even if one fails.
func WriteRAW(base string, f *Frame, beforeTrigger, afterTrigger int64) error {
	if err := f.Validate(); err != nil {
		return err
	}
	base = rawBase(base)
	md := RawMetadata{
		BufferSize:       f.Size(),
		PixelFormat:      f.Format.String(),
		Width:            f.Width,
		Height:           f.Height,
		Stride:           f.Stride,
		QPCBeforeTrigger: beforeTrigger,
		QPCAfterTrigger:  afterTrigger,
	}

	var errs error
	//nolint:gosec
	if err := os.WriteFile(base+RawExt, f.Data[:f.Size()], 0o644); err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "writing raw dump"))
	}
	out, err := xml.MarshalIndent(md, "", "  ")
	if err != nil {
		return multierr.Append(errs, err)
	}
	out = append([]byte(xml.Header), out...)
	//nolint:gosec
	if err := os.WriteFile(base+RawMetadataExt, out, 0o644); err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "writing raw metadata"))
	}
	return errs
}

// ReadRAW loads a frame previously written by WriteRAW.
func ReadRAW(fn string) (*Frame, RawMetadata, error) {
	base := rawBase(fn)
	var md RawMetadata
	//nolint:gosec
	mdBytes, err := os.ReadFile(base + RawMetadataExt)
	if err != nil {
		return nil, md, err
	}
	if err := xml.Unmarshal(mdBytes, &md); err != nil {
		return nil, md, errors.Wrapf(err, "parsing %s", base+RawMetadataExt)
	}
	format, err := ParsePixelFormat(md.PixelFormat)
	if err != nil {
		return nil, md, err
	}
	//nolint:gosec
	data, err := os.ReadFile(base + RawExt)
	if err != nil {
		return nil, md, err
	}
	if len(data) != md.BufferSize {
		return nil, md, errors.Wrapf(ErrInvalidFrame, "%s holds %d bytes, metadata says %d", base+RawExt, len(data), md.BufferSize)
	}
	f, err := NewFrameFromBuffer(data, md.Width, md.Height, md.Stride, format)
	return f, md, err
}
