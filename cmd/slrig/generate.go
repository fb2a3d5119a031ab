package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/slrig/config"
	"go.viam.com/slrig/phase"
	"go.viam.com/slrig/rimage"
)

// patternList accumulates pattern files and their list entries.
type patternList struct {
	dir     string
	entries []string
}

func (l *patternList) save(name, typ string, img *rimage.FloatImage) error {
	fn := filepath.Join(l.dir, name)
	if err := imaging.Save(img.ToGray(0, 1), fn); err != nil {
		return errors.Wrapf(err, "saving pattern %s", fn)
	}
	l.entries = append(l.entries, typ+"="+fn)
	return nil
}

func (l *patternList) add(entry string) int {
	l.entries = append(l.entries, entry)
	return len(l.entries) - 1
}

func (s *slrig) generateAction(c *cli.Context) error {
	width, height := c.Int(flagWidth), c.Int(flagHeight)
	steps := c.Int(flagSteps)
	bits := c.Int(flagGrayBits)
	wavelengths := c.Float64Slice(flagWave)
	if len(wavelengths) == 0 {
		if bits == 0 {
			return errors.New("need at least one wavelength or gray code bits")
		}
		wavelengths = []float64{float64(width) / float64(int(1)<<bits)}
	}
	if bits > 0 {
		// gray code stripes must coincide with the fringe periods
		want := float64(width) / float64(int(1)<<bits)
		if len(wavelengths) != 1 || math.Abs(wavelengths[0]-want) > 1e-9 {
			return errors.Errorf("a %d bit gray code over %d pixels needs exactly one wavelength of %g",
				bits, width, want)
		}
	}
	if c.Bool(flagSecondary) && bits == 0 {
		return errors.New("a secondary gray code needs gray code bits")
	}

	list := &patternList{dir: c.String(flagOut)}
	if err := os.MkdirAll(list.dir, 0o750); err != nil {
		return err
	}

	unwrap := config.UnwrapConfig{DeviationWindow: config.DefaultDeviationWindow}
	for _, wl := range wavelengths {
		first := len(list.entries)
		for i := 0; i < steps; i++ {
			img, err := phase.PhaseShiftPattern(width, height, wl, i, steps)
			if err != nil {
				return err
			}
			if err := list.save(fmt.Sprintf("phase_%g_%02d.png", wl, i), "phase_shift", img); err != nil {
				return err
			}
		}
		unwrap.PhaseSpans = append(unwrap.PhaseSpans, config.Span{First: first, Last: len(list.entries) - 1})
	}
	unwrap.Phase = unwrap.PhaseSpans[0]

	switch {
	case bits > 0:
		unwrap.Method = config.UnwrapGrayCode
		unwrap.Gray.Black = list.add("#000000")
		unwrap.Gray.White = list.add("#ffffff")
		primary, err := s.saveGrayCode(list, width, height, bits, false)
		if err != nil {
			return err
		}
		unwrap.Gray.Primary = primary
		if c.Bool(flagSecondary) {
			secondary, err := s.saveGrayCode(list, width, height, bits, true)
			if err != nil {
				return err
			}
			unwrap.Gray.Secondary = &secondary
		}
		unwrap.PhaseSpans = nil
	case len(wavelengths) > 1:
		unwrap.Method = config.UnwrapMPS
		unwrap.Wavelengths = wavelengths
		unwrap.Width = float64(width)
	default:
		unwrap.Method = config.UnwrapRelative
		unwrap.PhaseSpans = nil
	}
	s.logger.Infow("generated patterns", "dir", list.dir, "count", len(list.entries), "unwrap", unwrap.Method)
	for _, e := range list.entries {
		fmt.Fprintln(s.out, e)
	}

	fn := c.String(flagConfigOut)
	if fn == "" {
		return nil
	}
	cfg := &config.Config{
		Cameras: []config.CameraConfig{{
			ID: 0, Width: width, Height: height, PixelFormat: rimage.PixelFormatMono8.String(), SaveRAW: true,
		}},
		Projectors: []config.ProjectorConfig{{ID: 0, Width: width, Height: height, Patterns: list.entries}},
		Unwrap:     unwrap,
	}
	cfg.ApplyDefaults()
	// sessions are chosen per run
	cfg.Session = ""
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "generated config is invalid")
	}
	return config.Write(fn, cfg)
}

func (s *slrig) saveGrayCode(list *patternList, width, height, bits int, shifted bool) (config.Span, error) {
	name := "gray"
	if shifted {
		name = "gray_shifted"
	}
	first := len(list.entries)
	for plane := 0; plane < bits; plane++ {
		img, err := phase.GrayCodePattern(width, height, bits, plane, shifted)
		if err != nil {
			return config.Span{}, err
		}
		if err := list.save(fmt.Sprintf("%s_%02d.png", name, plane), "gray_code", img); err != nil {
			return config.Span{}, err
		}
	}
	return config.Span{First: first, Last: len(list.entries) - 1}, nil
}
