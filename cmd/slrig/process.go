package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"go.viam.com/slrig/config"
	"go.viam.com/slrig/phase"
	"go.viam.com/slrig/pipeline/encoder"
	"go.viam.com/slrig/rig"
	"go.viam.com/slrig/rimage"
)

// batchFrameName is the name the encoder stores batch frame idx under, without extension.
func batchFrameName(idx int) string {
	return fmt.Sprintf("frame_%05d", idx)
}

// readBatchFrame reads a stored batch frame, preferring the RAW dump over the PNG.
func readBatchFrame(dir string, idx int) (*rimage.Frame, error) {
	base := filepath.Join(dir, batchFrameName(idx))
	fn := base + rimage.RawExt
	if _, err := os.Stat(fn); err != nil {
		fn = base + ".png"
	}
	return rimage.ReadImageFile(fn)
}

func (s *slrig) phaseAction(c *cli.Context) error {
	cfg, err := config.Read(c.String(flagConfig), s.logger)
	if err != nil {
		return err
	}
	if cfg.Unwrap.Method == "" {
		return errors.New("config has no unwrap method")
	}
	dir := c.String(flagDir)
	out := c.String(flagOut)
	if out == "" {
		out = dir
	}

	n := cfg.BatchSize()
	frames := make([]*rimage.Frame, n)
	g, ctx := errgroup.WithContext(c.Context)
	for i := range frames {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := readBatchFrame(dir, i)
			if err != nil {
				return errors.Wrapf(err, "batch frame %d", i)
			}
			frames[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	src := make(phase.Frames, n)
	for i, f := range frames {
		src[i] = f.Gray()
	}

	res, err := rig.ProcessBatch(src, cfg.Unwrap, s.logger)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(out, 0o750); err != nil {
		return err
	}
	if err := res.Save(out, frames[0].Format); err != nil {
		return err
	}
	s.logger.Infow("unwrapped batch", "dir", dir, "frames", n, "method", cfg.Unwrap.Method)
	fmt.Fprintf(s.out, "phase written to %s\n", filepath.Join(out, rig.PhaseFile))
	return nil
}

func (s *slrig) delayAction(c *cli.Context) error {
	sums := make(map[string]float64, 4)
	for _, name := range []string{flagWhite, flagBlack, flagWB, flagBW} {
		f, err := rimage.ReadImageFile(c.String(name))
		if err != nil {
			return err
		}
		sums[name] = f.Sum()
	}
	delay, delayBW, delayWB, err := encoder.ComputeDelay(encoder.DelayStatistics{
		White:        sums[flagWhite],
		Black:        sums[flagBlack],
		WhiteToBlack: sums[flagWB],
		BlackToWhite: sums[flagBW],
		Exposure:     c.Duration(flagExposure),
	})
	fmt.Fprintf(s.out, "delay %v (black to white %v, white to black %v)\n", delay, delayBW, delayWB)
	return err
}
