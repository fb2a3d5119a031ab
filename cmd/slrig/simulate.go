package main

import (
	"fmt"
	"time"

	"github.com/docker/go-units"
	"github.com/urfave/cli/v2"

	"go.viam.com/slrig/config"
	"go.viam.com/slrig/rig"
	"go.viam.com/slrig/rig/fake"
)

func (s *slrig) simulateAction(c *cli.Context) error {
	cfg, err := config.Read(c.String(flagConfig), s.logger)
	if err != nil {
		return err
	}
	if root := c.String(flagDataRoot); root != "" {
		cfg.DataRoot = root
	}

	var interval time.Duration
	if c.Bool(flagRealtime) {
		interval = cfg.FrameInterval
	}
	pcfg := cfg.Projectors[0]
	projector := fake.NewProjector(pcfg.ID, pcfg.Width, pcfg.Height, nil, interval)
	cameras := make([]rig.Camera, 0, len(cfg.Cameras))
	for _, ccfg := range cfg.Cameras {
		format, err := ccfg.Format()
		if err != nil {
			return err
		}
		cam, err := fake.NewCamera(ccfg.ID, ccfg.Width, ccfg.Height, format, projector)
		if err != nil {
			return err
		}
		cam.Gain = c.Float64(flagGain)
		cam.Offset = c.Float64(flagOffset)
		cameras = append(cameras, cam)
	}

	r, err := rig.New(cfg, projector, cameras, rig.Options{}, s.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			s.logger.Warnw("error closing rig", "error", err)
		}
	}()

	for i := 0; i < c.Int(flagBatches); i++ {
		report, err := r.Run(c.Context)
		if err != nil {
			return err
		}
		s.printReport(report)
	}
	return nil
}

func (s *slrig) printReport(report *rig.BatchReport) {
	fmt.Fprintf(s.out, "recording %s: %d frames\n", report.Recording, report.Frames)
	s.logger.Debugf("batch report\n%s", report)
	for _, rep := range report.Cameras {
		fmt.Fprintf(s.out, "  camera %d: %d acquired, %d failed, %d missed, %d raw, %d png (%s) in %s\n",
			rep.CameraID, rep.Acquired, rep.Failed, rep.Missed, rep.Encoder.StoredRAW, rep.Encoder.StoredPNG,
			units.HumanSize(float64(rep.Encoder.BytesWritten)), rep.Directory)
		fmt.Fprintf(s.out, "    present interval %v ± %v, trigger latency %v (p95 %v)\n",
			rep.Timing.PresentInterval.Mean, rep.Timing.PresentInterval.StdDev,
			rep.Timing.TriggerLatency.Mean, rep.Timing.TriggerLatency.P95)
		if rep.Delay > 0 || rep.DelayErr != nil {
			fmt.Fprintf(s.out, "    trigger delay %v\n", rep.Delay)
			if rep.DelayErr != nil {
				fmt.Fprintf(s.out, "    delay warning: %v\n", rep.DelayErr)
			}
		}
		if rep.Result != nil {
			fmt.Fprintf(s.out, "    unwrapped phase stored as %s\n", rig.PhaseFile)
		}
	}
}

func (s *slrig) checkAction(c *cli.Context) error {
	fn := c.String(flagConfig)
	cfg, err := config.Read(fn, s.logger)
	if err != nil {
		return err
	}
	s.printConfig(cfg)
	if !c.Bool(flagWatch) {
		return nil
	}

	w, err := config.NewWatcher(fn, s.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			s.logger.Warnw("error closing config watcher", "error", err)
		}
	}()
	for {
		select {
		case <-c.Context.Done():
			return nil
		case cfg := <-w.Config():
			s.printConfig(cfg)
		}
	}
}

func (s *slrig) printConfig(cfg *config.Config) {
	method := cfg.Unwrap.Method
	if method == "" {
		method = "none"
	}
	fmt.Fprintf(s.out, "config ok: %d cameras, %d patterns, unwrap %s, session %s\n",
		len(cfg.Cameras), cfg.BatchSize(), method, cfg.Session)
}
