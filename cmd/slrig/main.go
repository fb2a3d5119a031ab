// Package main is the slrig command: it generates patterns, simulates a rig and post-processes
// stored batches.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"go.viam.com/slrig/logging"
)

const (
	// Flags.
	flagDebug     = "debug"
	flagLogFile   = "log-file"
	flagConfig    = "config"
	flagOut       = "out"
	flagDir       = "dir"
	flagWidth     = "width"
	flagHeight    = "height"
	flagWave      = "wavelength"
	flagSteps     = "steps"
	flagGrayBits  = "gray-bits"
	flagSecondary = "secondary"
	flagConfigOut = "config-out"
	flagBatches   = "batches"
	flagGain      = "gain"
	flagOffset    = "offset"
	flagRealtime  = "realtime"
	flagDataRoot  = "data-root"
	flagWatch     = "watch"
	flagExposure  = "exposure"
	flagWhite     = "white"
	flagBlack     = "black"
	flagWB        = "white-to-black"
	flagBW        = "black-to-white"
)

// slrig holds what every command shares.
type slrig struct {
	out    io.Writer
	logger logging.Logger
}

// newApp returns the command line app. A nil logger is created from the global flags.
func newApp(out io.Writer, logger logging.Logger) *cli.App {
	s := &slrig{out: out, logger: logger}
	return &cli.App{
		Name:      "slrig",
		Usage:     "drive and evaluate a structured light rig",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to a rotated `FILE`",
			},
		},
		Before: func(c *cli.Context) error {
			if s.logger != nil {
				return nil
			}
			if fn := c.String(flagLogFile); fn != "" {
				s.logger = logging.NewFileLogger("slrig", fn)
			} else {
				s.logger = logging.NewLogger("slrig")
			}
			if c.Bool(flagDebug) {
				s.logger.SetLevel(logging.DEBUG)
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if s.logger != nil {
				//nolint:errcheck
				s.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "write phase shift and gray code patterns",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagOut, Required: true, Usage: "pattern `DIR`"},
					&cli.IntFlag{Name: flagWidth, Value: 1920, Usage: "pattern width"},
					&cli.IntFlag{Name: flagHeight, Value: 1080, Usage: "pattern height"},
					&cli.Float64SliceFlag{Name: flagWave, Usage: "fringe wavelength in pixels, repeat for multiple wavelengths"},
					&cli.IntFlag{Name: flagSteps, Value: 4, Usage: "phase steps per wavelength"},
					&cli.IntFlag{Name: flagGrayBits, Usage: "gray code bits, 0 for none"},
					&cli.BoolFlag{Name: flagSecondary, Usage: "add the half stripe shifted gray code"},
					&cli.StringFlag{Name: flagConfigOut, Usage: "write a rig config using the patterns to `FILE`"},
				},
				Action: s.generateAction,
			},
			{
				Name:  "phase",
				Usage: "unwrap a stored batch",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagConfig, Required: true, Usage: "rig config `FILE`"},
					&cli.StringFlag{Name: flagDir, Required: true, Usage: "recording `DIR` holding the batch frames"},
					&cli.StringFlag{Name: flagOut, Usage: "output `DIR`, defaults to the recording directory"},
				},
				Action: s.phaseAction,
			},
			{
				Name:  "delay",
				Usage: "compute the trigger delay from four calibration frames",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagWhite, Required: true},
					&cli.StringFlag{Name: flagBlack, Required: true},
					&cli.StringFlag{Name: flagWB, Required: true},
					&cli.StringFlag{Name: flagBW, Required: true},
					&cli.DurationFlag{Name: flagExposure, Required: true},
				},
				Action: s.delayAction,
			},
			{
				Name:  "simulate",
				Usage: "run the configured rig against a simulated projector and cameras",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagConfig, Required: true, Usage: "rig config `FILE`"},
					&cli.IntFlag{Name: flagBatches, Value: 1, Usage: "number of batches to run"},
					&cli.Float64Flag{Name: flagGain, Value: 0.8, Usage: "simulated camera gain"},
					&cli.Float64Flag{Name: flagOffset, Value: 0.1, Usage: "simulated camera offset"},
					&cli.BoolFlag{Name: flagRealtime, Usage: "present patterns at the configured frame interval"},
					&cli.StringFlag{Name: flagDataRoot, Usage: "override the configured data root"},
				},
				Action: s.simulateAction,
			},
			{
				Name:  "check",
				Usage: "validate a rig config",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagConfig, Required: true, Usage: "rig config `FILE`"},
					&cli.BoolFlag{Name: flagWatch, Usage: "keep validating the file whenever it changes"},
				},
				Action: s.checkAction,
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newApp(os.Stdout, nil).RunContext(ctx, os.Args)
	stop()
	if err != nil {
		logging.Global().Error(err)
		os.Exit(1)
	}
}
