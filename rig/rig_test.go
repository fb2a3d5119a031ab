package rig_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	"go.viam.com/test"

	"go.viam.com/slrig/config"
	"go.viam.com/slrig/logging"
	"go.viam.com/slrig/phase"
	"go.viam.com/slrig/pipeline/metadata"
	"go.viam.com/slrig/rig"
	"go.viam.com/slrig/rig/fake"
	"go.viam.com/slrig/rimage"
)

const (
	patternWidth  = 32
	patternHeight = 6
	wavelength    = 16.0
)

// writePhasePatterns saves n phase shifted fringe patterns and returns their pattern list entries.
func writePhasePatterns(t *testing.T, dir string, n int) []string {
	t.Helper()
	var entries []string
	for i := 0; i < n; i++ {
		img, err := phase.PhaseShiftPattern(patternWidth, patternHeight, wavelength, i, n)
		test.That(t, err, test.ShouldBeNil)
		fn := filepath.Join(dir, fmt.Sprintf("phase_%d.png", i))
		test.That(t, imaging.Save(img.ToGray(0, 1), fn), test.ShouldBeNil)
		entries = append(entries, "phase_shift="+fn)
	}
	return entries
}

func newConfig(t *testing.T, cameras int, patterns []string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		DataRoot:          t.TempDir(),
		Session:           "session",
		MissedFrameWindow: time.Minute,
		Projectors: []config.ProjectorConfig{
			{ID: 7, Width: patternWidth, Height: patternHeight, Patterns: patterns},
		},
	}
	for i := 0; i < cameras; i++ {
		cfg.Cameras = append(cfg.Cameras, config.CameraConfig{
			ID:          i,
			Width:       patternWidth,
			Height:      patternHeight,
			PixelFormat: "Mono8",
			Exposure:    10 * time.Millisecond,
			SaveRAW:     true,
		})
	}
	cfg.ApplyDefaults()
	return cfg
}

func newRig(t *testing.T, cfg *config.Config) (*rig.Rig, []*fake.Camera) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	pcfg := cfg.Projectors[0]
	projector := fake.NewProjector(pcfg.ID, pcfg.Width, pcfg.Height, nil, 0)
	var fakes []*fake.Camera
	var cameras []rig.Camera
	for _, ccfg := range cfg.Cameras {
		format, err := ccfg.Format()
		test.That(t, err, test.ShouldBeNil)
		cam, err := fake.NewCamera(ccfg.ID, ccfg.Width, ccfg.Height, format, projector)
		test.That(t, err, test.ShouldBeNil)
		fakes = append(fakes, cam)
		cameras = append(cameras, cam)
	}
	r, err := rig.New(cfg, projector, cameras, rig.Options{}, logger)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, r.Close(), test.ShouldBeNil)
	})
	return r, fakes
}

func circularDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 1)
	return math.Min(d, 1-d)
}

func TestRunRelativePhase(t *testing.T) {
	patterns := writePhasePatterns(t, t.TempDir(), 4)
	cfg := newConfig(t, 1, patterns)
	cfg.Unwrap = config.UnwrapConfig{
		Method:          config.UnwrapRelative,
		Phase:           config.Span{First: 0, Last: 3},
		DeviationWindow: 3,
	}
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	r, cams := newRig(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	report, err := r.Run(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Frames, test.ShouldEqual, 4)
	test.That(t, cams[0].Triggers(), test.ShouldEqual, 4)
	test.That(t, report.Cameras, test.ShouldHaveLength, 1)

	rep := report.Cameras[0]
	test.That(t, rep.Acquired, test.ShouldEqual, 4)
	test.That(t, rep.Failed, test.ShouldEqual, 0)
	test.That(t, rep.Encoder.Inserted, test.ShouldEqual, 4)
	test.That(t, rep.Encoder.StoredRAW, test.ShouldEqual, 4)
	test.That(t, rep.Timing.Frames, test.ShouldEqual, 4)
	test.That(t, rep.Timing.PresentInterval.Count, test.ShouldEqual, 3)
	test.That(t, rep.Timing.TriggerLatency.Count, test.ShouldEqual, 4)

	// a single camera stores directly in the recording directory
	dir := filepath.Join(cfg.DataRoot, "session", report.Recording)
	test.That(t, rep.Directory, test.ShouldEqual, dir)
	for i := 0; i < 4; i++ {
		frame, md, err := rimage.ReadRAW(filepath.Join(dir, fmt.Sprintf("frame_%05d.raw", i)))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, frame.Width, test.ShouldEqual, patternWidth)
		test.That(t, md.QPCAfterTrigger, test.ShouldBeGreaterThanOrEqualTo, md.QPCBeforeTrigger)
	}
	for _, fn := range []string{rig.PhaseFile, rig.PhaseTIFFFile, rig.TextureFile, rig.DeviationFile} {
		_, err := os.Stat(filepath.Join(dir, fn))
		test.That(t, err, test.ShouldBeNil)
	}

	res := rep.Result
	test.That(t, res, test.ShouldNotBeNil)
	for y := 0; y < patternHeight; y++ {
		for x := 0; x < patternWidth; x++ {
			want := phase.FringePhase(x, wavelength) / (2 * math.Pi)
			test.That(t, circularDistance(res.Phase.At(x, y), want), test.ShouldBeLessThan, 0.01)
		}
	}
	// fringes span the full 8-bit range
	test.That(t, res.Texture.At(5, 2), test.ShouldAlmostEqual, 255, 3)
	test.That(t, res.DynamicRange.At(5, 2), test.ShouldBeGreaterThan, 200)
}

func TestRunDelayAndCameras(t *testing.T) {
	cfg := newConfig(t, 2, []string{
		"#ffffff",
		"#000000",
		"white_to_black=#808080",
		"black_to_white=#808080",
	})
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	r, cams := newRig(t, cfg)
	for _, cam := range cams {
		cam.Gain = 0.8
		cam.Offset = 0.1
	}

	report, err := r.Run(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Frames, test.ShouldEqual, 4)
	test.That(t, strings.ToLower(report.String()), test.ShouldContainSubstring, strings.ToLower(report.Recording))
	for i, rep := range report.Cameras {
		test.That(t, rep.CameraID, test.ShouldEqual, i)
		test.That(t, rep.Directory, test.ShouldEqual,
			filepath.Join(cfg.DataRoot, "session", report.Recording, fmt.Sprint(i)))
		test.That(t, rep.DelayErr, test.ShouldBeNil)
		// white 230, black 26, both transitions 128
		test.That(t, float64(rep.Delay), test.ShouldAlmostEqual, float64(5*time.Millisecond), float64(time.Microsecond))
		test.That(t, rep.Result, test.ShouldBeNil)
		_, err := os.Stat(filepath.Join(rep.Directory, "frame_00003.raw"))
		test.That(t, err, test.ShouldBeNil)
	}

	// a second run uses a new recording and shows the whole list again
	second, err := r.Run(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second.Frames, test.ShouldEqual, 4)
	test.That(t, cams[0].Triggers(), test.ShouldEqual, 8)
}

func TestRunFailedTrigger(t *testing.T) {
	patterns := writePhasePatterns(t, t.TempDir(), 3)
	cfg := newConfig(t, 1, patterns)
	cfg.Unwrap = config.UnwrapConfig{Method: config.UnwrapRelative, Phase: config.Span{First: 0, Last: 2}}
	r, cams := newRig(t, cfg)
	cams[0].Fail = func(rec metadata.FrameRecord) bool {
		return rec.Index == 1
	}

	report, err := r.Run(context.Background())
	test.That(t, err, test.ShouldBeNil)
	rep := report.Cameras[0]
	test.That(t, rep.Acquired, test.ShouldEqual, 2)
	test.That(t, rep.Failed, test.ShouldEqual, 1)
	test.That(t, rep.Encoder.Inserted, test.ShouldEqual, 2)
	test.That(t, rep.Result, test.ShouldBeNil)
	test.That(t, r.Metadata(0).Len(), test.ShouldEqual, 0)
}

var solidLevels = []string{"#000000", "#404040", "#808080", "#c0c0c0", "#ffffff"}

func checkSlots(t *testing.T, r *rig.Rig, camera int) {
	t.Helper()
	images := r.Encoder(camera).ImageSet()
	test.That(t, images.Complete(), test.ShouldBeTrue)
	for i, want := range []float64{0, 64, 128, 192, 255} {
		gray, err := images.Gray(i)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, gray.At(0, 0), test.ShouldEqual, want)
		test.That(t, gray.At(patternWidth-1, patternHeight-1), test.ShouldEqual, want)
	}
}

func TestRunSlotsHoldTheirPattern(t *testing.T) {
	cfg := newConfig(t, 1, solidLevels)
	r, cams := newRig(t, cfg)

	report, err := r.Run(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Frames, test.ShouldEqual, 5)
	test.That(t, cams[0].Triggers(), test.ShouldEqual, 5)
	checkSlots(t, r, 0)

	rep := report.Cameras[0]
	test.That(t, rep.Acquired, test.ShouldEqual, 5)
	test.That(t, rep.Timing.PresentInterval.Count, test.ShouldEqual, 4)
	// every frame but the last sees the next one presented
	test.That(t, rep.Timing.DisplayInterval.Count, test.ShouldEqual, 4)
	test.That(t, rep.Timing.DisplayInterval.Mean, test.ShouldBeGreaterThan, time.Duration(0))
	test.That(t, r.Metadata(0).Len(), test.ShouldEqual, 0)
}

func TestRunRetriesFailedFrameOutOfOrder(t *testing.T) {
	cfg := newConfig(t, 2, solidLevels)
	cfg.Projectors[0].Retries = 1
	r, cams := newRig(t, cfg)
	cams[0].Fail = func(rec metadata.FrameRecord) bool {
		return rec.Index == 1 && rec.Retry == 0
	}

	report, err := r.Run(context.Background())
	test.That(t, err, test.ShouldBeNil)
	// pattern 1 is shown again after pattern 4 and only camera 0 captures it
	test.That(t, report.Frames, test.ShouldEqual, 6)
	test.That(t, cams[0].Triggers(), test.ShouldEqual, 6)
	test.That(t, cams[1].Triggers(), test.ShouldEqual, 5)

	for i, rep := range report.Cameras {
		test.That(t, rep.Acquired, test.ShouldEqual, 5)
		test.That(t, rep.Encoder.Inserted, test.ShouldEqual, 5)
		checkSlots(t, r, i)
		test.That(t, r.Metadata(i).Len(), test.ShouldEqual, 0)
	}
	test.That(t, report.Cameras[0].Failed, test.ShouldEqual, 1)
	test.That(t, report.Cameras[1].Failed, test.ShouldEqual, 0)
}

func TestRunRetriesExhausted(t *testing.T) {
	cfg := newConfig(t, 1, solidLevels)
	cfg.Projectors[0].Retries = 2
	r, cams := newRig(t, cfg)
	cams[0].Fail = func(rec metadata.FrameRecord) bool {
		return rec.Index == 3
	}

	report, err := r.Run(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Frames, test.ShouldEqual, 7)
	rep := report.Cameras[0]
	test.That(t, rep.Failed, test.ShouldEqual, 3)
	test.That(t, rep.Acquired, test.ShouldEqual, 4)
	test.That(t, r.Encoder(0).ImageSet().Complete(), test.ShouldBeFalse)
}

func TestRunCanceled(t *testing.T) {
	cfg := newConfig(t, 1, []string{"#ffffff", "#000000"})
	cfg.Projectors[0].Cycle = true
	cfg.Cameras[0].SaveRAW = false
	r, _ := newRig(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := r.Run(ctx)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, context.DeadlineExceeded), test.ShouldBeTrue)
}

func TestSweepMissed(t *testing.T) {
	cfg := newConfig(t, 1, []string{"#ffffff"})
	cfg.MissedFrameWindow = time.Second
	clk := clock.NewMock()
	clk.Set(time.Unix(1000, 0))

	projector := fake.NewProjector(0, patternWidth, patternHeight, clk, 0)
	cam, err := fake.NewCamera(0, patternWidth, patternHeight, rimage.PixelFormatMono8, projector)
	test.That(t, err, test.ShouldBeNil)
	r, err := rig.New(cfg, projector, []rig.Camera{cam}, rig.Options{Clock: clk}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, r.Close(), test.ShouldBeNil)
	}()

	now := clk.Now().UnixNano()
	q := r.Metadata(0)
	q.PushBack(metadata.FrameRecord{Key: 1, Presented: now - int64(3*time.Second)})
	q.PushBack(metadata.FrameRecord{Key: 2, Presented: now - int64(2*time.Second), Triggered: true})
	q.PushBack(metadata.FrameRecord{Key: 3, Presented: now - int64(500*time.Millisecond)})

	test.That(t, r.SweepMissed(), test.ShouldEqual, 1)
	_, ok := q.PeekByKey(1)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, q.Len(), test.ShouldEqual, 2)

	clk.Add(time.Second)
	test.That(t, r.SweepMissed(), test.ShouldEqual, 1)
	test.That(t, r.SweepMissed(), test.ShouldEqual, 0)
}

func TestNewErrors(t *testing.T) {
	cfg := newConfig(t, 2, []string{"#ffffff"})
	projector := fake.NewProjector(0, patternWidth, patternHeight, nil, 0)
	cam, err := fake.NewCamera(0, patternWidth, patternHeight, rimage.PixelFormatMono8, projector)
	test.That(t, err, test.ShouldBeNil)
	_, err = rig.New(cfg, projector, []rig.Camera{cam}, rig.Options{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "2 cameras configured, 1 given")
}
