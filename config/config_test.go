package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.viam.com/test"

	"go.viam.com/slrig/logging"
)

const minimalConfig = `{
	"cameras": [{"id": 0, "width": 64, "height": 48, "pixel_format": "mono8", "save_raw": true}],
	"projectors": [{"id": 0, "width": 64, "height": 48, "patterns": ["#ffffff", "#000000"]}]
}`

func TestReadDefaults(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg, err := FromReader(strings.NewReader(minimalConfig), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.DataRoot, test.ShouldEqual, DefaultDataRoot)
	test.That(t, cfg.Session, test.ShouldNotBeEmpty)
	test.That(t, cfg.Decoder, test.ShouldResemble, QueueConfig{MaxItems: 8, MinItems: 4})
	test.That(t, cfg.Encoder, test.ShouldResemble, QueueConfig{MaxItems: 18, MinItems: 9})
	test.That(t, cfg.MissedFrameWindow, test.ShouldEqual, time.Second)
	test.That(t, cfg.FrameInterval, test.ShouldEqual, time.Second/60)
	test.That(t, cfg.BatchSize(), test.ShouldEqual, 2)
	test.That(t, cfg.Cameras[0].SaveRAW, test.ShouldBeTrue)

	other, err := FromReader(strings.NewReader(minimalConfig), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, other.Session, test.ShouldNotEqual, cfg.Session)
}

func TestReadDurationsAndEnv(t *testing.T) {
	t.Setenv("SLRIG_TEST_ROOT", "/tmp/rig")
	dir := t.TempDir()
	fn := filepath.Join(dir, "rig.json")
	contents := `{
		"data_root": "${SLRIG_TEST_ROOT}",
		"session": "s1",
		"missed_frame_window": "250ms",
		"frame_interval": "10ms",
		"cameras": [{"id": 3, "width": 8, "height": 8, "pixel_format": "BayerRG8", "exposure": "5ms"}],
		"projectors": [{"id": 1, "width": 8, "height": 8, "patterns": ["a.png", "b.png", "c.png"], "cycle": true}],
		"unwrap": {"method": "relative", "phase": {"first": 0, "last": 2}},
		"log": {"level": "debug"}
	}`
	test.That(t, os.WriteFile(fn, []byte(contents), 0o600), test.ShouldBeNil)

	cfg, err := Read(fn, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.DataRoot, test.ShouldEqual, "/tmp/rig")
	test.That(t, cfg.Session, test.ShouldEqual, "s1")
	test.That(t, cfg.MissedFrameWindow, test.ShouldEqual, 250*time.Millisecond)
	test.That(t, cfg.FrameInterval, test.ShouldEqual, 10*time.Millisecond)
	test.That(t, cfg.Cameras[0].Exposure, test.ShouldEqual, 5*time.Millisecond)
	test.That(t, cfg.Projectors[0].Cycle, test.ShouldBeTrue)
	test.That(t, cfg.Unwrap.DeviationWindow, test.ShouldEqual, DefaultDeviationWindow)

	// written configs read back the same
	out := filepath.Join(dir, "out.json")
	test.That(t, Write(out, cfg), test.ShouldBeNil)
	again, err := Read(out, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmp.Diff(cfg, again), test.ShouldBeEmpty)
}

func TestReadErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)

	_, err := Read(filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot read config file")

	_, err = FromReader(strings.NewReader("{"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot parse config")

	_, err = FromReader(strings.NewReader(`{"bogus": 1}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bogus")
}

func validConfig() *Config {
	cfg := &Config{
		Cameras:    []CameraConfig{{ID: 0, Width: 4, Height: 4, PixelFormat: "mono8"}},
		Projectors: []ProjectorConfig{{ID: 0, Width: 4, Height: 4, Patterns: []string{"#ffffff", "#000000", "x.png", "y.png"}}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	test.That(t, validConfig().Validate(), test.ShouldBeNil)

	for _, tc := range []struct {
		name   string
		modify func(*Config)
		expect string
	}{
		{"no cameras", func(c *Config) { c.Cameras = nil }, `"cameras" is required`},
		{"camera width", func(c *Config) { c.Cameras[0].Width = 0 }, `"width" is required`},
		{"pixel format", func(c *Config) { c.Cameras[0].PixelFormat = "yuv" }, "cameras.0"},
		{"duplicate camera", func(c *Config) { c.Cameras = append(c.Cameras, c.Cameras[0]) }, "duplicate camera id 0"},
		{"no projectors", func(c *Config) { c.Projectors = nil }, `"projectors" is required`},
		{"no patterns", func(c *Config) { c.Projectors[0].Patterns = nil }, `"patterns" is required`},
		{"bad pattern", func(c *Config) { c.Projectors[0].Patterns[0] = "#zz" }, "projectors.0.patterns"},
		{"retries", func(c *Config) { c.Projectors[0].Retries = -1 }, "projectors.0.retries"},
		{"watermarks", func(c *Config) { c.Decoder.MinItems = c.Decoder.MaxItems }, "decoder"},
		{"missing max", func(c *Config) { c.Encoder.MaxItems = 0 }, `"max_items" is required`},
		{"unknown method", func(c *Config) { c.Unwrap.Method = "fourier" }, `unknown unwrap method "fourier"`},
		{"span", func(c *Config) {
			c.Unwrap.Method = UnwrapRelative
			c.Unwrap.Phase = Span{First: 1, Last: 4}
		}, "unwrap.phase"},
		{"gray black", func(c *Config) {
			c.Unwrap.Method = UnwrapGrayCode
			c.Unwrap.Phase = Span{First: 0, Last: 2}
			c.Unwrap.Gray = GrayCodeConfig{Primary: Span{First: 2, Last: 3}, Black: 9}
		}, "unwrap.gray.black"},
		{"mps wavelengths", func(c *Config) {
			c.Unwrap.Method = UnwrapMPS
			c.Unwrap.Wavelengths = []float64{7}
		}, "at least two wavelengths"},
		{"mps spans", func(c *Config) {
			c.Unwrap.Method = UnwrapMPS
			c.Unwrap.Wavelengths = []float64{7, 5}
			c.Unwrap.PhaseSpans = []Span{{0, 1}}
		}, "1 phase spans for 2 wavelengths"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.modify(cfg)
			err := cfg.Validate()
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.expect)
		})
	}

	cfg := validConfig()
	cfg.Unwrap = UnwrapConfig{
		Method:      UnwrapMPS,
		Wavelengths: []float64{7, 5},
		PhaseSpans:  []Span{{0, 1}, {2, 3}},
		Width:       35,
	}
	test.That(t, cfg.Validate(), test.ShouldBeNil)
}

func TestWatcher(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	fn := filepath.Join(dir, "rig.json")
	test.That(t, os.WriteFile(fn, []byte(minimalConfig), 0o600), test.ShouldBeNil)

	w, err := NewWatcher(fn, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, w.Close(), test.ShouldBeNil)
	}()

	// an invalid config is skipped, the next valid one is delivered
	test.That(t, os.WriteFile(fn, []byte("{"), 0o600), test.ShouldBeNil)
	updated := strings.Replace(minimalConfig, `"cameras"`, `"session": "watched", "cameras"`, 1)
	test.That(t, os.WriteFile(fn, []byte(updated), 0o600), test.ShouldBeNil)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-w.Config():
			if cfg.Session == "watched" {
				return
			}
		case <-timeout:
			t.Fatal("no config delivered")
		}
	}
}
