// Package config defines the rig configuration: cameras, projectors and their pattern lists,
// queue watermarks, output layout and how batches are unwrapped.
package config

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/slrig/logging"
	"go.viam.com/slrig/pipeline/decoder"
	"go.viam.com/slrig/rimage"
	"go.viam.com/slrig/utils"
)

// Defaults applied to fields left empty.
const (
	DefaultDataRoot          = "data"
	DefaultDecoderMaxItems   = 8
	DefaultDecoderMinItems   = 4
	DefaultEncoderMaxItems   = 18
	DefaultEncoderMinItems   = 9
	DefaultMissedFrameWindow = time.Second
	DefaultFrameInterval     = time.Second / 60
	DefaultDeviationWindow   = 5
)

// Unwrap methods.
const (
	UnwrapRelative = "relative"
	UnwrapGrayCode = "gray"
	UnwrapMPS      = "mps"
)

// Config is the whole rig configuration.
type Config struct {
	DataRoot          string            `json:"data_root"`
	Session           string            `json:"session"`
	Cameras           []CameraConfig    `json:"cameras"`
	Projectors        []ProjectorConfig `json:"projectors"`
	Decoder           QueueConfig       `json:"decoder"`
	Encoder           QueueConfig       `json:"encoder"`
	MissedFrameWindow time.Duration     `json:"missed_frame_window"`
	FrameInterval     time.Duration     `json:"frame_interval"`
	Unwrap            UnwrapConfig      `json:"unwrap"`
	Log               LogConfig         `json:"log"`
}

// CameraConfig describes one camera.
type CameraConfig struct {
	ID          int           `json:"id"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	PixelFormat string        `json:"pixel_format"`
	Exposure    time.Duration `json:"exposure"`
	SavePNG     bool          `json:"save_png"`
	SaveRAW     bool          `json:"save_raw"`
}

// Format returns the parsed pixel format.
func (c CameraConfig) Format() (rimage.PixelFormat, error) {
	return rimage.ParsePixelFormat(c.PixelFormat)
}

// Validate ensures all parts of the config are valid.
func (c *CameraConfig) Validate(path string) error {
	if c.Width <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "width")
	}
	if c.Height <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "height")
	}
	if c.PixelFormat == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "pixel_format")
	}
	if _, err := c.Format(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if c.Exposure < 0 {
		return utils.NewConfigValidationError(path, errors.New("exposure must not be negative"))
	}
	return nil
}

// ProjectorConfig describes one projector and the patterns it shows, in order. Entries are
// parsed by decoder.ParsePattern.
type ProjectorConfig struct {
	ID       int      `json:"id"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Patterns []string `json:"patterns"`
	Cycle    bool     `json:"cycle"`
	// Retries is how often a batch pattern is shown again after a camera failed to capture it.
	Retries int `json:"retries,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (p *ProjectorConfig) Validate(path string) error {
	if p.Width <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "width")
	}
	if p.Height <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "height")
	}
	if len(p.Patterns) == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "patterns")
	}
	if _, err := decoder.ParsePatterns(p.Patterns); err != nil {
		return utils.NewConfigValidationError(utils.JoinPath(path, "patterns"), err)
	}
	if p.Retries < 0 {
		return utils.NewConfigValidationError(utils.JoinPath(path, "retries"),
			errors.Errorf("must not be negative, got %d", p.Retries))
	}
	return nil
}

// QueueConfig holds the watermarks of a bounded queue.
type QueueConfig struct {
	MaxItems int `json:"max_items"`
	MinItems int `json:"min_items"`
}

// Validate ensures all parts of the config are valid.
func (q *QueueConfig) Validate(path string) error {
	if q.MaxItems <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "max_items")
	}
	if q.MinItems < 0 || q.MinItems >= q.MaxItems {
		return utils.NewConfigValidationError(path,
			errors.Errorf("min_items must be in [0, %d), got %d", q.MaxItems, q.MinItems))
	}
	return nil
}

// Span is an inclusive range of frame indices within a batch.
type Span struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// Validate ensures the span is non-empty and inside a batch of n frames.
func (s Span) Validate(path string, n int) error {
	if s.First < 0 || s.Last < s.First || s.Last >= n {
		return utils.NewConfigValidationError(path, errors.Errorf("span [%d, %d] is outside [0, %d)", s.First, s.Last, n))
	}
	return nil
}

// GrayCodeConfig locates the frames of a Gray code sequence. A secondary code is used when
// Secondary is set.
type GrayCodeConfig struct {
	Primary   Span  `json:"primary"`
	Secondary *Span `json:"secondary"`
	Black     int   `json:"black"`
	White     int   `json:"white"`
}

// UnwrapConfig says how a completed batch is turned into a phase map.
type UnwrapConfig struct {
	Method          string         `json:"method"`
	Phase           Span           `json:"phase"`
	Gray            GrayCodeConfig `json:"gray"`
	PhaseSpans      []Span         `json:"phase_spans"`
	Wavelengths     []float64      `json:"wavelengths"`
	Width           float64        `json:"width"`
	DeviationWindow int            `json:"deviation_window"`
}

// Validate ensures all parts of the config are valid for batches of n frames. An empty method
// disables unwrapping.
func (u *UnwrapConfig) Validate(path string, n int) error {
	switch u.Method {
	case "":
		return nil
	case UnwrapRelative:
		return u.Phase.Validate(utils.JoinPath(path, "phase"), n)
	case UnwrapGrayCode:
		if err := u.Phase.Validate(utils.JoinPath(path, "phase"), n); err != nil {
			return err
		}
		grayPath := utils.JoinPath(path, "gray")
		if err := u.Gray.Primary.Validate(utils.JoinPath(grayPath, "primary"), n); err != nil {
			return err
		}
		if u.Gray.Secondary != nil {
			if err := u.Gray.Secondary.Validate(utils.JoinPath(grayPath, "secondary"), n); err != nil {
				return err
			}
		}
		for name, idx := range map[string]int{"black": u.Gray.Black, "white": u.Gray.White} {
			if idx < 0 || idx >= n {
				return utils.NewConfigValidationError(utils.JoinPath(grayPath, name),
					errors.Errorf("frame %d is outside [0, %d)", idx, n))
			}
		}
	case UnwrapMPS:
		if len(u.Wavelengths) < 2 {
			return utils.NewConfigValidationError(path, errors.New("mps needs at least two wavelengths"))
		}
		if len(u.PhaseSpans) != len(u.Wavelengths) {
			return utils.NewConfigValidationError(path,
				errors.Errorf("%d phase spans for %d wavelengths", len(u.PhaseSpans), len(u.Wavelengths)))
		}
		for i, s := range u.PhaseSpans {
			if err := s.Validate(utils.JoinPath(path, "phase_spans", i), n); err != nil {
				return err
			}
		}
		if u.Width <= 0 {
			return utils.NewConfigValidationFieldRequiredError(path, "width")
		}
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown unwrap method %q", u.Method))
	}
	if u.DeviationWindow < 0 {
		return utils.NewConfigValidationError(path, errors.New("deviation_window must not be negative"))
	}
	return nil
}

// LogConfig configures the rig logger.
type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

// Validate ensures all parts of the config are valid.
func (l *LogConfig) Validate(path string) error {
	if _, err := logging.LevelFromString(l.Level); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// ApplyDefaults fills in every field left empty. Sessions default to a fresh random name.
func (c *Config) ApplyDefaults() {
	if c.DataRoot == "" {
		c.DataRoot = DefaultDataRoot
	}
	if c.Session == "" {
		c.Session = uuid.NewString()
	}
	if c.Decoder == (QueueConfig{}) {
		c.Decoder = QueueConfig{MaxItems: DefaultDecoderMaxItems, MinItems: DefaultDecoderMinItems}
	}
	if c.Encoder == (QueueConfig{}) {
		c.Encoder = QueueConfig{MaxItems: DefaultEncoderMaxItems, MinItems: DefaultEncoderMinItems}
	}
	if c.MissedFrameWindow == 0 {
		c.MissedFrameWindow = DefaultMissedFrameWindow
	}
	if c.FrameInterval == 0 {
		c.FrameInterval = DefaultFrameInterval
	}
	if c.Unwrap.Method != "" && c.Unwrap.DeviationWindow == 0 {
		c.Unwrap.DeviationWindow = DefaultDeviationWindow
	}
}

// BatchSize returns the number of frames of one batch: one per pattern of the first projector.
func (c *Config) BatchSize() int {
	if len(c.Projectors) == 0 {
		return 0
	}
	return len(c.Projectors[0].Patterns)
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if len(c.Cameras) == 0 {
		return utils.NewConfigValidationFieldRequiredError("", "cameras")
	}
	seen := map[int]bool{}
	for i := range c.Cameras {
		path := utils.JoinPath("cameras", i)
		if err := c.Cameras[i].Validate(path); err != nil {
			return err
		}
		if seen[c.Cameras[i].ID] {
			return utils.NewConfigValidationError(path, errors.Errorf("duplicate camera id %d", c.Cameras[i].ID))
		}
		seen[c.Cameras[i].ID] = true
	}
	if len(c.Projectors) == 0 {
		return utils.NewConfigValidationFieldRequiredError("", "projectors")
	}
	for i := range c.Projectors {
		if err := c.Projectors[i].Validate(utils.JoinPath("projectors", i)); err != nil {
			return err
		}
	}
	if err := c.Decoder.Validate("decoder"); err != nil {
		return err
	}
	if err := c.Encoder.Validate("encoder"); err != nil {
		return err
	}
	if c.MissedFrameWindow < 0 {
		return utils.NewConfigValidationError("missed_frame_window", errors.New("must not be negative"))
	}
	if c.FrameInterval < 0 {
		return utils.NewConfigValidationError("frame_interval", errors.New("must not be negative"))
	}
	if err := c.Unwrap.Validate("unwrap", c.BatchSize()); err != nil {
		return err
	}
	return c.Log.Validate("log")
}
