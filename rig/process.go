package rig

import (
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/image/tiff"

	"go.viam.com/slrig/config"
	"go.viam.com/slrig/logging"
	"go.viam.com/slrig/phase"
	"go.viam.com/slrig/rimage"
	"go.viam.com/slrig/texture"
)

// Output file names written by Result.Save.
const (
	PhaseFile     = "phase.png"
	PhaseTIFFFile = "phase.tiff"
	TextureFile   = "texture.png"
	DeviationFile = "deviation.png"
)

// A Result is the unwrapped form of one camera's batch.
type Result struct {
	// Wrapped holds one wrapped phase image per phase span, in [0, 2π).
	Wrapped []*rimage.FloatImage
	// Phase is the absolute phase in [0, 1) over the unambiguous range.
	Phase *rimage.FloatImage
	// Order and Deviation are the local mean and standard deviation of Phase. Quality combines
	// Deviation with the constellation distance when multiple wavelengths are used.
	Order     *rimage.FloatImage
	Deviation *rimage.FloatImage
	Distance  *rimage.FloatImage
	Quality   *rimage.FloatImage

	DynamicRange *rimage.FloatImage
	Texture      *rimage.FloatImage
}

// ProcessBatch unwraps a complete batch the way cfg describes.
func ProcessBatch(src phase.Source, cfg config.UnwrapConfig, logger logging.Logger) (*Result, error) {
	var res Result
	var err error
	switch cfg.Method {
	case config.UnwrapRelative, config.UnwrapGrayCode:
		wrapped, err := phase.EstimateRelativePhase(src, cfg.Phase.First, cfg.Phase.Last)
		if err != nil {
			return nil, errors.Wrap(err, "estimating relative phase")
		}
		res.Wrapped = []*rimage.FloatImage{wrapped}
		res.DynamicRange, res.Texture, err = texture.UpdateDynamicRangeAndTexture(
			src, cfg.Phase.First, cfg.Phase.Last, nil, nil, true)
		if err != nil {
			return nil, err
		}
		if cfg.Method == config.UnwrapRelative {
			res.Phase = rimage.NewFloatImage(wrapped.Width(), wrapped.Height())
			for p, v := range wrapped.Data {
				res.Phase.Data[p] = v / (2 * math.Pi)
			}
			break
		}
		res.Phase, err = phase.UnwrapPhaseGrayCode(src, grayLayout(cfg.Gray), wrapped)
		if err != nil {
			return nil, errors.Wrap(err, "unwrapping with gray code")
		}
	case config.UnwrapMPS:
		m, err := phase.NewMPS(cfg.Width, cfg.Wavelengths, logger)
		if err != nil {
			return nil, err
		}
		for i, span := range cfg.PhaseSpans {
			wrapped, err := phase.EstimateRelativePhase(src, span.First, span.Last)
			if err != nil {
				return nil, errors.Wrapf(err, "estimating relative phase of wavelength %d", i)
			}
			res.Wrapped = append(res.Wrapped, wrapped)
			res.DynamicRange, res.Texture, err = texture.UpdateDynamicRangeAndTexture(
				src, span.First, span.Last, res.DynamicRange, res.Texture, true)
			if err != nil {
				return nil, err
			}
		}
		// every span adds a full texture
		for p := range res.Texture.Data {
			res.Texture.Data[p] /= float64(len(cfg.PhaseSpans))
		}
		res.Phase, res.Distance, err = m.Unwrap(res.Wrapped)
		if err != nil {
			return nil, errors.Wrap(err, "unwrapping multiple wavelengths")
		}
	default:
		return nil, errors.Errorf("unknown unwrap method %q", cfg.Method)
	}

	if cfg.DeviationWindow > 0 {
		res.Order, res.Deviation, err = phase.PhaseOrderAndDeviation(res.Phase, cfg.DeviationWindow, cfg.DeviationWindow)
		if err != nil {
			return nil, err
		}
		res.Quality = res.Deviation
		if res.Distance != nil {
			if res.Quality, err = texture.CombinePhaseDeviationOrDistance(res.Deviation, res.Distance); err != nil {
				return nil, err
			}
		}
	}
	return &res, nil
}

func grayLayout(cfg config.GrayCodeConfig) phase.GrayCodeLayout {
	layout := phase.GrayCodeLayout{
		PrimaryFirst:   cfg.Primary.First,
		PrimaryLast:    cfg.Primary.Last,
		SecondaryFirst: -1,
		SecondaryLast:  -1,
		Black:          cfg.Black,
		White:          cfg.White,
	}
	if cfg.Secondary != nil {
		layout.SecondaryFirst = cfg.Secondary.First
		layout.SecondaryLast = cfg.Secondary.Last
	}
	return layout
}

// Save writes the phase map, the texture and, if computed, the deviation map to dir as PNGs.
// The phase map is also written as a 16-bit TIFF. Bayer textures are demosaiced.
func (res *Result) Save(dir string, format rimage.PixelFormat) error {
	var errs error
	errs = multierr.Append(errs, imaging.Save(res.Phase.ToGray(0, 1), filepath.Join(dir, PhaseFile)))
	errs = multierr.Append(errs, writeTIFF(filepath.Join(dir, PhaseTIFFFile), res.Phase.ToGray16(0, 1)))
	if res.Texture != nil {
		var tex image.Image
		var err error
		if format.IsBayer() {
			tex, err = texture.ScaleAndDebayerTexture(res.Texture, format)
		} else {
			tex, err = texture.FetchTexture(res.Texture, format)
		}
		if err == nil {
			err = imaging.Save(tex, filepath.Join(dir, TextureFile))
		}
		errs = multierr.Append(errs, err)
	}
	if res.Quality != nil {
		errs = multierr.Append(errs, imaging.Save(res.Quality.ToPrettyPicture(), filepath.Join(dir, DeviationFile)))
	}
	return errs
}

func writeTIFF(fn string, img image.Image) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}
