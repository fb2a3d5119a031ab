package encoder

import (
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrMissingDelayStatistics is returned when one of the four calibration frames was never seen.
	ErrMissingDelayStatistics = errors.New("missing delay calibration statistics")
	// ErrDelayOutOfBounds is returned alongside a delay whose calibration sums are inconsistent.
	ErrDelayOutOfBounds = errors.New("delay calibration sums out of bounds")
)

// DelayStatistics are the intensity sums of the four delay calibration frames. A solid white and
// a solid black frame bound the response; the two transition frames were triggered while the
// projector switched from white to black and from black to white.
type DelayStatistics struct {
	White        float64
	Black        float64
	WhiteToBlack float64
	BlackToWhite float64
	Exposure     time.Duration
}

// ComputeDelay derives the trigger to exposure latency from how much of each transition frame was
// exposed before the projector switched. The larger of both directions is returned as delay.
// If the sums are inconsistent the computed values are still returned together with
// ErrDelayOutOfBounds.
func ComputeDelay(stats DelayStatistics) (delay, delayBW, delayWB time.Duration, err error) {
	span := stats.White - stats.Black
	if span != 0 {
		exposure := float64(stats.Exposure)
		delayBW = time.Duration(exposure * (stats.White - stats.BlackToWhite) / span)
		delayWB = time.Duration(exposure * (stats.WhiteToBlack - stats.Black) / span)
	}
	delay = delayBW
	if delayWB > delay {
		delay = delayWB
	}

	switch {
	case stats.White <= stats.Black:
		err = errors.Wrapf(ErrDelayOutOfBounds, "white sum %g is not above black sum %g", stats.White, stats.Black)
	case stats.WhiteToBlack <= stats.Black || stats.WhiteToBlack >= stats.White:
		err = errors.Wrapf(ErrDelayOutOfBounds, "white to black sum %g is outside (%g, %g)",
			stats.WhiteToBlack, stats.Black, stats.White)
	case stats.BlackToWhite <= stats.Black || stats.BlackToWhite >= stats.White:
		err = errors.Wrapf(ErrDelayOutOfBounds, "black to white sum %g is outside (%g, %g)",
			stats.BlackToWhite, stats.Black, stats.White)
	}
	return delay, delayBW, delayWB, err
}
