package pipeline

import (
	"github.com/pkg/errors"

	"go.viam.com/slrig/event"
)

// Watermarks holds the three signals raised by a bounded queue as its length moves between the
// soft minimum and maximum. Producers wait for NeedMore, consumers watch Empty, and Full tells a
// producer to stop.
type Watermarks struct {
	MaxItems int
	MinItems int

	Full     *event.Event
	NeedMore *event.Event
	Empty    *event.Event
}

// NewWatermarks validates the limits and returns signals for an empty queue: Empty and NeedMore
// raised, Full lowered.
func NewWatermarks(maxItems, minItems int) (*Watermarks, error) {
	if maxItems <= 0 {
		return nil, errors.Errorf("max items must be positive, got %d", maxItems)
	}
	if minItems < 0 || minItems >= maxItems {
		return nil, errors.Errorf("min items must be in [0, %d), got %d", maxItems, minItems)
	}
	return &Watermarks{
		MaxItems: maxItems,
		MinItems: minItems,
		Full:     event.New("full"),
		NeedMore: event.NewSet("need_more"),
		Empty:    event.NewSet("empty"),
	}, nil
}

// AfterPush updates the signals for a queue that now holds n items.
func (w *Watermarks) AfterPush(n int) {
	if n > 0 {
		w.Empty.Reset()
	}
	if n >= w.MaxItems {
		w.Full.Set()
		w.NeedMore.Reset()
	} else if n <= w.MinItems {
		w.NeedMore.Set()
	}
}

// AfterPop updates the signals for a queue that now holds n items.
func (w *Watermarks) AfterPop(n int) {
	if n < w.MaxItems {
		w.Full.Reset()
	}
	if n <= w.MinItems {
		w.NeedMore.Set()
	}
	if n == 0 {
		w.Empty.Set()
	}
}
