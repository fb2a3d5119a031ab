// Package event implements manual-reset events: level triggered signals that stay raised until
// explicitly reset, observable from any number of goroutines through a channel.
package event

import (
	"context"
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// An Event is a manual-reset signal. The zero value is not usable; use New.
type Event struct {
	name string

	mu  sync.Mutex
	set bool
	ch  chan struct{}
}

// New returns a reset event.
func New(name string) *Event {
	return &Event{name: name, ch: make(chan struct{})}
}

// NewSet returns an event that starts out raised.
func NewSet(name string) *Event {
	e := New(name)
	e.Set()
	return e
}

// Name returns the name the event was created with.
func (e *Event) Name() string {
	return e.name
}

// Set raises the event, releasing all current and future waiters until Reset.
func (e *Event) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.set {
		e.set = true
		close(e.ch)
	}
}

// Reset lowers the event.
func (e *Event) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set {
		e.set = false
		e.ch = make(chan struct{})
	}
}

// IsSet reports whether the event is currently raised.
func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// Done returns a channel that is closed while the event is raised. The channel must be fetched
// again after a Reset.
func (e *Event) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ch
}

// Wait blocks until the event is raised or ctx is done.
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.Done():
		return nil
	}
}

// WaitAny blocks until one of events is raised and returns its index. Cancellation of ctx takes
// priority over raised events, so a terminating worker never processes one more request.
func WaitAny(ctx context.Context, events ...*Event) (int, error) {
	if len(events) == 0 {
		return -1, errors.New("no events to wait for")
	}
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	cases := make([]reflect.SelectCase, 0, len(events)+1)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
	for _, e := range events {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(e.Done())})
	}
	chosen, _, _ := reflect.Select(cases)
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	return chosen - 1, nil
}
