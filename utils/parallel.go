package utils

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// IndexedFunc is one task of RunInParallel; i is its position in [0, n).
type IndexedFunc func(ctx context.Context, i int) error

// RunInParallel runs f once per index in [0, n) concurrently and returns the elapsed time and
// the combined errors, each prefixed with its index. The first failure cancels the context
// handed to the remaining tasks. A panicking task is reported as an error.
func RunInParallel(ctx context.Context, n int, f IndexedFunc) (time.Duration, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	fail := func(i int, err error) {
		mu.Lock()
		defer mu.Unlock()
		// the tasks canceled because of an earlier failure only add noise
		if errs != nil && errors.Is(err, context.Canceled) {
			return
		}
		errs = multierr.Append(errs, errors.Wrapf(err, "task %d", i))
		cancel()
	}

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					fail(i, errors.Errorf("panic: %v", r))
				}
			}()
			if err := f(ctx, i); err != nil {
				fail(i, err)
			}
		}(i)
	}
	wg.Wait()
	return time.Since(start), errs
}
