package utils

import (
	"context"
	"sync"

	goutils "go.viam.com/utils"
)

// StoppableWorkers is a group of long running goroutines sharing one cancellation context. It is
// how every decoder and encoder thread of the rig is started and torn down.
type StoppableWorkers interface {
	AddWorkers(...func(context.Context))
	// Stop cancels the shared context and blocks until every worker returned.
	Stop()
	Context() context.Context
}

type stoppableWorkersImpl struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// NewStoppableWorkers runs the functions in separate goroutines. They can be stopped later.
func NewStoppableWorkers(funcs ...func(context.Context)) StoppableWorkers {
	return NewStoppableWorkersWithContext(context.Background(), funcs...)
}

// NewStoppableWorkersWithContext is like NewStoppableWorkers but the workers also stop when
// parent is done.
func NewStoppableWorkersWithContext(parent context.Context, funcs ...func(context.Context)) StoppableWorkers {
	ctx, cancel := context.WithCancel(parent)
	sw := &stoppableWorkersImpl{ctx: ctx, cancel: cancel}
	sw.AddWorkers(funcs...)
	return sw
}

// AddWorkers starts one goroutine per function. Calls made after Stop are ignored.
func (sw *stoppableWorkersImpl) AddWorkers(funcs ...func(context.Context)) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.ctx.Err() != nil {
		return
	}

	sw.running.Add(len(funcs))
	for _, f := range funcs {
		goutils.PanicCapturingGo(func() {
			defer sw.running.Done()
			f(sw.ctx)
		})
	}
}

func (sw *stoppableWorkersImpl) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.cancel()
	sw.running.Wait()
}

func (sw *stoppableWorkersImpl) Context() context.Context {
	return sw.ctx
}
