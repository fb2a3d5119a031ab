package decoder

import (
	"context"
	"sync"

	"go.viam.com/slrig/event"
	"go.viam.com/slrig/logging"
	"go.viam.com/slrig/utils"
)

// A Worker refills a Queue in the background whenever it signals NeedMore.
type Worker struct {
	queue  *Queue
	logger logging.Logger

	idChanged *event.Event
	mu        sync.Mutex
	pendingID int

	workers utils.StoppableWorkers
}

// NewWorker starts a decoder thread for queue.
func NewWorker(queue *Queue, logger logging.Logger) *Worker {
	w := &Worker{
		queue:     queue,
		logger:    logger,
		idChanged: event.New("projector_id_changed"),
		pendingID: queue.ProjectorID(),
	}
	w.workers = utils.NewStoppableWorkers(w.run)
	return w
}

// SetProjectorID asks the decoder thread to retag the queue with a new projector.
func (w *Worker) SetProjectorID(id int) {
	w.mu.Lock()
	w.pendingID = id
	w.mu.Unlock()
	w.idChanged.Set()
}

func (w *Worker) run(ctx context.Context) {
	w.logger.Debug("decoder thread started")
	defer w.logger.Debug("decoder thread stopped")
	for {
		which, err := event.WaitAny(ctx, w.queue.marks.NeedMore, w.idChanged)
		if err != nil {
			return
		}
		switch which {
		case 0:
			w.queue.FillQueue()
		case 1:
			w.idChanged.Reset()
			w.mu.Lock()
			id := w.pendingID
			w.mu.Unlock()
			w.queue.UpdateProjectorID(id)
			w.logger.Debugw("projector changed", "projector", id)
		}
	}
}

// Stop terminates the decoder thread and waits for it to exit. Queued items are kept.
func (w *Worker) Stop() {
	w.workers.Stop()
}
