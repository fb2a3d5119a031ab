package encoder

import (
	"context"
	"sync"

	"go.viam.com/slrig/event"
	"go.viam.com/slrig/logging"
	"go.viam.com/slrig/utils"
)

// A Worker drains a Queue in the background whenever frames are queued.
type Worker struct {
	queue  *Queue
	logger logging.Logger

	idChanged *event.Event
	mu        sync.Mutex
	pendingID int

	workers utils.StoppableWorkers
}

// NewWorker starts an encoder thread for queue.
func NewWorker(queue *Queue, logger logging.Logger) *Worker {
	w := &Worker{
		queue:     queue,
		logger:    logger,
		idChanged: event.New("camera_id_changed"),
		pendingID: queue.CameraID(),
	}
	w.workers = utils.NewStoppableWorkers(w.run)
	return w
}

// SetCameraID asks the encoder thread to switch the queue to another camera. Frames already
// drained keep their directory.
func (w *Worker) SetCameraID(id int) {
	w.mu.Lock()
	w.pendingID = id
	w.mu.Unlock()
	w.idChanged.Set()
}

func (w *Worker) run(ctx context.Context) {
	w.logger.Debug("encoder thread started")
	defer w.logger.Debug("encoder thread stopped")
	for {
		which, err := event.WaitAny(ctx, w.queue.process, w.idChanged)
		if err != nil {
			return
		}
		switch which {
		case 0:
			w.queue.process.Reset()
			n, err := w.queue.DrainQueue()
			if err != nil {
				w.logger.Warnw("errors while draining encoder queue", "processed", n, "error", err)
			}
		case 1:
			w.idChanged.Reset()
			w.mu.Lock()
			id := w.pendingID
			w.mu.Unlock()
			w.queue.SetCameraID(id)
		}
	}
}

// Stop terminates the encoder thread and waits for it to exit. Frames still queued are dropped,
// so callers that need them on disk wait for Drained first.
func (w *Worker) Stop() {
	w.workers.Stop()
	if n := w.queue.Clear(); n > 0 {
		w.logger.Warnw("dropped queued frames on stop", "frames", n)
	}
}
