package rig

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"go.viam.com/slrig/config"
	"go.viam.com/slrig/logging"
	"go.viam.com/slrig/pipeline/encoder"
	"go.viam.com/slrig/pipeline/metadata"
)

// cameraPipeline is the acquisition side of one camera: its metadata queue, the trigger
// channel fed by the render loop and its encoder.
type cameraPipeline struct {
	rig    *Rig
	cfg    config.CameraConfig
	camera Camera
	logger logging.Logger

	meta    *metadata.Queue
	encoder *encoder.Queue
	worker  *encoder.Worker
	lateLog *rate.Sometimes

	// done is the last key handled, failed the last key whose trigger failed. handled is
	// signaled after done moves.
	done    *atomic.Uint64
	failed  *atomic.Uint64
	handled chan struct{}

	mu       sync.Mutex
	records  []metadata.FrameRecord
	failures int
	missed   int
}

func newCameraPipeline(r *Rig, cfg config.CameraConfig, cam Camera, numCameras int) (*cameraPipeline, error) {
	logger := r.logger.Sublogger(fmt.Sprintf("camera_%d", cam.ID()))
	enc, err := encoder.NewQueue(encoder.Options{
		MaxItems:   r.cfg.Encoder.MaxItems,
		MinItems:   r.cfg.Encoder.MinItems,
		BatchSize:  r.cfg.BatchSize(),
		CameraID:   cam.ID(),
		NumCameras: numCameras,
		DataRoot:   r.cfg.DataRoot,
		Session:    r.cfg.Session,
		Clock:      r.clk,
	}, logger.Sublogger("encoder"))
	if err != nil {
		return nil, errors.Wrapf(err, "creating encoder queue for camera %d", cam.ID())
	}
	return &cameraPipeline{
		rig:     r,
		cfg:     cfg,
		camera:  cam,
		logger:  logger,
		meta:    metadata.NewQueue(),
		encoder: enc,
		worker:  encoder.NewWorker(enc, logger.Sublogger("encoder")),
		lateLog: &rate.Sometimes{First: 1, Interval: time.Second},
		done:    atomic.NewUint64(0),
		failed:  atomic.NewUint64(0),
		handled: make(chan struct{}, 1),
	}, nil
}

// run triggers the camera for every key the render loop sends until the channel is closed.
func (cp *cameraPipeline) run(ctx context.Context, triggers <-chan uint64) {
	for key := range triggers {
		if ctx.Err() != nil {
			continue
		}
		cp.acquire(ctx, key)
	}
}

func (cp *cameraPipeline) acquire(ctx context.Context, key uint64) {
	defer cp.markDone(key)
	rec, ok := cp.meta.PeekByKey(key)
	if !ok {
		cp.logger.Debugw("frame record removed before its trigger", "key", key)
		return
	}
	if rec.SkipAcquisition {
		cp.meta.PopByKey(key)
		return
	}
	delay := cp.rig.TriggerDelay()
	before := cp.rig.tick()
	capture, err := cp.camera.Trigger(ctx, rec)
	after := cp.rig.tick()
	if err != nil {
		cp.logger.Warnw("camera trigger failed", "key", key, "index", rec.Index, "retry", rec.Retry, "error", err)
		cp.retire(key)
		return
	}
	item, err := encoder.NewItem(capture.Data, capture.Width, capture.Height, capture.Stride, capture.Format)
	if err != nil {
		cp.logger.Warnw("camera returned an invalid frame", "key", key, "error", err)
		cp.retire(key)
		return
	}

	window := cp.rig.cfg.MissedFrameWindow
	onTime := window <= 0 || rec.Presented <= 0 || after-rec.Presented <= int64(window)
	if !onTime {
		cp.lateLog.Do(func() {
			cp.logger.Warnw("frame acquired too late, dropping it from the batch", "key", key, "index", rec.Index,
				"late", time.Duration(after-rec.Presented))
		})
	}
	if err := cp.meta.AdjustForAcquisition(key, delay, cp.cfg.Exposure, before, after, true, onTime); err != nil {
		cp.logger.Warnw("cannot record trigger", "key", key, "error", err)
		return
	}
	// whoever stamps the record last collects it
	if cur, ok := cp.meta.PeekByKey(key); ok && cur.NextPresented > 0 {
		cp.collect(key)
	}

	item.Key = rec.Key
	item.Index = rec.Index
	item.Retry = rec.Retry
	item.CameraID = cp.camera.ID()
	item.ProjectorID = rec.ProjectorID
	item.PatternType = rec.PatternType
	item.IsBatch = rec.IsBatch && onTime
	item.IsLastInBatch = rec.IsLastInBatch
	item.SaveAsPNG = rec.SaveAsPNG
	item.SaveAsRAW = rec.SaveAsRAW
	item.BeforeTrigger = before
	item.AfterTrigger = after
	item.Exposure = cp.cfg.Exposure

	if cp.encoder.Watermarks().Full.IsSet() {
		cp.logger.Debugw("encoder queue is full", "queued", cp.encoder.Len())
	}
	if err := cp.encoder.Queue(item); err != nil {
		cp.logger.Warnw("cannot queue frame", "key", key, "error", err)
		cp.countFailure()
	}
}

// retire drops the record of a trigger that failed. Keys are handled in order, so that record
// is the oldest untriggered one; it is invalidated first so a sweep never counts it as missed.
func (cp *cameraPipeline) retire(key uint64) {
	cp.countFailure()
	cp.failed.Store(key)
	cp.meta.InvalidateFirst()
	cp.meta.PopByKey(key)
}

func (cp *cameraPipeline) markDone(key uint64) {
	cp.done.Store(key)
	select {
	case cp.handled <- struct{}{}:
	default:
	}
}

// waitFor blocks until key has been handled.
func (cp *cameraPipeline) waitFor(ctx context.Context, key uint64) error {
	for cp.done.Load() < key {
		select {
		case <-cp.handled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// triggerFailed reports whether the trigger for key failed. Only valid once key is handled.
func (cp *cameraPipeline) triggerFailed(key uint64) bool {
	return cp.failed.Load() == key
}

// collect moves a fully stamped record from the metadata queue to the acquired records.
func (cp *cameraPipeline) collect(key uint64) {
	rec, ok := cp.meta.PopByKey(key)
	if !ok {
		return
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.records = append(cp.records, rec)
}

// collectRemaining moves every triggered record left in the metadata queue to the acquired
// records. The last frame of a batch never sees a next presentation.
func (cp *cameraPipeline) collectRemaining() {
	for {
		rec, ok := cp.meta.PopFront(true)
		if !ok {
			return
		}
		cp.mu.Lock()
		cp.records = append(cp.records, rec)
		cp.mu.Unlock()
	}
}

func (cp *cameraPipeline) countFailure() {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.failures++
}

func (cp *cameraPipeline) countMissed(n int) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.missed += n
}

// takeCounts returns and forgets the records acquired so far along with the failure and missed
// frame counts.
func (cp *cameraPipeline) takeCounts() ([]metadata.FrameRecord, int, int) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	recs, failures, missed := cp.records, cp.failures, cp.missed
	cp.records, cp.failures, cp.missed = nil, 0, 0
	return recs, failures, missed
}
