package rig

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	goutils "go.viam.com/utils"

	"go.viam.com/slrig/pipeline/decoder"
	"go.viam.com/slrig/pipeline/encoder"
	"go.viam.com/slrig/pipeline/metadata"
	"go.viam.com/slrig/utils"
)

const fetchRetryInterval = time.Millisecond

// A BatchReport summarizes one pass over the pattern list.
type BatchReport struct {
	Recording string
	Frames    int
	Cameras   []CameraReport
}

// A CameraReport is what one camera made of a batch.
type CameraReport struct {
	CameraID  int
	Directory string
	Acquired  int
	Failed    int
	Missed    int
	Timing    TimingReport
	Encoder   encoder.Stats

	// Delay is only set when the batch contained all four delay calibration patterns.
	Delay    time.Duration
	DelayErr error

	// Result is nil unless an unwrap method is configured and the batch is complete.
	Result *Result
}

// String prints a table with one row per camera.
func (rep BatchReport) String() string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("recording %s (%d frames)", rep.Recording, rep.Frames))
	t.AppendHeader(table.Row{"Camera", "Acquired", "Failed", "Missed", "Stored", "Latency", "Delay", "Unwrapped"})
	for _, cam := range rep.Cameras {
		delay := ""
		if cam.Delay > 0 || cam.DelayErr != nil {
			delay = cam.Delay.String()
		}
		t.AppendRow(table.Row{
			cam.CameraID,
			cam.Acquired,
			cam.Failed,
			cam.Missed,
			cam.Encoder.StoredRAW + cam.Encoder.StoredPNG,
			cam.Timing.TriggerLatency.Mean,
			delay,
			cam.Result != nil,
		})
	}
	return t.Render()
}

// Run shows every pattern of the list once, waits until all cameras stored their frames and
// unwraps the resulting batches. With a cycling pattern list it runs until ctx is done.
func (r *Rig) Run(ctx context.Context) (*BatchReport, error) {
	if r.key.Load() > 0 {
		r.decoder.Restart()
	}

	batchSize := r.cfg.BatchSize()
	var recording string
	for i, cp := range r.cameras {
		if err := cp.encoder.StartBatch(batchSize); err != nil {
			return nil, err
		}
		if i == 0 {
			recording = cp.encoder.StartRecording()
		} else {
			cp.encoder.SetRecording(recording)
		}
		cp.meta.Clear()
	}
	r.logger.Infow("starting batch", "recording", recording, "patterns", batchSize, "cameras", len(r.cameras))

	triggers := make([]chan uint64, len(r.cameras))
	var wg sync.WaitGroup
	for i, cp := range r.cameras {
		triggers[i] = make(chan uint64, r.cfg.Encoder.MaxItems)
		wg.Add(1)
		goutils.PanicCapturingGo(func() {
			defer wg.Done()
			cp.run(ctx, triggers[i])
		})
	}
	sweeper := utils.NewStoppableWorkers(r.sweepLoop)

	frames, renderErr := r.render(ctx, triggers)
	for _, ch := range triggers {
		close(ch)
	}
	wg.Wait()
	sweeper.Stop()
	for _, cp := range r.cameras {
		cp.collectRemaining()
	}
	if renderErr != nil {
		return nil, renderErr
	}

	for _, cp := range r.cameras {
		if err := cp.encoder.Drained().Wait(ctx); err != nil {
			return nil, errors.Wrapf(err, "waiting for camera %d to store its frames", cp.camera.ID())
		}
	}

	report := &BatchReport{Recording: recording, Frames: frames, Cameras: make([]CameraReport, len(r.cameras))}
	elapsed, err := utils.RunInParallel(ctx, len(r.cameras), func(ctx context.Context, i int) error {
		rep, err := r.finishCamera(ctx, r.cameras[i])
		report.Cameras[i] = rep
		return err
	})
	if err != nil {
		return nil, err
	}
	r.logger.Infow("batch done", "recording", recording, "frames", frames, "post_processing", elapsed)
	return report, nil
}

// render shows patterns until the decoder runs dry, pushing a record per frame to every camera
// and sending each camera the key to trigger on. Blocking frames are held on screen until every
// camera has handled them; a batch frame some camera failed to capture is queued again while
// retries are left.
func (r *Rig) render(ctx context.Context, triggers []chan uint64) (int, error) {
	interval := int64(r.cfg.FrameInterval)
	retries := r.cfg.Projectors[0].Retries
	// cameras that already hold a retried pattern skip it
	skip := map[*decoder.Item][]bool{}
	var prevKey uint64
	var prevPresented int64
	frames := 0
	for {
		if err := ctx.Err(); err != nil {
			return frames, err
		}
		item, ok := r.decoder.Fetch()
		if !ok {
			if !r.decoder.HaveNext() && r.decoder.Exhausted.IsSet() {
				return frames, nil
			}
			if !goutils.SelectContextOrWait(ctx, fetchRetryInterval) {
				return frames, ctx.Err()
			}
			continue
		}
		skipped := skip[item]
		delete(skip, item)

		scheduled := r.tick() + interval
		if prevPresented > 0 {
			scheduled = prevPresented + interval
		}
		if err := r.projector.Present(ctx, item); err != nil {
			return frames, errors.Wrapf(err, "presenting pattern %d", item.Index)
		}
		presented := r.tick()
		key := r.key.Inc()
		rec := r.record(key, item, scheduled, presented)

		for i, cp := range r.cameras {
			rec.CameraID = cp.camera.ID()
			rec.SaveAsPNG = cp.cfg.SavePNG
			rec.SaveAsRAW = cp.cfg.SaveRAW
			rec.Exposure = cp.cfg.Exposure
			rec.SkipAcquisition = skipped != nil && skipped[i]
			cp.meta.PushBack(rec)
			if prevKey != 0 {
				r.stampNext(cp, prevKey, presented)
			}
			select {
			case triggers[i] <- key:
			case <-ctx.Done():
				return frames, ctx.Err()
			}
		}
		prevKey, prevPresented = key, presented
		frames++

		if !rec.IsBlocking {
			continue
		}
		failed := make([]bool, len(r.cameras))
		anyFailed := false
		for i, cp := range r.cameras {
			if err := cp.waitFor(ctx, key); err != nil {
				return frames, errors.Wrapf(err, "waiting for camera %d to capture pattern %d", cp.camera.ID(), item.Index)
			}
			failed[i] = cp.triggerFailed(key)
			anyFailed = anyFailed || failed[i]
		}
		if !anyFailed || !rec.IsBatch {
			continue
		}
		if item.Retry >= retries {
			r.logger.Warnw("pattern could not be captured by every camera", "index", item.Index, "retries", item.Retry)
			continue
		}
		again := *item
		again.Retry++
		skip[&again] = lo.Map(failed, func(f bool, _ int) bool { return !f })
		r.logger.Infow("showing pattern again", "index", item.Index, "retry", again.Retry)
		r.decoder.Queue(&again)
	}
}

// stampNext records the presentation of the frame after key and collects the record if the
// camera is done with it.
func (r *Rig) stampNext(cp *cameraPipeline, key uint64, presented int64) {
	if err := cp.meta.AdjustForRender(key, presented); err != nil {
		// failed triggers drop their record
		if !errors.Is(err, metadata.ErrNotFound) {
			cp.logger.Warnw("cannot record presentation of the next frame", "key", key, "error", err)
		}
		return
	}
	if cur, ok := cp.meta.PeekByKey(key); ok && cur.Triggered {
		cp.collect(key)
	}
}

func (r *Rig) record(key uint64, item *decoder.Item, scheduled, presented int64) metadata.FrameRecord {
	batchSize := r.cfg.BatchSize()
	delay := r.TriggerDelay()
	isBatch := batchSize > 0 && item.Index < batchSize
	return metadata.FrameRecord{
		Key:              key,
		ScheduledPresent: scheduled,
		ScheduledTrigger: scheduled + int64(delay),
		Presented:        presented,
		Delay:            delay,
		PatternType:      item.PatternType,
		RenderType:       item.RenderType,
		IsBatch:          isBatch,
		IsBlocking:       isBatch,
		IsFixedPattern:   item.Image == nil,
		IsLastInBatch:    item.Index == batchSize-1,
		Retry:            item.Retry,
		Index:            item.Index,
		ProjectorID:      item.ProjectorID,
		Filename:         item.Filename,
	}
}

func (r *Rig) sweepLoop(ctx context.Context) {
	window := r.cfg.MissedFrameWindow
	if window <= 0 {
		return
	}
	ticker := r.clk.Ticker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SweepMissed()
		}
	}
}

// SweepMissed drops records presented longer than the missed frame window ago that were never
// triggered and returns how many were dropped over all cameras.
func (r *Rig) SweepMissed() int {
	earliest := r.tick() - int64(r.cfg.MissedFrameWindow)
	total := 0
	for _, cp := range r.cameras {
		if n := cp.meta.RemoveMissed(earliest); n > 0 {
			cp.logger.Warnw("frames were never triggered", "count", n)
			cp.countMissed(n)
			total += n
		}
	}
	return total
}

func (r *Rig) finishCamera(ctx context.Context, cp *cameraPipeline) (CameraReport, error) {
	recs, failures, missed := cp.takeCounts()
	rep := CameraReport{
		CameraID:  cp.camera.ID(),
		Directory: cp.encoder.OutputDirectory(false, false),
		Acquired:  len(recs),
		Failed:    failures,
		Missed:    missed,
		Timing:    NewTimingReport(recs),
		Encoder:   cp.encoder.Stats(),
	}
	if _, ok := cp.encoder.DelayStatistics(); ok {
		rep.Delay, _, _, rep.DelayErr = cp.encoder.ComputeDelay()
	}
	if r.cfg.Unwrap.Method == "" {
		return rep, nil
	}
	images := cp.encoder.ImageSet()
	if !images.Complete() {
		cp.logger.Warnw("batch is incomplete, not unwrapping", "filled", images.Filled(), "slots", images.Len())
		return rep, nil
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	res, err := ProcessBatch(images, r.cfg.Unwrap, cp.logger)
	if err != nil {
		return rep, errors.Wrapf(err, "unwrapping batch of camera %d", cp.camera.ID())
	}
	rep.Result = res
	if err := res.Save(cp.encoder.OutputDirectory(true, false), images.Shape().Format); err != nil {
		cp.logger.Warnw("cannot store unwrapped phase", "error", err)
	}
	return rep, nil
}
