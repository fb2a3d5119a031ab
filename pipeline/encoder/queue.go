// Package encoder moves acquired frames off the camera callback: frames are queued as fast
// copies and a background thread inserts them into the batch image set and stores them on disk.
package encoder

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/slrig/event"
	"go.viam.com/slrig/framebuffer"
	"go.viam.com/slrig/logging"
	"go.viam.com/slrig/pipeline"
	"go.viam.com/slrig/rimage"
	"go.viam.com/slrig/utils"
)

// Options configure a Queue.
type Options struct {
	MaxItems   int
	MinItems   int
	BatchSize  int
	CameraID   int
	NumCameras int
	DataRoot   string
	Session    string
	Clock      clock.Clock
}

// Stats counts what a queue did with the items it processed.
type Stats struct {
	Processed    int
	Inserted     int
	StoredRAW    int
	StoredPNG    int
	Failed       int
	BytesWritten int64
}

// Queue is a bounded FIFO of acquired frames. The item list, the image set with its statistics,
// and the output directory names are guarded by separate locks so that renaming the output
// directory never blocks draining.
type Queue struct {
	logger logging.Logger
	marks  *pipeline.Watermarks
	clk    clock.Clock

	process *event.Event
	drained *event.Event

	mu       sync.Mutex
	items    []*Item
	sequence uint64
	inBatch  int

	bufMu     sync.Mutex
	images    *framebuffer.ImageSet
	batchSize int
	sums      map[pipeline.PatternType]float64
	exposure  time.Duration
	stats     Stats

	dirMu      sync.RWMutex
	dataRoot   string
	session    string
	recording  string
	cameraID   int
	numCameras int
}

// NewQueue returns an empty queue.
func NewQueue(opts Options, logger logging.Logger) (*Queue, error) {
	marks, err := pipeline.NewWatermarks(opts.MaxItems, opts.MinItems)
	if err != nil {
		return nil, err
	}
	if opts.BatchSize < 0 {
		return nil, errors.Errorf("batch size must not be negative, got %d", opts.BatchSize)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Queue{
		logger:     logger,
		marks:      marks,
		clk:        clk,
		process:    event.New("process"),
		drained:    event.NewSet("drained"),
		images:     framebuffer.NewImageSet(opts.BatchSize),
		batchSize:  opts.BatchSize,
		sums:       map[pipeline.PatternType]float64{},
		dataRoot:   opts.DataRoot,
		session:    opts.Session,
		cameraID:   opts.CameraID,
		numCameras: opts.NumCameras,
	}, nil
}

// Watermarks returns the queue's Full, NeedMore and Empty signals.
func (q *Queue) Watermarks() *pipeline.Watermarks {
	return q.marks
}

// Drained is raised while no item is queued or being processed and every batch item was inserted.
func (q *Queue) Drained() *event.Event {
	return q.drained
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// InBatch returns how many batch items were queued but not yet inserted into the image set.
func (q *Queue) InBatch() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inBatch
}

// Queue appends item, assigning it the next sequence number, and wakes the encoder thread.
func (q *Queue) Queue(item *Item) error {
	if item == nil || item.Frame == nil {
		return errors.New("cannot queue an item without a frame")
	}
	q.mu.Lock()
	q.sequence++
	item.Sequence = q.sequence
	q.items = append(q.items, item)
	if item.IsBatch {
		q.inBatch++
	}
	q.drained.Reset()
	q.marks.AfterPush(len(q.items))
	q.mu.Unlock()

	q.process.Set()
	return nil
}

func (q *Queue) pop() (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.marks.AfterPop(len(q.items))
	return item, true
}

// finish retires a processed item and raises Drained when nothing is left.
func (q *Queue) finish(item *Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item.IsBatch {
		q.inBatch--
	}
	if len(q.items) == 0 && q.inBatch == 0 {
		q.drained.Set()
	}
}

// Fetch removes the front item and processes it: batch items go into the image set at their
// declared index, and items marked for storage are written as RAW and/or PNG. It returns false
// if the queue was empty. Failures are logged and returned but never stop the queue.
func (q *Queue) Fetch() (bool, error) {
	item, ok := q.pop()
	if !ok {
		return false, nil
	}
	defer q.finish(item)
	return true, q.processItem(item)
}

// DrainQueue fetches until the queue is empty and returns how many items were processed.
func (q *Queue) DrainQueue() (int, error) {
	var errs error
	n := 0
	for {
		ok, err := q.Fetch()
		if !ok {
			return n, errs
		}
		n++
		errs = multierr.Append(errs, err)
	}
}

// Clear drops every queued item without processing it and returns how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	for _, item := range q.items {
		if item.IsBatch {
			q.inBatch--
		}
	}
	q.items = nil
	q.marks.AfterPop(0)
	if q.inBatch == 0 {
		q.drained.Set()
	}
	return n
}

func (q *Queue) processItem(item *Item) error {
	var errs error
	if item.IsBatch {
		errs = multierr.Append(errs, q.insert(item))
	}
	if item.PatternType.IsDelayCalibration() {
		q.recordSum(item)
	}
	if item.Store() {
		errs = multierr.Append(errs, q.store(item))
	}

	q.bufMu.Lock()
	q.stats.Processed++
	if errs != nil {
		q.stats.Failed++
	}
	q.bufMu.Unlock()
	return errs
}

func (q *Queue) insert(item *Item) error {
	q.bufMu.Lock()
	defer q.bufMu.Unlock()
	if q.batchSize <= 0 {
		return errors.Errorf("frame %d is tagged for a batch but no batch size is set", item.Sequence)
	}
	shape := framebuffer.ShapeOf(item.Frame)
	if !q.images.Matches(q.batchSize, shape) {
		q.logger.Debugw("reallocating image set", "slots", q.batchSize, "width", shape.Width,
			"height", shape.Height, "format", shape.Format.String())
		if err := q.images.Reallocate(q.batchSize, shape); err != nil {
			return errors.Wrap(err, "reallocating image set")
		}
	}
	if err := q.images.Insert(item.Index, item.Frame); err != nil {
		q.logger.Warnw("cannot insert frame into image set", "index", item.Index, "retry", item.Retry, "error", err)
		return err
	}
	q.stats.Inserted++
	return nil
}

func (q *Queue) recordSum(item *Item) {
	sum := item.Frame.Sum()
	q.bufMu.Lock()
	defer q.bufMu.Unlock()
	q.sums[item.PatternType] = sum
	if item.Exposure > 0 {
		q.exposure = item.Exposure
	}
}

func (q *Queue) store(item *Item) error {
	name := item.Filename
	if name == "" {
		name = fmt.Sprintf("frame_%05d", item.Index)
	}
	dir := q.OutputDirectory(true, false)
	base, err := utils.SafeJoinDir(dir, utils.ReplaceExt(filepath.Base(name), ""))
	if err != nil {
		return err
	}

	var errs error
	size := units.HumanSize(float64(item.Frame.Size()))
	rawStored, pngStored := false, false
	if item.SaveAsRAW {
		if err := rimage.WriteRAW(base, item.Frame, item.BeforeTrigger, item.AfterTrigger); err != nil {
			q.logger.Warnw("failed to store raw frame", "file", base+rimage.RawExt, "error", err)
			errs = multierr.Append(errs, err)
		} else {
			rawStored = true
			q.logger.Debugw("stored raw frame", "file", base+rimage.RawExt, "size", size)
		}
	}
	if item.SaveAsPNG {
		fn := base + ".png"
		if err := rimage.WritePNG(fn, item.Frame); err != nil {
			q.logger.Warnw("failed to store png frame", "file", fn, "error", err)
			utils.RemoveFileNoError(fn)
			errs = multierr.Append(errs, err)
		} else {
			pngStored = true
			q.logger.Debugw("stored png frame", "file", fn, "size", size)
		}
	}

	q.bufMu.Lock()
	defer q.bufMu.Unlock()
	if rawStored {
		q.stats.StoredRAW++
		q.stats.BytesWritten += int64(item.Frame.Size())
	}
	if pngStored {
		q.stats.StoredPNG++
	}
	return errs
}

// StartBatch clears the image set and the delay statistics for a new batch of size frames.
func (q *Queue) StartBatch(size int) error {
	if size <= 0 {
		return errors.Errorf("batch size must be positive, got %d", size)
	}
	q.bufMu.Lock()
	defer q.bufMu.Unlock()
	q.batchSize = size
	q.images.Clear()
	q.sums = map[pipeline.PatternType]float64{}
	q.exposure = 0
	return nil
}

// ImageSet returns the batch image set. It must only be read once the queue is drained.
func (q *Queue) ImageSet() *framebuffer.ImageSet {
	q.bufMu.Lock()
	defer q.bufMu.Unlock()
	return q.images
}

// Stats returns a snapshot of the processing counters.
func (q *Queue) Stats() Stats {
	q.bufMu.Lock()
	defer q.bufMu.Unlock()
	return q.stats
}

// DelayStatistics returns the intensity sums of the delay calibration frames seen so far and
// whether all four are present.
func (q *Queue) DelayStatistics() (DelayStatistics, bool) {
	q.bufMu.Lock()
	defer q.bufMu.Unlock()
	stats := DelayStatistics{
		White:        q.sums[pipeline.PatternSolidWhite],
		Black:        q.sums[pipeline.PatternSolidBlack],
		WhiteToBlack: q.sums[pipeline.PatternWhiteToBlack],
		BlackToWhite: q.sums[pipeline.PatternBlackToWhite],
		Exposure:     q.exposure,
	}
	for _, pt := range []pipeline.PatternType{
		pipeline.PatternSolidWhite, pipeline.PatternSolidBlack,
		pipeline.PatternWhiteToBlack, pipeline.PatternBlackToWhite,
	} {
		if _, ok := q.sums[pt]; !ok {
			return stats, false
		}
	}
	return stats, true
}

// ComputeDelay computes the trigger delay from the calibration frames this queue processed.
// Inconsistent sums are logged and the computed delay is returned along with the error.
func (q *Queue) ComputeDelay() (delay, delayBW, delayWB time.Duration, err error) {
	stats, ok := q.DelayStatistics()
	if !ok {
		return 0, 0, 0, ErrMissingDelayStatistics
	}
	delay, delayBW, delayWB, err = ComputeDelay(stats)
	if err != nil {
		q.logger.Warnw("delay measurement failed sanity checks", "delay", delay, "error", err)
	}
	return delay, delayBW, delayWB, err
}
