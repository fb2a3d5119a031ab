// Package metadata implements the image metadata queue which correlates a displayed pattern with
// the camera trigger that captured it and with the presentation of the pattern after it. The
// render thread pushes records and stamps presentation times; each camera's acquisition thread
// stamps trigger times and pops the records it consumed.
package metadata

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/slrig/pipeline"
)

var (
	// ErrNotFound is returned when no record carries the requested key.
	ErrNotFound = errors.New("frame record not found")
	// ErrAlreadySet is returned when a write-once timestamp is written twice.
	ErrAlreadySet = errors.New("timestamp already set")
	// ErrInvalidTick is returned for timestamps that cannot be valid.
	ErrInvalidTick = errors.New("invalid tick")
)

// FrameRecord describes one displayed pattern instance. Ticks are monotonic clock readings.
//
// A record is scheduled when pushed (only the Scheduled* and Presented fields are known),
// triggered once the acquisition thread stamped it, and complete once the render thread recorded
// when the following frame was presented.
type FrameRecord struct {
	Key uint64

	ScheduledPresent int64
	ScheduledTrigger int64
	Presented        int64
	NextPresented    int64
	BeforeTrigger    int64
	AfterTrigger     int64
	Delay            time.Duration
	Exposure         time.Duration

	PatternType pipeline.PatternType
	RenderType  pipeline.RenderType

	Triggered       bool
	IsBatch         bool
	IsFixedPattern  bool
	IsBlocking      bool
	SaveAsPNG       bool
	SaveAsRAW       bool
	IsLastInBatch   bool
	SkipAcquisition bool

	Retry       int
	Index       int
	ProjectorID int
	CameraID    int
	Filename    string
}

// PresentationTick is the tick the record is ordered by: when it was presented, or when it is
// scheduled to be if that has not happened yet.
func (r *FrameRecord) PresentationTick() int64 {
	if r.Presented > 0 {
		return r.Presented
	}
	return r.ScheduledPresent
}

// Queue is a presentation ordered sequence of frame records guarded by a read/write lock.
// Each key is adjusted by at most one thread at a time: the render thread owns NextPresented
// and the acquisition thread owns the trigger fields.
type Queue struct {
	mu      sync.RWMutex
	records []FrameRecord
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.records)
}

// PushBack appends a copy of rec. The queue owns its copy, including the filename.
func (q *Queue) PushBack(rec FrameRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = append(q.records, rec)
}

// firstIndex returns the index of the first record (optionally the first triggered one), or -1.
func (q *Queue) firstIndex(triggeredOnly bool) int {
	for i := range q.records {
		if !triggeredOnly || q.records[i].Triggered {
			return i
		}
	}
	return -1
}

// lastIndex returns the index of the last record (optionally the last triggered one), or -1.
func (q *Queue) lastIndex(triggeredOnly bool) int {
	for i := len(q.records) - 1; i >= 0; i-- {
		if !triggeredOnly || q.records[i].Triggered {
			return i
		}
	}
	return -1
}

// keyIndex scans from the back since recently pushed records are the ones being adjusted.
func (q *Queue) keyIndex(key uint64) int {
	for i := len(q.records) - 1; i >= 0; i-- {
		if q.records[i].Key == key {
			return i
		}
	}
	return -1
}

// removeAt deletes record i. The front is dropped by reslicing so popping it stays O(1).
func (q *Queue) removeAt(i int) FrameRecord {
	rec := q.records[i]
	if i == 0 {
		q.records[0] = FrameRecord{}
		q.records = q.records[1:]
		return rec
	}
	q.records = append(q.records[:i], q.records[i+1:]...)
	q.sortByPresentationTime()
	return rec
}

// PopFront removes and returns the first record, or the first triggered record if
// triggeredOnly is set. It returns false if there is no such record.
func (q *Queue) PopFront(triggeredOnly bool) (FrameRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.firstIndex(triggeredOnly)
	if i < 0 {
		return FrameRecord{}, false
	}
	return q.removeAt(i), true
}

// PeekFront is PopFront without the removal.
func (q *Queue) PeekFront(triggeredOnly bool) (FrameRecord, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	i := q.firstIndex(triggeredOnly)
	if i < 0 {
		return FrameRecord{}, false
	}
	return q.records[i], true
}

// PeekBack returns the last record, or the last triggered record if triggeredOnly is set.
func (q *Queue) PeekBack(triggeredOnly bool) (FrameRecord, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	i := q.lastIndex(triggeredOnly)
	if i < 0 {
		return FrameRecord{}, false
	}
	return q.records[i], true
}

// PopByKey removes and returns the record with the given key.
func (q *Queue) PopByKey(key uint64) (FrameRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.keyIndex(key)
	if i < 0 {
		return FrameRecord{}, false
	}
	return q.removeAt(i), true
}

// PeekByKey returns the record with the given key.
func (q *Queue) PeekByKey(key uint64) (FrameRecord, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	i := q.keyIndex(key)
	if i < 0 {
		return FrameRecord{}, false
	}
	return q.records[i], true
}

// AdjustForRender records when the frame following key was presented, which gives the actual
// display interval of key. The value is write-once.
func (q *Queue) AdjustForRender(key uint64, nextPresented int64) error {
	if nextPresented <= 0 {
		return errors.Wrapf(ErrInvalidTick, "next presented tick %d", nextPresented)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.keyIndex(key)
	if i < 0 {
		return errors.Wrapf(ErrNotFound, "key %d", key)
	}
	if q.records[i].NextPresented != 0 {
		return errors.Wrapf(ErrAlreadySet, "next presented tick of key %d", key)
	}
	q.records[i].NextPresented = nextPresented
	return nil
}

// AdjustForAcquisition stamps the trigger data of key. A trigger that missed its deadline
// (onTime false) removes the frame from the accumulating batch.
func (q *Queue) AdjustForAcquisition(
	key uint64,
	delay, exposure time.Duration,
	beforeTrigger, afterTrigger int64,
	triggered, onTime bool,
) error {
	if beforeTrigger > 0 && afterTrigger > 0 && beforeTrigger > afterTrigger {
		return errors.Wrapf(ErrInvalidTick, "before trigger %d is after after trigger %d", beforeTrigger, afterTrigger)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.keyIndex(key)
	if i < 0 {
		return errors.Wrapf(ErrNotFound, "key %d", key)
	}
	rec := &q.records[i]
	rec.Delay = delay
	rec.Exposure = exposure
	rec.BeforeTrigger = beforeTrigger
	rec.AfterTrigger = afterTrigger
	rec.Triggered = triggered
	if !onTime {
		rec.IsBatch = false
	}
	return nil
}

// InvalidateFirst retires the first untriggered record by marking it triggered and removing it
// from the batch, keeping the queue order intact. It returns false if every record is triggered.
func (q *Queue) InvalidateFirst() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.records {
		if !q.records[i].Triggered {
			q.records[i].Triggered = true
			q.records[i].IsBatch = false
			return true
		}
	}
	return false
}

// RemoveMissed drops every untriggered record presented before earliestPresented; those frames
// will never be triggered. It returns how many were removed.
func (q *Queue) RemoveMissed(earliestPresented int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := lo.Filter(q.records, func(rec FrameRecord, _ int) bool {
		return rec.Triggered || rec.PresentationTick() >= earliestPresented
	})
	removed := len(q.records) - len(kept)
	q.records = kept
	q.sortByPresentationTime()
	return removed
}

// Clear removes every record.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = nil
}

// Snapshot returns a copy of the queued records, front to back.
func (q *Queue) Snapshot() []FrameRecord {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]FrameRecord, len(q.records))
	copy(out, q.records)
	return out
}

// sortByPresentationTime keeps front and back meaningful after structural removals.
func (q *Queue) sortByPresentationTime() {
	sort.SliceStable(q.records, func(i, j int) bool {
		return q.records[i].PresentationTick() < q.records[j].PresentationTick()
	})
}
