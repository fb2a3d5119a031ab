// Package decoder keeps a queue of decoded projector patterns ahead of the render loop so that
// displaying a pattern never waits on file I/O.
package decoder

import (
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"go.viam.com/slrig/event"
	"go.viam.com/slrig/logging"
	"go.viam.com/slrig/pipeline"
)

// An Item is a pattern ready for display. Image is nil for solid color patterns.
type Item struct {
	Image       image.Image
	Color       colorful.Color
	RenderType  pipeline.RenderType
	PatternType pipeline.PatternType

	Sequence    uint64
	Index       int
	Retry       int
	ProjectorID int
	Filename    string
}

// DecodeFunc loads a pattern image from disk.
type DecodeFunc func(filename string) (image.Image, error)

// Queue is a bounded FIFO of decoded patterns filled from a Source.
type Queue struct {
	logger logging.Logger
	source *Source
	decode DecodeFunc
	marks  *pipeline.Watermarks

	// Exhausted is raised once a non-cycling source has been queued completely.
	Exhausted *event.Event

	mu          sync.Mutex
	items       []*Item
	sequence    uint64
	projectorID int
}

// NewQueue returns an empty queue over source. A nil decode uses imaging.Open.
func NewQueue(
	source *Source,
	maxItems, minItems, projectorID int,
	decode DecodeFunc,
	logger logging.Logger,
) (*Queue, error) {
	marks, err := pipeline.NewWatermarks(maxItems, minItems)
	if err != nil {
		return nil, err
	}
	if decode == nil {
		decode = func(fn string) (image.Image, error) {
			return imaging.Open(fn)
		}
	}
	return &Queue{
		logger:      logger,
		source:      source,
		decode:      decode,
		marks:       marks,
		Exhausted:   event.New("exhausted"),
		projectorID: projectorID,
	}, nil
}

// Watermarks returns the queue's Full, NeedMore and Empty signals.
func (q *Queue) Watermarks() *pipeline.Watermarks {
	return q.marks
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ProjectorID returns the projector newly decoded items are tagged with.
func (q *Queue) ProjectorID() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.projectorID
}

// FillQueue decodes patterns until the queue holds MaxItems or the source runs out and returns
// how many items were queued. A pattern that fails to decode is logged and skipped.
func (q *Queue) FillQueue() int {
	q.marks.NeedMore.Reset()

	inserted := 0
	failures := 0
	for q.Len() < q.marks.MaxItems {
		p, idx, ok := q.source.Next()
		if !ok {
			break
		}
		item, err := q.decodePattern(p, idx)
		if err != nil {
			q.logger.Warnw("skipping pattern that failed to decode", "index", idx, "file", p.Filename, "error", err)
			failures++
			// a cycling source whose every pattern fails would never run out
			if q.source.Cycle() && failures >= q.source.Len() {
				break
			}
			continue
		}
		failures = 0
		q.Queue(item)
		inserted++
	}

	if !q.source.Cycle() && !q.source.HasNext() {
		// everything available is queued even if that is fewer than MaxItems
		q.Exhausted.Set()
		q.marks.Full.Set()
		q.marks.NeedMore.Reset()
	}
	q.logger.Debugw("filled decoder queue", "inserted", inserted, "length", q.Len())
	return inserted
}

func (q *Queue) decodePattern(p Pattern, idx int) (*Item, error) {
	item := &Item{
		PatternType: p.Type,
		Index:       idx,
		Filename:    p.Filename,
		ProjectorID: q.ProjectorID(),
	}
	if p.Solid {
		item.Color = p.Color
		item.RenderType = pipeline.RenderSolidColor
		return item, nil
	}
	img, err := q.decode(p.Filename)
	if err != nil {
		return nil, err
	}
	item.Image = img
	item.RenderType = pipeline.RenderImage
	return item, nil
}

// Queue appends item, assigning it the next sequence number.
func (q *Queue) Queue(item *Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sequence++
	item.Sequence = q.sequence
	q.items = append(q.items, item)
	q.marks.AfterPush(len(q.items))
}

// Fetch removes and returns the front item. It returns false if the queue is empty.
func (q *Queue) Fetch() (*Item, bool) {
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

// HaveNext reports whether another item is or will become available. An empty queue raises
// Empty and NeedMore so that the decoder refills it right away.
func (q *Queue) HaveNext() bool {
	q.mu.Lock()
	n := len(q.items)
	q.mu.Unlock()
	if n == 0 {
		q.marks.Empty.Set()
		q.marks.NeedMore.Set()
	}
	if q.source.Cycle() {
		return true
	}
	return n > 0 || q.source.HasNext()
}

// UpdateProjectorID retags already queued items in place and every item decoded afterwards.
func (q *Queue) UpdateProjectorID(id int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.projectorID = id
	for _, item := range q.items {
		item.ProjectorID = id
	}
}

// Restart drops every queued item and rewinds the source for a new batch.
func (q *Queue) Restart() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
	q.source.Rewind()
	q.Exhausted.Reset()
	q.marks.AfterPop(0)
}
