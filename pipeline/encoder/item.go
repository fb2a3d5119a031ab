package encoder

import (
	"time"

	"go.viam.com/slrig/pipeline"
	"go.viam.com/slrig/rimage"
)

// An Item is one acquired camera frame waiting to be stored or inserted into the batch.
type Item struct {
	Frame *rimage.Frame

	Sequence    uint64
	Key         uint64
	Index       int
	Retry       int
	CameraID    int
	ProjectorID int
	PatternType pipeline.PatternType

	IsBatch       bool
	IsLastInBatch bool
	SaveAsPNG     bool
	SaveAsRAW     bool

	BeforeTrigger int64
	AfterTrigger  int64
	Exposure      time.Duration
	Filename      string
}

// NewItem copies a camera buffer into a new item. It must be called before the camera callback
// returns the buffer to the driver.
func NewItem(buf []byte, width, height, stride int, format rimage.PixelFormat) (*Item, error) {
	f, err := rimage.NewFrameFromBuffer(buf, width, height, stride, format)
	if err != nil {
		return nil, err
	}
	return &Item{Frame: f}, nil
}

// Store reports whether the item is written to disk.
func (item *Item) Store() bool {
	return item.SaveAsPNG || item.SaveAsRAW
}
