// Package rig runs a projector and its cameras as one structured light rig: the render loop
// shows decoded patterns and records them in per-camera metadata queues, acquisition threads
// trigger the cameras and hand frames to the encoders, and completed batches are unwrapped.
package rig

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"go.viam.com/slrig/config"
	"go.viam.com/slrig/logging"
	"go.viam.com/slrig/pipeline/decoder"
	"go.viam.com/slrig/pipeline/encoder"
	"go.viam.com/slrig/pipeline/metadata"
	"go.viam.com/slrig/rimage"
)

// A Projector puts patterns on screen. Present returns once the pattern is displayed.
type Projector interface {
	ID() int
	Present(ctx context.Context, item *decoder.Item) error
	Close() error
}

// A Capture is the buffer a camera hands back for one trigger. The buffer stays owned by the
// camera and is copied before Trigger is called again.
type Capture struct {
	Data   []byte
	Width  int
	Height int
	Stride int
	Format rimage.PixelFormat
}

// A Camera captures one frame per trigger.
type Camera interface {
	ID() int
	Trigger(ctx context.Context, rec metadata.FrameRecord) (Capture, error)
	Close() error
}

// Options configure a Rig beyond what the config holds.
type Options struct {
	Clock  clock.Clock
	Decode decoder.DecodeFunc
}

// Rig owns the pipeline of one projector and its cameras.
type Rig struct {
	cfg    *config.Config
	logger logging.Logger
	clk    clock.Clock

	projector Projector
	source    *decoder.Source
	decoder   *decoder.Queue
	decWorker *decoder.Worker
	cameras   []*cameraPipeline

	key *atomic.Uint64

	mu    sync.Mutex
	delay time.Duration
}

// New builds the queues and workers for cfg. The projector and the cameras are matched to
// cfg.Projectors[0] and cfg.Cameras by position.
func New(cfg *config.Config, projector Projector, cameras []Camera, opts Options, logger logging.Logger) (*Rig, error) {
	if len(cfg.Projectors) == 0 {
		return nil, errors.New("no projector configured")
	}
	if len(cameras) != len(cfg.Cameras) {
		return nil, errors.Errorf("%d cameras configured, %d given", len(cfg.Cameras), len(cameras))
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	pcfg := cfg.Projectors[0]
	patterns, err := decoder.ParsePatterns(pcfg.Patterns)
	if err != nil {
		return nil, err
	}

	r := &Rig{
		cfg:       cfg,
		logger:    logger,
		clk:       clk,
		projector: projector,
		source:    decoder.NewSource(patterns, pcfg.Cycle),
		key:       atomic.NewUint64(0),
	}
	r.decoder, err = decoder.NewQueue(r.source, cfg.Decoder.MaxItems, cfg.Decoder.MinItems,
		projector.ID(), opts.Decode, logger.Sublogger("decoder"))
	if err != nil {
		return nil, errors.Wrap(err, "creating decoder queue")
	}

	for i, cam := range cameras {
		cp, err := newCameraPipeline(r, cfg.Cameras[i], cam, len(cameras))
		if err != nil {
			r.stopWorkers()
			return nil, err
		}
		r.cameras = append(r.cameras, cp)
	}
	r.decWorker = decoder.NewWorker(r.decoder, logger.Sublogger("decoder"))
	return r, nil
}

// tick returns the current rig clock reading in nanoseconds.
func (r *Rig) tick() int64 {
	return r.clk.Now().UnixNano()
}

// SetTriggerDelay sets the delay between presentation and camera trigger recorded for new frames.
func (r *Rig) SetTriggerDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = d
}

// TriggerDelay returns the delay set by SetTriggerDelay.
func (r *Rig) TriggerDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delay
}

// SetSession renames the session directory of every camera.
func (r *Rig) SetSession(session string) {
	for _, cp := range r.cameras {
		cp.encoder.SetSession(session)
	}
}

// Encoder returns the encoder queue of camera i.
func (r *Rig) Encoder(i int) *encoder.Queue {
	return r.cameras[i].encoder
}

// Metadata returns the metadata queue of camera i.
func (r *Rig) Metadata(i int) *metadata.Queue {
	return r.cameras[i].meta
}

func (r *Rig) stopWorkers() {
	if r.decWorker != nil {
		r.decWorker.Stop()
	}
	for _, cp := range r.cameras {
		cp.worker.Stop()
	}
}

// Close stops every worker and closes the projector and the cameras.
func (r *Rig) Close() error {
	r.stopWorkers()
	err := r.projector.Close()
	for _, cp := range r.cameras {
		err = multierr.Combine(err, cp.camera.Close())
	}
	return err
}
