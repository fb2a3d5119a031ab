package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/slrig/logging"
	"go.viam.com/slrig/utils"
)

// A Watcher re-reads a config file whenever it changes and delivers each valid result.
// Invalid configs are logged and skipped.
type Watcher struct {
	path    string
	logger  logging.Logger
	fsw     *fsnotify.Watcher
	configs chan *Config
	workers utils.StoppableWorkers
}

// NewWatcher starts watching filePath. The containing directory is watched so that files
// replaced by rename are picked up.
func NewWatcher(filePath string, logger logging.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "cannot create file watcher")
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		goutils.UncheckedError(fsw.Close())
		return nil, errors.Wrapf(err, "cannot watch %q", filepath.Dir(abs))
	}
	w := &Watcher{
		path:    abs,
		logger:  logger,
		fsw:     fsw,
		configs: make(chan *Config),
	}
	w.workers = utils.NewStoppableWorkers(w.run)
	return w, nil
}

// Config returns the channel new configs are delivered on.
func (w *Watcher) Config() <-chan *Config {
	return w.configs
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("config watcher error", "error", err)
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			cfg, err := Read(w.path, w.logger)
			if err != nil {
				w.logger.Errorw("ignoring invalid config", "path", w.path, "error", err)
				continue
			}
			select {
			case w.configs <- cfg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.workers.Stop()
	return w.fsw.Close()
}
