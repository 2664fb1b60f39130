package main

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// DocWatcher calls fire once document changes under a directory have been
// quiet for the debounce interval.  New subdirectories are watched as they
// appear.
type DocWatcher struct {
	dir      string
	debounce time.Duration
	fire     func(ctx context.Context)
	logger   logging.Logger
}

// NewDocWatcher returns a watcher of dir.
func NewDocWatcher(dir string, debounce time.Duration, fire func(ctx context.Context), logger logging.Logger) *DocWatcher {
	if debounce <= 0 {
		debounce = time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &DocWatcher{dir: dir, debounce: debounce, fire: fire, logger: logger}
}

// Run watches until ctx is done.
func (w *DocWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "create document watcher")
	}
	defer fw.Close()
	if err := w.addTree(fw, w.dir); err != nil {
		return err
	}
	w.logger.Info("watching documents", logging.String("dir", w.dir), logging.Duration("debounce", w.debounce))

	var (
		timer   *time.Timer
		settled <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(fw, ev) {
				continue
			}
			w.logger.Debug("document change", logging.String("file", ev.Name), logging.String("op", ev.Op.String()))
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			settled = timer.C
		case <-settled:
			settled = nil
			go w.fire(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("document watcher error", logging.Err(err))
		}
	}
}

// relevant reports whether ev should schedule a run.  Created directories
// are added to the watch and count as a change.
func (w *DocWatcher) relevant(fw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, ev.Name); err != nil {
				w.logger.Warn("watch new directory", logging.String("dir", ev.Name), logging.Err(err))
			}
			return true
		}
	}
	return extraction.Supported(ev.Name)
}

func (w *DocWatcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeNotFound, "watch documents").WithDetail(path)
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "watch documents").WithDetail(path)
		}
		return nil
	})
}
