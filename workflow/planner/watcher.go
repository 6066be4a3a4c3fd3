package planner

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads intent templates when the templates file changes on disk.
// Edits are debounced so rapid successive writes trigger a single reload.
type Watcher struct {
	planner  *Planner
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewWatcher creates a hot-reload watcher for the templates file.
func NewWatcher(planner *Planner, path string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		planner:  planner,
		path:     path,
		debounce: 500 * time.Millisecond,
		watcher:  fsw,
		logger:   logger,
	}, nil
}

// Start begins watching. The containing directory is watched rather than the
// file itself so editors that replace the file atomically are still seen.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Template watcher started", "path", w.path)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// processEvents handles fsnotify events with debouncing.
func (w *Watcher) processEvents(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Template watcher error", "error", err)

		case <-timerC:
			timerC = nil
			timer = nil
			if err := w.planner.LoadTemplatesFile(w.path); err != nil {
				// Keep serving the previous templates on a bad edit.
				w.logger.Error("Template reload failed, keeping previous templates",
					"path", w.path,
					"error", err)
				continue
			}
			w.logger.Info("Intent templates reloaded", "path", w.path)
		}
	}
}
