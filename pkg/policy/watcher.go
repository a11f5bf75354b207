package policy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period collected file events must pass
// before a reload fires. Editors tend to emit bursts of writes per save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher watches a policy path for changes and triggers a reload
// callback after a debounce interval.
type Watcher struct {
	path     string
	onReload func() error
	logger   *slog.Logger

	fsw      *fsnotify.Watcher
	debounce *debouncer
}

// NewWatcher creates a watcher over the given path. onReload fires on a
// timer goroutine after each debounced burst of events, so it must be
// safe to call concurrently with the watch loop.
func NewWatcher(path string, debounce time.Duration, onReload func() error, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		path:     path,
		onReload: onReload,
		logger:   logger,
		fsw:      fsw,
		debounce: newDebouncer(debounce),
	}, nil
}

// Watch blocks processing file events until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	defer w.fsw.Close()
	defer w.debounce.stop()

	if err := w.fsw.Add(w.path); err != nil {
		return fmt.Errorf("watching %q: %w", w.path, err)
	}
	w.logger.Info("watching policy path", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("policy watcher stopped")
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			if !relevantEvent(event) {
				continue
			}
			w.logger.Debug("policy file event", "path", event.Name, "op", event.Op.String())
			w.debounce.trigger(func() {
				if err := w.onReload(); err != nil {
					w.logger.Error("policy reload failed", "error", err)
				}
			})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			w.logger.Error("policy watcher error", "error", err)
		}
	}
}

// relevantEvent filters to content changes of visible YAML files.
func relevantEvent(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// debouncer collapses a burst of triggers into one callback after a quiet
// interval.
type debouncer struct {
	interval time.Duration

	mu    sync.Mutex
	timer *time.Timer
	done  bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, callback)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.done = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
