package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes on disk. Editors tend to
// write via rename, so the parent directory is watched rather than the file
// itself, and bursts of events collapse into a single reload.
type Watcher struct {
	path     string
	debounce time.Duration
	ignore   []string
	onReload func(*Config)

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher prepares a watcher for path. onReload receives each config that
// loads and validates cleanly; broken edits are logged and skipped.
func NewWatcher(path string, wc WatchConfig, onReload func(*Config)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	debounce := wc.Debounce.Std()
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &Watcher{
		path:     abs,
		debounce: debounce,
		ignore:   wc.Ignore,
		onReload: onReload,
	}, nil
}

// Run blocks watching for changes until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Info("watching config", "path", w.path, "debounce", w.debounce)

	for {
		select {
		case <-ctx.Done():
			w.stop()
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	path := filepath.Clean(event.Name)
	for _, pattern := range w.ignore {
		if match, _ := doublestar.Match(pattern, path); match {
			return
		}
	}
	if path != w.path {
		return
	}
	log.Debug("config changed", "op", event.Op.String())
	w.schedule()
}

// schedule resets the debounce timer so only the last event in a burst
// triggers a reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Error("config reload failed", "path", w.path, "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Error("config reload rejected", "path", w.path, "error", err)
		return
	}
	log.Info("config reloaded", "path", w.path)
	w.onReload(cfg)
}
