package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc receives the freshly loaded configuration after a file change.
type ReloadFunc func(cfg *Config)

// Watcher reloads a configuration file when it changes on disk and notifies
// registered callbacks. Editors often replace files with rename+create, so
// the watcher observes the parent directory and filters by name.
type Watcher struct {
	path     string
	loader   *Loader
	debounce time.Duration

	mu        sync.Mutex
	callbacks []ReloadFunc
	current   *Config

	fsw  *fsnotify.Watcher
	quit chan struct{}
	done chan struct{}
}

// NewWatcher creates a watcher for the given file using the supplied loader.
// The initial load happens immediately; an unreadable file is an error.
func NewWatcher(path string, loader *Loader) (*Watcher, error) {
	if loader == nil {
		loader = NewLoader()
	}
	cfg, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     path,
		loader:   loader,
		debounce: 200 * time.Millisecond,
		current:  cfg,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// OnReload registers a callback invoked after each successful reload.
func (w *Watcher) OnReload(fn ReloadFunc) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start begins watching the file's directory for changes.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}
	w.fsw = fsw
	go w.loop()
	return nil
}

// Stop ends watching. Safe to call when Start was never called.
func (w *Watcher) Stop() {
	if w.fsw == nil {
		return
	}
	close(w.quit)
	<-w.done
	w.fsw.Close()
	w.fsw = nil
}

func (w *Watcher) loop() {
	defer close(w.done)

	base := filepath.Base(w.path)
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-w.quit:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Coalesce bursts of events into one reload.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			w.reload()
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load(w.path)
	if err != nil {
		// Keep the last good configuration on a bad reload.
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := make([]ReloadFunc, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
}
