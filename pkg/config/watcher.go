package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period between the last write event and
// the re-read. Editors produce several events per save.
const DefaultDebounce = 100 * time.Millisecond

// ReloadFunc receives each successfully parsed configuration after the
// watched file changes.
type ReloadFunc func(*Config)

// ErrorFunc receives reload failures. The watch continues afterwards.
type ErrorFunc func(error)

// WatcherConfig configures a beamline file watcher.
type WatcherConfig struct {
	// Path is the beamline file to watch.
	Path string

	// OnReload receives each successfully parsed configuration.
	OnReload ReloadFunc

	// OnError receives watch and reload failures. The previous
	// configuration stays in effect (default: failures are dropped).
	OnError ErrorFunc

	// Debounce is the quiet period before the file is re-read
	// (default: 100ms).
	Debounce time.Duration
}

// Watcher re-reads a beamline file whenever it changes on disk and
// hands the parsed result to a callback. Files that fail to parse or
// validate are reported through the error callback and do not replace
// the configuration already in use.
type Watcher struct {
	path     string
	onReload ReloadFunc
	onError  ErrorFunc
	delay    time.Duration

	mu       sync.Mutex
	debounce *time.Timer
}

// NewWatcher validates cfg and returns a watcher. Run starts it.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("watcher path is required")
	}
	if cfg.OnReload == nil {
		return nil, fmt.Errorf("watcher reload callback is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Watcher{
		path:     cfg.Path,
		onReload: cfg.OnReload,
		onError:  cfg.OnError,
		delay:    cfg.Debounce,
	}, nil
}

// Run watches the file until ctx is cancelled. It returns nil on
// cancellation; reload failures are reported through OnError and do
// not stop the watch.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the parent directory. Editors that save by rename would
	// silently detach a watch placed on the file itself.
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.reportError(fmt.Errorf("watching %s: %w", w.path, err))
		}
	}
}

func (w *Watcher) scheduleReload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.delay, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload()
	})
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.reportError(err)
		return
	}
	w.onReload(cfg)
}

func (w *Watcher) reportError(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}
