package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/logging"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 200 * time.Millisecond

// ErrWatcherClosed is returned by Run on a watcher that was already run.
var ErrWatcherClosed = errors.New("config watcher closed")

// Watcher reloads a registry file into a capability registry whenever the
// file changes. Only capabilities are reloaded; clusters and agent
// connections are fixed at startup.
type Watcher struct {
	path     string
	registry *capability.Registry
	logger   *slog.Logger
	debounce time.Duration
	onReload func(*Config)
	// discovered are capabilities learnt from remote agents at startup.
	discovered []capability.Capability

	mu      sync.Mutex
	timer   *time.Timer
	started bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchLogger sets the logger.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithReloadHook is called after every successful reload.
func WithReloadHook(fn func(*Config)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// WithDiscovered adds capabilities that are not declared in the file to
// every reload.
func WithDiscovered(caps []capability.Capability) WatcherOption {
	return func(w *Watcher) { w.discovered = caps }
}

// NewWatcher returns a watcher for path feeding registry.
func NewWatcher(path string, registry *capability.Registry, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		registry: registry,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is done. The directory is watched rather than the
// file so atomic renames keep being observed.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	w.started = true
	w.mu.Unlock()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("Watching registry file", logging.Path(w.path))

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.schedule(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", logging.Err(err))
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		_ = w.Reload()
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Reload reads the file and swaps the registry snapshot. On error the
// previous snapshot stays in place.
func (w *Watcher) Reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("Registry reload failed, keeping previous snapshot", logging.Path(w.path), logging.Err(err))
		return err
	}
	caps := append(append([]capability.Capability(nil), cfg.Capabilities...), w.discovered...)
	if err := w.registry.Reload(caps); err != nil {
		w.logger.Error("Registry reload rejected", logging.Path(w.path), logging.Err(err))
		return err
	}
	w.logger.Info("Registry reloaded",
		logging.Path(w.path),
		slog.Int("capabilities", len(caps)),
		slog.Uint64("generation", w.registry.Generation()))
	if w.onReload != nil {
		w.onReload(cfg)
	}
	return nil
}
