// Package watcher reloads the host configuration when its file changes.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/charliek/sidecar/internal/constants"
)

// ReloadHandler is called when a configuration file change is detected
type ReloadHandler func() error

// Watcher watches the configuration file and triggers reloads. It watches
// the parent directory so editors that replace the file on save are seen.
type Watcher struct {
	configPath string
	handler    ReloadHandler
	logger     *zap.Logger
	watcher    *fsnotify.Watcher
	mu         sync.Mutex
	lastReload time.Time
	debounce   time.Duration
	done       chan struct{}
}

// Config holds watcher configuration
type Config struct {
	ConfigPath string
	Handler    ReloadHandler
	Logger     *zap.Logger
	Debounce   time.Duration // Minimum time between two reloads
}

// New creates a new configuration file watcher
func New(cfg Config) (*Watcher, error) {
	if cfg.ConfigPath == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("reload handler is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = constants.DefaultWatchDebounce
	}

	absPath, err := filepath.Abs(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		configPath: absPath,
		handler:    cfg.Handler,
		logger:     cfg.Logger,
		watcher:    fsWatcher,
		debounce:   cfg.Debounce,
		done:       make(chan struct{}),
	}, nil
}

// Start begins watching. The loop runs until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.configPath)); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	w.logger.Info("config watcher started",
		zap.String("path", w.configPath),
		zap.Duration("debounce", w.debounce))

	go w.watchLoop(ctx)
	return nil
}

// Done is closed when the watch loop exits
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("config watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.configPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.handleFileChange(event)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// handleFileChange processes a file change event with debouncing
func (w *Watcher) handleFileChange(event fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if time.Since(w.lastReload) < w.debounce {
		w.logger.Debug("config change debounced",
			zap.String("event", event.Op.String()),
			zap.Duration("since_last_reload", time.Since(w.lastReload)))
		return
	}

	w.logger.Info("config file changed, triggering reload",
		zap.String("path", event.Name),
		zap.String("event", event.Op.String()))

	if err := w.handler(); err != nil {
		// lastReload stays put so the next change retries
		w.logger.Error("config reload failed", zap.Error(err))
		return
	}

	w.lastReload = time.Now()
	w.logger.Info("config reload successful")
}

// Stop stops the file watcher
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
