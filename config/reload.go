package config

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ReloadFunc applies the newly loaded configuration. An error leaves prev as
// the current configuration, so the next change is diffed against it again.
type ReloadFunc func(prev, next *Config) error

// Reloader re-reads the configuration file whenever it changes and hands
// every valid result to the registered callback. Invalid files and failed
// callbacks are logged and the current configuration is kept.
type Reloader struct {
	loader   *Loader
	watcher  *FileWatcher
	onReload ReloadFunc
	logger   *zap.Logger

	applyMu sync.Mutex
	mu      sync.RWMutex
	current *Config
}

// NewReloader watches loader's config path. current is the configuration
// already in use.
func NewReloader(loader *Loader, current *Config, onReload ReloadFunc, logger *zap.Logger, opts ...WatcherOption) (*Reloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]WatcherOption{WithWatcherLogger(logger)}, opts...)
	w, err := NewFileWatcher([]string{loader.ConfigPath()}, opts...)
	if err != nil {
		return nil, err
	}
	r := &Reloader{
		loader:   loader,
		watcher:  w,
		onReload: onReload,
		logger:   logger.With(zap.String("component", "config_reloader")),
		current:  current,
	}
	w.OnChange(r.handle)
	return r, nil
}

// Start begins watching.
func (r *Reloader) Start(ctx context.Context) error {
	return r.watcher.Start(ctx)
}

// Stop stops watching.
func (r *Reloader) Stop() error {
	return r.watcher.Stop()
}

// Current returns the most recently applied configuration.
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

func (r *Reloader) handle(evt FileEvent) {
	if evt.Op == FileOpRemove || evt.Op == FileOpChmod {
		return
	}
	next, err := r.loader.Load()
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		r.logger.Warn("config reload rejected, keeping current config",
			zap.String("path", evt.Path),
			zap.Error(err))
		return
	}

	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	prev := r.Current()
	if r.onReload != nil {
		if err := r.onReload(prev, next); err != nil {
			r.logger.Warn("config reload not applied, keeping current config",
				zap.String("path", evt.Path),
				zap.Error(err))
			return
		}
	}

	r.mu.Lock()
	r.current = next
	r.mu.Unlock()
	r.logger.Info("config reloaded", zap.String("path", evt.Path))
}
