package config

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the config file on write and hands the parsed result to a
// callback. The simulator uses it to hot-swap the fee schedule and the
// self-trade prevention toggle without restarting a run.
type Watcher struct {
	path     string
	cooldown time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher sets up an fsnotify watch on the config file.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return &Watcher{
		path:     path,
		cooldown: time.Second,
		watcher:  fw,
	}, nil
}

// Start blocks until the context ends, invoking onUpdate with each
// successfully reloaded config. Editors that replace the file are handled by
// re-adding the watch on Create.
func (w *Watcher) Start(ctx context.Context, onUpdate func(*AppConfig)) error {
	defer w.watcher.Close()

	var lastReload time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write != fsnotify.Write &&
				event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				_ = w.watcher.Add(w.path)
			}
			if time.Since(lastReload) < w.cooldown {
				continue
			}
			lastReload = time.Now()

			cfg, err := Load(w.path)
			if err != nil {
				zap.S().Warnw("config reload failed", "path", w.path, "error", err)
				continue
			}
			if onUpdate != nil {
				onUpdate(cfg)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			zap.S().Warnw("config watch error", "error", err)
		}
	}
}
