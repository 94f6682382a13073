package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events editors produce on save.
const reloadDelay = 100 * time.Millisecond

// Watch reloads the configuration file at path whenever it changes and
// sends each successfully parsed Config on the returned channel.
//
// The parent directory is watched rather than the file, so editors that
// save by renaming a temporary file are handled. Invalid configurations are
// logged and skipped. The channel is closed once ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger) (<-chan *Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}

	updates := make(chan *Config, 1)

	go func() {
		defer close(updates)
		defer func() { _ = watcher.Close() }()

		var reload <-chan time.Time
		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", err)

			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != abs {
					continue
				}
				if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDelay)
				} else {
					timer.Reset(reloadDelay)
				}
				reload = timer.C

			case <-reload:
				reload = nil
				cfg, err := Load(abs)
				if err != nil {
					logger.Warn("ignoring invalid config change", "path", abs, "error", err)
					continue
				}
				logger.Info("config reloaded", "path", abs)

				// keep only the newest config if the consumer lags
				select {
				case <-updates:
				default:
				}
				select {
				case updates <- cfg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return updates, nil
}
