// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces bursts of writes to the catalog file.
const DefaultWatchDebounce = 500 * time.Millisecond

// WatchCatalog calls onChange after the catalog file at path is written,
// created, renamed or removed, at most once per debounce window.
//
// # Description
//
// The parent directory is watched rather than the file itself, so editors
// and tools that replace the file atomically are still seen. onChange runs
// on the watcher goroutine; a slow callback delays later events.
//
// # Inputs
//
//   - ctx: Stops the watcher when cancelled.
//   - path: The catalog file.
//   - debounce: Quiet period before onChange fires. <= 0 uses the default.
//   - onChange: Invoked with the triggering event's path.
//
// # Outputs
//
//   - error: Non-nil when the watcher cannot be created. Runtime watcher
//     errors are logged, not returned.
func WatchCatalog(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, onChange func(path string)) error {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("embedding: watch %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("embedding: create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("embedding: watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer func() { _ = w.Close() }()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
					continue
				}
				logger.Debug("catalog watcher: change detected",
					slog.String("path", ev.Name),
					slog.String("op", ev.Op.String()),
				)
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				logger.Info("catalog watcher: catalog changed", slog.String("path", abs))
				onChange(abs)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("catalog watcher: error", slog.String("error", err.Error()))
			}
		}
	}()
	return nil
}
