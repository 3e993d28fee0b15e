// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

var errWatcherClosed = errors.New("watcher closed")

// WaitForFile blocks until path exists with a non-zero size or ctx ends.
// The parent directory must exist.
func WaitForFile(ctx context.Context, logger zerolog.Logger, path string) error {
	if ready(path) {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	// The file may have appeared between the first check and Add.
	if ready(path) {
		return nil
	}

	target := filepath.Base(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return errWatcherClosed
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				if ready(path) {
					return nil
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errWatcherClosed
			}
			logger.Warn().Err(err).Msg("fsnotify watcher error")
		}
	}
}

func ready(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
