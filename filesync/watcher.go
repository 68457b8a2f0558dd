// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package filesync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/coderoom-dev/coderoom/lib/clock"
)

// DefaultRefreshDebounce is the window within which filesystem change
// signals for the same room are coalesced into one refresh broadcast.
// Editors and build tools fire far more events than meaningful
// changes; one refresh per burst is enough.
const DefaultRefreshDebounce = 200 * time.Millisecond

// Watcher consumes raw filesystem change signals under the workspace
// root and turns them into debounced per-room Refresh calls on the
// engine. fsnotify does not watch recursively, so newly created
// directories are added to the watch set as their create events
// arrive.
type Watcher struct {
	engine *Engine
	store  *Store
	clock  clock.Clock
	window time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*clock.Timer
}

// NewWatcher creates a watcher that refreshes rooms through engine.
// window <= 0 uses DefaultRefreshDebounce.
func NewWatcher(engine *Engine, store *Store, clk clock.Clock, window time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if window <= 0 {
		window = DefaultRefreshDebounce
	}
	return &Watcher{
		engine:  engine,
		store:   store,
		clock:   clk,
		window:  window,
		logger:  logger,
		pending: make(map[string]*clock.Timer),
	}
}

// Run watches the workspace root until ctx is cancelled. The root and
// all existing subdirectories are watched on entry; directories
// created later are added as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating filesystem watcher: %w", err)
	}
	defer notifier.Close()

	if err := w.addRecursive(notifier, w.store.Root()); err != nil {
		return err
	}

	w.logger.Info("filesystem watcher running",
		"root", w.store.Root(),
		"debounce", w.window,
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-notifier.Events:
			if !ok {
				return nil
			}
			w.handleEvent(notifier, event)
		case watchErr, ok := <-notifier.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watcher error", "error", watchErr)
		}
	}
}

// handleEvent extends the watch set for new directories and schedules
// a debounced refresh for the owning room.
func (w *Watcher) handleEvent(notifier *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := notifier.Add(event.Name); err != nil {
				w.logger.Warn("watching new directory", "path", event.Name, "error", err)
			}
		}
	}

	roomID, ok := w.store.RoomForPath(event.Name)
	if !ok {
		return
	}
	w.signal(roomID)
}

// signal schedules a refresh for the room after the debounce window.
// Signals arriving while a refresh is pending push the window out, so
// a burst of changes produces a single refresh after it settles.
func (w *Watcher) signal(roomID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[roomID]; ok {
		timer.Reset(w.window)
		return
	}
	w.pending[roomID] = w.clock.AfterFunc(w.window, func() {
		w.flush(roomID)
	})
}

// flush clears the pending marker and broadcasts the refreshed tree.
func (w *Watcher) flush(roomID string) {
	w.mu.Lock()
	delete(w.pending, roomID)
	w.mu.Unlock()

	if err := w.engine.Refresh(roomID); err != nil {
		w.logger.Warn("room refresh failed", "room", roomID, "error", err)
	}
}

// addRecursive watches dir and every directory below it.
func (w *Watcher) addRecursive(notifier *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !entry.IsDir() {
			return nil
		}
		if err := notifier.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
