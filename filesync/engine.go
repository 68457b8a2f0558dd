// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package filesync

import (
	"log/slog"
	"os"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/coderoom-dev/coderoom/hub"
	"github.com/coderoom-dev/coderoom/wire"
)

// Broadcaster delivers an event to every member of a room except the
// excluded connection. Satisfied by *hub.Hub.
type Broadcaster interface {
	Publish(roomID string, event wire.Event, exclude hub.ConnectionID)
}

// ColorSource resolves a connection's presence color for edit
// attribution. Satisfied by *hub.Registry.
type ColorSource interface {
	Color(id hub.ConnectionID) (string, error)
}

// fileEntry is the authoritative in-memory state of one synchronized
// file. At most one entry exists per (room, path); writes are totally
// ordered by arrival at the engine.
type fileEntry struct {
	content    []byte
	digest     [32]byte
	lastWriter hub.ConnectionID
	seq        uint64
}

// roomFiles holds one room's synchronized files. applyMu serializes
// the validate→persist→broadcast sequence for the room; stateMu guards
// the entry map and the superseded-write bookkeeping and is never held
// across I/O.
type roomFiles struct {
	applyMu sync.Mutex

	stateMu sync.Mutex
	entries map[string]*fileEntry
	latest  map[string]uint64
}

// Engine applies incoming file edits last-write-wins, persists them,
// and broadcasts the applied content to the room.
type Engine struct {
	store       *Store
	broadcaster Broadcaster
	colors      ColorSource
	logger      *slog.Logger

	mu      sync.Mutex
	rooms   map[string]*roomFiles
	nextSeq uint64
}

// NewEngine creates an engine persisting through store and fanning
// results out through broadcaster. colors attributes edits; a nil
// colors leaves the author color empty.
func NewEngine(store *Store, broadcaster Broadcaster, colors ColorSource, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		store:       store,
		broadcaster: broadcaster,
		colors:      colors,
		logger:      logger,
		rooms:       make(map[string]*roomFiles),
	}
}

// ApplyChange records new content for a file, persists it, and
// broadcasts a file:update to the room excluding the source.
//
// Conflict policy is last-write-wins by arrival order at this method:
// when writes race, the later arrival fully replaces the earlier one.
// Writes for the same path that are still waiting on the room's apply
// lock when a newer write arrives are superseded and dropped — only
// the latest content matters, so intermediates are never persisted or
// broadcast. A write whose content matches the current entry is a
// no-op.
//
// On persist failure the in-memory entry is rolled back to its
// previous content and the error (wrapping ErrPersist) is returned;
// readers never observe an unpersisted value as saved.
func (e *Engine) ApplyChange(roomID, path string, content []byte, source hub.ConnectionID) error {
	canonical, err := e.store.Canonical(roomID, path)
	if err != nil {
		return err
	}

	room := e.roomFiles(roomID)

	// Claim the latest-writer slot for this path before waiting on the
	// apply lock. Arrival order at this line is the total order.
	e.mu.Lock()
	e.nextSeq++
	seq := e.nextSeq
	e.mu.Unlock()

	room.stateMu.Lock()
	room.latest[canonical] = seq
	room.stateMu.Unlock()

	room.applyMu.Lock()
	defer room.applyMu.Unlock()

	room.stateMu.Lock()
	superseded := room.latest[canonical] != seq
	previous := room.entries[canonical]
	room.stateMu.Unlock()

	if superseded {
		e.logger.Debug("write superseded",
			"room", roomID,
			"path", canonical,
		)
		return nil
	}

	digest := blake3.Sum256(content)
	if previous != nil && previous.digest == digest {
		return nil
	}

	entry := &fileEntry{
		content:    content,
		digest:     digest,
		lastWriter: source,
		seq:        seq,
	}
	room.stateMu.Lock()
	room.entries[canonical] = entry
	room.stateMu.Unlock()

	if err := e.store.WriteFile(roomID, canonical, content); err != nil {
		room.stateMu.Lock()
		if previous != nil {
			room.entries[canonical] = previous
		} else {
			delete(room.entries, canonical)
		}
		room.stateMu.Unlock()
		e.logger.Error("persist failed",
			"room", roomID,
			"path", canonical,
			"error", err,
		)
		return err
	}

	authorColor := ""
	if e.colors != nil {
		if color, err := e.colors.Color(source); err == nil {
			authorColor = color
		}
	}
	event, err := wire.NewEvent(wire.EventFileUpdate, wire.FileUpdate{
		Path:    canonical,
		Content: string(content),
		Color:   authorColor,
	})
	if err != nil {
		return err
	}
	e.broadcaster.Publish(roomID, event, source)
	return nil
}

// Read returns the file's content, preferring the in-memory entry over
// the disk copy so callers never see content older than an applied
// write. Missing files surface the underlying os.ErrNotExist.
func (e *Engine) Read(roomID, path string) ([]byte, error) {
	canonical, err := e.store.Canonical(roomID, path)
	if err != nil {
		return nil, err
	}

	room := e.roomFiles(roomID)
	room.stateMu.Lock()
	entry := room.entries[canonical]
	room.stateMu.Unlock()
	if entry != nil {
		content := make([]byte, len(entry.content))
		copy(content, entry.content)
		return content, nil
	}

	return e.store.ReadFile(roomID, canonical)
}

// Tree returns the room's current file hierarchy from disk.
func (e *Engine) Tree(roomID string) (wire.Tree, error) {
	return e.store.ScanTree(roomID)
}

// Refresh re-reads the room's directory structure and broadcasts a
// file:refresh with the new tree to every member. Called by the
// filesystem watcher after its debounce window and on demand.
func (e *Engine) Refresh(roomID string) error {
	tree, err := e.store.ScanTree(roomID)
	if err != nil {
		return err
	}
	event, err := wire.NewEvent(wire.EventFileRefresh, wire.FileRefresh{Tree: tree})
	if err != nil {
		return err
	}
	e.broadcaster.Publish(roomID, event, "")
	return nil
}

// Forget drops the in-memory entries for a room. Used by tests and by
// operators resetting a room; the persisted files remain.
func (e *Engine) Forget(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rooms, roomID)
}

// roomFiles returns the room's file state, creating it when absent.
func (e *Engine) roomFiles(roomID string) *roomFiles {
	e.mu.Lock()
	defer e.mu.Unlock()
	room, ok := e.rooms[roomID]
	if !ok {
		room = &roomFiles{
			entries: make(map[string]*fileEntry),
			latest:  make(map[string]uint64),
		}
		e.rooms[roomID] = room
	}
	return room
}

// IsNotExist reports whether err is a missing-file read error.
func IsNotExist(err error) bool {
	return os.IsNotExist(err)
}
