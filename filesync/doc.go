// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

// Package filesync owns per-room file content: it applies incoming
// edits last-write-wins, persists them under the room's workspace
// directory, and broadcasts the result to the room.
//
// The package is organized around the synchronization data flow:
//
//   - store.go: workspace paths, traversal rejection, atomic persist,
//     file-tree scanning
//   - engine.go: edit application (validate → persist → broadcast),
//     rollback on persist failure, superseded-write coalescing
//   - watcher.go: fsnotify change signals debounced into file:refresh
//     broadcasts
//
// Each room's edits are serialized by a per-room apply lock; writes to
// the same path are totally ordered by arrival at the engine.
package filesync
