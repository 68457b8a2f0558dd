// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

// Package hub tracks live connections and room membership, and fans
// events out to room members.
//
// The package is organized around the three bookkeeping concerns:
//
//   - registry.go: connection identities (id, presence color, sender)
//   - hub.go: room directory (lazy creation, join/leave, snapshots)
//   - broadcast.go: per-room FIFO event fan-out with origin exclusion
//
// The room directory and the broadcaster share one lock per room, so
// membership edits and event dispatch for a given room are serialized
// while independent rooms proceed concurrently. No lock is held across
// network or filesystem I/O: delivery hands events to each
// connection's outbound queue, which must not block.
package hub
