// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import "github.com/coderoom-dev/coderoom/wire"

// Publish delivers the event to every member of the room except the
// optionally excluded connection (pass "" to deliver to everyone).
// Delivery order is FIFO within a room: the room lock is held across
// the hand-off to each member's outbound queue, so two events
// published in sequence arrive in sequence at every member. Delivery
// is best-effort per connection — a dead or saturated member is
// skipped, never an error for the publisher. Publishing to an unknown
// or empty room is a no-op.
func (h *Hub) Publish(roomID string, event wire.Event, exclude ConnectionID) {
	h.mu.Lock()
	rm, ok := h.rooms[roomID]
	h.mu.Unlock()
	if !ok {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	h.dispatchLocked(roomID, rm, event, exclude)
}

// SendTo delivers the event to a single connection. Unlike room
// fan-out, a targeted send to an unknown connection is a hard error.
func (h *Hub) SendTo(id ConnectionID, event wire.Event) error {
	if !h.registry.send(id, event) {
		return ErrNotFound
	}
	return nil
}

// dispatchLocked fans the event out to the room's members. Callers
// hold rm.mu. Send never blocks, so holding the room lock across the
// loop preserves per-room ordering without stalling on slow consumers.
func (h *Hub) dispatchLocked(roomID string, rm *room, event wire.Event, exclude ConnectionID) {
	for _, member := range rm.members {
		if member == exclude {
			continue
		}
		if !h.registry.send(member, event) {
			h.logger.Debug("event dropped",
				"room", roomID,
				"connection", string(member),
				"event", event.Type,
			)
		}
	}
}
