// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/coderoom-dev/coderoom/wire"
)

// LeaveHook is called after a connection is removed from a room.
// remaining is the member count after removal; hooks use it to tear
// down per-room resources when the room empties.
type LeaveHook func(roomID string, id ConnectionID, remaining int)

// room holds one room's member list. The room's own mutex serializes
// membership edits and event dispatch, so events published to a room
// are delivered in publish order while independent rooms never contend.
type room struct {
	mu      sync.Mutex
	members []ConnectionID
}

// Hub is the room directory and event broadcaster. Rooms are created
// lazily on first join and never destroyed; an empty room costs a map
// entry (known limitation, not a correctness bug).
type Hub struct {
	registry *Registry
	logger   *slog.Logger

	mu         sync.Mutex
	rooms      map[string]*room
	leaveHooks []LeaveHook
}

// New creates a hub backed by the given connection registry.
func New(registry *Registry, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		registry: registry,
		logger:   logger,
		rooms:    make(map[string]*room),
	}
}

// OnLeave registers a hook invoked after every room removal. Register
// hooks during wiring, before connections arrive.
func (h *Hub) OnLeave(hook LeaveHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveHooks = append(h.leaveHooks, hook)
}

// Snapshot is the state a joiner receives: the room's current members,
// joiner included.
type Snapshot struct {
	Room    string
	Members []wire.Presence
}

// Join adds the connection to the room, creating the room if absent,
// and announces the arrival to the other members. A connection belongs
// to at most one room: joining a different room leaves the previous
// one first, with the usual departure announcement and hooks. Joining
// a room the connection is already a member of is an idempotent
// success (client reconnect storms re-send joins). Returns ErrNotFound
// when the connection is not registered and wire.ErrInvalidRoom for a
// room id that is not a single path segment.
func (h *Hub) Join(roomID string, id ConnectionID, displayName string) (Snapshot, error) {
	if err := wire.ValidateRoomID(roomID); err != nil {
		return Snapshot{}, err
	}
	if _, ok := h.registry.Presence(id); !ok {
		return Snapshot{}, ErrNotFound
	}
	h.registry.SetName(id, displayName)
	h.departRooms(id, displayName, roomID)

	rm := h.getOrCreate(roomID)

	rm.mu.Lock()
	alreadyMember := false
	for _, member := range rm.members {
		if member == id {
			alreadyMember = true
			break
		}
	}
	if !alreadyMember {
		rm.members = append(rm.members, id)
	}
	snapshot := Snapshot{Room: roomID, Members: h.presences(rm.members)}

	if !alreadyMember {
		announcement, err := wire.NewEvent(wire.EventUserJoined,
			fmt.Sprintf("%s has joined the room", displayName))
		if err == nil {
			h.dispatchLocked(roomID, rm, announcement, id)
		}
	}
	rm.mu.Unlock()

	h.logger.Info("room join",
		"room", roomID,
		"connection", string(id),
		"members", len(snapshot.Members),
	)
	return snapshot, nil
}

// Leave removes the connection from every room it belongs to and
// announces the departure to the remaining members. A connection
// belongs to at most one room, but the scan is defensive. Idempotent:
// leaving when not a member, or for an unknown connection, is a no-op.
func (h *Hub) Leave(id ConnectionID) {
	presence, _ := h.registry.Presence(id)
	name := presence.Name
	if name == "" {
		name = "A user"
	}
	h.departRooms(id, name, "")
}

// departRooms removes the connection from every room except the named
// one, announcing each departure and running the leave hooks.
func (h *Hub) departRooms(id ConnectionID, name string, except string) {
	h.mu.Lock()
	roomIDs := make([]string, 0, len(h.rooms))
	roomsByID := make(map[string]*room, len(h.rooms))
	for roomID, rm := range h.rooms {
		roomIDs = append(roomIDs, roomID)
		roomsByID[roomID] = rm
	}
	hooks := h.leaveHooks
	h.mu.Unlock()

	for _, roomID := range roomIDs {
		if roomID == except {
			continue
		}
		rm := roomsByID[roomID]

		rm.mu.Lock()
		removed := false
		for i, member := range rm.members {
			if member == id {
				rm.members = append(rm.members[:i], rm.members[i+1:]...)
				removed = true
				break
			}
		}
		remaining := len(rm.members)
		if removed {
			announcement, err := wire.NewEvent(wire.EventUserLeft,
				fmt.Sprintf("%s has left the room", name))
			if err == nil {
				h.dispatchLocked(roomID, rm, announcement, id)
			}
		}
		rm.mu.Unlock()

		if removed {
			for _, hook := range hooks {
				hook(roomID, id, remaining)
			}
			h.logger.Info("room leave",
				"room", roomID,
				"connection", string(id),
				"remaining", remaining,
			)
		}
	}
}

// Members returns the room's current member set. An unknown room
// yields an empty set.
func (h *Hub) Members(roomID string) []ConnectionID {
	h.mu.Lock()
	rm, ok := h.rooms[roomID]
	h.mu.Unlock()
	if !ok {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	members := make([]ConnectionID, len(rm.members))
	copy(members, rm.members)
	return members
}

// RoomIDs returns the ids of all rooms seen so far, including empty
// ones.
func (h *Hub) RoomIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.rooms))
	for roomID := range h.rooms {
		ids = append(ids, roomID)
	}
	return ids
}

// getOrCreate returns the room, creating it when absent. Absence of a
// room id never fails — it means "create empty room".
func (h *Hub) getOrCreate(roomID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm, ok := h.rooms[roomID]
	if !ok {
		rm = &room{}
		h.rooms[roomID] = rm
		h.logger.Info("room created", "room", roomID)
	}
	return rm
}

// presences resolves member ids to presence records, skipping any
// connection that unregistered mid-lookup.
func (h *Hub) presences(members []ConnectionID) []wire.Presence {
	result := make([]wire.Presence, 0, len(members))
	for _, member := range members {
		if presence, ok := h.registry.Presence(member); ok {
			result = append(result, presence)
		}
	}
	return result
}
