// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"

	"github.com/coderoom-dev/coderoom/wire"
)

// ConnectionID identifies one live connection for its lifetime.
type ConnectionID string

// Sender delivers an event to one connection's outbound queue.
// Implementations must not block: a slow consumer drops the event and
// returns false rather than stalling fan-out to other members.
type Sender interface {
	Send(event wire.Event) bool
}

// connState is the registry's record for one live connection.
type connState struct {
	color  string
	name   string
	sender Sender
}

// Registry tracks each live connection, its assigned presence color,
// and its outbound sender. All methods are safe for concurrent use;
// operations are short and never block.
type Registry struct {
	mu          sync.Mutex
	connections map[ConnectionID]*connState
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{connections: make(map[ConnectionID]*connState)}
}

// Register allocates a connection id and a presence color drawn from a
// uniform-random 24-bit RGB generator. Collisions between colors are
// possible and acceptable; each individual assignment is stable for
// the connection's lifetime.
func (r *Registry) Register(sender Sender) ConnectionID {
	id := ConnectionID(uuid.NewString())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[id] = &connState{
		color:  fmt.Sprintf("#%06X", rand.IntN(1<<24)),
		sender: sender,
	}
	return id
}

// Unregister removes the connection. Idempotent.
func (r *Registry) Unregister(id ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connections, id)
}

// Color returns the connection's assigned presence color, or
// ErrNotFound if the connection is not registered.
func (r *Registry) Color(id ConnectionID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.connections[id]
	if !ok {
		return "", ErrNotFound
	}
	return state.color, nil
}

// SetName records the display name supplied at join time.
func (r *Registry) SetName(id ConnectionID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.connections[id]; ok {
		state.name = name
	}
}

// Presence returns the connection's display name and color. The second
// return is false when the connection is not registered.
func (r *Registry) Presence(id ConnectionID) (wire.Presence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.connections[id]
	if !ok {
		return wire.Presence{}, false
	}
	return wire.Presence{Name: state.name, Color: state.color}, true
}

// send hands the event to the connection's sender. Returns false when
// the connection is gone or its queue is full.
func (r *Registry) send(id ConnectionID, event wire.Event) bool {
	r.mu.Lock()
	state, ok := r.connections[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return state.sender.Send(event)
}
