// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"fmt"
)

// Event type constants for the room connection protocol.
const (
	// EventJoinRoom requests membership in a room, creating it if
	// absent. Client→server. Payload: JoinRoom.
	EventJoinRoom = "join:room"

	// EventUserJoined announces a new member to the room's existing
	// members (the joiner is excluded). Payload: a display string.
	EventUserJoined = "user:joined"

	// EventUserLeft announces a departure to the remaining members.
	// Payload: a display string.
	EventUserLeft = "user:left"

	// EventUserColor delivers the connection's assigned presence color,
	// sent once on connect. Payload: a "#RRGGBB" string.
	EventUserColor = "user:color"

	// EventRoomState is the join snapshot: current members and the
	// room's file tree. Sent only to the joiner. Payload: RoomState.
	EventRoomState = "room:state"

	// EventFileChange submits new content for a file. Client→server.
	// Payload: FileChange.
	EventFileChange = "file:change"

	// EventFileUpdate broadcasts applied file content to the room,
	// excluding the author. Payload: FileUpdate.
	EventFileUpdate = "file:update"

	// EventFileRefresh signals that the file tree changed. The payload
	// is either a Tree or absent (bare signal on connect).
	EventFileRefresh = "file:refresh"

	// EventSendMessage submits a chat message. Client→server.
	// Payload: SendMessage.
	EventSendMessage = "send_message"

	// EventReceiveMessage delivers a chat message with its
	// server-assigned id to the whole room, sender included.
	// Payload: ReceiveMessage.
	EventReceiveMessage = "receive_message"

	// EventTerminalWrite submits input for the room's shared shell.
	// Client→server. Payload: TerminalIO.
	EventTerminalWrite = "terminal:write"

	// EventTerminalData broadcasts shell output to the room's
	// subscribers. Payload: TerminalIO.
	EventTerminalData = "terminal:data"

	// EventTerminalResize adjusts the shared PTY dimensions.
	// Client→server. Payload: TerminalResize.
	EventTerminalResize = "terminal:resize"

	// EventTerminalClosed announces that the room's shell exited.
	// Subsequent writes fail. No payload.
	EventTerminalClosed = "terminal:closed"

	// EventError reports an operation-scoped failure to the
	// originating connection only. Payload: ErrorInfo.
	EventError = "error"
)

// Event is the envelope for every message on a room connection.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an envelope with the payload marshaled to JSON.
// A nil payload produces a bare event.
func NewEvent(eventType string, payload any) (Event, error) {
	event := Event{Type: eventType}
	if payload == nil {
		return event, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	event.Payload = data
	return event, nil
}

// DecodePayload unmarshals the event payload into v.
func (e Event) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s event has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// JoinRoom is the payload of a join:room event.
type JoinRoom struct {
	Room     string `json:"room"`
	UserName string `json:"userName"`
}

// Presence identifies a room member for attribution.
type Presence struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// RoomState is the payload of a room:state event: the snapshot a
// joiner receives.
type RoomState struct {
	Room    string     `json:"room"`
	Members []Presence `json:"members"`
	Tree    Tree       `json:"tree"`
}

// FileChange is the payload of a file:change event.
type FileChange struct {
	Room    string `json:"room"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileUpdate is the payload of a file:update broadcast. Color is the
// author's presence color so receivers can attribute the edit.
type FileUpdate struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Color   string `json:"color"`
}

// FileRefresh is the payload of a file:refresh broadcast carrying the
// room's current tree. On initial connect the event is sent bare.
type FileRefresh struct {
	Tree Tree `json:"tree"`
}

// SendMessage is the payload of a send_message event. Any client-
// supplied message id is ignored; the server assigns the
// authoritative one. Nonce is an optional client-chosen token that
// makes retries identifiable: re-sending with the same nonce returns
// the originally assigned id instead of storing a second message.
type SendMessage struct {
	Message  string `json:"message"`
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Nonce    string `json:"nonce,omitempty"`
}

// ReceiveMessage is the payload of a receive_message broadcast.
// MessageID is assigned by the server, exactly once, unique within
// the room; receivers de-duplicate on it.
type ReceiveMessage struct {
	MessageID string `json:"messageId"`
	Message   string `json:"message"`
	User      string `json:"user"`
}

// TerminalIO carries raw shell bytes for terminal:write and
// terminal:data. Data is base64-encoded on the wire.
type TerminalIO struct {
	Data []byte `json:"data"`
}

// TerminalResize is the payload of a terminal:resize event.
type TerminalResize struct {
	Columns uint16 `json:"cols"`
	Rows    uint16 `json:"rows"`
}

// ErrorInfo is the payload of an error event. Op names the operation
// that failed (the triggering event type).
type ErrorInfo struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}
