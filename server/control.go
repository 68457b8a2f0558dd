// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/klauspost/compress/zstd"

	"github.com/coderoom-dev/coderoom/lib/codec"
	"github.com/coderoom-dev/coderoom/lib/service"
)

// Control action names.
const (
	ActionPing           = "ping"
	ActionListRooms      = "list-rooms"
	ActionRoomMembers    = "room-members"
	ActionDumpHistory    = "dump-history"
	ActionDumpScrollback = "dump-scrollback"
	ActionKillSession    = "kill-session"
)

// RoomSummary is one row of the list-rooms response.
type RoomSummary struct {
	ID           string `cbor:"id"`
	Members      int    `cbor:"members"`
	LiveTerminal bool   `cbor:"liveTerminal"`
}

// ListRoomsResult is the data field of a list-rooms response.
type ListRoomsResult struct {
	Rooms []RoomSummary `cbor:"rooms"`
}

// MemberInfo is one row of the room-members response.
type MemberInfo struct {
	Name  string `cbor:"name"`
	Color string `cbor:"color"`
}

// RoomMembersResult is the data field of a room-members response.
type RoomMembersResult struct {
	Room    string       `cbor:"room"`
	Members []MemberInfo `cbor:"members"`
}

// DumpResult carries a zstd-compressed payload for the dump actions.
type DumpResult struct {
	Room       string `cbor:"room"`
	Compressed []byte `cbor:"compressed"`
	Messages   int64  `cbor:"messages,omitempty"`
}

// KillSessionResult reports whether kill-session found a live shell.
type KillSessionResult struct {
	Room    string `cbor:"room"`
	Stopped bool   `cbor:"stopped"`
}

// roomRequest is the common shape of room-scoped control requests.
type roomRequest struct {
	Room string `cbor:"room"`
}

func decodeRoomRequest(raw []byte) (string, error) {
	var request roomRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return "", fmt.Errorf("invalid request: %w", err)
	}
	if request.Room == "" {
		return "", fmt.Errorf("missing required field: room")
	}
	return request.Room, nil
}

// RegisterControl wires the operator actions onto a control socket
// server.
func (s *Server) RegisterControl(socket *service.SocketServer) {
	socket.Handle(ActionPing, func(context.Context, []byte) (any, error) {
		return nil, nil
	})

	socket.Handle(ActionListRooms, func(context.Context, []byte) (any, error) {
		live := make(map[string]bool)
		for _, roomID := range s.terminals.Rooms() {
			live[roomID] = true
		}
		roomIDs := s.rooms.RoomIDs()
		slices.Sort(roomIDs)
		result := ListRoomsResult{Rooms: make([]RoomSummary, 0, len(roomIDs))}
		for _, roomID := range roomIDs {
			result.Rooms = append(result.Rooms, RoomSummary{
				ID:           roomID,
				Members:      len(s.rooms.Members(roomID)),
				LiveTerminal: live[roomID],
			})
		}
		return result, nil
	})

	socket.Handle(ActionRoomMembers, func(_ context.Context, raw []byte) (any, error) {
		roomID, err := decodeRoomRequest(raw)
		if err != nil {
			return nil, err
		}
		result := RoomMembersResult{Room: roomID, Members: []MemberInfo{}}
		for _, member := range s.rooms.Members(roomID) {
			if presence, ok := s.registry.Presence(member); ok {
				result.Members = append(result.Members, MemberInfo{
					Name:  presence.Name,
					Color: presence.Color,
				})
			}
		}
		return result, nil
	})

	socket.Handle(ActionDumpHistory, func(ctx context.Context, raw []byte) (any, error) {
		roomID, err := decodeRoomRequest(raw)
		if err != nil {
			return nil, err
		}
		compressed, err := s.messages.Dump(ctx, roomID)
		if err != nil {
			return nil, err
		}
		count, err := s.messages.Count(ctx, roomID)
		if err != nil {
			return nil, err
		}
		return DumpResult{Room: roomID, Compressed: compressed, Messages: count}, nil
	})

	socket.Handle(ActionDumpScrollback, func(_ context.Context, raw []byte) (any, error) {
		roomID, err := decodeRoomRequest(raw)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(s.terminals.Rooms(), roomID) {
			return nil, fmt.Errorf("room %s has no live terminal session", roomID)
		}
		scrollback := s.terminals.History(roomID, 0)

		var buffer bytes.Buffer
		compressor, err := zstd.NewWriter(&buffer)
		if err != nil {
			return nil, err
		}
		if _, err := compressor.Write(scrollback); err != nil {
			compressor.Close()
			return nil, err
		}
		if err := compressor.Close(); err != nil {
			return nil, err
		}
		return DumpResult{Room: roomID, Compressed: buffer.Bytes()}, nil
	})

	socket.Handle(ActionKillSession, func(_ context.Context, raw []byte) (any, error) {
		roomID, err := decodeRoomRequest(raw)
		if err != nil {
			return nil, err
		}
		stopped := s.terminals.Close(roomID)
		return KillSessionResult{Room: roomID, Stopped: stopped}, nil
	})
}
