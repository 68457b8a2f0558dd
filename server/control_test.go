// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/coderoom-dev/coderoom/history"
	"github.com/coderoom-dev/coderoom/lib/codec"
	"github.com/coderoom-dev/coderoom/lib/service"
	"github.com/coderoom-dev/coderoom/wire"
)

// startControl runs a control socket for srv and returns its path.
func startControl(t *testing.T, srv *Server) string {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "control.sock")
	socket := service.NewSocketServer(socketPath, nil)
	srv.RegisterControl(socket)

	ctx, cancel := context.WithCancel(context.Background())
	var done sync.WaitGroup
	done.Add(1)
	go func() {
		defer done.Done()
		if err := socket.Serve(ctx); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		done.Wait()
	})

	deadline := time.Now().Add(5 * time.Second)
	for {
		callCtx, callCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		_, err := service.Call(callCtx, socketPath, map[string]any{"action": ActionPing})
		callCancel()
		if err == nil {
			return socketPath
		}
		if time.Now().After(deadline) {
			t.Fatalf("control socket never became reachable: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func callControl[T any](t *testing.T, socketPath string, request map[string]any) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := service.Call(ctx, socketPath, request)
	if err != nil {
		t.Fatalf("control call %v: %v", request["action"], err)
	}
	var result T
	if err := codec.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode %v response: %v", request["action"], err)
	}
	return result
}

func TestControlListRoomsAndMembers(t *testing.T) {
	t.Parallel()
	httpServer, srv := newTestServer(t)
	socketPath := startControl(t, srv)

	ada := dialWebsocket(t, httpServer)
	ada.join("alpha", "ada")
	bob := dialWebsocket(t, httpServer)
	bob.join("alpha", "bob")

	rooms := callControl[ListRoomsResult](t, socketPath,
		map[string]any{"action": ActionListRooms})
	if len(rooms.Rooms) != 1 || rooms.Rooms[0].ID != "alpha" || rooms.Rooms[0].Members != 2 {
		t.Errorf("list-rooms = %+v, want alpha with 2 members", rooms)
	}

	members := callControl[RoomMembersResult](t, socketPath,
		map[string]any{"action": ActionRoomMembers, "room": "alpha"})
	names := make([]string, 0, len(members.Members))
	for _, member := range members.Members {
		names = append(names, member.Name)
	}
	joined := strings.Join(names, ",")
	if !strings.Contains(joined, "ada") || !strings.Contains(joined, "bob") {
		t.Errorf("room-members names = %v, want ada and bob", names)
	}
}

func TestControlDumpHistory(t *testing.T) {
	t.Parallel()
	httpServer, srv := newTestServer(t)
	socketPath := startControl(t, srv)

	ada := dialWebsocket(t, httpServer)
	ada.join("alpha", "ada")
	ada.send(wire.EventSendMessage, wire.SendMessage{
		Message: "for the record", RoomID: "alpha", Username: "ada",
	})
	ada.expect(wire.EventReceiveMessage)

	dump := callControl[DumpResult](t, socketPath,
		map[string]any{"action": ActionDumpHistory, "room": "alpha"})
	if dump.Messages != 1 {
		t.Errorf("dump messages = %d, want 1", dump.Messages)
	}

	decompressor, err := zstd.NewReader(bytes.NewReader(dump.Compressed))
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer decompressor.Close()
	decoder := json.NewDecoder(decompressor)
	var message history.Message
	if err := decoder.Decode(&message); err != nil && err != io.EOF {
		t.Fatalf("decode dumped message: %v", err)
	}
	if message.Body != "for the record" || message.User != "ada" {
		t.Errorf("dumped message = %+v, want the stored chat line", message)
	}
}

func TestControlKillSession(t *testing.T) {
	t.Parallel()
	httpServer, srv := newTestServer(t)
	socketPath := startControl(t, srv)

	// No session yet.
	result := callControl[KillSessionResult](t, socketPath,
		map[string]any{"action": ActionKillSession, "room": "alpha"})
	if result.Stopped {
		t.Error("kill-session reported a stop with no live session")
	}

	ada := dialWebsocket(t, httpServer)
	ada.join("alpha", "ada")
	ada.send(wire.EventTerminalWrite, wire.TerminalIO{Data: []byte("echo up\n")})
	ada.expect(wire.EventTerminalData)

	result = callControl[KillSessionResult](t, socketPath,
		map[string]any{"action": ActionKillSession, "room": "alpha"})
	if !result.Stopped {
		t.Error("kill-session did not stop the live session")
	}
	ada.expect(wire.EventTerminalClosed)
}

func TestControlRoomRequestValidation(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t)
	socketPath := startControl(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := service.Call(ctx, socketPath, map[string]any{"action": ActionRoomMembers})
	if err == nil || !strings.Contains(err.Error(), "room") {
		t.Errorf("room-members without room = %v, want a missing-field error", err)
	}
}
