// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coderoom-dev/coderoom/hub"
	"github.com/coderoom-dev/coderoom/wire"
)

// recordingBroadcaster accumulates terminal output per room and notes
// terminal:closed broadcasts. Publish never blocks the output pump.
type recordingBroadcaster struct {
	mu     sync.Mutex
	output map[string][]byte
	closed map[string]bool
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{
		output: make(map[string][]byte),
		closed: make(map[string]bool),
	}
}

func (b *recordingBroadcaster) Publish(roomID string, event wire.Event, _ hub.ConnectionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch event.Type {
	case wire.EventTerminalData:
		var payload wire.TerminalIO
		if err := event.DecodePayload(&payload); err == nil {
			b.output[roomID] = append(b.output[roomID], payload.Data...)
		}
	case wire.EventTerminalClosed:
		b.closed[roomID] = true
	}
}

func (b *recordingBroadcaster) outputFor(roomID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.output[roomID])
}

func (b *recordingBroadcaster) closedFor(roomID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed[roomID]
}

// waitUntil polls condition until it holds or the deadline passes.
func waitUntil(t *testing.T, timeout time.Duration, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %v waiting for %s", timeout, what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newTestMultiplexer(t *testing.T) (*Multiplexer, *recordingBroadcaster) {
	t.Helper()
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skipf("no PTY support: %v", err)
	}
	broadcasts := newRecordingBroadcaster()
	workspace := t.TempDir()
	mux := NewMultiplexer(Options{
		Shell:           "/bin/sh",
		ScrollbackBytes: 64 * 1024,
		Columns:         80,
		Rows:            24,
		WorkDir: func(roomID string) (string, error) {
			dir := workspace + "/" + roomID
			return dir, os.MkdirAll(dir, 0o755)
		},
	}, broadcasts, nil)
	t.Cleanup(mux.Shutdown)
	return mux, broadcasts
}

func TestWriteReachesShellAndOutputIsBroadcast(t *testing.T) {
	t.Parallel()
	mux, broadcasts := newTestMultiplexer(t)

	if err := mux.Write("alpha", []byte("echo coderoom-marker\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	waitUntil(t, 10*time.Second, "shell output containing the marker", func() bool {
		return strings.Contains(broadcasts.outputFor("alpha"), "coderoom-marker")
	})
}

func TestHistoryReplaysScrollback(t *testing.T) {
	t.Parallel()
	mux, broadcasts := newTestMultiplexer(t)

	if err := mux.Write("alpha", []byte("echo history-marker\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	waitUntil(t, 10*time.Second, "shell output containing the marker", func() bool {
		return strings.Contains(broadcasts.outputFor("alpha"), "history-marker")
	})

	history := mux.History("alpha", 0)
	if !strings.Contains(string(history), "history-marker") {
		t.Errorf("History = %q, want the marker present", history)
	}
}

func TestEnsureReusesLiveSession(t *testing.T) {
	t.Parallel()
	mux, _ := newTestMultiplexer(t)

	first, err := mux.Ensure("alpha")
	if err != nil {
		t.Fatalf("first Ensure: %v", err)
	}
	second, err := mux.Ensure("alpha")
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if first != second {
		t.Error("Ensure started a second session for the same room")
	}
}

func TestSessionsAreRoomScoped(t *testing.T) {
	t.Parallel()
	mux, broadcasts := newTestMultiplexer(t)

	if err := mux.Write("alpha", []byte("echo alpha-only\n")); err != nil {
		t.Fatalf("Write alpha: %v", err)
	}
	if _, err := mux.Ensure("beta"); err != nil {
		t.Fatalf("Ensure beta: %v", err)
	}

	waitUntil(t, 10*time.Second, "alpha shell output", func() bool {
		return strings.Contains(broadcasts.outputFor("alpha"), "alpha-only")
	})
	if got := broadcasts.outputFor("beta"); strings.Contains(got, "alpha-only") {
		t.Errorf("beta received alpha's output: %q", got)
	}
}

func TestCloseStopsSessionAndBroadcastsClosed(t *testing.T) {
	t.Parallel()
	mux, broadcasts := newTestMultiplexer(t)

	session, err := mux.Ensure("alpha")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !mux.Close("alpha") {
		t.Fatal("Close reported no session")
	}

	if err := session.Write([]byte("x")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Write after close = %v, want ErrSessionClosed", err)
	}
	waitUntil(t, 5*time.Second, "terminal:closed broadcast", func() bool {
		return broadcasts.closedFor("alpha")
	})
	if rooms := mux.Rooms(); len(rooms) != 0 {
		t.Errorf("Rooms after close = %v, want none", rooms)
	}
}

func TestShellExitBroadcastsClosed(t *testing.T) {
	t.Parallel()
	mux, broadcasts := newTestMultiplexer(t)

	if err := mux.Write("alpha", []byte("exit\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	waitUntil(t, 10*time.Second, "terminal:closed after shell exit", func() bool {
		return broadcasts.closedFor("alpha")
	})
}

func TestLeaveHookStopsEmptyRoomSession(t *testing.T) {
	t.Parallel()
	mux, broadcasts := newTestMultiplexer(t)

	if _, err := mux.Ensure("alpha"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	hook := mux.LeaveHook()

	// Members remain: the session stays up.
	hook("alpha", "conn-1", 2)
	if rooms := mux.Rooms(); len(rooms) != 1 {
		t.Fatalf("Rooms after non-final leave = %v, want the session alive", rooms)
	}

	// Last member gone: the session is torn down.
	hook("alpha", "conn-2", 0)
	waitUntil(t, 5*time.Second, "terminal:closed after last leave", func() bool {
		return broadcasts.closedFor("alpha")
	})
}

func TestResizeWithoutSession(t *testing.T) {
	t.Parallel()
	mux, _ := newTestMultiplexer(t)

	if err := mux.Resize("ghost", 120, 40); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Resize without session = %v, want ErrSessionClosed", err)
	}
}

func TestResizeLiveSession(t *testing.T) {
	t.Parallel()
	mux, _ := newTestMultiplexer(t)

	if _, err := mux.Ensure("alpha"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := mux.Resize("alpha", 120, 40); err != nil {
		t.Errorf("Resize: %v", err)
	}
}
