// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/coderoom-dev/coderoom/lib/testutil"
	"github.com/coderoom-dev/coderoom/wire"
)

// chanSender is a test Sender backed by a buffered channel. A full
// buffer drops the event, matching the production write pump.
type chanSender struct {
	events chan wire.Event
}

func newChanSender(capacity int) *chanSender {
	return &chanSender{events: make(chan wire.Event, capacity)}
}

func (s *chanSender) Send(event wire.Event) bool {
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

func newTestHub(t *testing.T) (*Registry, *Hub) {
	t.Helper()
	registry := NewRegistry()
	return registry, New(registry, nil)
}

func TestRegisterAssignsStableColor(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()

	id := registry.Register(newChanSender(1))
	color, err := registry.Color(id)
	if err != nil {
		t.Fatalf("Color: %v", err)
	}
	if !regexp.MustCompile(`^#[0-9A-F]{6}$`).MatchString(color) {
		t.Errorf("color format: got %q, want #RRGGBB", color)
	}

	again, err := registry.Color(id)
	if err != nil {
		t.Fatalf("Color: %v", err)
	}
	if again != color {
		t.Errorf("color changed across lookups: %q then %q", color, again)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()

	id := registry.Register(newChanSender(1))
	registry.Unregister(id)
	registry.Unregister(id)

	if _, err := registry.Color(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Color after Unregister: got %v, want ErrNotFound", err)
	}
}

func TestJoinAnnouncesToOthersOnly(t *testing.T) {
	t.Parallel()
	registry, h := newTestHub(t)

	existingSender := newChanSender(8)
	existing := registry.Register(existingSender)
	if _, err := h.Join("alpha", existing, "alice"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	joinerSender := newChanSender(8)
	joiner := registry.Register(joinerSender)
	snapshot, err := h.Join("alpha", joiner, "bob")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	if len(snapshot.Members) != 2 {
		t.Errorf("snapshot members: got %d, want 2", len(snapshot.Members))
	}

	event := testutil.RequireReceive(t, existingSender.events, time.Second, "existing member announcement")
	if event.Type != wire.EventUserJoined {
		t.Errorf("event type: got %q, want %q", event.Type, wire.EventUserJoined)
	}
	var text string
	if err := event.DecodePayload(&text); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if text != "bob has joined the room" {
		t.Errorf("announcement: got %q", text)
	}

	testutil.RequireNoReceive(t, joinerSender.events, 50*time.Millisecond, "joiner must not receive its own announcement")
}

func TestJoinRejectsInvalidRoomID(t *testing.T) {
	t.Parallel()
	registry, h := newTestHub(t)
	id := registry.Register(newChanSender(1))

	for _, roomID := range []string{"", ".", "..", "a/b", `a\b`, "../escape"} {
		if _, err := h.Join(roomID, id, "alice"); !errors.Is(err, wire.ErrInvalidRoom) {
			t.Errorf("Join(%q): got %v, want ErrInvalidRoom", roomID, err)
		}
	}
	if got := h.RoomIDs(); len(got) != 0 {
		t.Errorf("rejected joins left rooms behind: %v", got)
	}
}

func TestRejoinLeavesPreviousRoom(t *testing.T) {
	t.Parallel()
	registry, h := newTestHub(t)

	hookCalls := make(chan string, 4)
	h.OnLeave(func(roomID string, _ ConnectionID, remaining int) {
		hookCalls <- roomID
	})

	watcherSender := newChanSender(8)
	watcher := registry.Register(watcherSender)
	if _, err := h.Join("alpha", watcher, "watcher"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	moverSender := newChanSender(8)
	mover := registry.Register(moverSender)
	if _, err := h.Join("alpha", mover, "mover"); err != nil {
		t.Fatalf("Join alpha: %v", err)
	}
	testutil.RequireReceive(t, watcherSender.events, time.Second, "mover's join announcement")

	if _, err := h.Join("beta", mover, "mover"); err != nil {
		t.Fatalf("Join beta: %v", err)
	}

	// The move out of alpha looks like any other departure: the
	// announcement and the leave hooks both fire.
	event := testutil.RequireReceive(t, watcherSender.events, time.Second, "mover's departure from alpha")
	if event.Type != wire.EventUserLeft {
		t.Errorf("event type: got %q, want %q", event.Type, wire.EventUserLeft)
	}
	left := testutil.RequireReceive(t, hookCalls, time.Second, "leave hook for alpha")
	if left != "alpha" {
		t.Errorf("leave hook room: got %q, want alpha", left)
	}

	if got := h.Members("alpha"); len(got) != 1 || got[0] != watcher {
		t.Errorf("alpha members after move: got %v, want only the watcher", got)
	}
	if got := h.Members("beta"); len(got) != 1 || got[0] != mover {
		t.Errorf("beta members after move: got %v, want only the mover", got)
	}

	// Broadcasts to the old room no longer reach the moved connection.
	update, _ := wire.NewEvent(wire.EventFileRefresh, nil)
	h.Publish("alpha", update, "")
	testutil.RequireReceive(t, watcherSender.events, time.Second, "alpha broadcast for the watcher")
	testutil.RequireNoReceive(t, moverSender.events, 50*time.Millisecond,
		"moved connection must not receive the old room's broadcasts")
}

func TestJoinUnknownConnection(t *testing.T) {
	t.Parallel()
	_, h := newTestHub(t)

	if _, err := h.Join("alpha", ConnectionID("ghost"), "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Join unknown connection: got %v, want ErrNotFound", err)
	}
}

func TestDoubleJoinIsIdempotent(t *testing.T) {
	t.Parallel()
	registry, h := newTestHub(t)

	sender := newChanSender(8)
	id := registry.Register(sender)

	if _, err := h.Join("alpha", id, "alice"); err != nil {
		t.Fatalf("first Join: %v", err)
	}
	snapshot, err := h.Join("alpha", id, "alice")
	if err != nil {
		t.Fatalf("second Join: %v", err)
	}
	if len(snapshot.Members) != 1 {
		t.Errorf("members after double join: got %d, want 1", len(snapshot.Members))
	}
	if got := h.Members("alpha"); len(got) != 1 {
		t.Errorf("Members after double join: got %d, want 1", len(got))
	}
}

func TestLeaveAnnouncesAndRunsHooks(t *testing.T) {
	t.Parallel()
	registry, h := newTestHub(t)

	type hookCall struct {
		roomID    string
		id        ConnectionID
		remaining int
	}
	hookCalls := make(chan hookCall, 4)
	h.OnLeave(func(roomID string, id ConnectionID, remaining int) {
		hookCalls <- hookCall{roomID, id, remaining}
	})

	aliceSender := newChanSender(8)
	alice := registry.Register(aliceSender)
	if _, err := h.Join("alpha", alice, "alice"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	bobSender := newChanSender(8)
	bob := registry.Register(bobSender)
	if _, err := h.Join("alpha", bob, "bob"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	testutil.RequireReceive(t, aliceSender.events, time.Second, "bob's join announcement")

	h.Leave(bob)

	event := testutil.RequireReceive(t, aliceSender.events, time.Second, "bob's leave announcement")
	if event.Type != wire.EventUserLeft {
		t.Errorf("event type: got %q, want %q", event.Type, wire.EventUserLeft)
	}
	var text string
	if err := event.DecodePayload(&text); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if text != "bob has left the room" {
		t.Errorf("announcement: got %q", text)
	}

	call := testutil.RequireReceive(t, hookCalls, time.Second, "leave hook")
	if call.roomID != "alpha" || call.id != bob || call.remaining != 1 {
		t.Errorf("hook call: got %+v", call)
	}

	// Repeated leave is a no-op: no announcement, no hook.
	h.Leave(bob)
	testutil.RequireNoReceive(t, aliceSender.events, 50*time.Millisecond, "no second leave announcement")
	testutil.RequireNoReceive(t, hookCalls, 50*time.Millisecond, "no second hook call")
}

func TestMemberSetMatchesJoinLeaveReplay(t *testing.T) {
	t.Parallel()
	registry, h := newTestHub(t)

	var ids []ConnectionID
	for i := 0; i < 5; i++ {
		id := registry.Register(newChanSender(16))
		ids = append(ids, id)
		if _, err := h.Join("alpha", id, "user"); err != nil {
			t.Fatalf("Join: %v", err)
		}
	}
	h.Leave(ids[1])
	h.Leave(ids[3])
	h.Leave(ids[3]) // repeated disconnect signal

	want := map[ConnectionID]bool{ids[0]: true, ids[2]: true, ids[4]: true}
	got := h.Members("alpha")
	if len(got) != len(want) {
		t.Fatalf("member count: got %d, want %d", len(got), len(want))
	}
	for _, member := range got {
		if !want[member] {
			t.Errorf("unexpected member %s", member)
		}
	}
}

func TestPublishExcludesOriginator(t *testing.T) {
	t.Parallel()
	registry, h := newTestHub(t)

	aliceSender := newChanSender(8)
	alice := registry.Register(aliceSender)
	h.Join("alpha", alice, "alice")
	bobSender := newChanSender(8)
	bob := registry.Register(bobSender)
	h.Join("alpha", bob, "bob")
	testutil.RequireReceive(t, aliceSender.events, time.Second, "join announcement")

	event, err := wire.NewEvent(wire.EventFileUpdate, wire.FileUpdate{Path: "/a.txt", Content: "x"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	h.Publish("alpha", event, bob)

	got := testutil.RequireReceive(t, aliceSender.events, time.Second, "file update for alice")
	if got.Type != wire.EventFileUpdate {
		t.Errorf("event type: got %q", got.Type)
	}
	testutil.RequireNoReceive(t, bobSender.events, 50*time.Millisecond, "originator must not receive echo")
}

func TestPublishOrderIsFIFOPerRoom(t *testing.T) {
	t.Parallel()
	registry, h := newTestHub(t)

	sender := newChanSender(64)
	id := registry.Register(sender)
	h.Join("alpha", id, "alice")

	for i := 0; i < 10; i++ {
		event, err := wire.NewEvent(wire.EventReceiveMessage, wire.ReceiveMessage{Message: string(rune('a' + i))})
		if err != nil {
			t.Fatalf("NewEvent: %v", err)
		}
		h.Publish("alpha", event, "")
	}

	for i := 0; i < 10; i++ {
		event := testutil.RequireReceive(t, sender.events, time.Second, "ordered event %d", i)
		var payload wire.ReceiveMessage
		if err := event.DecodePayload(&payload); err != nil {
			t.Fatalf("DecodePayload: %v", err)
		}
		if payload.Message != string(rune('a'+i)) {
			t.Fatalf("event %d: got %q, want %q", i, payload.Message, string(rune('a'+i)))
		}
	}
}

func TestPublishUnknownRoomIsNoOp(t *testing.T) {
	t.Parallel()
	_, h := newTestHub(t)

	event, _ := wire.NewEvent(wire.EventFileRefresh, nil)
	h.Publish("nowhere", event, "")
}

func TestPublishSkipsSaturatedConnection(t *testing.T) {
	t.Parallel()
	registry, h := newTestHub(t)

	slowSender := newChanSender(1)
	slow := registry.Register(slowSender)
	h.Join("alpha", slow, "slow")
	fastSender := newChanSender(8)
	fast := registry.Register(fastSender)
	h.Join("alpha", fast, "fast")

	// slow's capacity-1 buffer is already full with fast's join
	// announcement, so this publish drops for slow but still reaches
	// fast.
	event, _ := wire.NewEvent(wire.EventTerminalClosed, nil)
	h.Publish("alpha", event, "")

	got := testutil.RequireReceive(t, fastSender.events, time.Second, "fast member delivery")
	if got.Type != wire.EventTerminalClosed {
		t.Errorf("event type: got %q", got.Type)
	}
}

func TestSendToUnknownConnection(t *testing.T) {
	t.Parallel()
	_, h := newTestHub(t)

	event, _ := wire.NewEvent(wire.EventUserColor, "#FFFFFF")
	if err := h.SendTo(ConnectionID("ghost"), event); !errors.Is(err, ErrNotFound) {
		t.Errorf("SendTo unknown: got %v, want ErrNotFound", err)
	}
}
