// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/coderoom-dev/coderoom/lib/clock"
)

func newTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(time.Unix(1700000000, 0))
	store, err := Open(filepath.Join(t.TempDir(), "history.db"), 1, fake, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store, fake
}

func TestAppendAssignsUniqueIDs(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, _, err := store.Append(ctx, "alpha", "ada", "hello", "")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	second, _, err := store.Append(ctx, "alpha", "ada", "hello", "")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if first.ID == "" || second.ID == "" {
		t.Fatal("Append returned an empty message id")
	}
	if first.ID == second.ID {
		t.Errorf("identical messages got the same id %q", first.ID)
	}
	if first.User != "ada" || first.Body != "hello" || first.RoomID != "alpha" {
		t.Errorf("stored message = %+v, want the submitted fields", first)
	}
}

func TestAppendNonceSuppressesRetry(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, duplicate, err := store.Append(ctx, "alpha", "ada", "hello", "nonce-1")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if duplicate {
		t.Fatal("first Append reported duplicate")
	}

	retry, duplicate, err := store.Append(ctx, "alpha", "ada", "hello", "nonce-1")
	if err != nil {
		t.Fatalf("retry Append: %v", err)
	}
	if !duplicate {
		t.Error("retry with the same nonce not reported as duplicate")
	}
	if retry.ID != first.ID {
		t.Errorf("retry id = %q, want the original %q", retry.ID, first.ID)
	}

	count, err := store.Count(ctx, "alpha")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("Count after retry = %d, want 1", count)
	}
}

func TestAppendNonceIsRoomScoped(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	alpha, _, err := store.Append(ctx, "alpha", "ada", "hi", "shared-nonce")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	beta, duplicate, err := store.Append(ctx, "beta", "bob", "hi", "shared-nonce")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if duplicate {
		t.Error("nonce seen in another room reported as duplicate")
	}
	if alpha.ID == beta.ID {
		t.Errorf("messages in different rooms share id %q", alpha.ID)
	}
}

func TestAppendNonceTailIsBounded(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, _, err := store.Append(ctx, "alpha", "ada", "oldest", "evicted-nonce")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	for i := range dedupTailSize {
		nonce := fmt.Sprintf("filler-%d", i)
		if _, _, err := store.Append(ctx, "alpha", "ada", "filler", nonce); err != nil {
			t.Fatalf("Append filler %d: %v", i, err)
		}
	}

	// The oldest nonce fell out of the tail, so the retry is treated as
	// a new message.
	resend, duplicate, err := store.Append(ctx, "alpha", "ada", "oldest", "evicted-nonce")
	if err != nil {
		t.Fatalf("resend Append: %v", err)
	}
	if duplicate {
		t.Error("evicted nonce still reported as duplicate")
	}
	if resend.ID == first.ID {
		t.Errorf("resend after eviction reused id %q", first.ID)
	}
}

func TestRecentOldestFirst(t *testing.T) {
	t.Parallel()
	store, fake := newTestStore(t)
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three"} {
		if _, _, err := store.Append(ctx, "alpha", "ada", body, ""); err != nil {
			t.Fatalf("Append(%q): %v", body, err)
		}
		fake.Advance(time.Second)
	}

	messages, err := store.Recent(ctx, "alpha", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("Recent returned %d messages, want 3", len(messages))
	}
	for i, want := range []string{"one", "two", "three"} {
		if messages[i].Body != want {
			t.Errorf("messages[%d].Body = %q, want %q", i, messages[i].Body, want)
		}
	}
}

func TestRecentKeepsNewestTail(t *testing.T) {
	t.Parallel()
	store, fake := newTestStore(t)
	ctx := context.Background()

	for _, body := range []string{"old", "mid", "new"} {
		if _, _, err := store.Append(ctx, "alpha", "ada", body, ""); err != nil {
			t.Fatalf("Append(%q): %v", body, err)
		}
		fake.Advance(time.Second)
	}

	messages, err := store.Recent(ctx, "alpha", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Recent returned %d messages, want 2", len(messages))
	}
	if messages[0].Body != "mid" || messages[1].Body != "new" {
		t.Errorf("Recent tail = [%q, %q], want the newest two oldest-first",
			messages[0].Body, messages[1].Body)
	}
}

func TestRecentIsRoomScoped(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Append(ctx, "alpha", "ada", "for alpha", ""); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, _, err := store.Append(ctx, "beta", "bob", "for beta", ""); err != nil {
		t.Fatalf("Append: %v", err)
	}

	messages, err := store.Recent(ctx, "alpha", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(messages) != 1 || messages[0].Body != "for alpha" {
		t.Errorf("Recent(alpha) = %+v, want only alpha's message", messages)
	}
}

func TestRecentEmptyRoom(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	messages, err := store.Recent(context.Background(), "never-used", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("Recent on empty room = %+v, want none", messages)
	}
}

func TestCount(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	for range 3 {
		if _, _, err := store.Append(ctx, "alpha", "ada", "x", ""); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	count, err := store.Count(ctx, "alpha")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Errorf("Count = %d, want 3", count)
	}
}

func TestDumpRoundTrips(t *testing.T) {
	t.Parallel()
	store, fake := newTestStore(t)
	ctx := context.Background()

	var appended []Message
	for _, body := range []string{"one", "two"} {
		message, _, err := store.Append(ctx, "alpha", "ada", body, "")
		if err != nil {
			t.Fatalf("Append(%q): %v", body, err)
		}
		appended = append(appended, message)
		fake.Advance(time.Second)
	}

	dump, err := store.Dump(ctx, "alpha")
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	decompressor, err := zstd.NewReader(bytes.NewReader(dump))
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer decompressor.Close()

	decoder := json.NewDecoder(decompressor)
	var restored []Message
	for {
		var message Message
		if err := decoder.Decode(&message); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("decode dump line: %v", err)
		}
		restored = append(restored, message)
	}

	if len(restored) != len(appended) {
		t.Fatalf("dump holds %d messages, want %d", len(restored), len(appended))
	}
	for i := range appended {
		if restored[i].ID != appended[i].ID || restored[i].Body != appended[i].Body {
			t.Errorf("dump[%d] = %+v, want %+v", i, restored[i], appended[i])
		}
	}
}
