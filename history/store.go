// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/coderoom-dev/coderoom/lib/clock"
	"github.com/coderoom-dev/coderoom/lib/sqlitepool"
)

// DefaultReplayLimit bounds how many messages a joiner receives.
const DefaultReplayLimit = 50

// dedupTailSize bounds the per-room tail of recent client nonces kept
// for retry suppression. Reconnect storms re-send the last few
// messages, never hundreds.
const dedupTailSize = 128

const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id      TEXT PRIMARY KEY,
    room_id TEXT NOT NULL,
    user    TEXT NOT NULL,
    body    TEXT NOT NULL,
    sent_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_room_time
    ON messages (room_id, sent_at, id);
`

// Message is one stored chat message. ID is assigned by the store,
// exactly once per message; clients de-duplicate on it.
type Message struct {
	ID     string    `json:"id"`
	RoomID string    `json:"roomId"`
	User   string    `json:"user"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sentAt"`
}

// Store is the SQLite-backed message log.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger

	// tailMu guards tails, the in-memory per-room record of recently
	// seen client nonces. It exists only for retry suppression and is
	// rebuilt empty on restart.
	tailMu sync.Mutex
	tails  map[string]*nonceTail
}

// nonceTail remembers the last dedupTailSize nonces seen in one room
// and the message each one produced.
type nonceTail struct {
	order    []string
	messages map[string]Message
}

func (t *nonceTail) lookup(nonce string) (Message, bool) {
	message, ok := t.messages[nonce]
	return message, ok
}

func (t *nonceTail) record(nonce string, message Message) {
	if _, ok := t.messages[nonce]; ok {
		return
	}
	t.messages[nonce] = message
	t.order = append(t.order, nonce)
	if len(t.order) > dedupTailSize {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.messages, oldest)
	}
}

// Open creates the store at path, creating the schema on first
// connect. Use ":memory:" with pool size 1 for tests.
func Open(path string, poolSize int, clk clock.Clock, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     path,
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return &Store{
		pool:   pool,
		clock:  clk,
		logger: logger,
		tails:  make(map[string]*nonceTail),
	}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Append stores a message and returns it with its assigned id and
// timestamp. The returned message is what the caller should broadcast.
//
// A non-empty nonce enables retry suppression: when the room's recent
// tail already holds the nonce, nothing is stored and the originally
// assigned message is returned with duplicate set. Callers must not
// re-broadcast a duplicate to the room.
func (s *Store) Append(ctx context.Context, roomID, user, body, nonce string) (message Message, duplicate bool, err error) {
	if nonce != "" {
		s.tailMu.Lock()
		if tail, ok := s.tails[roomID]; ok {
			if seen, ok := tail.lookup(nonce); ok {
				s.tailMu.Unlock()
				return seen, true, nil
			}
		}
		s.tailMu.Unlock()
	}

	message = Message{
		ID:     uuid.NewString(),
		RoomID: roomID,
		User:   user,
		Body:   body,
		SentAt: s.clock.Now(),
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Message{}, false, fmt.Errorf("history: append: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT INTO messages (id, room_id, user, body, sent_at) VALUES (?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{
				message.ID,
				message.RoomID,
				message.User,
				message.Body,
				message.SentAt.UnixMilli(),
			},
		})
	if err != nil {
		return Message{}, false, fmt.Errorf("history: append: %w", err)
	}

	if nonce != "" {
		s.tailMu.Lock()
		tail, ok := s.tails[roomID]
		if !ok {
			tail = &nonceTail{messages: make(map[string]Message)}
			s.tails[roomID] = tail
		}
		tail.record(nonce, message)
		s.tailMu.Unlock()
	}
	return message, false, nil
}

// Recent returns the newest limit messages for the room in
// oldest-first order, ready to replay to a joiner. limit <= 0 uses
// DefaultReplayLimit.
func (s *Store) Recent(ctx context.Context, roomID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultReplayLimit
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer s.pool.Put(conn)

	var newestFirst []Message
	err = sqlitex.Execute(conn,
		"SELECT id, room_id, user, body, sent_at FROM messages WHERE room_id = ? ORDER BY sent_at DESC, id DESC LIMIT ?",
		&sqlitex.ExecOptions{
			Args: []any{roomID, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				newestFirst = append(newestFirst, Message{
					ID:     stmt.ColumnText(0),
					RoomID: stmt.ColumnText(1),
					User:   stmt.ColumnText(2),
					Body:   stmt.ColumnText(3),
					SentAt: time.UnixMilli(stmt.ColumnInt64(4)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}

	// Reverse into replay order.
	for i, j := 0, len(newestFirst)-1; i < j; i, j = i+1, j-1 {
		newestFirst[i], newestFirst[j] = newestFirst[j], newestFirst[i]
	}
	return newestFirst, nil
}

// Count returns the number of stored messages for the room.
func (s *Store) Count(ctx context.Context, roomID string) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	defer s.pool.Put(conn)

	var count int64
	err = sqlitex.Execute(conn,
		"SELECT COUNT(*) FROM messages WHERE room_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{roomID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return count, nil
}

// Dump exports the room's full message log, oldest-first, as
// zstd-compressed JSON lines. Used by the operator control socket.
func (s *Store) Dump(ctx context.Context, roomID string) ([]byte, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: dump: %w", err)
	}
	defer s.pool.Put(conn)

	var buffer bytes.Buffer
	compressor, err := zstd.NewWriter(&buffer)
	if err != nil {
		return nil, fmt.Errorf("history: dump: %w", err)
	}
	encoder := json.NewEncoder(compressor)

	err = sqlitex.Execute(conn,
		"SELECT id, room_id, user, body, sent_at FROM messages WHERE room_id = ? ORDER BY sent_at ASC, id ASC",
		&sqlitex.ExecOptions{
			Args: []any{roomID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				return encoder.Encode(Message{
					ID:     stmt.ColumnText(0),
					RoomID: stmt.ColumnText(1),
					User:   stmt.ColumnText(2),
					Body:   stmt.ColumnText(3),
					SentAt: time.UnixMilli(stmt.ColumnInt64(4)),
				})
			},
		})
	if err != nil {
		compressor.Close()
		return nil, fmt.Errorf("history: dump: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return nil, fmt.Errorf("history: dump: %w", err)
	}
	return buffer.Bytes(), nil
}
