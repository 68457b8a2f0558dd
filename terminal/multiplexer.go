// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/coderoom-dev/coderoom/hub"
	"github.com/coderoom-dev/coderoom/wire"
)

// Broadcaster delivers an event to every member of a room. Satisfied
// by *hub.Hub.
type Broadcaster interface {
	Publish(roomID string, event wire.Event, exclude hub.ConnectionID)
}

// Options configures the multiplexer's sessions.
type Options struct {
	// Shell is the program each session runs, e.g. /bin/bash.
	Shell string

	// ScrollbackBytes is the per-session scrollback capacity.
	// Zero means DefaultScrollbackBytes.
	ScrollbackBytes int

	// Columns and Rows are the initial PTY dimensions.
	Columns uint16
	Rows    uint16

	// WorkDir resolves a room id to the directory its shell starts in.
	WorkDir func(roomID string) (string, error)
}

// Multiplexer owns the per-room shell sessions. It creates them lazily
// on first use, fans their output out to the room, and tears them down
// when the shell exits, the last member leaves, or the server shuts
// down.
type Multiplexer struct {
	options     Options
	broadcaster Broadcaster
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMultiplexer creates a multiplexer broadcasting through
// broadcaster.
func NewMultiplexer(options Options, broadcaster Broadcaster, logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Multiplexer{
		options:     options,
		broadcaster: broadcaster,
		logger:      logger,
		sessions:    make(map[string]*Session),
	}
}

// Ensure returns the room's live session, starting one if none exists.
func (m *Multiplexer) Ensure(roomID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[roomID]; ok && !session.done() {
		return session, nil
	}

	workDir := ""
	if m.options.WorkDir != nil {
		dir, err := m.options.WorkDir(roomID)
		if err != nil {
			return nil, fmt.Errorf("resolve shell working directory for room %s: %w", roomID, err)
		}
		workDir = dir
	}

	session, err := startSession(
		roomID,
		m.options.Shell,
		workDir,
		m.options.Columns,
		m.options.Rows,
		m.options.ScrollbackBytes,
		m.broadcastData,
		m.sessionExited,
	)
	if err != nil {
		return nil, err
	}
	m.sessions[roomID] = session

	m.logger.Info("shell session started",
		"room", roomID,
		"shell", m.options.Shell,
		"pid", session.cmd.Process.Pid,
	)
	return session, nil
}

// Write sends member input to the room's shell, starting a session if
// the room has none yet.
func (m *Multiplexer) Write(roomID string, data []byte) error {
	session, err := m.Ensure(roomID)
	if err != nil {
		return err
	}
	return session.Write(data)
}

// Resize adjusts the room's PTY dimensions. A room without a live
// session fails with ErrSessionClosed; resizing never starts a shell.
func (m *Multiplexer) Resize(roomID string, columns, rows uint16) error {
	m.mu.Lock()
	session, ok := m.sessions[roomID]
	m.mu.Unlock()
	if !ok || session.done() {
		return ErrSessionClosed
	}
	return session.Resize(columns, rows)
}

// History returns the room's retained scrollback since offset, or nil
// when the room has no live session. Offset 0 replays everything
// retained.
func (m *Multiplexer) History(roomID string, offset uint64) []byte {
	m.mu.Lock()
	session, ok := m.sessions[roomID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return session.History(offset)
}

// Close stops the room's session if one is live. Reports whether a
// session was stopped.
func (m *Multiplexer) Close(roomID string) bool {
	m.mu.Lock()
	session, ok := m.sessions[roomID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	session.Stop()
	return true
}

// Rooms returns the ids of rooms with a live session.
func (m *Multiplexer) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := make([]string, 0, len(m.sessions))
	for roomID, session := range m.sessions {
		if !session.done() {
			rooms = append(rooms, roomID)
		}
	}
	return rooms
}

// Shutdown stops every live session and blocks until their shells are
// reaped.
func (m *Multiplexer) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.Unlock()

	for _, session := range sessions {
		session.Stop()
	}
}

// LeaveHook returns a hub leave hook that tears the room's session
// down once its last member is gone. Wire it with hub.OnLeave.
func (m *Multiplexer) LeaveHook() func(roomID string, id hub.ConnectionID, remaining int) {
	return func(roomID string, _ hub.ConnectionID, remaining int) {
		if remaining > 0 {
			return
		}
		if m.Close(roomID) {
			m.logger.Info("shell session stopped, room empty", "room", roomID)
		}
	}
}

// broadcastData fans one output chunk out to the room.
func (m *Multiplexer) broadcastData(roomID string, chunk []byte) {
	event, err := wire.NewEvent(wire.EventTerminalData, wire.TerminalIO{Data: chunk})
	if err != nil {
		m.logger.Error("encoding terminal output", "room", roomID, "error", err)
		return
	}
	m.broadcaster.Publish(roomID, event, "")
}

// sessionExited runs on the session's pump goroutine after the shell
// ends. It drops the session from the table and tells the room.
func (m *Multiplexer) sessionExited(session *Session) {
	m.mu.Lock()
	if m.sessions[session.roomID] == session {
		delete(m.sessions, session.roomID)
	}
	m.mu.Unlock()

	exitErr := <-session.exited
	session.exited <- exitErr
	if !isNormalShellExit(exitErr) {
		m.logger.Warn("shell exited abnormally", "room", session.roomID, "error", exitErr)
	} else {
		m.logger.Info("shell session ended", "room", session.roomID)
	}

	event, err := wire.NewEvent(wire.EventTerminalClosed, nil)
	if err != nil {
		return
	}
	m.broadcaster.Publish(session.roomID, event, "")
}
