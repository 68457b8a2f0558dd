// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/coderoom-dev/coderoom/filesync"
	"github.com/coderoom-dev/coderoom/history"
	"github.com/coderoom-dev/coderoom/hub"
	"github.com/coderoom-dev/coderoom/terminal"
	"github.com/coderoom-dev/coderoom/wire"
)

// Options carries the components the server fronts.
type Options struct {
	Registry  *hub.Registry
	Rooms     *hub.Hub
	Files     *filesync.Engine
	Terminals *terminal.Multiplexer
	Messages  *history.Store

	// ReplayLimit bounds the chat tail replayed to a joiner. Zero
	// means history.DefaultReplayLimit.
	ReplayLimit int

	Logger *slog.Logger

	// BaseContext bounds storage operations started by connection
	// events. Nil means context.Background.
	BaseContext context.Context
}

// Server is the websocket and HTTP front end.
type Server struct {
	registry    *hub.Registry
	rooms       *hub.Hub
	files       *filesync.Engine
	terminals   *terminal.Multiplexer
	messages    *history.Store
	replayLimit int
	logger      *slog.Logger
	baseCtx     context.Context
	upgrader    websocket.Upgrader
}

// New creates a server over the given components.
func New(options Options) *Server {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	baseCtx := options.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	replayLimit := options.ReplayLimit
	if replayLimit <= 0 {
		replayLimit = history.DefaultReplayLimit
	}
	return &Server{
		registry:    options.Registry,
		rooms:       options.Rooms,
		files:       options.Files,
		terminals:   options.Terminals,
		messages:    options.Messages,
		replayLimit: replayLimit,
		logger:      logger,
		baseCtx:     baseCtx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The collaboration endpoint is origin-agnostic; access
			// control is out of scope for the protocol layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routing for the websocket endpoint and the
// read API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	mux.HandleFunc("GET /files", s.handleFileTree)
	mux.HandleFunc("GET /files/content", s.handleFileContent)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// handleWebsocket upgrades the connection, registers it, and starts
// the pumps. The connection immediately receives its presence color
// and a bare file:refresh, matching what clients expect on connect.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed",
			"remote", r.RemoteAddr,
			"error", err,
		)
		return
	}

	c := newClient(s, conn)
	c.id = s.registry.Register(c)

	s.logger.Info("connection opened",
		"connection", string(c.id),
		"remote", r.RemoteAddr,
	)

	if color, err := s.registry.Color(c.id); err == nil {
		if event, err := wire.NewEvent(wire.EventUserColor, color); err == nil {
			c.Send(event)
		}
	}
	if event, err := wire.NewEvent(wire.EventFileRefresh, nil); err == nil {
		c.Send(event)
	}

	go c.writePump()
	go c.readPump()
}

// disconnect runs the exactly-once teardown for a connection: leave
// every room (announcing the departure and releasing per-room
// resources via leave hooks), then unregister.
func (s *Server) disconnect(c *client) {
	c.closeOnce.Do(func() {
		s.rooms.Leave(c.id)
		s.registry.Unregister(c.id)
		close(c.done)
		s.logger.Info("connection closed", "connection", string(c.id))
	})
}
