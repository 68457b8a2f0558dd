// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coderoom-dev/coderoom/hub"
	"github.com/coderoom-dev/coderoom/wire"
)

const (
	// writeWait bounds a single socket write.
	writeWait = 10 * time.Second

	// pongWait is how long the connection may stay silent before it is
	// considered dead. Pings go out at pingPeriod to keep healthy
	// connections inside the window.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps one inbound event. File contents ride in
	// events, so the cap is generous.
	maxMessageSize = 1 << 20

	// sendBufferSize is the per-connection outbound queue. A consumer
	// that falls this far behind starts losing events instead of
	// stalling the rooms it shares.
	sendBufferSize = 256
)

// client is one websocket connection. The write pump is the only
// goroutine that writes to the socket; everything outbound goes
// through the send channel.
type client struct {
	server *Server
	conn   *websocket.Conn
	id     hub.ConnectionID

	send chan wire.Event

	// roomMu guards room, the room this connection has joined.
	// Terminal events carry no room id, so dispatch needs it.
	roomMu sync.Mutex
	room   string

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(s *Server, conn *websocket.Conn) *client {
	return &client{
		server: s,
		conn:   conn,
		send:   make(chan wire.Event, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// Send queues an event for the write pump. Never blocks: a full queue
// drops the event and reports false, which the hub logs.
func (c *client) Send(event wire.Event) bool {
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// setRoom records the joined room.
func (c *client) setRoom(roomID string) {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	c.room = roomID
}

// currentRoom returns the joined room, empty before any join.
func (c *client) currentRoom() string {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	return c.room
}

// readPump consumes client events until the connection dies, then
// triggers teardown.
func (c *client) readPump() {
	defer func() {
		c.server.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var event wire.Event
		if err := c.conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debug("websocket read failed",
					"connection", string(c.id),
					"error", err,
				)
			}
			return
		}
		c.server.dispatch(c, event)
	}
}

// writePump owns all socket writes: queued events and keepalive pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
