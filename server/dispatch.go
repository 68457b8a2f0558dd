// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"time"

	"github.com/coderoom-dev/coderoom/wire"
)

// storeTimeout bounds the storage work one client event may trigger.
const storeTimeout = 5 * time.Second

// dispatch routes one client event. Failures are scoped to the
// operation: the originating connection gets an error event and the
// connection stays up.
func (s *Server) dispatch(c *client, event wire.Event) {
	var err error
	switch event.Type {
	case wire.EventJoinRoom:
		err = s.handleJoin(c, event)
	case wire.EventFileChange:
		err = s.handleFileChange(c, event)
	case wire.EventSendMessage:
		err = s.handleSendMessage(c, event)
	case wire.EventTerminalWrite:
		err = s.handleTerminalWrite(c, event)
	case wire.EventTerminalResize:
		err = s.handleTerminalResize(c, event)
	default:
		err = fmt.Errorf("unsupported event type %q", event.Type)
	}
	if err != nil {
		s.sendError(c, event.Type, err)
	}
}

// handleJoin adds the connection to the room and sends the snapshot:
// room state (members plus file tree), the recent chat tail, and the
// terminal scrollback. Only the joiner receives the snapshot; the rest
// of the room gets the arrival announcement from the hub.
func (s *Server) handleJoin(c *client, event wire.Event) error {
	var join wire.JoinRoom
	if err := event.DecodePayload(&join); err != nil {
		return err
	}
	if join.Room == "" {
		return fmt.Errorf("join:room requires a room id")
	}

	snapshot, err := s.rooms.Join(join.Room, c.id, join.UserName)
	if err != nil {
		return err
	}
	c.setRoom(join.Room)

	tree, err := s.files.Tree(join.Room)
	if err != nil {
		return err
	}
	stateEvent, err := wire.NewEvent(wire.EventRoomState, wire.RoomState{
		Room:    snapshot.Room,
		Members: snapshot.Members,
		Tree:    tree,
	})
	if err != nil {
		return err
	}
	c.Send(stateEvent)

	s.replayMessages(c, join.Room)
	s.replayScrollback(c, join.Room)
	return nil
}

// replayMessages sends the room's recent chat tail to the joiner as
// ordinary receive_message events. The ids are the originally assigned
// ones, so clients that already hold some of the tail de-duplicate.
func (s *Server) replayMessages(c *client, roomID string) {
	ctx, cancel := context.WithTimeout(s.baseCtx, storeTimeout)
	defer cancel()

	messages, err := s.messages.Recent(ctx, roomID, s.replayLimit)
	if err != nil {
		s.logger.Warn("chat replay failed", "room", roomID, "error", err)
		return
	}
	for _, message := range messages {
		event, err := wire.NewEvent(wire.EventReceiveMessage, wire.ReceiveMessage{
			MessageID: message.ID,
			Message:   message.Body,
			User:      message.User,
		})
		if err != nil {
			continue
		}
		c.Send(event)
	}
}

// replayScrollback sends the room's retained terminal output to the
// joiner so their terminal view matches the live session.
func (s *Server) replayScrollback(c *client, roomID string) {
	scrollback := s.terminals.History(roomID, 0)
	if len(scrollback) == 0 {
		return
	}
	event, err := wire.NewEvent(wire.EventTerminalData, wire.TerminalIO{Data: scrollback})
	if err != nil {
		return
	}
	c.Send(event)
}

// handleFileChange applies an edit through the file engine. The engine
// broadcasts the resulting file:update to everyone but the author.
func (s *Server) handleFileChange(c *client, event wire.Event) error {
	var change wire.FileChange
	if err := event.DecodePayload(&change); err != nil {
		return err
	}
	roomID := change.Room
	if roomID == "" {
		roomID = c.currentRoom()
	}
	if roomID == "" {
		return fmt.Errorf("file:change before joining a room")
	}
	return s.files.ApplyChange(roomID, change.Path, []byte(change.Content), c.id)
}

// handleSendMessage persists the message, then broadcasts it with its
// server-assigned id to the whole room, sender included: the sender
// needs the authoritative id for de-duplication. A retry carrying an
// already-seen nonce is answered with the original message, to the
// sender only; the room never sees the same id twice.
func (s *Server) handleSendMessage(c *client, event wire.Event) error {
	var send wire.SendMessage
	if err := event.DecodePayload(&send); err != nil {
		return err
	}
	roomID := send.RoomID
	if roomID == "" {
		roomID = c.currentRoom()
	}
	if roomID == "" {
		return fmt.Errorf("send_message before joining a room")
	}

	ctx, cancel := context.WithTimeout(s.baseCtx, storeTimeout)
	defer cancel()
	message, duplicate, err := s.messages.Append(ctx, roomID, send.Username, send.Message, send.Nonce)
	if err != nil {
		return err
	}

	receive, err := wire.NewEvent(wire.EventReceiveMessage, wire.ReceiveMessage{
		MessageID: message.ID,
		Message:   message.Body,
		User:      message.User,
	})
	if err != nil {
		return err
	}
	if duplicate {
		c.Send(receive)
		return nil
	}
	s.rooms.Publish(roomID, receive, "")
	return nil
}

// handleTerminalWrite feeds input to the room's shared shell, starting
// it on first use.
func (s *Server) handleTerminalWrite(c *client, event wire.Event) error {
	var input wire.TerminalIO
	if err := event.DecodePayload(&input); err != nil {
		return err
	}
	roomID := c.currentRoom()
	if roomID == "" {
		return fmt.Errorf("terminal:write before joining a room")
	}
	return s.terminals.Write(roomID, input.Data)
}

// handleTerminalResize adjusts the shared PTY dimensions.
func (s *Server) handleTerminalResize(c *client, event wire.Event) error {
	var resize wire.TerminalResize
	if err := event.DecodePayload(&resize); err != nil {
		return err
	}
	roomID := c.currentRoom()
	if roomID == "" {
		return fmt.Errorf("terminal:resize before joining a room")
	}
	if resize.Columns == 0 || resize.Rows == 0 {
		return fmt.Errorf("terminal:resize requires nonzero dimensions")
	}
	return s.terminals.Resize(roomID, resize.Columns, resize.Rows)
}

// sendError reports an operation failure to the originating connection
// only.
func (s *Server) sendError(c *client, op string, opErr error) {
	s.logger.Debug("operation failed",
		"connection", string(c.id),
		"op", op,
		"error", opErr,
	)
	event, err := wire.NewEvent(wire.EventError, wire.ErrorInfo{
		Op:      op,
		Message: opErr.Error(),
	})
	if err != nil {
		return
	}
	c.Send(event)
}
