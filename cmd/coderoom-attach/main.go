// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

// coderoom-attach joins a room's shared terminal from a local
// terminal. It connects to the coderoomd websocket endpoint, joins the
// room, puts the local terminal into raw mode, and relays bytes both
// ways until the remote shell closes or the user detaches with Ctrl-].
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/coderoom-dev/coderoom/lib/version"
	"github.com/coderoom-dev/coderoom/wire"
)

// detachByte ends the session locally (Ctrl-]).
const detachByte = 0x1d

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "coderoom-attach:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		serverURL   string
		room        string
		userName    string
		showVersion bool
	)
	pflag.StringVar(&serverURL, "server", "ws://127.0.0.1:9000/ws", "websocket endpoint of coderoomd")
	pflag.StringVar(&room, "room", "", "room to join (required)")
	pflag.StringVar(&userName, "name", "", "display name (default: $USER)")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Println("coderoom-attach", version.Info())
		return nil
	}
	if room == "" {
		return fmt.Errorf("--room is required")
	}
	if userName == "" {
		userName = os.Getenv("USER")
		if userName == "" {
			userName = "observer"
		}
	}

	conn, _, err := websocket.DefaultDialer.Dial(serverURL, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", serverURL, err)
	}
	defer conn.Close()
	writer := &eventWriter{conn: conn}

	if err := writer.send(wire.EventJoinRoom, wire.JoinRoom{
		Room:     room,
		UserName: userName,
	}); err != nil {
		return err
	}

	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return fmt.Errorf("stdin is not a terminal")
	}
	previousState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return fmt.Errorf("entering raw mode: %w", err)
	}
	defer term.Restore(stdinFd, previousState)

	// Tell the room's PTY our dimensions now and on every SIGWINCH.
	resize := func() {
		columns, rows, err := term.GetSize(stdinFd)
		if err != nil {
			return
		}
		_ = writer.send(wire.EventTerminalResize, wire.TerminalResize{
			Columns: uint16(columns),
			Rows:    uint16(rows),
		})
	}
	resize()
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			resize()
		}
	}()

	// Stdin → terminal:write. Reads one buffer at a time; the detach
	// byte ends the session without killing the remote shell.
	done := make(chan error, 2)
	go func() {
		buffer := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buffer)
			if n > 0 {
				for _, b := range buffer[:n] {
					if b == detachByte {
						done <- nil
						return
					}
				}
				chunk := make([]byte, n)
				copy(chunk, buffer[:n])
				if err := writer.send(wire.EventTerminalWrite, wire.TerminalIO{Data: chunk}); err != nil {
					done <- err
					return
				}
			}
			if err != nil {
				done <- err
				return
			}
		}
	}()

	// Server events → stdout. Non-terminal events are ignored; the
	// attach tool is a terminal view, not a full client.
	go func() {
		for {
			var event wire.Event
			if err := conn.ReadJSON(&event); err != nil {
				done <- err
				return
			}
			switch event.Type {
			case wire.EventTerminalData:
				var payload wire.TerminalIO
				if err := event.DecodePayload(&payload); err != nil {
					continue
				}
				if _, err := os.Stdout.Write(payload.Data); err != nil {
					done <- err
					return
				}
			case wire.EventTerminalClosed:
				done <- nil
				return
			case wire.EventError:
				var info wire.ErrorInfo
				if err := event.DecodePayload(&info); err == nil {
					fmt.Fprintf(os.Stderr, "\r\nserver error (%s): %s\r\n", info.Op, info.Message)
				}
			}
		}
	}()

	err = <-done

	// Best-effort clean close so the server announces the departure
	// promptly instead of waiting for the read deadline.
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	if err != nil {
		return fmt.Errorf("session ended: %w", err)
	}
	return nil
}

// eventWriter serializes websocket writes: the stdin pump and the
// resize handler both send events.
type eventWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *eventWriter) send(eventType string, payload any) error {
	event, err := wire.NewEvent(eventType, payload)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(event)
}
