// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

// coderoom-ctl drives a running coderoomd through its control socket.
//
// Usage:
//
//	coderoom-ctl [flags] ping
//	coderoom-ctl [flags] list-rooms
//	coderoom-ctl [flags] room-members <room>
//	coderoom-ctl [flags] dump-history <room>
//	coderoom-ctl [flags] dump-scrollback <room>
//	coderoom-ctl [flags] kill-session <room>
//
// The dump commands write zstd-compressed data to --output (or stdout).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/coderoom-dev/coderoom/lib/codec"
	"github.com/coderoom-dev/coderoom/lib/service"
	"github.com/coderoom-dev/coderoom/lib/version"
	"github.com/coderoom-dev/coderoom/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "coderoom-ctl:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		socketPath  string
		output      string
		timeout     time.Duration
		showVersion bool
	)
	pflag.StringVar(&socketPath, "socket", "/run/coderoom/control.sock", "control socket path")
	pflag.StringVarP(&output, "output", "o", "", "write dump data to this file instead of stdout")
	pflag.DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Println("coderoom-ctl", version.Info())
		return nil
	}

	args := pflag.Args()
	if len(args) == 0 {
		return fmt.Errorf("missing command; see the package comment for usage")
	}
	command := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	switch command {
	case "ping":
		if _, err := service.Call(ctx, socketPath, request(server.ActionPing, "")); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil

	case "list-rooms":
		var result server.ListRoomsResult
		if err := call(ctx, socketPath, request(server.ActionListRooms, ""), &result); err != nil {
			return err
		}
		if len(result.Rooms) == 0 {
			fmt.Println("no rooms")
			return nil
		}
		for _, room := range result.Rooms {
			terminalState := "-"
			if room.LiveTerminal {
				terminalState = "terminal"
			}
			fmt.Printf("%s\tmembers=%d\t%s\n", room.ID, room.Members, terminalState)
		}
		return nil

	case "room-members":
		roomID, err := roomArg(args)
		if err != nil {
			return err
		}
		var result server.RoomMembersResult
		if err := call(ctx, socketPath, request(server.ActionRoomMembers, roomID), &result); err != nil {
			return err
		}
		if len(result.Members) == 0 {
			fmt.Println("no members")
			return nil
		}
		for _, member := range result.Members {
			fmt.Printf("%s\t%s\n", member.Name, member.Color)
		}
		return nil

	case "dump-history", "dump-scrollback":
		roomID, err := roomArg(args)
		if err != nil {
			return err
		}
		action := server.ActionDumpHistory
		if command == "dump-scrollback" {
			action = server.ActionDumpScrollback
		}
		var result server.DumpResult
		if err := call(ctx, socketPath, request(action, roomID), &result); err != nil {
			return err
		}
		return writeDump(output, result.Compressed)

	case "kill-session":
		roomID, err := roomArg(args)
		if err != nil {
			return err
		}
		var result server.KillSessionResult
		if err := call(ctx, socketPath, request(server.ActionKillSession, roomID), &result); err != nil {
			return err
		}
		if result.Stopped {
			fmt.Printf("stopped session for room %s\n", result.Room)
		} else {
			fmt.Printf("no live session for room %s\n", result.Room)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// request builds the CBOR request map; room is omitted when empty.
func request(action, roomID string) map[string]any {
	body := map[string]any{"action": action}
	if roomID != "" {
		body["room"] = roomID
	}
	return body
}

// call performs a control request and decodes the data field into out.
func call(ctx context.Context, socketPath string, body map[string]any, out any) error {
	data, err := service.Call(ctx, socketPath, body)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func roomArg(args []string) (string, error) {
	if len(args) < 2 || args[1] == "" {
		return "", fmt.Errorf("%s requires a room id argument", args[0])
	}
	return args[1], nil
}

// writeDump sends compressed dump bytes to the output file or stdout.
func writeDump(output string, data []byte) error {
	if output == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %d compressed bytes to %s\n", len(data), output)
	return nil
}
