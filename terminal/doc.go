// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

// Package terminal runs one shared shell per room and multiplexes its
// I/O across the room's members.
//
// Each room gets at most one live session: a shell process attached to
// a PTY whose working directory is the room's workspace. Output is fed
// through a fixed-size scrollback buffer (so late joiners can replay
// recent history) and broadcast to the room as terminal:data events.
// Input from any member is written to the same PTY, so everyone types
// into, and sees, the same shell.
//
// Sessions are created lazily on first use and torn down when the last
// member leaves the room or the shell exits on its own.
package terminal
