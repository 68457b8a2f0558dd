// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the events exchanged over a room connection.
//
// Every message on the WebSocket channel is a JSON envelope with a
// type string and a type-specific payload. Client-to-server events are
// join:room, file:change, send_message, terminal:write, and
// terminal:resize; everything else flows server-to-client. Terminal
// payloads carry raw bytes (base64 in JSON) because shell output is
// not guaranteed to be valid UTF-8.
package wire
