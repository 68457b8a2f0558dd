// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

// Package server is the network front end: it upgrades websocket
// connections, pumps events between clients and the hub, serves the
// HTTP read API for room files, and exposes the operator control
// socket.
//
// Each websocket connection gets a read pump (dispatching client
// events to the hub, file engine, terminal multiplexer, and message
// store) and a write pump that owns every socket write. Outbound
// events queue on a bounded per-connection channel; a saturated queue
// drops events rather than stalling room fan-out.
package server
