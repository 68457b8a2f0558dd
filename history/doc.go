// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

// Package history persists room chat messages in SQLite and replays
// the recent tail to joining members.
//
// Every stored message carries a server-assigned id, unique within the
// room, so receivers can de-duplicate deliveries. Messages survive
// server restarts; the replay tail is bounded by configuration.
package history
