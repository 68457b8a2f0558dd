// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides small helpers for concurrency-heavy tests:
// channel sends and receives with timeout safety valves, so individual
// tests never hang the whole run waiting on a channel that will never
// deliver.
package testutil
