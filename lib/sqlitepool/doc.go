// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a fixed-size pool of SQLite connections
// with standard pragmas applied (WAL journaling, busy timeout, memory
// temp store). The chat history store borrows connections with Take
// and returns them with Put; SQLite serializes writes internally, so a
// small pool is enough for this workload.
package sqlitepool
