// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package filesync

import "errors"

// ErrInvalidPath reports a malformed room id or a file path that would
// escape the room's workspace directory. The write is rejected and
// nothing is persisted.
var ErrInvalidPath = errors.New("filesync: invalid path")

// ErrPersist reports a backing-store write failure. The in-memory
// entry is rolled back to its previous content, so readers never
// observe an unpersisted value as saved. Wraps the underlying cause.
var ErrPersist = errors.New("filesync: persist failed")
