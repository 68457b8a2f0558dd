// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import "errors"

// ErrNotFound reports an unknown connection id. Lookups and targeted
// sends fail with it; leave and membership queries treat absence as a
// soft no-op instead.
var ErrNotFound = errors.New("hub: connection not found")
