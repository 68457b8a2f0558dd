// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import "errors"

// ErrSessionClosed reports a write or resize against a session whose
// shell has exited. The caller should surface the error to the
// originating connection; the room has already received
// terminal:closed.
var ErrSessionClosed = errors.New("terminal: session closed")
