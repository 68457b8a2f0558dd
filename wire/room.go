// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRoom reports a room id that is not a single clean path
// segment.
var ErrInvalidRoom = errors.New("invalid room id")

// ValidateRoomID checks that a room id is usable everywhere a room
// surfaces: as a map key, as a workspace subdirectory, and as a shell
// working directory. Ids must be a single path segment, so nothing a
// client sends can address outside the room's own directory.
func ValidateRoomID(roomID string) error {
	if roomID == "" || roomID == "." || roomID == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidRoom, roomID)
	}
	if strings.ContainsAny(roomID, "/\\") {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidRoom, roomID)
	}
	return nil
}
