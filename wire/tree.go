// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Tree is a room's file hierarchy as delivered to clients: directory
// entries map to their subtree, file entries map to nil. This mirrors
// the {name: null | subtree} shape the editor's file-tree component
// consumes.
type Tree map[string]Tree

// Insert adds a file at the given path segments, creating intermediate
// directories. A file has no children; inserting under an existing
// file path converts it to a directory.
func (t Tree) Insert(segments []string) {
	if len(segments) == 0 {
		return
	}
	name := segments[0]
	if len(segments) == 1 {
		if _, exists := t[name]; !exists {
			t[name] = nil
		}
		return
	}
	child := t[name]
	if child == nil {
		child = Tree{}
		t[name] = child
	}
	child.Insert(segments[1:])
}
