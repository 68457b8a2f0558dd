// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package filesync

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/coderoom-dev/coderoom/wire"
)

// Store resolves room-relative file paths under the shared workspace
// root and performs the actual disk I/O. Every room gets its own
// subdirectory; path resolution rejects anything that would escape it.
type Store struct {
	root string
}

// NewStore creates a store rooted at the given directory. The
// directory must exist.
func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

// Root returns the workspace root directory.
func (s *Store) Root() string { return s.root }

// RoomDir returns the room's workspace directory, creating it if
// absent. Fails with ErrInvalidPath for room ids that contain path
// separators or dot segments.
func (s *Store) RoomDir(roomID string) (string, error) {
	if err := validateRoomID(roomID); err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, roomID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating room directory %s: %w", dir, err)
	}
	return dir, nil
}

// Canonical validates a client-supplied file path and returns its
// canonical room-relative form (rooted, cleaned, e.g. "/src/main.go").
// Any ".." traversal segment is rejected with ErrInvalidPath before
// cleaning can collapse it.
func (s *Store) Canonical(roomID, path string) (string, error) {
	if err := validateRoomID(roomID); err != nil {
		return "", err
	}
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: traversal segment in %q", ErrInvalidPath, path)
		}
	}
	cleaned := filepath.Clean("/" + strings.TrimPrefix(filepath.ToSlash(path), "/"))
	if cleaned == "/" {
		return "", fmt.Errorf("%w: empty file path", ErrInvalidPath)
	}
	return cleaned, nil
}

// resolve maps a room-relative file path to an absolute path inside
// the room's directory.
func (s *Store) resolve(roomID, path string) (string, error) {
	cleaned, err := s.Canonical(roomID, path)
	if err != nil {
		return "", err
	}
	roomDir := filepath.Join(s.root, roomID)
	absolute := filepath.Join(roomDir, cleaned)
	if !strings.HasPrefix(absolute, roomDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the room directory", ErrInvalidPath, path)
	}
	return absolute, nil
}

// WriteFile persists content at the room-relative path. The write is
// atomic: content goes to a temporary file in the same directory and
// is renamed into place, so a crash mid-write never leaves a torn
// file. Parent directories are created as needed.
func (s *Store) WriteFile(roomID, path string, content []byte) error {
	absolute, err := s.resolve(roomID, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absolute), 0o755); err != nil {
		return fmt.Errorf("%w: creating parent of %s: %w", ErrPersist, path, err)
	}

	temp, err := os.CreateTemp(filepath.Dir(absolute), ".coderoom-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	tempName := temp.Name()
	if _, err := temp.Write(content); err != nil {
		temp.Close()
		os.Remove(tempName)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := os.Rename(tempName, absolute); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// ReadFile reads the persisted content at the room-relative path.
func (s *Store) ReadFile(roomID, path string) ([]byte, error) {
	absolute, err := s.resolve(roomID, path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(absolute)
}

// ScanTree walks the room's directory and returns its file hierarchy.
// An absent room directory yields an empty tree.
func (s *Store) ScanTree(roomID string) (wire.Tree, error) {
	if err := validateRoomID(roomID); err != nil {
		return nil, err
	}
	roomDir := filepath.Join(s.root, roomID)

	tree := wire.Tree{}
	err := filepath.WalkDir(roomDir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == roomDir && os.IsNotExist(walkErr) {
				return filepath.SkipAll
			}
			return walkErr
		}
		if path == roomDir {
			return nil
		}
		relative, err := filepath.Rel(roomDir, path)
		if err != nil {
			return err
		}
		segments := strings.Split(filepath.ToSlash(relative), "/")
		if entry.IsDir() {
			// Materialize empty directories as empty subtrees.
			subtree := tree
			for _, segment := range segments {
				child := subtree[segment]
				if child == nil {
					child = wire.Tree{}
					subtree[segment] = child
				}
				subtree = child
			}
			return nil
		}
		tree.Insert(segments)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning room %s tree: %w", roomID, err)
	}
	return tree, nil
}

// RoomForPath maps an absolute filesystem path under the workspace
// root to the room id owning it. The second return is false for paths
// outside the root or at the root itself.
func (s *Store) RoomForPath(absolute string) (string, bool) {
	relative, err := filepath.Rel(s.root, filepath.Clean(absolute))
	if err != nil || relative == "." || strings.HasPrefix(relative, "..") {
		return "", false
	}
	segments := strings.SplitN(filepath.ToSlash(relative), "/", 2)
	if segments[0] == "" {
		return "", false
	}
	return segments[0], true
}

// validateRoomID rejects room ids that could address outside their own
// subdirectory. The rule is the shared wire one; store callers see it
// as an ErrInvalidPath like any other bad path.
func validateRoomID(roomID string) error {
	if err := wire.ValidateRoomID(roomID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	return nil
}
