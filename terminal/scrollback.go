// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import "sync"

// DefaultScrollbackBytes is the default scrollback capacity. 1 MB of
// raw output covers hours of typical shell activity.
const DefaultScrollbackBytes = 1024 * 1024

// Scrollback is a bounded buffer of raw shell output addressed by a
// monotonically increasing byte offset. Once the capacity is reached,
// the oldest bytes are discarded. Escape sequences are kept verbatim
// so replaying the buffer reproduces the terminal state.
//
// Offsets let a reconnecting member ask for "everything since offset
// N"; data older than the capacity is gone and the member receives
// whatever is still retained.
//
// All methods are safe for concurrent use.
type Scrollback struct {
	mu sync.Mutex

	capacity int

	// data holds the retained span; start is the offset of data[0].
	// The next write lands at offset start+len(data).
	data  []byte
	start uint64
}

// NewScrollback creates a scrollback buffer holding up to capacity
// bytes of recent output.
func NewScrollback(capacity int) *Scrollback {
	if capacity <= 0 {
		capacity = DefaultScrollbackBytes
	}
	return &Scrollback{capacity: capacity}
}

// Append records shell output, discarding the oldest bytes once the
// buffer is full.
func (s *Scrollback) Append(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = append(s.data, data...)
	if overflow := len(s.data) - s.capacity; overflow > 0 {
		s.start += uint64(overflow)
		s.data = s.data[overflow:]
	}
	// Dropping the front reslices without freeing; compact once the
	// backing array has grown well past the capacity.
	if cap(s.data) > 2*s.capacity {
		kept := make([]byte, len(s.data))
		copy(kept, s.data)
		s.data = kept
	}
}

// Since returns every retained byte written at or after offset. An
// offset older than the retained span yields the whole buffer; an
// offset at or past the current end yields nil.
func (s *Scrollback) Since(offset uint64) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := s.start + uint64(len(s.data))
	if offset >= end {
		return nil
	}
	if offset < s.start {
		offset = s.start
	}

	out := make([]byte, end-offset)
	copy(out, s.data[offset-s.start:])
	return out
}

// Offset returns the total bytes appended so far. A member stores this
// and passes it to Since after reconnecting.
func (s *Scrollback) Offset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start + uint64(len(s.data))
}
