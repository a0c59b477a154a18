package relocate

import (
	"sync"
	"time"
)

// seenSet remembers source paths that were already relocated, along with the
// modification time the source had when it was handled. A path that shows up
// again with a different modification time is a new file that reused the name.
//
// The set is not an LRU: once it grows past limit it is cleared entirely.
type seenSet struct {
	mu      sync.Mutex
	entries map[string]time.Time
	limit   int
}

func newSeenSet(limit int) *seenSet {
	return &seenSet{
		entries: make(map[string]time.Time),
		limit:   limit,
	}
}

// contains reports whether path was handled before and, if the file exists
// again, whether it is still the same file. exists=false means the source is
// gone, which always counts as already handled.
func (s *seenSet) contains(path string, exists bool, modTime time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	recorded, ok := s.entries[path]
	if !ok {
		return false
	}
	if !exists {
		return true
	}
	return modTime.Equal(recorded)
}

// add records path and clears the whole set once it exceeds the limit.
func (s *seenSet) add(path string, modTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[path] = modTime
	if s.limit > 0 && len(s.entries) > s.limit {
		clear(s.entries)
	}
}

func (s *seenSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
