package reconciler

import (
	"strings"
	"sync"
)

// Sequencer hands out per-project sequence numbers so that only the latest
// reconciliation of a project may publish its result
type Sequencer struct {
	mu     sync.Mutex
	latest map[string]uint64
}

// NewSequencer creates an empty sequencer
func NewSequencer() *Sequencer {
	return &Sequencer{latest: make(map[string]uint64)}
}

// Begin starts a run for projectID and returns its sequence number. Every
// earlier run of the project becomes stale.
func (s *Sequencer) Begin(projectID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sequenceKey(projectID)
	s.latest[key]++
	return s.latest[key]
}

// IsCurrent reports whether seq is still the latest run of projectID
func (s *Sequencer) IsCurrent(projectID string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest[sequenceKey(projectID)] == seq
}

// Latest returns the last sequence number handed out for projectID
func (s *Sequencer) Latest(projectID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest[sequenceKey(projectID)]
}

func sequenceKey(projectID string) string {
	return strings.ToLower(strings.TrimSpace(projectID))
}
