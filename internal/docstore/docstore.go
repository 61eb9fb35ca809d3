// Package docstore holds the local copy of the shared answers document.
//
// MemoryStore keeps it in memory; BoltStore persists it in a bbolt file so
// answers survive restarts. Both satisfy the session package's document and
// lock interfaces.
package docstore

import (
	"sync"

	"github.com/roach88/peersync/internal/wire"
)

// MemoryStore is an in-memory document with a lock flag.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	doc    wire.Document
	locked bool
}

// NewMemoryStore creates a store seeded with a copy of initial.
func NewMemoryStore(initial wire.Document) *MemoryStore {
	return &MemoryStore{doc: initial.Clone()}
}

// Snapshot returns a copy of the document.
func (s *MemoryStore) Snapshot() (wire.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone(), nil
}

// ApplyRemote merges doc, or replaces the whole document when fullReplace is
// set.
func (s *MemoryStore) ApplyRemote(doc wire.Document, fullReplace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fullReplace {
		s.doc = doc.Clone()
		return nil
	}
	s.doc.Merge(doc)
	return nil
}

// Set writes one local answer.
func (s *MemoryStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc[key] = value
}

// SetLocked records the host's lock directive.
func (s *MemoryStore) SetLocked(locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = locked
	return nil
}

// Locked reports the last lock directive.
func (s *MemoryStore) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locked
}
