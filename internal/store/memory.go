package store

import (
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for tests and ephemeral runs.
// Contents are lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string][]byte
	closed bool
	stats  MemoryStats
}

// MemoryStats tracks access counters for the in-memory store.
type MemoryStats struct {
	Hits      int64
	Misses    int64
	Writes    int64
	LastWrite time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		items: make(map[string][]byte),
	}
}

// Get returns the stored value for key.
func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, ErrClosed
	}

	value, ok := s.items[key]
	if !ok {
		s.stats.Misses++
		return nil, false, nil
	}
	s.stats.Hits++

	// Copy so callers cannot mutate stored bytes.
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Set writes the value for key.
func (s *MemoryStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	s.items[key] = stored

	s.stats.Writes++
	s.stats.LastWrite = time.Now()
	return nil
}

// Delete removes the key.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	delete(s.items, key)
	return nil
}

// Close marks the store closed; subsequent operations fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.items = nil
	return nil
}

// Stats returns a snapshot of access counters.
func (s *MemoryStore) Stats() MemoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
