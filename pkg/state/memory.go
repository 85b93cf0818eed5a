package state

import (
	"sync"

	"github.com/emberchain/ember/pkg/vm/bridge"
)

// MemoryStore is a map-backed Store for tests and ephemeral hosts.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get returns the value for key, or empty bytes when absent.
func (s *MemoryStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.data[string(key)]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, nil
}

// Set writes a value. An empty value deletes the key.
func (s *MemoryStore) Set(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(value) == 0 {
		delete(s.data, string(key))
		return nil
	}
	s.data[string(key)] = append([]byte(nil), value...)
	return nil
}

// ApplyWrites applies a journal's surviving writes.
func (s *MemoryStore) ApplyWrites(writes []bridge.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range writes {
		if len(w.Value) == 0 {
			delete(s.data, string(w.Key))
			continue
		}
		s.data[string(w.Key)] = append([]byte(nil), w.Value...)
	}
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
