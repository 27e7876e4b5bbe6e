package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps cache payloads in process memory. It backs local runs and
// deterministic tests; nothing survives the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Payload
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Payload)}
}

func (s *MemoryStore) Restore(_ context.Context, key string) (*Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, ok := s.entries[key]
	if !ok {
		return nil, nil
	}

	return payload, nil
}

func (s *MemoryStore) Save(_ context.Context, payload *Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[payload.Key] = payload

	return nil
}

func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}
