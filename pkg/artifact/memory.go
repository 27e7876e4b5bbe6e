package artifact

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps artifact records in process memory, for tests and local
// runs that do not need durable output.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]*Record // runID + "\x00" + jobID -> records
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]*Record)}
}

func (s *MemoryStore) Put(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(record.RunID, record.JobID)

	for _, existing := range s.records[key] {
		if existing.Destination == record.Destination {
			return fmt.Errorf("%w: %s/%s/%s",
				ErrDestinationExists, record.RunID, record.JobID, record.Destination)
		}
	}

	s.records[key] = append(s.records[key], record)

	return nil
}

func (s *MemoryStore) List(_ context.Context, runID, jobID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*Record(nil), s.records[recordKey(runID, jobID)]...), nil
}

func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}

func recordKey(runID, jobID string) string {
	return runID + "\x00" + jobID
}
