package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps artifacts in a map. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

// Put stores a copy of rec. StoredAt is set when zero.
func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	if err := ValidateName(rec.Name); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now().UTC()
	}
	rec.Data = append([]byte(nil), rec.Data...)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.Name] = rec
	return nil
}

// Get returns a copy of the stored artifact.
func (s *MemoryStore) Get(ctx context.Context, name string) (Record, bool, error) {
	select {
	case <-ctx.Done():
		return Record{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, found := s.records[name]
	if found {
		rec.Data = append([]byte(nil), rec.Data...)
	}
	return rec, found, nil
}

// Len returns the number of artifacts stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Delete removes an artifact and reports whether it existed.
func (s *MemoryStore) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.records[name]
	delete(s.records, name)
	return existed
}
