package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process, for tests and single instance runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Acquire(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Entry, error) {
	now = now.UTC()
	id := hashKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[id]; ok && !existing.expired(now) {
		outcome, err := existing.against(fingerprint)
		return outcome, existing, err
	}
	entry := claim(fingerprint, now, ttl)
	s.entries[id] = entry
	return Acquired, entry, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, entry Entry, now time.Time, ttl time.Duration) error {
	id := hashKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.entries[id]; ok {
		if current.Fingerprint != entry.Fingerprint {
			return ErrKeyReused
		}
		entry.CreatedAt = current.CreatedAt
	}
	s.entries[id] = finished(entry, now.UTC(), ttl)
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key, fingerprint string) error {
	id := hashKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.entries[id]; ok && current.Fingerprint == fingerprint {
		delete(s.entries, id)
	}
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if removed == limit {
			break
		}
		if entry.expired(now.UTC()) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}
