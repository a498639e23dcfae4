package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps keys in process memory. It is used when Redis is not configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryStore returns an empty store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock returns an empty store whose expiry decisions use now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: make(map[string]entry), now: now}
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, ttl time.Duration) (Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evict(now)
	id := hashKey(key)
	if existing, ok := s.entries[id]; ok {
		if existing.Fingerprint != fingerprint {
			return Claim{}, ErrFingerprintMismatch
		}
		return existing.claim()
	}
	s.entries[id] = entry{Fingerprint: fingerprint, ExpiresAt: now.Add(ttlOrDefault(ttl))}
	return Claim{State: StateClaimed}, nil
}

// Finish implements Store.
func (s *MemoryStore) Finish(_ context.Context, key, fingerprint string, resp Response, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := hashKey(key)
	if existing, ok := s.entries[id]; ok && existing.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	s.entries[id] = entry{
		Fingerprint: fingerprint,
		Done:        true,
		Response:    storable(resp),
		ExpiresAt:   s.now().Add(ttlOrDefault(ttl)),
	}
	return nil
}

// Abandon implements Store. Finished keys and claims held by another fingerprint are left alone.
func (s *MemoryStore) Abandon(_ context.Context, key, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := hashKey(key)
	if existing, ok := s.entries[id]; ok && existing.Fingerprint == fingerprint && !existing.Done {
		delete(s.entries, id)
	}
	return nil
}

// Len reports the number of live keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict(s.now())
	return len(s.entries)
}

// evict drops expired keys. Callers hold mu.
func (s *MemoryStore) evict(now time.Time) {
	for id, e := range s.entries {
		if !now.Before(e.ExpiresAt) {
			delete(s.entries, id)
		}
	}
}
