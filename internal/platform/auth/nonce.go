package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// NonceStore remembers signature nonces so a captured request cannot be replayed.
type NonceStore interface {
	// UseNonce records nonce under scope for ttl, measured on the store's own clock. It returns
	// false when the nonce is already recorded.
	UseNonce(ctx context.Context, scope, nonce string, ttl time.Duration) (bool, error)
}

var errNonceArgs = errors.New("auth: scope, nonce and a positive ttl are required")

// InMemoryNonceStore keeps nonces in process memory. Replicas do not share it; use RedisNonceStore
// when more than one instance serves webhooks.
type InMemoryNonceStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewInMemoryNonceStore returns an empty store.
func NewInMemoryNonceStore() *InMemoryNonceStore {
	return &InMemoryNonceStore{seen: make(map[string]time.Time), now: time.Now}
}

// UseNonce implements NonceStore.
func (s *InMemoryNonceStore) UseNonce(_ context.Context, scope, nonce string, ttl time.Duration) (bool, error) {
	if scope == "" || nonce == "" || ttl <= 0 {
		return false, errNonceArgs
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, until := range s.seen {
		if !until.After(now) {
			delete(s.seen, key)
		}
	}
	key := scope + "\x00" + nonce
	if _, replay := s.seen[key]; replay {
		return false, nil
	}
	s.seen[key] = now.Add(ttl)
	return true, nil
}
