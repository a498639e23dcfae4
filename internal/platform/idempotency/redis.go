package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "pawpal:idem:"

// abandonScript deletes a key only while it is an unfinished claim of ARGV[1].
var abandonScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then return 0 end
local e = cjson.decode(raw)
if e.fingerprint ~= ARGV[1] or e.done then return 0 end
return redis.call("DEL", KEYS[1])
`)

// RedisStore implements Store on Redis. Expiry is left to key TTLs.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore constructs a Redis-backed store. An empty prefix uses "pawpal:idem:".
func NewRedisStore(client redis.UniversalClient, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: redis client is required")
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

// Claim implements Store with SET NX. A key that expires between SET and GET is claimed again.
func (s *RedisStore) Claim(ctx context.Context, key, fingerprint string, ttl time.Duration) (Claim, error) {
	ttl = ttlOrDefault(ttl)
	rkey := s.prefix + hashKey(key)
	payload, err := json.Marshal(entry{Fingerprint: fingerprint, ExpiresAt: time.Now().Add(ttl)})
	if err != nil {
		return Claim{}, fmt.Errorf("idempotency: encode: %w", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, rkey, payload, ttl).Result()
		if err != nil {
			return Claim{}, fmt.Errorf("idempotency: claim: %w", err)
		}
		if ok {
			return Claim{State: StateClaimed}, nil
		}
		existing, err := s.get(ctx, rkey)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Claim{}, err
		}
		if existing.Fingerprint != fingerprint {
			return Claim{}, ErrFingerprintMismatch
		}
		return existing.claim()
	}
	return Claim{State: StateInFlight}, nil
}

// Finish implements Store.
func (s *RedisStore) Finish(ctx context.Context, key, fingerprint string, resp Response, ttl time.Duration) error {
	ttl = ttlOrDefault(ttl)
	rkey := s.prefix + hashKey(key)
	existing, err := s.get(ctx, rkey)
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if err == nil && existing.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	payload, err := json.Marshal(entry{
		Fingerprint: fingerprint,
		Done:        true,
		Response:    storable(resp),
		ExpiresAt:   time.Now().Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("idempotency: encode: %w", err)
	}
	if err := s.client.Set(ctx, rkey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: finish: %w", err)
	}
	return nil
}

// Abandon implements Store.
func (s *RedisStore) Abandon(ctx context.Context, key, fingerprint string) error {
	err := abandonScript.Run(ctx, s.client, []string{s.prefix + hashKey(key)}, fingerprint).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("idempotency: abandon: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) get(ctx context.Context, rkey string) (entry, error) {
	raw, err := s.client.Get(ctx, rkey).Bytes()
	if errors.Is(err, redis.Nil) {
		return entry{}, err
	}
	if err != nil {
		return entry{}, fmt.Errorf("idempotency: load: %w", err)
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return entry{}, fmt.Errorf("idempotency: decode: %w", err)
	}
	return e, nil
}
