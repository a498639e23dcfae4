//go:build integration

package idempotency

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	store, err := NewRedisStore(client, "pawpal-test:"+t.Name()+":")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	return store
}

func TestRedisStoreLifecycle(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	claim, err := store.Claim(ctx, "k", "fp", time.Minute)
	if err != nil || claim.State != StateClaimed {
		t.Fatalf("first claim: %+v %v", claim, err)
	}
	claim, err = store.Claim(ctx, "k", "fp", time.Minute)
	if err != nil || claim.State != StateInFlight {
		t.Fatalf("second claim: %+v %v", claim, err)
	}
	if _, err := store.Claim(ctx, "k", "other", time.Minute); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}

	if err := store.Abandon(ctx, "k", "fp"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if claim, err = store.Claim(ctx, "k", "fp", time.Minute); err != nil || claim.State != StateClaimed {
		t.Fatalf("claim after abandon: %+v %v", claim, err)
	}

	if err := store.Finish(ctx, "k", "fp", Response{Status: http.StatusCreated, Body: []byte(`{"id":"ord-1"}`)}, time.Minute); err != nil {
		t.Fatalf("finish: %v", err)
	}
	claim, err = store.Claim(ctx, "k", "fp", time.Minute)
	if err != nil || claim.State != StateDone || string(claim.Response.Body) != `{"id":"ord-1"}` {
		t.Fatalf("replay claim: %+v %v", claim, err)
	}
	if err := store.Abandon(ctx, "k", "fp"); err != nil {
		t.Fatalf("abandon finished: %v", err)
	}
	if claim, _ = store.Claim(ctx, "k", "fp", time.Minute); claim.State != StateDone {
		t.Fatalf("finished keys must survive abandon, got %v", claim.State)
	}
}
