package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSecretClient struct {
	mu     sync.Mutex
	values map[string]string
	errors map[string]error
	calls  map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values: map[string]string{},
		errors: map[string]error{},
		calls:  map[string]int{},
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.GetName()]++
	if err, ok := f.errors[req.GetName()]; ok {
		return nil, err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)}}, nil
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	resource := "projects/pawpal/secrets/momo-hmac/versions/latest"
	client.values[resource] = "remote-secret"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("pawpal"), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.ResolveSecret(ctx, "secret://momo-hmac")
		if err != nil || got != "remote-secret" {
			t.Fatalf("resolve %d: %q %v", i, got, err)
		}
	}
	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("expected one remote fetch, got %d", calls)
	}
}

func TestResolveCacheExpires(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	resource := "projects/pawpal/secrets/redis/versions/3"
	client.values[resource] = "v3"

	fetcher, _ := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("pawpal"), WithCacheTTL(time.Minute))
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher.now = func() time.Time { return now }

	if _, err := fetcher.Resolve(ctx, "sm://redis?version=3"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := fetcher.Resolve(ctx, "secret://redis?version=3"); err != nil {
		t.Fatalf("Resolve after expiry: %v", err)
	}
	if calls := client.callCount(resource); calls != 2 {
		t.Fatalf("expected cache to expire, got %d calls", calls)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("MOMO_HMAC=local-secret\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	client := newFakeSecretClient()
	client.errors["projects/pawpal/secrets/momo-hmac/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	fetcher, _ := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("pawpal"), WithFallbackFile(path))
	got, err := fetcher.Resolve(ctx, "secret://momo-hmac")
	if err != nil || got != "local-secret" {
		t.Fatalf("expected fallback value, got %q %v", got, err)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("MOMO_HMAC=local-secret\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	fetcher, _ := NewFetcher(ctx, WithSecretManagerClient(newFakeSecretClient()), WithProject("pawpal"), WithFallbackFile(path))
	if _, err := fetcher.Resolve(ctx, "secret://momo-hmac"); err == nil {
		t.Fatalf("expected not found to surface")
	}
}

func TestResolveWithoutProjectUsesFallbackOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("DIRECTORY_TOKEN=abc\nDIRECTORY_TOKEN_V2=pinned\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	fetcher, err := NewFetcher(ctx, WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	got, err := fetcher.Resolve(ctx, "secret://directory-token")
	if err != nil || got != "abc" {
		t.Fatalf("expected fallback value, got %q %v", got, err)
	}
	got, err = fetcher.Resolve(ctx, "secret://directory-token?version=2")
	if err != nil || got != "pinned" {
		t.Fatalf("expected pinned fallback value, got %q %v", got, err)
	}
	if _, err := fetcher.Resolve(ctx, "secret://unknown"); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected ErrSecretNotFound, got %v", err)
	}
	if _, err := fetcher.Resolve(ctx, "https://example.com"); err == nil {
		t.Fatalf("expected invalid reference error")
	}
}
