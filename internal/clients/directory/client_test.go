package directory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pawpal/api/internal/platform/config"
	"github.com/pawpal/api/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(config.DirectoryConfig{BaseURL: srv.URL, Timeout: time.Second, AuthToken: "tok"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestGetUserDecodesProfile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/u-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u-1","name":"An","email":"an@example.com","rank":"gold","active":true}`))
	})

	user, err := client.GetUser(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.ID != "u-1" || user.Rank != "gold" || !user.Active {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestGetPetDefaultsOwner(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/u-1/pets/p-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"p-1","name":"Milo","weight":4.5}`))
	})

	pet, err := client.GetPet(context.Background(), "u-1", "p-1")
	if err != nil {
		t.Fatalf("GetPet: %v", err)
	}
	if pet.OwnerID != "u-1" || pet.Weight != 4.5 {
		t.Fatalf("unexpected pet %+v", pet)
	}
}

func TestClientMapsStatusCodes(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	})

	if _, err := client.GetUser(context.Background(), "u-1"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	status.Store(http.StatusBadGateway)
	if _, err := client.GetPet(context.Background(), "u-1", "p-1"); !errors.Is(err, services.ErrDependencyUnavailable) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
}

func TestClientMapsMalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})
	if _, err := client.GetUser(context.Background(), "u-1"); !errors.Is(err, services.ErrDependencyUnavailable) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(config.DirectoryConfig{}); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}
