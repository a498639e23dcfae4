//go:build integration

package mongodb

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	domain "github.com/pawpal/api/internal/domain"
	pconfig "github.com/pawpal/api/internal/platform/config"
	pmongo "github.com/pawpal/api/internal/platform/mongodb"
	"github.com/pawpal/api/internal/repositories"
)

// newReplicaSetRegistry needs a replica set; standalone servers reject transactions.
func newReplicaSetRegistry(t *testing.T) *Registry {
	t.Helper()
	uri := os.Getenv("MONGO_REPLSET_URI")
	if uri == "" {
		t.Skip("MONGO_REPLSET_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	provider, err := pmongo.Connect(ctx, pconfig.MongoConfig{URI: uri, Database: "pawpal_it_" + time.Now().Format("150405")})
	if err != nil {
		t.Skipf("mongo unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = provider.Database().Drop(context.Background())
		_ = provider.Close(context.Background())
	})
	reg, err := NewRegistry(ctx, provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg
}

func TestConcurrentBookingsForSamePetConflict(t *testing.T) {
	reg := newReplicaSetRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	start := time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC)
	booking := func(id string) domain.Booking {
		return domain.Booking{
			ID:         id,
			User:       domain.BookingUser{ID: "u1"},
			SolutionID: "spa",
			DateStarts: start,
			DateEnd:    start.Add(time.Hour),
			Pets:       []domain.BookingPet{{PetID: "p1", ResourceID: "groomer"}},
			Status:     domain.BookingStatusPending,
			CreatedAt:  start,
			UpdatedAt:  start,
		}
	}

	firstRead := make(chan struct{})
	secondDone := make(chan error, 1)
	go func() {
		<-firstRead
		secondDone <- reg.RunInTx(ctx, func(txCtx context.Context) error {
			existing, err := reg.Bookings().ListActiveForPet(txCtx, "p1", "spa")
			if err != nil {
				return err
			}
			if len(existing) != 0 {
				return errors.New("expected empty schedule")
			}
			return reg.Bookings().Insert(txCtx, booking("b2"))
		})
	}()

	err := reg.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := reg.Bookings().ListActiveForPet(txCtx, "p1", "spa")
		if err != nil {
			return err
		}
		if len(existing) != 0 {
			return errors.New("expected empty schedule")
		}
		close(firstRead)
		if err := <-secondDone; err != nil {
			t.Errorf("second transaction: %v", err)
		}
		return reg.Bookings().Insert(txCtx, booking("b1"))
	})

	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected write conflict for the stale transaction, got %v", err)
	}
	active, err := reg.Bookings().ListActiveForPet(ctx, "p1", "spa")
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != "b2" {
		t.Fatalf("expected only b2 to commit, got %+v", active)
	}
}
