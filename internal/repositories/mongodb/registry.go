package mongodb

import (
	"context"
	"errors"
	"fmt"

	pmongo "github.com/pawpal/api/internal/platform/mongodb"
	"github.com/pawpal/api/internal/repositories"
)

// Registry bundles the Mongo repositories behind repositories.Registry.
type Registry struct {
	provider *pmongo.Provider
	uow      *pmongo.UnitOfWork

	orders     *OrderRepository
	products   *ProductRepository
	promotions *PromotionRepository
	usage      *PromotionUsageRepository
	bookings   *BookingRepository
	resources  *ResourceRepository
	solutions  *SolutionRepository
	health     repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the repositories and ensures the unique indexes they rely on.
func NewRegistry(ctx context.Context, provider *pmongo.Provider, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("mongo registry: provider is required")
	}
	reg := &Registry{
		provider:   provider,
		uow:        pmongo.NewUnitOfWork(provider),
		orders:     NewOrderRepository(provider),
		products:   NewProductRepository(provider),
		promotions: NewPromotionRepository(provider),
		usage:      NewPromotionUsageRepository(provider),
		bookings:   NewBookingRepository(provider),
		resources:  NewResourceRepository(provider),
		solutions:  NewSolutionRepository(provider),
	}

	for _, ensure := range []func(context.Context) error{
		reg.promotions.ensureIndexes,
		reg.usage.ensureIndexes,
		reg.bookings.ensureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			return nil, fmt.Errorf("mongo registry: %w", err)
		}
	}

	checks := append([]repositories.DependencyCheck{{Name: "mongo", Critical: true, Check: provider.Ping}}, extraChecks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, fmt.Errorf("mongo registry: %w", err)
	}
	reg.health = health
	return reg, nil
}

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Products returns the product repository.
func (r *Registry) Products() repositories.ProductRepository { return r.products }

// Promotions returns the promotion repository.
func (r *Registry) Promotions() repositories.PromotionRepository { return r.promotions }

// PromotionUsage returns the promotion usage repository.
func (r *Registry) PromotionUsage() repositories.PromotionUsageRepository { return r.usage }

// Bookings returns the booking repository.
func (r *Registry) Bookings() repositories.BookingRepository { return r.bookings }

// Resources returns the resource repository.
func (r *Registry) Resources() repositories.ResourceRepository { return r.resources }

// Solutions returns the solution repository.
func (r *Registry) Solutions() repositories.SolutionRepository { return r.solutions }

// Health returns the dependency health repository.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx runs fn inside a Mongo session transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.uow.RunInTx(ctx, fn)
}

// Close disconnects the client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.provider.Close(ctx)
}
