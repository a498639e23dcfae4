package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/pawpal/api/internal/platform/firestore"
	"github.com/pawpal/api/internal/repositories"
)

// Registry bundles the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider *pfirestore.Provider
	uow      *pfirestore.UnitOfWork

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

// NewRegistry builds every Firestore repository on a shared provider. extraChecks are probed
// alongside Firestore by the health repository.
func NewRegistry(provider *pfirestore.Provider, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	reg := &Registry{provider: provider, uow: pfirestore.NewUnitOfWork(provider)}

	var err error
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, err
	}
	if reg.promotions, err = NewPromotionRepository(provider); err != nil {
		return nil, err
	}
	if reg.usage, err = NewPromotionUsageRepository(provider); err != nil {
		return nil, err
	}
	if reg.bookings, err = NewBookingRepository(provider); err != nil {
		return nil, err
	}
	if reg.resources, err = NewResourceRepository(provider); err != nil {
		return nil, err
	}
	if reg.solutions, err = NewSolutionRepository(provider); err != nil {
		return nil, err
	}

	checks := append([]repositories.DependencyCheck{{Name: "firestore", Critical: true, Check: provider.Ping}}, extraChecks...)
	if reg.health, err = repositories.NewDependencyHealthRepository(checks); err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
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

// RunInTx runs fn inside a Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.uow.RunInTx(ctx, fn)
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.provider.Close(ctx)
}
