package repositories

import (
	"context"
	"time"

	domain "github.com/pawpal/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Products() ProductRepository
	Promotions() PromotionRepository
	PromotionUsage() PromotionUsageRepository
	Bookings() BookingRepository
	Resources() ResourceRepository
	Solutions() SolutionRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary. Repositories invoked with
// the context passed to fn participate in the transaction. Backends that require reads before
// writes (Firestore) expect callers to issue every read before the first write.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// ProductRepository reads catalogue products and applies stock deltas.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// AdjustStock adds delta (negative to reserve, positive to restore) to the product stock.
	AdjustStock(ctx context.Context, productID string, delta int64) error
}

// PromotionRepository maintains promotion definitions and usage counters.
type PromotionRepository interface {
	Insert(ctx context.Context, promotion domain.Promotion) error
	Update(ctx context.Context, promotion domain.Promotion) error
	Delete(ctx context.Context, promotionID string) error
	FindByID(ctx context.Context, promotionID string) (domain.Promotion, error)
	FindByCode(ctx context.Context, code string) (domain.Promotion, error)
	List(ctx context.Context, filter PromotionListFilter) (domain.CursorPage[domain.Promotion], error)
	AdjustUsageCount(ctx context.Context, promotionID string, delta int64) error
}

// PromotionUsageRepository stores one redemption per (promotion, user).
type PromotionUsageRepository interface {
	Find(ctx context.Context, promotionID, userID string) (domain.PromotionUsage, error)
	// Insert fails with a conflict error when a usage already exists for the pair.
	Insert(ctx context.Context, usage domain.PromotionUsage) error
	Delete(ctx context.Context, promotionID, userID string) error
}

// BookingRepository persists bookings and answers overlap queries.
type BookingRepository interface {
	Insert(ctx context.Context, booking domain.Booking) error
	Update(ctx context.Context, booking domain.Booking) error
	FindByID(ctx context.Context, bookingID string) (domain.Booking, error)
	List(ctx context.Context, filter BookingListFilter) (domain.CursorPage[domain.Booking], error)
	// ListActiveForPet returns pending or confirmed bookings for the pet within the solution.
	ListActiveForPet(ctx context.Context, petID, solutionID string) ([]domain.Booking, error)
}

// ResourceRepository reads bookable resources.
type ResourceRepository interface {
	FindByID(ctx context.Context, resourceID string) (domain.Resource, error)
}

// SolutionRepository reads bookable solutions.
type SolutionRepository interface {
	FindByID(ctx context.Context, solutionID string) (domain.Solution, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	UserID       string
	Status       []string
	CreatedAfter *time.Time
	Pagination   domain.Pagination
}

type PromotionListFilter struct {
	Pagination domain.Pagination
}

type BookingListFilter struct {
	UserID     string
	SolutionID string
	Status     []string
	Pagination domain.Pagination
}
