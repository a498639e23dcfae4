package services

import (
	"context"
	"time"

	domain "github.com/pawpal/api/internal/domain"
	"github.com/pawpal/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination      = domain.Pagination
	Order           = domain.Order
	OrderItem       = domain.OrderItem
	OrderPayment    = domain.OrderPayment
	OrderStatus     = domain.OrderStatus
	ShippingAddress = domain.ShippingAddress
	Promotion       = domain.Promotion
	PromotionUsage  = domain.PromotionUsage
	Product         = domain.Product
	Booking         = domain.Booking
	BookingPet      = domain.BookingPet
	BookingStatus   = domain.BookingStatus
	Resource        = domain.Resource
	Solution        = domain.Solution
	User            = domain.User
	Pet             = domain.Pet
)

// OrderService owns order creation, status transitions and payment settlement.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	MarkPaid(ctx context.Context, orderID string) (Order, error)
}

// BookingService owns booking creation and updates.
type BookingService interface {
	CreateBooking(ctx context.Context, cmd CreateBookingCommand) (Booking, error)
	UpdateBooking(ctx context.Context, cmd UpdateBookingCommand) (Booking, error)
	GetBooking(ctx context.Context, bookingID string) (Booking, error)
	ListBookings(ctx context.Context, filter BookingListFilter) (domain.CursorPage[Booking], error)
}

// PromotionService administers promotions and previews discounts for callers.
type PromotionService interface {
	ListPromotions(ctx context.Context, filter PromotionListFilter) (domain.CursorPage[Promotion], error)
	GetPromotion(ctx context.Context, promotionID string) (Promotion, error)
	CreatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error)
	UpdatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error)
	DeletePromotion(ctx context.Context, promotionID string) error
	EvaluatePromotions(ctx context.Context, cmd EvaluatePromotionsCommand) (PromotionSelection, error)
}

// Directory resolves users and pets owned by the identity service.
type Directory interface {
	GetUser(ctx context.Context, userID string) (User, error)
	GetPet(ctx context.Context, userID, petID string) (Pet, error)
}

// Notifier sends templated messages through the notification service.
type Notifier interface {
	SendTemplate(ctx context.Context, msg NotificationMessage) error
}

// NotificationMessage is the payload handed to the notification service.
type NotificationMessage struct {
	ID        string
	Template  string
	Recipient string
	Subject   string
	Data      map[string]any
}

// Logger receives structured service events.
type Logger func(ctx context.Context, event string, fields map[string]any)

type OrderListFilter = repositories.OrderListFilter

type BookingListFilter = repositories.BookingListFilter

type PromotionListFilter = repositories.PromotionListFilter

// OrderItemInput is a requested product line.
type OrderItemInput struct {
	ProductID string
	Quantity  int
}

// CreateOrderCommand carries the checkout request of a caller.
type CreateOrderCommand struct {
	UserID        string
	Rank          string
	Items         []OrderItemInput
	Address       *ShippingAddress
	PaymentMethod domain.PaymentMethod
	PromotionCode string
	ShippingFee   int64
}

// UpdateOrderStatusCommand requests a status transition.
type UpdateOrderStatusCommand struct {
	OrderID   string
	Status    OrderStatus
	ActorID   string
	ActorRole string
}

// BookingPetInput assigns a pet to a resource.
type BookingPetInput struct {
	PetID      string
	ResourceID string
}

// CreateBookingCommand carries a booking request.
type CreateBookingCommand struct {
	SolutionID  string
	UserID      string
	DateStarts  time.Time
	Pets        []BookingPetInput
	HireShipper bool
}

// UpdateBookingCommand patches an existing booking. Nil fields are left unchanged.
type UpdateBookingCommand struct {
	BookingID   string
	ActorID     string
	ActorRole   string
	DateStarts  *time.Time
	Pets        []BookingPetInput
	HireShipper *bool
	Status      *BookingStatus
}

// UpsertPromotionCommand creates or replaces a promotion definition.
type UpsertPromotionCommand struct {
	PromotionID       string
	Code              string
	Description       string
	DiscountType      domain.DiscountType
	DiscountValue     float64
	MinOrderAmount    int64
	MaxDiscountAmount int64
	StartDate         time.Time
	EndDate           time.Time
	UsageLimit        int64
	Rank              string
}

// EvaluatePromotionsCommand previews the discounts a caller could apply at checkout.
type EvaluatePromotionsCommand struct {
	UserID      string
	Rank        string
	Subtotal    int64
	ShippingFee int64
}
