package domain

import (
	"time"
)

// GuestUserID marks orders placed without an authenticated account.
const GuestUserID = "guest"

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusDelivering OrderStatus = "delivering"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusFailed     OrderStatus = "failed"
)

// PaymentMethod identifies how the order is settled.
type PaymentMethod string

const (
	PaymentMethodCOD  PaymentMethod = "cod"
	PaymentMethodMoMo PaymentMethod = "momo"
)

// PaymentStatus tracks settlement of an order.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
)

// Order is the aggregate root for product purchases. Monetary fields use the smallest currency unit.
type Order struct {
	ID             string
	UserID         string
	Items          []OrderItem
	ShippingFee    int64
	Subtotal       int64
	TotalAmount    int64
	DiscountAmount int64
	FinalAmount    int64
	Payment        OrderPayment
	Address        ShippingAddress
	PromotionCode  *string
	PromotionID    *string
	Status         OrderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CancelledAt    *time.Time
	DeliveredAt    *time.Time
}

// OrderItem captures the product and the price charged at purchase time.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	Price     int64
}

// LineTotal returns price multiplied by quantity.
func (i OrderItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}

// OrderPayment describes how and whether the order has been paid.
type OrderPayment struct {
	Method PaymentMethod
	Status PaymentStatus
	PaidAt *time.Time
}

// ShippingAddress is an address snapshot stored on the order.
type ShippingAddress struct {
	FullName string
	Phone    string
	Email    string
	Line     string
	Ward     string
	District string
	City     string
}

// DiscountType identifies how a promotion computes its discount.
type DiscountType string

const (
	DiscountTypeFixed   DiscountType = "fixed"
	DiscountTypePercent DiscountType = "percent"
)

// PromotionStatus is derived from the validity window and usage counters.
type PromotionStatus string

const (
	PromotionStatusUpcoming PromotionStatus = "upcoming"
	PromotionStatusActive   PromotionStatus = "active"
	PromotionStatusExpired  PromotionStatus = "expired"
)

// RankAll makes a promotion available to every membership rank.
const RankAll = "All"

// Promotion is a discount code administered by staff.
type Promotion struct {
	ID                string
	Code              string
	Description       string
	DiscountType      DiscountType
	DiscountValue     float64
	MinOrderAmount    int64
	MaxDiscountAmount int64
	StartDate         time.Time
	EndDate           time.Time
	UsageLimit        int64
	UsageCount        int64
	Rank              string
	Status            PromotionStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PromotionUsage records a single redemption of a promotion by a user.
type PromotionUsage struct {
	ID          string
	PromotionID string
	UserID      string
	OrderID     string
	Used        bool
	CreatedAt   time.Time
}

// Product is the catalogue view needed to price and reserve stock.
type Product struct {
	ID            string
	Name          string
	Price         int64
	DiscountPrice int64
	Stock         int64
}

// BookingStatus enumerates the lifecycle states of a booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking is the aggregate root for service reservations.
type Booking struct {
	ID           string
	User         BookingUser
	SolutionID   string
	SolutionName string
	DateStarts   time.Time
	DateEnd      time.Time
	Pets         []BookingPet
	TotalAmount  int64
	HireShipper  bool
	Status       BookingStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PetIDs lists the pets referenced by the booking.
func (b Booking) PetIDs() []string {
	ids := make([]string, 0, len(b.Pets))
	for _, pet := range b.Pets {
		ids = append(ids, pet.PetID)
	}
	return ids
}

// BookingUser is the customer snapshot taken when the booking is written.
type BookingUser struct {
	ID      string
	Name    string
	Email   string
	Phone   string
	Address string
}

// BookingPet assigns a pet to a resource for the booking window.
type BookingPet struct {
	PetID        string
	PetName      string
	ResourceID   string
	ResourceName string
	SubTotal     int64
}

// ResourceTier distinguishes standard and premium resources.
type ResourceTier string

const (
	ResourceTierBasic   ResourceTier = "Basic"
	ResourceTierPremium ResourceTier = "Premium"
)

// Resource is a bookable slot provider (room, groomer, trainer) attached to a solution.
type Resource struct {
	ID            string
	SolutionID    string
	Name          string
	Capacity      int
	Location      string
	AvailableDays []time.Weekday
	StartTime     string
	EndTime       string
	Tier          ResourceTier
	Upcharge      int64
}

// PricingType selects the per-pet pricing model of a solution.
type PricingType string

const (
	PricingPerHour    PricingType = "per_hour"
	PricingPerDay     PricingType = "per_day"
	PricingPerSession PricingType = "per_session"
	PricingPerKg      PricingType = "per_kg"
)

// Solution is a pet-care service offered for booking.
type Solution struct {
	ID          string
	Name        string
	Type        string
	PricingType PricingType
	Price       int64
	Duration    int
}

// User is the directory view of a customer.
type User struct {
	ID      string
	Name    string
	Email   string
	Phone   string
	Address string
	Rank    string
	Active  bool
}

// Pet is the directory view of a customer's pet.
type Pet struct {
	ID      string
	OwnerID string
	Name    string
	Weight  float64
}

// Caller roles forwarded by the gateway.
const (
	RoleUser  = "user"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// IsPrivilegedRole reports whether the role may manage any customer's orders and bookings.
func IsPrivilegedRole(role string) bool {
	return role == RoleAdmin || role == RoleStaff
}
