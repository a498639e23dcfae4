package handlers

import (
	"context"
	"errors"
	"net/http"

	domain "github.com/pawpal/api/internal/domain"
	"github.com/pawpal/api/internal/platform/auth"
	"github.com/pawpal/api/internal/services"
)

type stubOrderService struct {
	createFn   func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn      func(context.Context, string) (services.Order, error)
	listFn     func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	updateFn   func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
	markPaidFn func(context.Context, string) (services.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) MarkPaid(ctx context.Context, orderID string) (services.Order, error) {
	if s.markPaidFn != nil {
		return s.markPaidFn(ctx, orderID)
	}
	return services.Order{}, errors.New("not implemented")
}

type stubBookingService struct {
	createFn func(context.Context, services.CreateBookingCommand) (services.Booking, error)
	updateFn func(context.Context, services.UpdateBookingCommand) (services.Booking, error)
	getFn    func(context.Context, string) (services.Booking, error)
	listFn   func(context.Context, services.BookingListFilter) (domain.CursorPage[services.Booking], error)
}

func (s *stubBookingService) CreateBooking(ctx context.Context, cmd services.CreateBookingCommand) (services.Booking, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Booking{}, errors.New("not implemented")
}

func (s *stubBookingService) UpdateBooking(ctx context.Context, cmd services.UpdateBookingCommand) (services.Booking, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Booking{}, errors.New("not implemented")
}

func (s *stubBookingService) GetBooking(ctx context.Context, bookingID string) (services.Booking, error) {
	if s.getFn != nil {
		return s.getFn(ctx, bookingID)
	}
	return services.Booking{}, errors.New("not implemented")
}

func (s *stubBookingService) ListBookings(ctx context.Context, filter services.BookingListFilter) (domain.CursorPage[services.Booking], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Booking]{}, nil
}

type stubPromotionService struct {
	listFn     func(context.Context, services.PromotionListFilter) (domain.CursorPage[services.Promotion], error)
	getFn      func(context.Context, string) (services.Promotion, error)
	createFn   func(context.Context, services.UpsertPromotionCommand) (services.Promotion, error)
	updateFn   func(context.Context, services.UpsertPromotionCommand) (services.Promotion, error)
	deleteFn   func(context.Context, string) error
	evaluateFn func(context.Context, services.EvaluatePromotionsCommand) (services.PromotionSelection, error)
}

func (s *stubPromotionService) ListPromotions(ctx context.Context, filter services.PromotionListFilter) (domain.CursorPage[services.Promotion], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Promotion]{}, nil
}

func (s *stubPromotionService) GetPromotion(ctx context.Context, promotionID string) (services.Promotion, error) {
	if s.getFn != nil {
		return s.getFn(ctx, promotionID)
	}
	return services.Promotion{}, errors.New("not implemented")
}

func (s *stubPromotionService) CreatePromotion(ctx context.Context, cmd services.UpsertPromotionCommand) (services.Promotion, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Promotion{}, errors.New("not implemented")
}

func (s *stubPromotionService) UpdatePromotion(ctx context.Context, cmd services.UpsertPromotionCommand) (services.Promotion, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Promotion{}, errors.New("not implemented")
}

func (s *stubPromotionService) DeletePromotion(ctx context.Context, promotionID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, promotionID)
	}
	return nil
}

func (s *stubPromotionService) EvaluatePromotions(ctx context.Context, cmd services.EvaluatePromotionsCommand) (services.PromotionSelection, error) {
	if s.evaluateFn != nil {
		return s.evaluateFn(ctx, cmd)
	}
	return services.PromotionSelection{}, nil
}

func withCaller(r *http.Request, userID, role string) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), &auth.Identity{UserID: userID, Role: role, Active: true}))
}

var (
	_ services.OrderService     = (*stubOrderService)(nil)
	_ services.BookingService   = (*stubBookingService)(nil)
	_ services.PromotionService = (*stubPromotionService)(nil)
)
