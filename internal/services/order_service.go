package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/pawpal/api/internal/domain"
	"github.com/pawpal/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
	orderEventPaid          = "order.paid"

	orderEventRecipientFailed = "order.recipient.failed"
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders         repositories.OrderRepository
	Products       repositories.ProductRepository
	Promotions     repositories.PromotionRepository
	PromotionUsage repositories.PromotionUsageRepository
	Directory      Directory
	UnitOfWork     repositories.UnitOfWork
	Notifications  *NotificationDispatcher
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	products      repositories.ProductRepository
	promotions    repositories.PromotionRepository
	usage         repositories.PromotionUsageRepository
	directory     Directory
	unitOfWork    repositories.UnitOfWork
	notifications *NotificationDispatcher
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Promotions == nil || deps.PromotionUsage == nil {
		return nil, errors.New("order service: promotion repositories are required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:        deps.Orders,
		products:      deps.Products,
		promotions:    deps.Promotions,
		usage:         deps.PromotionUsage,
		directory:     deps.Directory,
		unitOfWork:    unit,
		notifications: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		userID = domain.GuestUserID
	}
	items, err := normalizeOrderItems(cmd.Items)
	if err != nil {
		return Order{}, err
	}
	address, err := normalizeAddress(cmd.Address)
	if err != nil {
		return Order{}, err
	}
	method, err := normalizePaymentMethod(cmd.PaymentMethod)
	if err != nil {
		return Order{}, err
	}
	if cmd.ShippingFee < 0 {
		return Order{}, validationError("shipping fee must not be negative")
	}

	code := strings.ToUpper(strings.TrimSpace(cmd.PromotionCode))
	rank := strings.TrimSpace(cmd.Rank)
	if code != "" {
		if userID == domain.GuestUserID {
			return Order{}, fmt.Errorf("%w: guests cannot redeem promotions", ErrInvalidPromotion)
		}
		user, err := s.lookupUser(ctx, userID)
		if err != nil {
			return Order{}, err
		}
		if user.ID != "" {
			rank = user.Rank
			if address.Email == "" {
				address.Email = user.Email
			}
		}
	}

	now := s.now()
	order := Order{
		ID:          s.newID(),
		UserID:      userID,
		ShippingFee: cmd.ShippingFee,
		Payment: OrderPayment{
			Method: method,
			Status: domain.PaymentStatusUnpaid,
		},
		Address:   address,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		lines := make([]OrderItem, 0, len(items))
		var subtotal int64
		for _, item := range items {
			product, err := s.products.FindByID(txCtx, item.ProductID)
			if err != nil {
				return mapRepositoryError(err)
			}
			if product.Stock < int64(item.Quantity) {
				return fmt.Errorf("%w: product %s has %d left, %d requested", ErrInsufficientStock, product.ID, product.Stock, item.Quantity)
			}
			line := OrderItem{
				ProductID: product.ID,
				Name:      product.Name,
				Quantity:  item.Quantity,
				Price:     product.DiscountPrice,
			}
			subtotal += line.LineTotal()
			lines = append(lines, line)
		}
		orderTotal := subtotal + cmd.ShippingFee

		var promotion *Promotion
		var discount int64
		if code != "" {
			promo, err := s.redeemablePromotion(txCtx, code, userID, rank, subtotal, now)
			if err != nil {
				return err
			}
			promotion = &promo
			discount = ComputeDiscount(promo, orderTotal)
		}

		order.Items = lines
		order.Subtotal = subtotal
		order.TotalAmount = orderTotal
		order.DiscountAmount = discount
		order.FinalAmount = orderTotal - discount

		if promotion != nil {
			order.PromotionCode = optionalString(promotion.Code)
			order.PromotionID = optionalString(promotion.ID)
			if err := s.promotions.AdjustUsageCount(txCtx, promotion.ID, 1); err != nil {
				return mapRepositoryError(err)
			}
			usage := PromotionUsage{
				ID:          s.newID(),
				PromotionID: promotion.ID,
				UserID:      userID,
				OrderID:     order.ID,
				Used:        true,
				CreatedAt:   now,
			}
			if err := s.usage.Insert(txCtx, usage); err != nil {
				if errors.Is(mapRepositoryError(err), ErrConflict) {
					return fmt.Errorf("%w: %s", ErrPromotionAlreadyUsed, promotion.Code)
				}
				return mapRepositoryError(err)
			}
		}

		for _, line := range lines {
			if err := s.products.AdjustStock(txCtx, line.ProductID, -int64(line.Quantity)); err != nil {
				return mapRepositoryError(err)
			}
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, orderEventCreated, map[string]any{
		"orderId":     order.ID,
		"userId":      order.UserID,
		"finalAmount": order.FinalAmount,
		"discount":    order.DiscountAmount,
		"promotion":   derefString(order.PromotionCode),
	})
	recordOrderCreated(ctx, order)
	s.notifications.Dispatch(ctx, orderConfirmationMessage(s.notifications, order, s.recipientFor(ctx, order)))
	return order, nil
}

// redeemablePromotion loads the promotion for code and checks every redemption rule. It only reads.
func (s *orderService) redeemablePromotion(ctx context.Context, code, userID, rank string, subtotal int64, now time.Time) (Promotion, error) {
	promo, err := s.promotions.FindByCode(ctx, code)
	if err != nil {
		if isNotFound(err) {
			return Promotion{}, fmt.Errorf("%w: code %s not found", ErrInvalidPromotion, code)
		}
		return Promotion{}, mapRepositoryError(err)
	}

	if !promo.StartDate.IsZero() && now.Before(promo.StartDate) {
		return Promotion{}, fmt.Errorf("%w: %s is not active yet", ErrInvalidPromotion, code)
	}
	if !promo.EndDate.IsZero() && now.After(promo.EndDate) {
		return Promotion{}, fmt.Errorf("%w: %s has expired", ErrInvalidPromotion, code)
	}
	if !rankMatches(promo.Rank, rank) {
		return Promotion{}, fmt.Errorf("%w: %s requires rank %s", ErrInvalidPromotion, code, promo.Rank)
	}
	if subtotal < promo.MinOrderAmount {
		return Promotion{}, fmt.Errorf("%w: %s requires a minimum order of %d", ErrInvalidPromotion, code, promo.MinOrderAmount)
	}

	if _, err := s.usage.Find(ctx, promo.ID, userID); err == nil {
		return Promotion{}, fmt.Errorf("%w: %s", ErrPromotionAlreadyUsed, code)
	} else if !isNotFound(err) {
		return Promotion{}, mapRepositoryError(err)
	}

	if promo.UsageLimit > 0 && promo.UsageCount >= promo.UsageLimit {
		return Promotion{}, fmt.Errorf("%w: %s", ErrPromotionLimitReached, code)
	}
	return withDerivedStatus(promo, now), nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, validationError("order id is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	for _, status := range filter.Status {
		if !IsKnownOrderStatus(OrderStatus(status)) {
			return domain.CursorPage[Order]{}, validationError("unknown order status %q", status)
		}
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, validationError("order id is required")
	}
	target := OrderStatus(strings.ToLower(strings.TrimSpace(string(cmd.Status))))
	if !IsKnownOrderStatus(target) {
		return Order{}, validationError("unknown order status %q", cmd.Status)
	}

	now := s.now()
	var (
		updated  Order
		previous OrderStatus
		changed  bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err)
		}
		if !domain.IsPrivilegedRole(cmd.ActorRole) {
			if order.UserID != strings.TrimSpace(cmd.ActorID) || target != domain.OrderStatusCancelled {
				return fmt.Errorf("%w: customers may only cancel their own orders", ErrForbidden)
			}
		}

		noop, err := CheckOrderTransition(order.Status, target)
		if err != nil {
			return err
		}
		updated = order
		if noop {
			return nil
		}

		var promotion *Promotion
		if requiresCompensation(target) && order.PromotionID != nil {
			promo, err := s.promotions.FindByID(txCtx, *order.PromotionID)
			switch {
			case err == nil:
				promotion = &promo
			case isNotFound(err):
			default:
				return mapRepositoryError(err)
			}
		}

		// writes start here
		if requiresCompensation(target) {
			for _, item := range order.Items {
				if err := s.products.AdjustStock(txCtx, item.ProductID, int64(item.Quantity)); err != nil {
					return mapRepositoryError(err)
				}
			}
			if order.PromotionID != nil {
				if promotion != nil && promotion.UsageCount > 0 {
					if err := s.promotions.AdjustUsageCount(txCtx, promotion.ID, -1); err != nil {
						return mapRepositoryError(err)
					}
				}
				if err := s.usage.Delete(txCtx, *order.PromotionID, order.UserID); err != nil && !isNotFound(err) {
					return mapRepositoryError(err)
				}
			}
		}

		previous = order.Status
		applyOrderStatus(&updated, target, now)
		if err := s.orders.Update(txCtx, updated); err != nil {
			return mapRepositoryError(err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if !changed {
		return updated, nil
	}

	s.logger(ctx, orderEventStatusChanged, map[string]any{
		"orderId": updated.ID,
		"from":    string(previous),
		"to":      string(updated.Status),
		"actorId": cmd.ActorID,
	})
	recordOrderStatus(ctx, updated.Status)
	s.notifications.Dispatch(ctx, orderStatusMessage(updated, previous, s.recipientFor(ctx, updated)))
	return updated, nil
}

func (s *orderService) MarkPaid(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, validationError("order id is required")
	}

	now := s.now()
	var (
		updated Order
		changed bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err)
		}
		updated = order
		if order.Payment.Status == domain.PaymentStatusPaid {
			return nil
		}
		updated.Payment.Status = domain.PaymentStatusPaid
		updated.Payment.PaidAt = &now
		updated.UpdatedAt = now
		if err := s.orders.Update(txCtx, updated); err != nil {
			return mapRepositoryError(err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if changed {
		s.logger(ctx, orderEventPaid, map[string]any{"orderId": updated.ID, "method": string(updated.Payment.Method)})
	}
	return updated, nil
}

func (s *orderService) lookupUser(ctx context.Context, userID string) (User, error) {
	if s.directory == nil {
		return User{}, nil
	}
	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return User{}, fmt.Errorf("%w: user directory: %v", ErrDependencyUnavailable, err)
	}
	if !user.Active {
		return User{}, fmt.Errorf("%w: account %s is not active", ErrForbidden, userID)
	}
	return user, nil
}

// recipientFor returns the address email, falling back to the directory for registered users.
// A failed lookup is logged and leaves the recipient empty.
func (s *orderService) recipientFor(ctx context.Context, order Order) string {
	if order.Address.Email != "" {
		return order.Address.Email
	}
	if order.UserID == "" || order.UserID == domain.GuestUserID || s.directory == nil || s.notifications == nil {
		return ""
	}
	user, err := s.directory.GetUser(ctx, order.UserID)
	if err != nil {
		s.logger(ctx, orderEventRecipientFailed, map[string]any{
			"orderId": order.ID,
			"userId":  order.UserID,
			"error":   err.Error(),
		})
		return ""
	}
	return strings.TrimSpace(user.Email)
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return mapRepositoryError(s.unitOfWork.RunInTx(ctx, fn))
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func applyOrderStatus(order *Order, status OrderStatus, now time.Time) {
	order.Status = status
	order.UpdatedAt = now
	switch status {
	case domain.OrderStatusCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
	case domain.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			order.DeliveredAt = &now
		}
		if order.Payment.Status != domain.PaymentStatusPaid {
			order.Payment.Status = domain.PaymentStatusPaid
			order.Payment.PaidAt = &now
		}
	}
}

// normalizeOrderItems validates quantities and merges repeated products preserving first-seen order.
func normalizeOrderItems(items []OrderItemInput) ([]OrderItemInput, error) {
	if len(items) == 0 {
		return nil, validationError("order must contain at least one item")
	}
	merged := make([]OrderItemInput, 0, len(items))
	index := make(map[string]int, len(items))
	for i, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, validationError("items[%d].productId is required", i)
		}
		if item.Quantity <= 0 {
			return nil, validationError("items[%d].quantity must be positive", i)
		}
		if pos, ok := index[productID]; ok {
			merged[pos].Quantity += item.Quantity
			continue
		}
		index[productID] = len(merged)
		merged = append(merged, OrderItemInput{ProductID: productID, Quantity: item.Quantity})
	}
	return merged, nil
}

func normalizeAddress(addr *ShippingAddress) (ShippingAddress, error) {
	if addr == nil {
		return ShippingAddress{}, validationError("shipping address is required")
	}
	out := ShippingAddress{
		FullName: strings.TrimSpace(addr.FullName),
		Phone:    strings.TrimSpace(addr.Phone),
		Email:    strings.TrimSpace(addr.Email),
		Line:     strings.TrimSpace(addr.Line),
		Ward:     strings.TrimSpace(addr.Ward),
		District: strings.TrimSpace(addr.District),
		City:     strings.TrimSpace(addr.City),
	}
	switch {
	case out.FullName == "":
		return ShippingAddress{}, validationError("address.fullName is required")
	case out.Phone == "":
		return ShippingAddress{}, validationError("address.phone is required")
	case out.Line == "":
		return ShippingAddress{}, validationError("address.line is required")
	}
	return out, nil
}

func normalizePaymentMethod(method domain.PaymentMethod) (domain.PaymentMethod, error) {
	switch domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(method)))) {
	case "", domain.PaymentMethodCOD:
		return domain.PaymentMethodCOD, nil
	case domain.PaymentMethodMoMo:
		return domain.PaymentMethodMoMo, nil
	default:
		return "", validationError("unsupported payment method %q", method)
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
