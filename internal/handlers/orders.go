package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/pawpal/api/internal/domain"
	"github.com/pawpal/api/internal/platform/auth"
	"github.com/pawpal/api/internal/platform/httpx"
	"github.com/pawpal/api/internal/services"
)

// OrderHandlers exposes order checkout, lookup and status endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints. Creation is open to guests; everything else needs a caller.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Group(func(authed chi.Router) {
		authed.Use(auth.RequireIdentity())
		authed.Get("/", h.listOrders)
		authed.Get("/{orderID}", h.getOrder)
		authed.Patch("/{orderID}/status", h.updateStatus)
	})
}

type orderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type addressPayload struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	Line     string `json:"line"`
	Ward     string `json:"ward,omitempty"`
	District string `json:"district,omitempty"`
	City     string `json:"city,omitempty"`
}

type createOrderRequest struct {
	Items         []orderItemRequest `json:"items"`
	Address       *addressPayload    `json:"address"`
	PaymentMethod string             `json:"paymentMethod"`
	PromotionCode string             `json:"promotionCode"`
	ShippingFee   int64              `json:"shippingFee"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
	LineTotal int64  `json:"lineTotal"`
}

type orderPaymentPayload struct {
	Method string `json:"method"`
	Status string `json:"status"`
	PaidAt string `json:"paidAt,omitempty"`
}

type orderPayload struct {
	ID             string              `json:"id"`
	UserID         string              `json:"userId"`
	Status         string              `json:"status"`
	Items          []orderItemPayload  `json:"items"`
	Subtotal       int64               `json:"subtotal"`
	ShippingFee    int64               `json:"shippingFee"`
	TotalAmount    int64               `json:"totalAmount"`
	DiscountAmount int64               `json:"discountAmount"`
	FinalAmount    int64               `json:"finalAmount"`
	PromotionCode  string              `json:"promotionCode,omitempty"`
	Payment        orderPaymentPayload `json:"payment"`
	Address        addressPayload      `json:"address"`
	CreatedAt      string              `json:"createdAt"`
	UpdatedAt      string              `json:"updatedAt"`
	CancelledAt    string              `json:"cancelledAt,omitempty"`
	DeliveredAt    string              `json:"deliveredAt,omitempty"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createOrderRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	cmd := services.CreateOrderCommand{
		UserID:        domain.GuestUserID,
		PaymentMethod: domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		PromotionCode: strings.TrimSpace(req.PromotionCode),
		ShippingFee:   req.ShippingFee,
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity.UserID != "" {
		cmd.UserID = identity.UserID
		cmd.Rank = identity.Rank
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.OrderItemInput{ProductID: strings.TrimSpace(item.ProductID), Quantity: item.Quantity})
	}
	if req.Address != nil {
		addr := domain.ShippingAddress(*req.Address)
		cmd.Address = &addr
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireCaller(w, r)
	if !ok {
		return
	}
	page, ok := parsePagination(w, r)
	if !ok {
		return
	}

	filter := services.OrderListFilter{
		UserID:     identity.UserID,
		Status:     parseFilterValues(r.URL.Query()["status"]),
		Pagination: page,
	}
	if identity.IsStaff() {
		filter.UserID = strings.TrimSpace(r.URL.Query().Get("userId"))
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("createdAfter")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "createdAfter must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.CreatedAfter = &ts
	}

	result, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]orderPayload, 0, len(result.Items))
	for _, order := range result.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: items, NextPageToken: result.NextPageToken})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireCaller(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	// Foreign orders are reported as missing so ids cannot be probed.
	if !identity.IsStaff() && order.UserID != identity.UserID {
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "order not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req updateOrderStatusRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID:   strings.TrimSpace(chi.URLParam(r, "orderID")),
		Status:    domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		ActorID:   identity.UserID,
		ActorRole: identity.Role,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
			LineTotal: item.LineTotal(),
		})
	}
	payload := orderPayload{
		ID:             order.ID,
		UserID:         order.UserID,
		Status:         string(order.Status),
		Items:          items,
		Subtotal:       order.Subtotal,
		ShippingFee:    order.ShippingFee,
		TotalAmount:    order.TotalAmount,
		DiscountAmount: order.DiscountAmount,
		FinalAmount:    order.FinalAmount,
		Payment: orderPaymentPayload{
			Method: string(order.Payment.Method),
			Status: string(order.Payment.Status),
			PaidAt: formatTimePtr(order.Payment.PaidAt),
		},
		Address:     addressPayload(order.Address),
		CreatedAt:   formatTime(order.CreatedAt),
		UpdatedAt:   formatTime(order.UpdatedAt),
		CancelledAt: formatTimePtr(order.CancelledAt),
		DeliveredAt: formatTimePtr(order.DeliveredAt),
	}
	if order.PromotionCode != nil {
		payload.PromotionCode = *order.PromotionCode
	}
	return payload
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
