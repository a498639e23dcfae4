package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pawpal/api/internal/platform/auth"
	"github.com/pawpal/api/internal/platform/httpx"
	"github.com/pawpal/api/internal/platform/requestctx"
	"github.com/pawpal/api/internal/services"
)

// PaymentWebhookHandlers receives settlement callbacks from payment providers. Signature
// verification happens in middleware mounted on the /webhooks group.
type PaymentWebhookHandlers struct {
	orders services.OrderService
}

// NewPaymentWebhookHandlers constructs the payment callback handlers.
func NewPaymentWebhookHandlers(orders services.OrderService) *PaymentWebhookHandlers {
	return &PaymentWebhookHandlers{orders: orders}
}

// Routes registers the /webhooks/payments endpoints.
func (h *PaymentWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/confirm", h.confirmPayment)
}

type paymentConfirmRequest struct {
	OrderID string `json:"orderId"`
}

type paymentConfirmResponse struct {
	OrderID       string `json:"orderId"`
	PaymentStatus string `json:"paymentStatus"`
	PaidAt        string `json:"paidAt,omitempty"`
}

func (h *PaymentWebhookHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req paymentConfirmRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderId is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.MarkPaid(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	if meta, ok := auth.HMACMetadataFromContext(ctx); ok {
		requestctx.Logger(ctx).Info("payment confirmed",
			zap.String("orderId", order.ID),
			zap.String("caller", meta.SecretName),
		)
	}
	writeJSONResponse(w, http.StatusOK, paymentConfirmResponse{
		OrderID:       order.ID,
		PaymentStatus: string(order.Payment.Status),
		PaidAt:        formatTimePtr(order.Payment.PaidAt),
	})
}
