package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/pawpal/api/internal/domain"
	"github.com/pawpal/api/internal/platform/auth"
	"github.com/pawpal/api/internal/services"
)

// PromotionHandlers exposes promotion previews to customers and administration to staff.
type PromotionHandlers struct {
	promotions services.PromotionService
}

// NewPromotionHandlers constructs a new PromotionHandlers instance.
func NewPromotionHandlers(promotions services.PromotionService) *PromotionHandlers {
	return &PromotionHandlers{promotions: promotions}
}

// Routes registers the /promotions endpoints.
func (h *PromotionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/evaluate", h.evaluate)
	r.Group(func(admin chi.Router) {
		admin.Use(auth.RequireIdentity(auth.RoleStaff, auth.RoleAdmin))
		admin.Get("/", h.listPromotions)
		admin.Post("/", h.createPromotion)
		admin.Get("/{promotionID}", h.getPromotion)
		admin.Put("/{promotionID}", h.updatePromotion)
		admin.Delete("/{promotionID}", h.deletePromotion)
	})
}

type promotionRequest struct {
	Code              string    `json:"code"`
	Description       string    `json:"description"`
	DiscountType      string    `json:"discountType"`
	DiscountValue     float64   `json:"discountValue"`
	MinOrderAmount    int64     `json:"minOrderAmount"`
	MaxDiscountAmount int64     `json:"maxDiscountAmount"`
	StartDate         time.Time `json:"startDate"`
	EndDate           time.Time `json:"endDate"`
	UsageLimit        int64     `json:"usageLimit"`
	Rank              string    `json:"rank"`
}

type evaluatePromotionsRequest struct {
	Subtotal    int64 `json:"subtotal"`
	ShippingFee int64 `json:"shippingFee"`
}

type promotionPayload struct {
	ID                string  `json:"id"`
	Code              string  `json:"code"`
	Description       string  `json:"description,omitempty"`
	DiscountType      string  `json:"discountType"`
	DiscountValue     float64 `json:"discountValue"`
	MinOrderAmount    int64   `json:"minOrderAmount"`
	MaxDiscountAmount int64   `json:"maxDiscountAmount"`
	StartDate         string  `json:"startDate"`
	EndDate           string  `json:"endDate"`
	UsageLimit        int64   `json:"usageLimit"`
	UsageCount        int64   `json:"usageCount"`
	Rank              string  `json:"rank"`
	Status            string  `json:"status"`
}

type promotionCandidatePayload struct {
	Promotion promotionPayload `json:"promotion"`
	Discount  int64            `json:"discount"`
}

type evaluatePromotionsResponse struct {
	Best     *promotionCandidatePayload  `json:"best,omitempty"`
	Eligible []promotionCandidatePayload `json:"eligible"`
}

type promotionListResponse struct {
	Items         []promotionPayload `json:"items"`
	NextPageToken string             `json:"nextPageToken,omitempty"`
}

func (h *PromotionHandlers) evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req evaluatePromotionsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	cmd := services.EvaluatePromotionsCommand{
		UserID:      domain.GuestUserID,
		Subtotal:    req.Subtotal,
		ShippingFee: req.ShippingFee,
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity.UserID != "" {
		cmd.UserID = identity.UserID
		cmd.Rank = identity.Rank
	}

	selection, err := h.promotions.EvaluatePromotions(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := evaluatePromotionsResponse{Eligible: make([]promotionCandidatePayload, 0, len(selection.Eligible))}
	for _, candidate := range selection.Eligible {
		resp.Eligible = append(resp.Eligible, promotionCandidatePayload{
			Promotion: buildPromotionPayload(candidate.Promotion),
			Discount:  candidate.Amount,
		})
	}
	if selection.Best != nil {
		resp.Best = &promotionCandidatePayload{Promotion: buildPromotionPayload(*selection.Best), Discount: selection.Amount}
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *PromotionHandlers) listPromotions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, ok := parsePagination(w, r)
	if !ok {
		return
	}
	result, err := h.promotions.ListPromotions(ctx, services.PromotionListFilter{Pagination: page})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]promotionPayload, 0, len(result.Items))
	for _, promotion := range result.Items {
		items = append(items, buildPromotionPayload(promotion))
	}
	writeJSONResponse(w, http.StatusOK, promotionListResponse{Items: items, NextPageToken: result.NextPageToken})
}

func (h *PromotionHandlers) getPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	promotion, err := h.promotions.GetPromotion(ctx, strings.TrimSpace(chi.URLParam(r, "promotionID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPromotionPayload(promotion))
}

func (h *PromotionHandlers) createPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req promotionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	promotion, err := h.promotions.CreatePromotion(ctx, req.command(""))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/promotions/"+promotion.ID)
	writeJSONResponse(w, http.StatusCreated, buildPromotionPayload(promotion))
}

func (h *PromotionHandlers) updatePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req promotionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	promotion, err := h.promotions.UpdatePromotion(ctx, req.command(chi.URLParam(r, "promotionID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPromotionPayload(promotion))
}

func (h *PromotionHandlers) deletePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.promotions.DeletePromotion(ctx, strings.TrimSpace(chi.URLParam(r, "promotionID"))); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (req promotionRequest) command(promotionID string) services.UpsertPromotionCommand {
	return services.UpsertPromotionCommand{
		PromotionID:       strings.TrimSpace(promotionID),
		Code:              req.Code,
		Description:       req.Description,
		DiscountType:      domain.DiscountType(req.DiscountType),
		DiscountValue:     req.DiscountValue,
		MinOrderAmount:    req.MinOrderAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		UsageLimit:        req.UsageLimit,
		Rank:              req.Rank,
	}
}

func buildPromotionPayload(promotion services.Promotion) promotionPayload {
	return promotionPayload{
		ID:                promotion.ID,
		Code:              promotion.Code,
		Description:       promotion.Description,
		DiscountType:      string(promotion.DiscountType),
		DiscountValue:     promotion.DiscountValue,
		MinOrderAmount:    promotion.MinOrderAmount,
		MaxDiscountAmount: promotion.MaxDiscountAmount,
		StartDate:         formatTime(promotion.StartDate),
		EndDate:           formatTime(promotion.EndDate),
		UsageLimit:        promotion.UsageLimit,
		UsageCount:        promotion.UsageCount,
		Rank:              promotion.Rank,
		Status:            string(promotion.Status),
	}
}
