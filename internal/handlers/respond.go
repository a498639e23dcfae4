package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pawpal/api/internal/platform/auth"
	"github.com/pawpal/api/internal/platform/httpx"
	"github.com/pawpal/api/internal/platform/pagination"
	"github.com/pawpal/api/internal/platform/requestctx"
	"github.com/pawpal/api/internal/repositories"
	"github.com/pawpal/api/internal/services"
)

const (
	maxRequestBodySize  = 64 * 1024
	defaultListPageSize = 20
)

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxRequestBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads and decodes the request body into dst, writing a 400/413 on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxRequestBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// requireCaller returns the gateway identity or writes 401.
func requireCaller(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func parsePagination(w http.ResponseWriter, r *http.Request) (services.Pagination, bool) {
	params, err := pagination.FromRequest(r, pagination.Options{DefaultPageSize: defaultListPageSize})
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return services.Pagination{}, false
	}
	return services.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, true
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}

type errorMapping struct {
	target error
	code   string
	status int
	// message replaces the error text when set.
	message string
}

var serviceErrorMappings = []errorMapping{
	{services.ErrValidation, "invalid_request", http.StatusBadRequest, ""},
	{services.ErrForbidden, "forbidden", http.StatusForbidden, ""},
	{services.ErrNotFound, "not_found", http.StatusNotFound, ""},
	{services.ErrInsufficientStock, "insufficient_stock", http.StatusUnprocessableEntity, ""},
	{services.ErrInvalidPromotion, "invalid_promotion", http.StatusUnprocessableEntity, ""},
	{services.ErrPromotionAlreadyUsed, "promotion_already_used", http.StatusUnprocessableEntity, ""},
	{services.ErrPromotionLimitReached, "promotion_limit_reached", http.StatusUnprocessableEntity, ""},
	{services.ErrOutOfHours, "outside_working_hours", http.StatusUnprocessableEntity, ""},
	{services.ErrOverlap, "booking_overlap", http.StatusUnprocessableEntity, ""},
	{services.ErrIllegalTransition, "illegal_transition", http.StatusUnprocessableEntity, ""},
	{services.ErrConflict, "conflict", http.StatusConflict, "the request conflicted with a concurrent update; retry it"},
}

// writeServiceError translates service sentinels into the JSON error envelope. Dependency and
// unknown failures never expose their message, and neither does anything a repository produced.
func publicMessage(ctx context.Context, err error, m errorMapping) string {
	var repoErr repositories.RepositoryError
	fromRepository := errors.As(err, &repoErr)
	if fromRepository || m.message != "" {
		requestctx.Logger(ctx).Info("service error", zap.String("code", m.code), zap.Error(err))
	}
	switch {
	case m.message != "":
		return m.message
	case fromRepository:
		return m.target.Error()
	default:
		return err.Error()
	}
}

func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	for _, m := range serviceErrorMappings {
		if errors.Is(err, m.target) {
			httpx.WriteError(ctx, w, httpx.NewError(m.code, publicMessage(ctx, err, m), m.status))
			return
		}
	}
	if errors.Is(err, services.ErrDependencyUnavailable) {
		httpx.WriteError(ctx, w, httpx.NewError("dependency_unavailable", "a required service is temporarily unavailable", http.StatusServiceUnavailable))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "request did not complete in time", http.StatusServiceUnavailable))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
}
