package auth

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/pawpal/api/internal/platform/httpx"
)

// Headers set by the API gateway after it has verified the caller's token.
const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-User-Role"
	HeaderActive = "X-User-Active"
	HeaderRank   = "X-User-Rank"
)

// Gateway reads the identity headers when present and stores the identity on the context.
// Requests without X-User-Id pass through anonymously. Deactivated accounts are rejected.
func Gateway() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := identityFromHeaders(r.Header)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if !identity.Active {
				respondAuthError(w, r, http.StatusForbidden, "account_inactive", "account is deactivated")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireIdentity rejects anonymous callers and, when roles are given, callers outside them.
func RequireIdentity(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		if role = normaliseRole(role); role != "" {
			allowed[role] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				respondAuthError(w, r, http.StatusUnauthorized, "unauthenticated", "caller identity missing")
				return
			}
			if len(allowed) > 0 {
				if _, ok := allowed[normaliseRole(identity.Role)]; !ok {
					respondAuthError(w, r, http.StatusForbidden, "insufficient_role", "identity does not have required role")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func identityFromHeaders(h http.Header) (*Identity, bool) {
	userID := strings.TrimSpace(h.Get(HeaderUserID))
	if userID == "" {
		return nil, false
	}
	role := normaliseRole(h.Get(HeaderRole))
	if role == "" {
		role = RoleUser
	}
	active := true
	if raw := strings.TrimSpace(h.Get(HeaderActive)); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		active = err == nil && parsed
	}
	return &Identity{
		UserID: userID,
		Role:   role,
		Rank:   strings.TrimSpace(h.Get(HeaderRank)),
		Active: active,
	}, true
}

func respondAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}
