package handlers

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pawpal/api/internal/platform/auth"
	"github.com/pawpal/api/internal/platform/httpx"
)

const limiterIdleTTL = 10 * time.Minute

// RateLimitConfig sets per-minute budgets. Zero disables the corresponding tier.
type RateLimitConfig struct {
	AnonymousPerMinute     int
	AuthenticatedPerMinute int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// callerRateLimiter keeps one token bucket per caller key.
type callerRateLimiter struct {
	perMinute int
	clock     func() time.Time

	mu      sync.Mutex
	buckets map[string]*limiterEntry
}

func newCallerRateLimiter(perMinute int, clock func() time.Time) *callerRateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &callerRateLimiter{
		perMinute: perMinute,
		clock:     clock,
		buckets:   make(map[string]*limiterEntry),
	}
}

// Allow consumes a token for key and reports whether the request may proceed.
func (l *callerRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	entry, ok := l.buckets[key]
	if !ok {
		l.pruneLocked(now)
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(float64(l.perMinute)/60), l.perMinute)}
		l.buckets[key] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

func (l *callerRateLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.buckets {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.buckets, key)
		}
	}
}

// RateLimitMiddleware throttles authenticated callers by user id and anonymous callers by remote
// address. It must run after the gateway identity middleware.
func RateLimitMiddleware(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return rateLimitMiddleware(cfg, time.Now)
}

func rateLimitMiddleware(cfg RateLimitConfig, clock func() time.Time) func(http.Handler) http.Handler {
	anonymous := newCallerRateLimiter(cfg.AnonymousPerMinute, clock)
	authenticated := newCallerRateLimiter(cfg.AuthenticatedPerMinute, clock)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter, key := anonymous, "ip:"+r.RemoteAddr
			if identity, ok := auth.IdentityFromContext(r.Context()); ok {
				limiter, key = authenticated, "user:"+identity.UserID
			}
			if !limiter.Allow(key) {
				w.Header().Set("Retry-After", "1")
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
