package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pawpal/api/internal/platform/auth"
	"github.com/pawpal/api/internal/platform/httpx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	anonymousCaller   = "anonymous"
	maxKeyLength      = 255
)

type guard struct {
	store    Store
	header   string
	ttl      time.Duration
	methods  map[string]bool
	optional bool
	logger   *zap.Logger
}

// MiddlewareOption customises the middleware.
type MiddlewareOption func(*guard)

// WithHeader sets the request header carrying the key.
func WithHeader(name string) MiddlewareOption {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.header = name
		}
	}
}

// WithTTL sets how long finished responses are replayed.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithMethods replaces the set of guarded methods. Other methods pass straight through.
func WithMethods(methods ...string) MiddlewareOption {
	return func(g *guard) {
		set := make(map[string]bool, len(methods))
		for _, m := range methods {
			if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
				set[m] = true
			}
		}
		if len(set) > 0 {
			g.methods = set
		}
	}
}

// WithLogger sets the logger for store failures.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(g *guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithOptionalKey lets requests without a key run unguarded instead of failing with 400.
func WithOptionalKey() MiddlewareOption {
	return func(g *guard) { g.optional = true }
}

// Middleware replays the stored response for a repeated key. Keys are scoped to the calling
// identity. A key reused with a different request gets 422 and a key still being processed gets
// 409. Conflict, rate-limit and server-error outcomes are not stored so the client can retry them.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	g := &guard{
		store:  store,
		header: defaultHeaderName,
		ttl:    DefaultTTL,
		methods: map[string]bool{
			http.MethodPost:   true,
			http.MethodPut:    true,
			http.MethodPatch:  true,
			http.MethodDelete: true,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.methods[r.Method] {
				next.ServeHTTP(w, r)
				return
			}
			g.serve(w, r, next)
		})
	}
}

func (g *guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(g.header))
	switch {
	case key == "" && g.optional:
		next.ServeHTTP(w, r)
		return
	case key == "":
		fail(w, r, http.StatusBadRequest, "idempotency_key_required", g.header+" header is required")
		return
	case len(key) > maxKeyLength:
		fail(w, r, http.StatusBadRequest, "idempotency_key_invalid", g.header+" header is too long")
		return
	}

	body, err := bufferBody(r)
	if err != nil {
		fail(w, r, http.StatusBadRequest, "invalid_body", "unable to read request body")
		return
	}
	caller := callerOf(r)
	key = caller + "|" + key
	fingerprint := fingerprintOf(r, caller, body)

	claim, err := g.store.Claim(ctx, key, fingerprint, g.ttl)
	switch {
	case errors.Is(err, ErrFingerprintMismatch):
		fail(w, r, http.StatusUnprocessableEntity, "idempotency_key_conflict", "idempotency key was already used for a different request")
		return
	case err != nil:
		g.logger.Error("idempotency claim failed", zap.Error(err))
		fail(w, r, http.StatusServiceUnavailable, "idempotency_store_error", "unable to process idempotency key")
		return
	}
	switch claim.State {
	case StateDone:
		replay(w, claim.Response)
		return
	case StateInFlight:
		fail(w, r, http.StatusConflict, "idempotency_in_progress", "a request with this idempotency key is still being processed")
		return
	}

	capture := &captureWriter{header: make(http.Header)}
	next.ServeHTTP(capture, r)
	resp := capture.response()

	if retryable(resp.Status) {
		if err := g.store.Abandon(ctx, key, fingerprint); err != nil {
			g.logger.Warn("idempotency abandon failed", zap.Error(err))
		}
		capture.flush(w)
		return
	}
	if err := g.store.Finish(ctx, key, fingerprint, resp, g.ttl); err != nil {
		g.logger.Error("idempotency finish failed", zap.String("caller", caller), zap.Error(err))
		if err := g.store.Abandon(ctx, key, fingerprint); err != nil {
			g.logger.Error("idempotency abandon failed", zap.Error(err))
		}
		fail(w, r, http.StatusInternalServerError, "idempotency_store_error", "unable to persist idempotency state")
		return
	}
	capture.flush(w)
}

func retryable(status int) bool {
	return status == http.StatusConflict || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func callerOf(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.UserID != "" {
		return identity.UserID
	}
	return anonymousCaller
}

// fingerprintOf hashes everything that must match for a replay to be valid.
func fingerprintOf(r *http.Request, caller string, body []byte) string {
	h := sha256.New()
	for _, part := range []string{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("Content-Type"), caller} {
		_, _ = io.WriteString(h, part)
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func replay(w http.ResponseWriter, resp Response) {
	for name, values := range resp.Header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(replayHeaderName, "true")
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}

// captureWriter buffers a handler's response so it can be stored before reaching the client.
type captureWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(p)
}

func (c *captureWriter) response() Response {
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	return Response{Status: status, Header: c.header.Clone(), Body: c.body.Bytes()}
}

func (c *captureWriter) flush(w http.ResponseWriter) {
	for name, values := range c.header {
		w.Header()[name] = values
	}
	resp := c.response()
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
