package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pawpal/api/internal/platform/auth"
)

func newOrderRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(defaultHeaderName, key)
	}
	return req
}

func createdHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ord-1"}`))
	})
}

func TestMiddlewareRequiresKey(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(createdHandler(&calls))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest("", `{}`))

	if calls != 0 || rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without handler call, got %d calls=%d", rr.Code, calls)
	}
	assertErrorCode(t, rr, "idempotency_key_required")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest(strings.Repeat("k", maxKeyLength+1), `{}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for long key, got %d", rr.Code)
	}
	assertErrorCode(t, rr, "idempotency_key_invalid")
}

func TestMiddlewareReplaysFinishedResponse(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(createdHandler(&calls))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, newOrderRequest("abc", `{"items":[{"productId":"p-1","quantity":1}]}`))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, newOrderRequest("abc", `{"items":[{"productId":"p-1","quantity":1}]}`))

	if calls != 1 {
		t.Fatalf("expected a single handler run, got %d", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("expected identical replay, got %d %q", second.Code, second.Body.String())
	}
	if second.Header().Get(replayHeaderName) != "true" || first.Header().Get(replayHeaderName) != "" {
		t.Fatalf("replay header must only mark the replay")
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected stored headers to be replayed")
	}
}

func TestMiddlewareRejectsReusedKeyWithDifferentBody(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(createdHandler(&calls))

	handler.ServeHTTP(httptest.NewRecorder(), newOrderRequest("same", `{"a":1}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest("same", `{"a":2}`))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	assertErrorCode(t, rr, "idempotency_key_conflict")
}

func TestMiddlewareInFlightKeyConflicts(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run while the key is in flight")
	}))

	req := newOrderRequest("busy", `{}`)
	body, _ := bufferBody(req)
	key := anonymousCaller + "|busy"
	if _, err := store.Claim(context.Background(), key, fingerprintOf(req, anonymousCaller, body), time.Hour); err != nil {
		t.Fatalf("seed claim: %v", err)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	assertErrorCode(t, rr, "idempotency_in_progress")
}

func TestMiddlewareFinishFailureAbandonsClaim(t *testing.T) {
	store := &failingStore{}
	calls := 0
	rr := httptest.NewRecorder()
	Middleware(store)(createdHandler(&calls)).ServeHTTP(rr, newOrderRequest("k", `{}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	assertErrorCode(t, rr, "idempotency_store_error")
	if !store.abandoned {
		t.Fatalf("expected claim to be abandoned")
	}
}

func TestMiddlewareDoesNotPinRetryableOutcomes(t *testing.T) {
	statuses := []int{http.StatusConflict, http.StatusServiceUnavailable, http.StatusCreated}
	calls := 0
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(statuses[calls])
		calls++
	}))

	for i, want := range statuses {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newOrderRequest("retry", `{}`))
		if rr.Code != want {
			t.Fatalf("attempt %d: expected %d, got %d", i, want, rr.Code)
		}
	}
	if calls != len(statuses) {
		t.Fatalf("expected every attempt to reach the handler, got %d", calls)
	}
}

func TestMiddlewareScopesKeysPerCaller(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(createdHandler(&calls))

	for _, userID := range []string{"u-1", "u-2"} {
		req := newOrderRequest("shared", `{}`)
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UserID: userID, Role: auth.RoleUser, Active: true}))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected each caller to run once, got %d", calls)
	}
}

func TestMiddlewarePassThrough(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore(), WithOptionalKey())(createdHandler(&calls))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest("", `{}`))
	if calls != 1 || rr.Code != http.StatusCreated {
		t.Fatalf("expected optional key to pass through, got %d calls=%d", rr.Code, calls)
	}

	handler = Middleware(NewMemoryStore())(createdHandler(&calls))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if calls != 2 {
		t.Fatalf("expected GET to bypass the guard")
	}
}

func TestMemoryStoreExpiresKeys(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewMemoryStoreWithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := store.Finish(ctx, "k", "fp", Response{Status: http.StatusCreated}, time.Minute); err != nil {
		t.Fatalf("finish: %v", err)
	}
	claim, err := store.Claim(ctx, "k", "fp", time.Minute)
	if err != nil || claim.State != StateDone || claim.Response.Status != http.StatusCreated {
		t.Fatalf("expected stored response, got %+v %v", claim, err)
	}
	if err := store.Abandon(ctx, "k", "other"); err != nil || store.Len() != 1 {
		t.Fatalf("abandon by a different fingerprint must be ignored")
	}

	now = now.Add(2 * time.Minute)
	if store.Len() != 0 {
		t.Fatalf("expected key to expire")
	}
	claim, err = store.Claim(ctx, "k", "other", time.Minute)
	if err != nil || claim.State != StateClaimed {
		t.Fatalf("expected fresh claim after expiry, got %+v %v", claim, err)
	}
}

func TestStorableDropsHopHeaders(t *testing.T) {
	resp := storable(Response{Status: 201, Header: http.Header{
		"Content-Length": {"10"},
		"connection":     {"close"},
		"Location":       {"/api/v1/orders/ord-1"},
	}})
	if len(resp.Header) != 1 || resp.Header.Get("Location") == "" {
		t.Fatalf("unexpected headers %v", resp.Header)
	}
}

type failingStore struct {
	abandoned bool
}

func (s *failingStore) Claim(context.Context, string, string, time.Duration) (Claim, error) {
	return Claim{State: StateClaimed}, nil
}

func (s *failingStore) Finish(context.Context, string, string, Response, time.Duration) error {
	return errors.New("redis down")
}

func (s *failingStore) Abandon(context.Context, string, string) error {
	s.abandoned = true
	return nil
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error != want {
		t.Fatalf("expected error %q, got %q", want, body.Error)
	}
}
