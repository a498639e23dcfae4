package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pawpal/api/internal/platform/requestctx"
)

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.InfoLevel)
	requestCore, requestLogs := observer.New(zapcore.InfoLevel)

	log := EventLogger(zap.New(fallbackCore))
	log(context.Background(), "order.created", map[string]any{"orderId": "o-1"})

	ctx := requestctx.WithLogger(context.Background(), zap.New(requestCore))
	log(ctx, "notification.failed", map[string]any{"error": "boom"})

	if fallbackLogs.Len() != 1 || requestLogs.Len() != 1 {
		t.Fatalf("expected one entry per logger, got %d and %d", fallbackLogs.Len(), requestLogs.Len())
	}
	entry := fallbackLogs.All()[0]
	if entry.Message != "order.created" || entry.ContextMap()["orderId"] != "o-1" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if got := requestLogs.All()[0].Level; got != zapcore.WarnLevel {
		t.Fatalf("expected warn level for failures, got %s", got)
	}
}

func TestTraceMiddlewareContinuesTraceparent(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	var seen requestctx.TraceInfo
	handler := TraceMiddleware("pawpal-dev")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen.TraceID != traceID || seen.ProjectID != "pawpal-dev" {
		t.Fatalf("unexpected trace info %+v", seen)
	}
}

func TestTraceMiddlewareFallsBackToCloudTraceHeader(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	const traceID = "105445aa7843bc8bf206b12000100000"
	var seen requestctx.TraceInfo
	handler := TraceMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(cloudTraceHeader, traceID+"/1;o=1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen.TraceID != traceID {
		t.Fatalf("expected cloud trace id to be continued, got %+v", seen)
	}
}

func TestParseCloudTraceRejectsMalformed(t *testing.T) {
	for _, header := range []string{"", "abc", "105445aa7843bc8bf206b12000100000/", "105445aa7843bc8bf206b12000100000/xyz", "zz/1"} {
		if _, ok := parseCloudTrace(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
	sc, ok := parseCloudTrace("105445aa7843bc8bf206b12000100000/258;o=1")
	if !ok || !sc.IsSampled() || sc.SpanID().String() != "0000000000000102" {
		t.Fatalf("unexpected span context %v %v", sc, ok)
	}
}

func TestAccessLogWritesCompletionEntry(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := chi.NewRouter()
	r.Use(AccessLog(zap.New(core), "pawpal-dev"), Recover(nil))
	r.Get("/api/v1/orders/{orderID}", func(w http.ResponseWriter, r *http.Request) {
		requestctx.Logger(r.Context()).Info("inside")
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord-1", nil))
	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 || logs.FilterMessage("inside").Len() != 1 {
		t.Fatalf("expected handler and completion entries, got %d", logs.Len())
	}
	fields := entries[0].ContextMap()
	if entries[0].Level != zapcore.WarnLevel || fields["route"] != "/api/v1/orders/{orderID}" || fields["status"] != int64(404) {
		t.Fatalf("unexpected completion entry %v %v", entries[0].Level, fields)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rr.Code != http.StatusInternalServerError || logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected recovered 500, got %d", rr.Code)
	}
}

func TestClipStripsControlCharacters(t *testing.T) {
	if got := clip("a\nb\x00c", 10); got != "abc" {
		t.Fatalf("unexpected %q", got)
	}
	if got := clip("abcdef", 3); got != "abc" {
		t.Fatalf("unexpected %q", got)
	}
}
