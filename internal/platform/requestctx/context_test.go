package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerFallsBackToNoop(t *testing.T) {
	if Logger(context.Background()) != NoopLogger() {
		t.Fatalf("expected noop logger for bare context")
	}
	//nolint:staticcheck // nil context is tolerated on purpose
	if Logger(nil) != NoopLogger() {
		t.Fatalf("expected noop logger for nil context")
	}
	if Logger(WithLogger(context.Background(), nil)) != NoopLogger() {
		t.Fatalf("expected nil logger to be stored as noop")
	}
}

func TestLoggerRoundTrip(t *testing.T) {
	logger := zap.NewExample()
	if got := Logger(WithLogger(context.Background(), logger)); got != logger {
		t.Fatalf("expected stored logger back")
	}
}

func TestTrace(t *testing.T) {
	if TraceID(context.Background()) != "" {
		t.Fatalf("expected empty trace id")
	}
	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "abc", SpanID: "01", Sampled: true})
	info, ok := Trace(ctx)
	if !ok || info.SpanID != "01" || !info.Sampled || TraceID(ctx) != "abc" {
		t.Fatalf("unexpected trace %+v %v", info, ok)
	}
}
