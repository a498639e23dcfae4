package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pawpal/api/internal/platform/auth"
)

// VerificationMetrics records signature verification outcomes on the global meter provider.
func VerificationMetrics() auth.MetricsRecorder {
	meter := otel.Meter("github.com/pawpal/api/internal/platform/auth")
	outcomes, _ := meter.Int64Counter("pawpal.auth.verifications", metric.WithDescription("Signature verification outcomes"))
	latency, _ := meter.Float64Histogram("pawpal.auth.verification_duration", metric.WithUnit("ms"))
	return auth.MetricsRecorderFunc(func(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
		attrs := metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.Bool("success", success),
			attribute.String("reason", reason),
		)
		if outcomes != nil {
			outcomes.Add(ctx, 1, attrs)
		}
		if latency != nil {
			latency.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
		}
	})
}
