package services

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/pawpal/api/internal/services"

type serviceMetrics struct {
	orders        metric.Int64Counter
	orderStatuses metric.Int64Counter
	bookings      metric.Int64Counter
	discounts     metric.Int64Counter
	notifications metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metricsInst *serviceMetrics
)

// instruments lazily registers counters on the global meter provider so telemetry set up in main
// is picked up.
func instruments() *serviceMetrics {
	metricsOnce.Do(func() {
		meter := otel.Meter(meterName)
		m := &serviceMetrics{}
		m.orders, _ = meter.Int64Counter("pawpal.orders.created", metric.WithDescription("Orders committed"))
		m.orderStatuses, _ = meter.Int64Counter("pawpal.orders.status_changes", metric.WithDescription("Order status transitions"))
		m.bookings, _ = meter.Int64Counter("pawpal.bookings.written", metric.WithDescription("Bookings created or updated"))
		m.discounts, _ = meter.Int64Counter("pawpal.promotions.discount_amount", metric.WithUnit("VND"))
		m.notifications, _ = meter.Int64Counter("pawpal.notifications", metric.WithDescription("Notification outcomes"))
		metricsInst = m
	})
	return metricsInst
}

func recordOrderCreated(ctx context.Context, order Order) {
	m := instruments()
	if m.orders != nil {
		m.orders.Add(ctx, 1, metric.WithAttributes(attribute.String("payment", string(order.Payment.Method))))
	}
	if m.discounts != nil && order.DiscountAmount > 0 {
		m.discounts.Add(ctx, order.DiscountAmount)
	}
}

func recordOrderStatus(ctx context.Context, status OrderStatus) {
	if m := instruments(); m.orderStatuses != nil {
		m.orderStatuses.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	}
}

func recordBooking(ctx context.Context, op string) {
	if m := instruments(); m.bookings != nil {
		m.bookings.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
}

func recordNotification(ctx context.Context, template, outcome string) {
	if m := instruments(); m.notifications != nil {
		m.notifications.Add(ctx, 1, metric.WithAttributes(
			attribute.String("template", template),
			attribute.String("outcome", outcome),
		))
	}
}
