package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	TemplateOrderConfirmation  = "order-confirmation"
	TemplateOrderStatusUpdated = "order-status-updated"
	TemplateBookingConfirmed   = "booking-confirmation"

	notificationEventSent    = "notification.sent"
	notificationEventFailed  = "notification.failed"
	notificationEventDropped = "notification.dropped"

	defaultNotificationTimeout     = 10 * time.Second
	defaultNotificationConcurrency = 16
)

// NotificationDispatcherDeps bundles collaborators for the dispatcher.
type NotificationDispatcherDeps struct {
	Notifier    Notifier
	Timeout     time.Duration
	Concurrency int
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// NotificationDispatcher sends notifications in the background. Sends run on a context detached
// from the request so they outlive it; failures are logged and never returned.
type NotificationDispatcher struct {
	notifier Notifier
	timeout  time.Duration
	slots    chan struct{}
	logger   func(context.Context, string, map[string]any)
	printer  *message.Printer

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewNotificationDispatcher constructs a dispatcher. A nil notifier yields a dispatcher that only logs.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) *NotificationDispatcher {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultNotificationTimeout
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = defaultNotificationConcurrency
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &NotificationDispatcher{
		notifier: deps.Notifier,
		timeout:  timeout,
		slots:    make(chan struct{}, concurrency),
		logger:   logger,
		printer:  message.NewPrinter(language.Vietnamese),
	}
}

// Dispatch queues msg for delivery and returns immediately. When every slot is busy the message
// is dropped and logged.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, msg NotificationMessage) {
	if d == nil {
		return
	}
	if strings.TrimSpace(msg.ID) == "" {
		msg.ID = uuid.NewString()
	}
	if d.notifier == nil || strings.TrimSpace(msg.Recipient) == "" {
		d.logger(ctx, notificationEventDropped, map[string]any{
			"template":  msg.Template,
			"messageId": msg.ID,
			"reason":    "no notifier or recipient",
		})
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger(ctx, notificationEventDropped, map[string]any{"template": msg.Template, "messageId": msg.ID, "reason": "shutdown"})
		return
	}
	select {
	case d.slots <- struct{}{}:
	default:
		d.mu.Unlock()
		d.logger(ctx, notificationEventDropped, map[string]any{"template": msg.Template, "messageId": msg.ID, "reason": "saturated"})
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				d.logger(sendCtx, notificationEventFailed, map[string]any{"template": msg.Template, "messageId": msg.ID, "panic": r})
			}
		}()

		if err := d.notifier.SendTemplate(sendCtx, msg); err != nil {
			recordNotification(sendCtx, msg.Template, "failed")
			d.logger(sendCtx, notificationEventFailed, map[string]any{
				"template":  msg.Template,
				"messageId": msg.ID,
				"error":     err.Error(),
			})
			return
		}
		recordNotification(sendCtx, msg.Template, "sent")
		d.logger(sendCtx, notificationEventSent, map[string]any{"template": msg.Template, "messageId": msg.ID})
	}()
}

// Shutdown stops accepting messages and waits for in-flight sends or ctx expiry.
func (d *NotificationDispatcher) Shutdown(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("notification dispatcher: shutdown interrupted"), ctx.Err())
	}
}

// Backlog reports how many sends are in flight and how many may run at once.
func (d *NotificationDispatcher) Backlog() (inFlight, capacity int) {
	if d == nil {
		return 0, 0
	}
	return len(d.slots), cap(d.slots)
}

// FormatAmount renders a VND amount with locale grouping, e.g. "205.000 ₫".
func (d *NotificationDispatcher) FormatAmount(amount int64) string {
	if d == nil || d.printer == nil {
		return message.NewPrinter(language.Vietnamese).Sprintf("%d ₫", amount)
	}
	return d.printer.Sprintf("%d ₫", amount)
}

func orderConfirmationMessage(d *NotificationDispatcher, order Order, recipient string) NotificationMessage {
	items := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]any{
			"name":      item.Name,
			"quantity":  item.Quantity,
			"price":     d.FormatAmount(item.Price),
			"lineTotal": d.FormatAmount(item.LineTotal()),
		})
	}
	data := map[string]any{
		"orderId":     order.ID,
		"customer":    order.Address.FullName,
		"items":       items,
		"subtotal":    d.FormatAmount(order.Subtotal),
		"shippingFee": d.FormatAmount(order.ShippingFee),
		"discount":    d.FormatAmount(order.DiscountAmount),
		"finalAmount": d.FormatAmount(order.FinalAmount),
		"payment":     string(order.Payment.Method),
	}
	if order.PromotionCode != nil {
		data["promotionCode"] = *order.PromotionCode
	}
	return NotificationMessage{
		Template:  TemplateOrderConfirmation,
		Recipient: recipient,
		Subject:   "PawPal order " + order.ID + " received",
		Data:      data,
	}
}

func orderStatusMessage(order Order, previous OrderStatus, recipient string) NotificationMessage {
	return NotificationMessage{
		Template:  TemplateOrderStatusUpdated,
		Recipient: recipient,
		Subject:   "PawPal order " + order.ID + " is " + string(order.Status),
		Data: map[string]any{
			"orderId":        order.ID,
			"previousStatus": string(previous),
			"status":         string(order.Status),
			"paymentStatus":  string(order.Payment.Status),
		},
	}
}

func bookingConfirmationMessage(d *NotificationDispatcher, booking Booking, loc *time.Location) NotificationMessage {
	if loc == nil {
		loc = time.UTC
	}
	pets := make([]map[string]any, 0, len(booking.Pets))
	for _, pet := range booking.Pets {
		pets = append(pets, map[string]any{
			"pet":      pet.PetName,
			"resource": pet.ResourceName,
			"subTotal": d.FormatAmount(pet.SubTotal),
		})
	}
	return NotificationMessage{
		Template:  TemplateBookingConfirmed,
		Recipient: booking.User.Email,
		Subject:   "PawPal booking " + booking.ID + " for " + booking.SolutionName,
		Data: map[string]any{
			"bookingId":   booking.ID,
			"customer":    booking.User.Name,
			"solution":    booking.SolutionName,
			"dateStarts":  booking.DateStarts.In(loc).Format("02/01/2006 15:04"),
			"dateEnd":     booking.DateEnd.In(loc).Format("02/01/2006 15:04"),
			"pets":        pets,
			"totalAmount": d.FormatAmount(booking.TotalAmount),
			"hireShipper": booking.HireShipper,
			"status":      string(booking.Status),
		},
	}
}
