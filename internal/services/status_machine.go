package services

import (
	"fmt"

	domain "github.com/pawpal/api/internal/domain"
)

// orderStatusSequence orders statuses for forward-progress checks. Only indices within the
// pending..delivered chain are compared.
var orderStatusSequence = map[domain.OrderStatus]int{
	domain.OrderStatusCancelled:  0,
	domain.OrderStatusPending:    1,
	domain.OrderStatusConfirmed:  2,
	domain.OrderStatusDelivering: 3,
	domain.OrderStatusDelivered:  4,
	domain.OrderStatusFailed:     5,
}

var terminalOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusCancelled: true,
	domain.OrderStatusDelivered: true,
	domain.OrderStatusFailed:    true,
}

var cancellableOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusPending:   true,
	domain.OrderStatusConfirmed: true,
}

var bookingStateTransitions = map[domain.BookingStatus][]domain.BookingStatus{
	domain.BookingStatusPending:   {domain.BookingStatusConfirmed, domain.BookingStatusCancelled},
	domain.BookingStatusConfirmed: {domain.BookingStatusCompleted, domain.BookingStatusCancelled},
}

// IsKnownOrderStatus reports whether status is part of the order lifecycle.
func IsKnownOrderStatus(status domain.OrderStatus) bool {
	_, ok := orderStatusSequence[status]
	return ok
}

// IsTerminalOrderStatus reports whether no further transitions are allowed.
func IsTerminalOrderStatus(status domain.OrderStatus) bool {
	return terminalOrderStatuses[status]
}

// CheckOrderTransition validates moving an order from current to target. It returns noop=true
// when the order already holds target.
func CheckOrderTransition(current, target domain.OrderStatus) (noop bool, err error) {
	if !IsKnownOrderStatus(target) {
		return false, validationError("unknown order status %q", target)
	}
	if current == target {
		return true, nil
	}
	if terminalOrderStatuses[current] {
		return false, fmt.Errorf("%w: order is %s", ErrIllegalTransition, current)
	}

	switch target {
	case domain.OrderStatusCancelled:
		if !cancellableOrderStatuses[current] {
			return false, fmt.Errorf("%w: cannot cancel order in %s", ErrIllegalTransition, current)
		}
		return false, nil
	case domain.OrderStatusFailed:
		return false, nil
	}

	if orderStatusSequence[target] < orderStatusSequence[current] {
		return false, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, target)
	}
	return false, nil
}

// requiresCompensation reports whether entering status must release stock and promotion usage.
func requiresCompensation(status domain.OrderStatus) bool {
	return status == domain.OrderStatusCancelled || status == domain.OrderStatusFailed
}

// IsKnownBookingStatus reports whether status is part of the booking lifecycle.
func IsKnownBookingStatus(status domain.BookingStatus) bool {
	switch status {
	case domain.BookingStatusPending, domain.BookingStatusConfirmed, domain.BookingStatusCompleted, domain.BookingStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminalBookingStatus reports whether the booking can no longer be edited.
func IsTerminalBookingStatus(status domain.BookingStatus) bool {
	return status == domain.BookingStatusCompleted || status == domain.BookingStatusCancelled
}

// CheckBookingTransition validates moving a booking from current to target.
func CheckBookingTransition(current, target domain.BookingStatus) (noop bool, err error) {
	if !IsKnownBookingStatus(target) {
		return false, validationError("unknown booking status %q", target)
	}
	if current == target {
		return true, nil
	}
	for _, allowed := range bookingStateTransitions[current] {
		if allowed == target {
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: booking %s -> %s", ErrIllegalTransition, current, target)
}
