package services

import (
	"errors"
	"testing"

	domain "github.com/pawpal/api/internal/domain"
)

func TestCheckOrderTransition(t *testing.T) {
	cases := []struct {
		from, to domain.OrderStatus
		noop     bool
		wantErr  error
	}{
		{domain.OrderStatusPending, domain.OrderStatusConfirmed, false, nil},
		{domain.OrderStatusPending, domain.OrderStatusDelivering, false, nil},
		{domain.OrderStatusConfirmed, domain.OrderStatusPending, false, ErrIllegalTransition},
		{domain.OrderStatusPending, domain.OrderStatusCancelled, false, nil},
		{domain.OrderStatusConfirmed, domain.OrderStatusCancelled, false, nil},
		{domain.OrderStatusDelivering, domain.OrderStatusCancelled, false, ErrIllegalTransition},
		{domain.OrderStatusDelivering, domain.OrderStatusFailed, false, nil},
		{domain.OrderStatusPending, domain.OrderStatusFailed, false, nil},
		{domain.OrderStatusDelivering, domain.OrderStatusDelivered, false, nil},
		{domain.OrderStatusDelivered, domain.OrderStatusFailed, false, ErrIllegalTransition},
		{domain.OrderStatusCancelled, domain.OrderStatusPending, false, ErrIllegalTransition},
		{domain.OrderStatusFailed, domain.OrderStatusDelivered, false, ErrIllegalTransition},
		{domain.OrderStatusCancelled, domain.OrderStatusCancelled, true, nil},
		{domain.OrderStatusDelivering, domain.OrderStatusDelivering, true, nil},
		{domain.OrderStatusPending, "shipped", false, ErrValidation},
	}
	for _, tc := range cases {
		noop, err := CheckOrderTransition(tc.from, tc.to)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if noop != tc.noop {
			t.Fatalf("%s -> %s: noop = %v, want %v", tc.from, tc.to, noop, tc.noop)
		}
	}
}

func TestTerminalOrderStatusesAbsorb(t *testing.T) {
	for _, terminal := range []domain.OrderStatus{domain.OrderStatusCancelled, domain.OrderStatusDelivered, domain.OrderStatusFailed} {
		for target := range orderStatusSequence {
			if target == terminal {
				continue
			}
			if _, err := CheckOrderTransition(terminal, target); !errors.Is(err, ErrIllegalTransition) {
				t.Fatalf("%s -> %s should be rejected, got %v", terminal, target, err)
			}
		}
	}
}

func TestCheckBookingTransition(t *testing.T) {
	cases := []struct {
		from, to domain.BookingStatus
		ok       bool
	}{
		{domain.BookingStatusPending, domain.BookingStatusConfirmed, true},
		{domain.BookingStatusConfirmed, domain.BookingStatusCompleted, true},
		{domain.BookingStatusPending, domain.BookingStatusCancelled, true},
		{domain.BookingStatusConfirmed, domain.BookingStatusCancelled, true},
		{domain.BookingStatusPending, domain.BookingStatusCompleted, false},
		{domain.BookingStatusCompleted, domain.BookingStatusCancelled, false},
		{domain.BookingStatusCancelled, domain.BookingStatusPending, false},
		{domain.BookingStatusConfirmed, domain.BookingStatusPending, false},
	}
	for _, tc := range cases {
		_, err := CheckBookingTransition(tc.from, tc.to)
		if tc.ok && err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.ok && !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("%s -> %s: expected illegal transition, got %v", tc.from, tc.to, err)
		}
	}
	if noop, err := CheckBookingTransition(domain.BookingStatusPending, domain.BookingStatusPending); err != nil || !noop {
		t.Fatalf("same status should be a no-op, got noop=%v err=%v", noop, err)
	}
}
