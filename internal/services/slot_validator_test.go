package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/pawpal/api/internal/domain"
)

func newSlotFixture(t *testing.T) (*memStore, *SlotValidator, *time.Location) {
	t.Helper()
	loc := time.FixedZone("ICT", 7*3600)
	store := newMemStore()
	store.resources["groomer"] = domain.Resource{
		ID:            "groomer",
		SolutionID:    "spa",
		Name:          "Groomer A",
		StartTime:     "08:00",
		EndTime:       "17:30",
		AvailableDays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
	store.resources["suite"] = domain.Resource{ID: "suite", SolutionID: "hotel", Name: "Suite", StartTime: "08:00", EndTime: "17:00"}
	validator, err := NewSlotValidator(SlotValidatorDeps{
		Resources: memResources{store},
		Bookings:  memBookings{store},
		Location:  loc,
	})
	if err != nil {
		t.Fatalf("NewSlotValidator: %v", err)
	}
	return store, validator, loc
}

func TestSlotValidatorWorkingHours(t *testing.T) {
	_, validator, loc := newSlotFixture(t)
	spa := Solution{ID: "spa", Type: "beauty", Duration: 60}
	ctx := context.Background()

	// Monday 2025-06-02 in ICT.
	inside := time.Date(2025, 6, 2, 9, 0, 0, 0, loc)
	if _, err := validator.Validate(ctx, SlotRequest{PetID: "p1", Solution: spa, ResourceID: "groomer", Start: inside, End: inside.Add(time.Hour)}); err != nil {
		t.Fatalf("expected slot inside hours to pass, got %v", err)
	}

	edge := time.Date(2025, 6, 2, 16, 30, 0, 0, loc)
	if _, err := validator.Validate(ctx, SlotRequest{PetID: "p1", Solution: spa, ResourceID: "groomer", Start: edge, End: edge.Add(time.Hour)}); err != nil {
		t.Fatalf("expected slot ending at closing time to pass, got %v", err)
	}

	pastClosing := time.Date(2025, 6, 2, 16, 30, 30, 0, loc)
	if _, err := validator.Validate(ctx, SlotRequest{PetID: "p1", Solution: spa, ResourceID: "groomer", Start: pastClosing, End: pastClosing.Add(time.Hour)}); !errors.Is(err, ErrOutOfHours) {
		t.Fatalf("expected slot ending 30s after closing to be out of hours, got %v", err)
	}
	beforeOpening := time.Date(2025, 6, 2, 7, 59, 59, 0, loc)
	if _, err := validator.Validate(ctx, SlotRequest{PetID: "p1", Solution: spa, ResourceID: "groomer", Start: beforeOpening, End: beforeOpening.Add(time.Hour)}); !errors.Is(err, ErrOutOfHours) {
		t.Fatalf("expected slot starting 1s before opening to be out of hours, got %v", err)
	}

	late := time.Date(2025, 6, 2, 17, 0, 0, 0, loc)
	if _, err := validator.Validate(ctx, SlotRequest{PetID: "p1", Solution: spa, ResourceID: "groomer", Start: late, End: late.Add(time.Hour)}); !errors.Is(err, ErrOutOfHours) {
		t.Fatalf("expected out of hours, got %v", err)
	}

	// 01:30 UTC is 08:30 ICT; the wall clock in the configured zone decides.
	utcMorning := time.Date(2025, 6, 2, 1, 30, 0, 0, time.UTC)
	if _, err := validator.Validate(ctx, SlotRequest{PetID: "p1", Solution: spa, ResourceID: "groomer", Start: utcMorning, End: utcMorning.Add(time.Hour)}); err != nil {
		t.Fatalf("expected UTC input to be compared in local time, got %v", err)
	}

	sunday := time.Date(2025, 6, 1, 9, 0, 0, 0, loc)
	if _, err := validator.Validate(ctx, SlotRequest{PetID: "p1", Solution: spa, ResourceID: "groomer", Start: sunday, End: sunday.Add(time.Hour)}); !errors.Is(err, ErrOutOfHours) {
		t.Fatalf("expected closed day to be out of hours, got %v", err)
	}

	hotel := Solution{ID: "hotel", Type: "hotel", Duration: 24 * 60}
	overnight := time.Date(2025, 6, 2, 20, 0, 0, 0, loc)
	if _, err := validator.Validate(ctx, SlotRequest{PetID: "p1", Solution: hotel, ResourceID: "suite", Start: overnight, End: overnight.Add(24 * time.Hour)}); err != nil {
		t.Fatalf("hotel solutions are not bound to hours, got %v", err)
	}
}

func TestSlotValidatorNotFound(t *testing.T) {
	_, validator, loc := newSlotFixture(t)
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, loc)

	_, err := validator.Validate(context.Background(), SlotRequest{PetID: "p1", Solution: Solution{ID: "spa", Type: "beauty"}, ResourceID: "missing", Start: start, End: start.Add(time.Hour)})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = validator.Validate(context.Background(), SlotRequest{PetID: "p1", Solution: Solution{ID: "spa", Type: "beauty"}, ResourceID: "suite", Start: start, End: start.Add(time.Hour)})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected resource of another solution to be not found, got %v", err)
	}
}

func TestSlotValidatorOverlap(t *testing.T) {
	store, validator, loc := newSlotFixture(t)
	spa := Solution{ID: "spa", Type: "beauty", Duration: 60}
	existingStart := time.Date(2025, 6, 2, 10, 0, 0, 0, loc)
	store.bookings["b1"] = domain.Booking{
		ID:         "b1",
		SolutionID: "spa",
		DateStarts: existingStart,
		DateEnd:    existingStart.Add(time.Hour),
		Pets:       []domain.BookingPet{{PetID: "p1", ResourceID: "groomer"}},
		Status:     domain.BookingStatusPending,
	}
	ctx := context.Background()

	overlapping := existingStart.Add(45 * time.Minute)
	if _, err := validator.Validate(ctx, SlotRequest{PetID: "p1", Solution: spa, ResourceID: "groomer", Start: overlapping, End: overlapping.Add(time.Hour)}); !errors.Is(err, ErrOverlap) {
		t.Fatalf("expected overlap, got %v", err)
	}

	adjacent := existingStart.Add(time.Hour)
	if _, err := validator.Validate(ctx, SlotRequest{PetID: "p1", Solution: spa, ResourceID: "groomer", Start: adjacent, End: adjacent.Add(time.Hour)}); err != nil {
		t.Fatalf("half-open windows touching at the edge must not overlap, got %v", err)
	}

	if _, err := validator.Validate(ctx, SlotRequest{PetID: "p2", Solution: spa, ResourceID: "groomer", Start: overlapping, End: overlapping.Add(time.Hour)}); err != nil {
		t.Fatalf("other pets are unaffected, got %v", err)
	}

	if _, err := validator.Validate(ctx, SlotRequest{PetID: "p1", Solution: spa, ResourceID: "groomer", Start: overlapping, End: overlapping.Add(time.Hour), ExcludeBookingID: "b1"}); err != nil {
		t.Fatalf("the booking being edited must be ignored, got %v", err)
	}

	cancelled := store.bookings["b1"]
	cancelled.Status = domain.BookingStatusCancelled
	store.bookings["b1"] = cancelled
	if _, err := validator.Validate(ctx, SlotRequest{PetID: "p1", Solution: spa, ResourceID: "groomer", Start: overlapping, End: overlapping.Add(time.Hour)}); err != nil {
		t.Fatalf("cancelled bookings do not block, got %v", err)
	}
}

func TestParseClock(t *testing.T) {
	if got, err := parseClock("08:30"); err != nil || got != 510 {
		t.Fatalf("parseClock(08:30) = %d, %v", got, err)
	}
	if got, err := parseClock("24:00"); err != nil || got != 1440 {
		t.Fatalf("parseClock(24:00) = %d, %v", got, err)
	}
	for _, bad := range []string{"", "8", "25:00", "10:75", "ab:cd"} {
		if _, err := parseClock(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
