package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pawpal/api/internal/repositories"
)

// DefaultHoursBoundSolutionTypes lists solution types that must fit inside resource working hours.
var DefaultHoursBoundSolutionTypes = []string{"caring", "cleaning", "beauty"}

// SlotRequest describes one pet/resource assignment to validate.
type SlotRequest struct {
	PetID            string
	Solution         Solution
	ResourceID       string
	Start            time.Time
	End              time.Time
	ExcludeBookingID string
}

// SlotValidatorDeps bundles collaborators required by the slot validator.
type SlotValidatorDeps struct {
	Resources       repositories.ResourceRepository
	Bookings        repositories.BookingRepository
	Location        *time.Location
	HoursBoundTypes []string
}

// SlotValidator checks booking windows against resource hours and existing bookings. It never writes.
type SlotValidator struct {
	resources  repositories.ResourceRepository
	bookings   repositories.BookingRepository
	location   *time.Location
	hoursBound map[string]bool
}

// NewSlotValidator constructs a SlotValidator.
func NewSlotValidator(deps SlotValidatorDeps) (*SlotValidator, error) {
	if deps.Resources == nil {
		return nil, errors.New("slot validator: resource repository is required")
	}
	if deps.Bookings == nil {
		return nil, errors.New("slot validator: booking repository is required")
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	types := deps.HoursBoundTypes
	if len(types) == 0 {
		types = DefaultHoursBoundSolutionTypes
	}
	bound := make(map[string]bool, len(types))
	for _, t := range types {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			bound[t] = true
		}
	}
	return &SlotValidator{
		resources:  deps.Resources,
		bookings:   deps.Bookings,
		location:   loc,
		hoursBound: bound,
	}, nil
}

// Validate returns the resource when the slot is bookable.
func (v *SlotValidator) Validate(ctx context.Context, req SlotRequest) (Resource, error) {
	if req.End.Before(req.Start) {
		return Resource{}, validationError("booking end must not precede start")
	}

	resource, err := v.resources.FindByID(ctx, req.ResourceID)
	if err != nil {
		return Resource{}, mapRepositoryError(err)
	}
	if resource.SolutionID != "" && req.Solution.ID != "" && resource.SolutionID != req.Solution.ID {
		return Resource{}, fmt.Errorf("%w: resource %s does not belong to solution %s", ErrNotFound, req.ResourceID, req.Solution.ID)
	}

	if v.hoursBound[strings.ToLower(strings.TrimSpace(req.Solution.Type))] {
		if err := v.checkWorkingHours(resource, req.Start, req.End); err != nil {
			return Resource{}, err
		}
	}

	existing, err := v.bookings.ListActiveForPet(ctx, req.PetID, req.Solution.ID)
	if err != nil {
		return Resource{}, mapRepositoryError(err)
	}
	for _, booking := range existing {
		if booking.ID == req.ExcludeBookingID {
			continue
		}
		if booking.DateStarts.Before(req.End) && booking.DateEnd.After(req.Start) {
			return Resource{}, fmt.Errorf("%w: pet %s already booked %s - %s", ErrOverlap, req.PetID,
				booking.DateStarts.In(v.location).Format(time.RFC3339), booking.DateEnd.In(v.location).Format(time.RFC3339))
		}
	}
	return resource, nil
}

func (v *SlotValidator) checkWorkingHours(resource Resource, start, end time.Time) error {
	open, err := parseClock(resource.StartTime)
	if err != nil {
		return fmt.Errorf("%w: resource %s start time: %v", ErrOutOfHours, resource.ID, err)
	}
	closing, err := parseClock(resource.EndTime)
	if err != nil {
		return fmt.Errorf("%w: resource %s end time: %v", ErrOutOfHours, resource.ID, err)
	}

	localStart := start.In(v.location)
	localEnd := end.In(v.location)
	if !sameDay(localStart, localEnd) && !isMidnight(localEnd, localStart) {
		return fmt.Errorf("%w: booking crosses midnight", ErrOutOfHours)
	}
	if len(resource.AvailableDays) > 0 && !slices.Contains(resource.AvailableDays, localStart.Weekday()) {
		return fmt.Errorf("%w: resource closed on %s", ErrOutOfHours, localStart.Weekday())
	}

	y, m, d := localStart.Date()
	openAt := time.Date(y, m, d, open/60, open%60, 0, 0, v.location)
	closeAt := time.Date(y, m, d, closing/60, closing%60, 0, 0, v.location)
	if localStart.Before(openAt) || localEnd.After(closeAt) {
		return fmt.Errorf("%w: %s-%s outside %s-%s", ErrOutOfHours,
			localStart.Format("15:04:05"), localEnd.Format("15:04:05"), resource.StartTime, resource.EndTime)
	}
	return nil
}

// parseClock converts "HH:MM" to minutes past midnight. "24:00" is accepted as end of day.
func parseClock(value string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q", value)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q", value)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q", value)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock %q", value)
	}
	return h*60 + m, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// isMidnight reports whether end is exactly the midnight following start's day.
func isMidnight(end, start time.Time) bool {
	if end.Hour() != 0 || end.Minute() != 0 || end.Second() != 0 || end.Nanosecond() != 0 {
		return false
	}
	y, m, d := start.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, start.Location())
	return end.Equal(next)
}
