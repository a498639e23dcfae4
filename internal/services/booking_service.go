package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/pawpal/api/internal/domain"
	"github.com/pawpal/api/internal/repositories"
)

const (
	bookingEventCreated = "booking.created"
	bookingEventUpdated = "booking.updated"
)

// BookingServiceDeps bundles collaborators required to construct the booking service.
type BookingServiceDeps struct {
	Bookings      repositories.BookingRepository
	Solutions     repositories.SolutionRepository
	Slots         *SlotValidator
	Directory     Directory
	UnitOfWork    repositories.UnitOfWork
	Notifications *NotificationDispatcher
	Location      *time.Location
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type bookingService struct {
	bookings      repositories.BookingRepository
	solutions     repositories.SolutionRepository
	slots         *SlotValidator
	directory     Directory
	unitOfWork    repositories.UnitOfWork
	notifications *NotificationDispatcher
	location      *time.Location
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewBookingService wires dependencies into a concrete BookingService implementation.
func NewBookingService(deps BookingServiceDeps) (BookingService, error) {
	if deps.Bookings == nil {
		return nil, errors.New("booking service: booking repository is required")
	}
	if deps.Solutions == nil {
		return nil, errors.New("booking service: solution repository is required")
	}
	if deps.Slots == nil {
		return nil, errors.New("booking service: slot validator is required")
	}
	if deps.Directory == nil {
		return nil, errors.New("booking service: directory is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &bookingService{
		bookings:      deps.Bookings,
		solutions:     deps.Solutions,
		slots:         deps.Slots,
		directory:     deps.Directory,
		unitOfWork:    unit,
		notifications: deps.Notifications,
		location:      loc,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// bookingDraft is the input shared by create and update.
type bookingDraft struct {
	BookingID  string
	SolutionID string
	UserID     string
	Start      time.Time
	Pets       []BookingPetInput
}

// bookingLookups holds directory data fetched before the transaction.
type bookingLookups struct {
	user User
	pets map[string]Pet
}

// preparedBooking is the validated and priced outcome of prepareBooking.
type preparedBooking struct {
	solution Solution
	end      time.Time
	pets     []BookingPet
	total    int64
}

func (s *bookingService) CreateBooking(ctx context.Context, cmd CreateBookingCommand) (Booking, error) {
	draft := bookingDraft{
		SolutionID: strings.TrimSpace(cmd.SolutionID),
		UserID:     strings.TrimSpace(cmd.UserID),
		Start:      cmd.DateStarts,
		Pets:       cmd.Pets,
	}
	if draft.SolutionID == "" {
		return Booking{}, validationError("solutionId is required")
	}
	if draft.UserID == "" || draft.UserID == domain.GuestUserID {
		return Booking{}, validationError("userId is required")
	}
	if err := validateDraft(draft); err != nil {
		return Booking{}, err
	}

	lookups, err := s.resolveDirectory(ctx, draft.UserID, draft.Pets)
	if err != nil {
		return Booking{}, err
	}

	now := s.now()
	booking := Booking{
		ID:          s.newID(),
		User:        userSnapshot(lookups.user),
		SolutionID:  draft.SolutionID,
		DateStarts:  draft.Start.UTC(),
		HireShipper: cmd.HireShipper,
		Status:      domain.BookingStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		prepared, err := s.prepareBooking(txCtx, draft, lookups)
		if err != nil {
			return err
		}
		applyPrepared(&booking, prepared)
		return mapRepositoryError(s.bookings.Insert(txCtx, booking))
	})
	if err != nil {
		return Booking{}, err
	}

	s.logger(ctx, bookingEventCreated, map[string]any{
		"bookingId":   booking.ID,
		"userId":      booking.User.ID,
		"solutionId":  booking.SolutionID,
		"pets":        len(booking.Pets),
		"totalAmount": booking.TotalAmount,
	})
	recordBooking(ctx, "create")
	s.notifications.Dispatch(ctx, bookingConfirmationMessage(s.notifications, booking, s.location))
	return booking, nil
}

func (s *bookingService) UpdateBooking(ctx context.Context, cmd UpdateBookingCommand) (Booking, error) {
	bookingID := strings.TrimSpace(cmd.BookingID)
	if bookingID == "" {
		return Booking{}, validationError("booking id is required")
	}
	if cmd.DateStarts == nil && cmd.Pets == nil && cmd.HireShipper == nil && cmd.Status == nil {
		return Booking{}, validationError("no changes requested")
	}

	now := s.now()
	if cmd.DateStarts != nil && cmd.DateStarts.In(s.location).Before(now.In(s.location)) {
		return Booking{}, validationError("dateStarts must not be in the past")
	}

	current, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return Booking{}, mapRepositoryError(err)
	}
	if err := authorizeBookingUpdate(current, cmd); err != nil {
		return Booking{}, err
	}
	if IsTerminalBookingStatus(current.Status) {
		return Booking{}, fmt.Errorf("%w: booking is %s", ErrIllegalTransition, current.Status)
	}

	reschedule := cmd.DateStarts != nil || cmd.Pets != nil
	draft := bookingDraft{
		BookingID:  current.ID,
		SolutionID: current.SolutionID,
		UserID:     current.User.ID,
		Start:      current.DateStarts,
		Pets:       petInputs(current.Pets),
	}
	if cmd.DateStarts != nil {
		draft.Start = *cmd.DateStarts
	}
	if cmd.Pets != nil {
		draft.Pets = cmd.Pets
	}

	var lookups bookingLookups
	if reschedule {
		if err := validateDraft(draft); err != nil {
			return Booking{}, err
		}
		if lookups, err = s.resolveDirectory(ctx, draft.UserID, draft.Pets); err != nil {
			return Booking{}, err
		}
	}

	var updated Booking
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		booking, err := s.bookings.FindByID(txCtx, bookingID)
		if err != nil {
			return mapRepositoryError(err)
		}
		if !booking.UpdatedAt.Equal(current.UpdatedAt) {
			return fmt.Errorf("%w: booking %s changed concurrently", ErrConflict, bookingID)
		}

		if cmd.Status != nil {
			if _, err := CheckBookingTransition(booking.Status, *cmd.Status); err != nil {
				return err
			}
		}

		if reschedule {
			prepared, err := s.prepareBooking(txCtx, draft, lookups)
			if err != nil {
				return err
			}
			booking.User = userSnapshot(lookups.user)
			booking.DateStarts = draft.Start.UTC()
			applyPrepared(&booking, prepared)
		}
		if cmd.HireShipper != nil {
			booking.HireShipper = *cmd.HireShipper
		}
		if cmd.Status != nil {
			booking.Status = *cmd.Status
		}
		booking.UpdatedAt = now
		updated = booking
		return mapRepositoryError(s.bookings.Update(txCtx, booking))
	})
	if err != nil {
		return Booking{}, err
	}

	s.logger(ctx, bookingEventUpdated, map[string]any{
		"bookingId":   updated.ID,
		"status":      string(updated.Status),
		"rescheduled": reschedule,
		"actorId":     cmd.ActorID,
	})
	recordBooking(ctx, "update")
	if reschedule || (cmd.Status != nil && *cmd.Status != current.Status) {
		s.notifications.Dispatch(ctx, bookingConfirmationMessage(s.notifications, updated, s.location))
	}
	return updated, nil
}

func (s *bookingService) GetBooking(ctx context.Context, bookingID string) (Booking, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return Booking{}, validationError("booking id is required")
	}
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return Booking{}, mapRepositoryError(err)
	}
	return booking, nil
}

func (s *bookingService) ListBookings(ctx context.Context, filter BookingListFilter) (domain.CursorPage[Booking], error) {
	for _, status := range filter.Status {
		if !IsKnownBookingStatus(BookingStatus(status)) {
			return domain.CursorPage[Booking]{}, validationError("unknown booking status %q", status)
		}
	}
	page, err := s.bookings.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Booking]{}, mapRepositoryError(err)
	}
	return page, nil
}

// prepareBooking validates every pet slot and prices the booking. The first failing pet aborts.
func (s *bookingService) prepareBooking(ctx context.Context, draft bookingDraft, lookups bookingLookups) (preparedBooking, error) {
	solution, err := s.solutions.FindByID(ctx, draft.SolutionID)
	if err != nil {
		return preparedBooking{}, mapRepositoryError(err)
	}
	if solution.Duration < 0 {
		return preparedBooking{}, validationError("solution %s has a negative duration", solution.ID)
	}

	start := draft.Start.UTC()
	end := start.Add(time.Duration(solution.Duration) * time.Minute)
	if end.Before(start) {
		return preparedBooking{}, validationError("booking end precedes start")
	}

	out := preparedBooking{
		solution: solution,
		end:      end,
		pets:     make([]BookingPet, 0, len(draft.Pets)),
	}
	for _, input := range draft.Pets {
		petID := strings.TrimSpace(input.PetID)
		resource, err := s.slots.Validate(ctx, SlotRequest{
			PetID:            petID,
			Solution:         solution,
			ResourceID:       strings.TrimSpace(input.ResourceID),
			Start:            start,
			End:              end,
			ExcludeBookingID: draft.BookingID,
		})
		if err != nil {
			return preparedBooking{}, fmt.Errorf("pet %s: %w", petID, err)
		}
		pet := lookups.pets[petID]
		subtotal := PriceBookingPet(solution, resource, pet, start, end)
		out.pets = append(out.pets, BookingPet{
			PetID:        petID,
			PetName:      pet.Name,
			ResourceID:   resource.ID,
			ResourceName: resource.Name,
			SubTotal:     subtotal,
		})
		out.total += subtotal
	}
	return out, nil
}

// resolveDirectory loads the owner and each pet. Any failure other than not-found fails closed.
func (s *bookingService) resolveDirectory(ctx context.Context, userID string, pets []BookingPetInput) (bookingLookups, error) {
	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return bookingLookups{}, directoryError("user", userID, err)
	}
	if !user.Active {
		return bookingLookups{}, fmt.Errorf("%w: account %s is not active", ErrForbidden, userID)
	}

	out := bookingLookups{user: user, pets: make(map[string]Pet, len(pets))}
	for _, input := range pets {
		petID := strings.TrimSpace(input.PetID)
		pet, err := s.directory.GetPet(ctx, userID, petID)
		if err != nil {
			return bookingLookups{}, directoryError("pet", petID, err)
		}
		if pet.OwnerID != "" && pet.OwnerID != userID {
			return bookingLookups{}, fmt.Errorf("%w: pet %s", ErrNotFound, petID)
		}
		out.pets[petID] = pet
	}
	return out, nil
}

func (s *bookingService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return mapRepositoryError(s.unitOfWork.RunInTx(ctx, fn))
}

func (s *bookingService) now() time.Time {
	return s.clock()
}

func validateDraft(draft bookingDraft) error {
	if draft.Start.IsZero() {
		return validationError("dateStarts is required")
	}
	if len(draft.Pets) == 0 {
		return validationError("at least one pet is required")
	}
	seen := make(map[string]struct{}, len(draft.Pets))
	for i, pet := range draft.Pets {
		petID := strings.TrimSpace(pet.PetID)
		if petID == "" {
			return validationError("pets[%d].petId is required", i)
		}
		if strings.TrimSpace(pet.ResourceID) == "" {
			return validationError("pets[%d].resourceId is required", i)
		}
		if _, dup := seen[petID]; dup {
			return validationError("pet %s listed twice", petID)
		}
		seen[petID] = struct{}{}
	}
	return nil
}

func authorizeBookingUpdate(booking Booking, cmd UpdateBookingCommand) error {
	if domain.IsPrivilegedRole(cmd.ActorRole) {
		return nil
	}
	if booking.User.ID != strings.TrimSpace(cmd.ActorID) {
		return fmt.Errorf("%w: booking belongs to another customer", ErrForbidden)
	}
	if cmd.Status != nil && *cmd.Status != domain.BookingStatusCancelled && *cmd.Status != booking.Status {
		return fmt.Errorf("%w: customers may only cancel bookings", ErrForbidden)
	}
	return nil
}

func directoryError(kind, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return fmt.Errorf("%w: %s directory: %v", ErrDependencyUnavailable, kind, err)
}

func applyPrepared(booking *Booking, prepared preparedBooking) {
	booking.SolutionName = prepared.solution.Name
	booking.DateEnd = prepared.end
	booking.Pets = prepared.pets
	booking.TotalAmount = prepared.total
}

func userSnapshot(user User) domain.BookingUser {
	return domain.BookingUser{
		ID:      user.ID,
		Name:    user.Name,
		Email:   user.Email,
		Phone:   user.Phone,
		Address: user.Address,
	}
}

func petInputs(pets []BookingPet) []BookingPetInput {
	out := make([]BookingPetInput, 0, len(pets))
	for _, pet := range pets {
		out = append(out, BookingPetInput{PetID: pet.PetID, ResourceID: pet.ResourceID})
	}
	return out
}
