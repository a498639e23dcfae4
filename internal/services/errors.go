package services

import (
	"errors"
	"fmt"

	"github.com/pawpal/api/internal/platform/pagination"
	"github.com/pawpal/api/internal/repositories"
)

var (
	// ErrValidation signals missing or malformed input rejected before any transaction starts.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced product, promotion, resource, order or booking is absent.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a product cannot cover the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidPromotion indicates the promotion code does not apply to the order.
	ErrInvalidPromotion = errors.New("invalid promotion")
	// ErrPromotionAlreadyUsed indicates the caller already redeemed the promotion.
	ErrPromotionAlreadyUsed = errors.New("promotion already used")
	// ErrPromotionLimitReached indicates the promotion usage limit is exhausted.
	ErrPromotionLimitReached = errors.New("promotion usage limit reached")
	// ErrOutOfHours indicates the booking window falls outside the resource working hours.
	ErrOutOfHours = errors.New("outside working hours")
	// ErrOverlap indicates the pet already holds an overlapping booking.
	ErrOverlap = errors.New("overlapping booking")
	// ErrIllegalTransition indicates a forbidden status change.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrDependencyUnavailable indicates a directory, datastore or other collaborator failed.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrConflict indicates a concurrent write aborted the transaction; callers may retry.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates the caller may not act on the resource.
	ErrForbidden = errors.New("forbidden")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// mapRepositoryError translates repository categorisation into the service error taxonomy.
func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrDependencyUnavailable) {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %w", ErrConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: repository unavailable: %w", ErrDependencyUnavailable, err)
		}
	}
	return err
}

// isNotFound reports whether the repository error marks a missing document.
func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
