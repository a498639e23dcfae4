package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// Error implements repositories.RepositoryError for Mongo backed repositories.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.err }

// IsNotFound reports whether the error represents a missing document.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict reports whether the error represents a duplicate key or write conflict.
func (e *Error) IsConflict() bool { return e != nil && e.conflict }

// IsUnavailable reports whether the error represents a transient backend outage.
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// ErrNoMatch marks an update that matched no document.
var ErrNoMatch = errors.New("mongodb: no document matched")

// WrapError classifies driver errors. Context cancellations are passed through.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr *Error
	if errors.As(err, &repoErr) {
		return repoErr
	}

	e := &Error{op: op, err: err}
	var labeled mongo.LabeledError
	switch {
	case errors.Is(err, mongo.ErrNoDocuments), errors.Is(err, ErrNoMatch):
		e.notFound = true
	case mongo.IsDuplicateKeyError(err):
		e.conflict = true
	case errors.As(err, &labeled) && labeled.HasErrorLabel("TransientTransactionError"):
		e.conflict = true
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		e.unavailable = true
	case errors.Is(err, mongo.ErrClientDisconnected):
		e.unavailable = true
	}
	return e
}
