package mongodb

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func TestWrapErrorClassification(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{"no documents", mongo.ErrNoDocuments, true, false, false},
		{"no match", fmt.Errorf("adjust: %w", ErrNoMatch), true, false, false},
		{"duplicate key", mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "dup"}}}, false, true, false},
		{"transient txn", mongo.CommandError{Code: 112, Name: "WriteConflict", Labels: []string{"TransientTransactionError"}}, false, true, false},
		{"disconnected", mongo.ErrClientDisconnected, false, false, true},
	}
	for _, tc := range cases {
		err := WrapError("orders.insert", tc.err)
		var repoErr *Error
		if !errors.As(err, &repoErr) {
			t.Fatalf("%s: expected *Error, got %T", tc.name, err)
		}
		if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
			t.Fatalf("%s: unexpected classification %+v", tc.name, repoErr)
		}
	}

	if err := WrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected passthrough, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestUnitOfWorkWithoutClient(t *testing.T) {
	uow := NewUnitOfWork(nil)
	if err := uow.RunInTx(context.Background(), func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected error without client")
	}
}
