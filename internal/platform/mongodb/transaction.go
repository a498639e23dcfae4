package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// UnitOfWork runs functions inside a single-attempt multi-document transaction. Transactions
// require a replica set or sharded cluster.
type UnitOfWork struct {
	client *mongo.Client
}

// NewUnitOfWork binds a UnitOfWork to the provider's client.
func NewUnitOfWork(provider *Provider) *UnitOfWork {
	if provider == nil {
		return &UnitOfWork{}
	}
	return &UnitOfWork{client: provider.client}
}

// RunInTx starts a session transaction, runs fn with a session-bound context and commits.
// Nested calls join the outer session. Transient write conflicts surface as conflicts.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("mongodb: unit of work function is nil")
	}
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	if u == nil || u.client == nil {
		return WrapError("transaction", errors.New("mongodb: client is nil"))
	}

	session, err := u.client.StartSession()
	if err != nil {
		return WrapError("transaction.start", err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := session.StartTransaction(txOpts); err != nil {
		return WrapError("transaction.start", err)
	}

	sessCtx := mongo.NewSessionContext(ctx, session)
	if err := fn(sessCtx); err != nil {
		_ = session.AbortTransaction(context.WithoutCancel(ctx))
		return err
	}
	if err := session.CommitTransaction(sessCtx); err != nil {
		_ = session.AbortTransaction(context.WithoutCancel(ctx))
		return WrapError("transaction.commit", err)
	}
	return nil
}
