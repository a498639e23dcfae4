package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/pawpal/api/internal/platform/config"
)

const defaultTimeout = 10 * time.Second

// Provider owns the Mongo client and the application database handle.
type Provider struct {
	client   *mongo.Client
	database *mongo.Database
	timeout  time.Duration
}

// Connect dials Mongo and verifies the primary is reachable.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Provider, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, errors.New("mongodb: uri is required")
	}
	name := strings.TrimSpace(cfg.Database)
	if name == "" {
		return nil, errors.New("mongodb: database is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetWriteConcern(writeconcern.Majority())

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	if err := client.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: ping: %w", err)
	}
	return &Provider{client: client, database: client.Database(name), timeout: timeout}, nil
}

// Database returns the application database.
func (p *Provider) Database() *mongo.Database {
	return p.database
}

// Collection returns a collection handle.
func (p *Provider) Collection(name string) *mongo.Collection {
	return p.database.Collection(name)
}

// Ping checks the primary for readiness probes.
func (p *Provider) Ping(ctx context.Context) error {
	return WrapError("ping", p.client.Ping(ctx, readpref.Primary()))
}

// Close disconnects the client.
func (p *Provider) Close(ctx context.Context) error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Disconnect(ctx)
}
