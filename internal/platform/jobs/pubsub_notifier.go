package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/pawpal/api/internal/services"
)

// PubSubNotifier publishes notification envelopes to a Pub/Sub topic.
type PubSubNotifier struct {
	topic *pubsub.Topic
	now   func() time.Time
}

var _ services.Notifier = (*PubSubNotifier)(nil)

// NewPubSubNotifier constructs a Pub/Sub backed notifier.
func NewPubSubNotifier(topic *pubsub.Topic) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub notifier: topic is required")
	}
	return &PubSubNotifier{topic: topic, now: time.Now}, nil
}

// SendTemplate publishes msg and waits for the server ack.
func (p *PubSubNotifier) SendTemplate(ctx context.Context, msg services.NotificationMessage) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub notifier: not initialised")
	}
	env, data, err := encodeEnvelope(msg, p.now())
	if err != nil {
		return fmt.Errorf("pubsub notifier: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes(env),
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close flushes pending publishes.
func (p *PubSubNotifier) Close() error {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
	return nil
}
