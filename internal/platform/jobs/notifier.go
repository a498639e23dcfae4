package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/pawpal/api/internal/platform/config"
	"github.com/pawpal/api/internal/services"
)

// Closer releases transport resources.
type Closer func() error

// NewNotifier builds the notifier selected by cfg.Driver.
func NewNotifier(ctx context.Context, cfg config.NotificationConfig, logger *zap.Logger) (services.Notifier, Closer, error) {
	noop := func() error { return nil }
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", config.NotifyLog:
		return NewLogNotifier(logger), noop, nil
	case config.NotifyPubSub:
		client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("jobs: pubsub client: %w", err)
		}
		notifier, err := NewPubSubNotifier(client.Topic(cfg.PubSubTopic))
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return notifier, func() error {
			return errors.Join(notifier.Close(), client.Close())
		}, nil
	case config.NotifyKafka:
		notifier, err := NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		return notifier, notifier.Close, nil
	case config.NotifySNS:
		notifier, err := NewSNSNotifier(ctx, cfg.AWSRegion, cfg.SNSTopicARN)
		if err != nil {
			return nil, nil, err
		}
		return notifier, noop, nil
	default:
		return nil, nil, fmt.Errorf("jobs: unsupported notify driver %q", cfg.Driver)
	}
}
