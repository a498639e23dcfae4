package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/pawpal/api/internal/services"
)

type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes notification envelopes to an SNS topic.
type SNSNotifier struct {
	client   snsPublisher
	topicARN string
	now      func() time.Time
}

var _ services.Notifier = (*SNSNotifier)(nil)

// NewSNSNotifier loads the default AWS configuration and targets topicARN.
func NewSNSNotifier(ctx context.Context, region, topicARN string) (*SNSNotifier, error) {
	if strings.TrimSpace(topicARN) == "" {
		return nil, errors.New("sns notifier: topic arn is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region = strings.TrimSpace(region); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sns notifier: load aws config: %w", err)
	}
	return newSNSNotifier(sns.NewFromConfig(cfg), topicARN), nil
}

func newSNSNotifier(client snsPublisher, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: strings.TrimSpace(topicARN), now: time.Now}
}

// SendTemplate publishes msg with the template as a message attribute for subscription filters.
func (s *SNSNotifier) SendTemplate(ctx context.Context, msg services.NotificationMessage) error {
	if s == nil || s.client == nil {
		return errors.New("sns notifier: not initialised")
	}
	env, data, err := encodeEnvelope(msg, s.now())
	if err != nil {
		return fmt.Errorf("sns notifier: %w", err)
	}
	attrs := make(map[string]types.MessageAttributeValue)
	for key, value := range attributes(env) {
		attrs[key] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(value),
		}
	}
	input := &sns.PublishInput{
		TopicArn:          aws.String(s.topicARN),
		Message:           aws.String(string(data)),
		MessageAttributes: attrs,
	}
	if env.Subject != "" {
		input.Subject = aws.String(truncateSubject(env.Subject))
	}
	if _, err := s.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// SNS caps subjects at 100 characters.
func truncateSubject(subject string) string {
	runes := []rune(subject)
	if len(runes) <= 100 {
		return subject
	}
	return string(runes[:100])
}
