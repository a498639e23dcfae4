package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pawpal/api/internal/services"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier writes notification envelopes to a Kafka topic keyed by recipient.
type KafkaNotifier struct {
	writer messageWriter
	now    func() time.Time
}

var _ services.Notifier = (*KafkaNotifier)(nil)

// NewKafkaNotifier builds a synchronous writer for topic.
func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka notifier: brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka notifier: topic is required")
	}
	return newKafkaNotifier(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}), nil
}

func newKafkaNotifier(w messageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: w, now: time.Now}
}

// SendTemplate writes msg and waits for all in-sync replicas.
func (k *KafkaNotifier) SendTemplate(ctx context.Context, msg services.NotificationMessage) error {
	if k == nil || k.writer == nil {
		return errors.New("kafka notifier: not initialised")
	}
	env, data, err := encodeEnvelope(msg, k.now())
	if err != nil {
		return fmt.Errorf("kafka notifier: %w", err)
	}
	headers := make([]kafka.Header, 0, 2)
	for key, value := range attributes(env) {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(env.Recipient),
		Value:   data,
		Headers: headers,
	}); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
