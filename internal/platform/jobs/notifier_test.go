package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/pawpal/api/internal/platform/config"
	"github.com/pawpal/api/internal/services"
)

func sampleMessage() services.NotificationMessage {
	return services.NotificationMessage{
		ID:        "msg-1",
		Template:  services.TemplateOrderConfirmation,
		Recipient: "an@example.com",
		Subject:   "PawPal order o-1 received",
		Data:      map[string]any{"orderId": "o-1"},
	}
}

func TestPubSubNotifierPublishesEnvelope(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "notifications")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	notifier, err := NewPubSubNotifier(topic)
	if err != nil {
		t.Fatalf("NewPubSubNotifier: %v", err)
	}
	defer notifier.Close()

	if err := notifier.SendTemplate(ctx, sampleMessage()); err != nil {
		t.Fatalf("SendTemplate: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var env Envelope
	if err := json.Unmarshal(messages[0].Data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.ID != "msg-1" || env.Recipient != "an@example.com" || env.Data["orderId"] != "o-1" {
		t.Fatalf("unexpected envelope %#v", env)
	}
	if attr := messages[0].Attributes["template"]; attr != services.TemplateOrderConfirmation {
		t.Fatalf("expected template attribute, got %q", attr)
	}
}

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifierKeysByRecipient(t *testing.T) {
	writer := &recordingWriter{}
	notifier := newKafkaNotifier(writer)
	notifier.now = func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) }

	if err := notifier.SendTemplate(context.Background(), sampleMessage()); err != nil {
		t.Fatalf("SendTemplate: %v", err)
	}
	if len(writer.msgs) != 1 {
		t.Fatalf("expected one kafka message, got %d", len(writer.msgs))
	}
	msg := writer.msgs[0]
	if string(msg.Key) != "an@example.com" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !env.QueuedAt.Equal(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected queuedAt %s", env.QueuedAt)
	}

	writer.err = errors.New("broker down")
	if err := notifier.SendTemplate(context.Background(), sampleMessage()); err == nil {
		t.Fatalf("expected write error")
	}
	if err := notifier.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer closed")
	}
}

type stubSNS struct {
	input *sns.PublishInput
}

func (s *stubSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	s.input = params
	return &sns.PublishOutput{}, nil
}

func TestSNSNotifierSetsTemplateAttribute(t *testing.T) {
	client := &stubSNS{}
	notifier := newSNSNotifier(client, "arn:aws:sns:ap-southeast-1:123:notifications")

	if err := notifier.SendTemplate(context.Background(), sampleMessage()); err != nil {
		t.Fatalf("SendTemplate: %v", err)
	}
	if client.input == nil || *client.input.TopicArn != "arn:aws:sns:ap-southeast-1:123:notifications" {
		t.Fatalf("unexpected publish input %#v", client.input)
	}
	attr, ok := client.input.MessageAttributes["template"]
	if !ok || *attr.StringValue != services.TemplateOrderConfirmation {
		t.Fatalf("expected template attribute, got %#v", client.input.MessageAttributes)
	}
	if client.input.Subject == nil || *client.input.Subject != "PawPal order o-1 received" {
		t.Fatalf("unexpected subject %v", client.input.Subject)
	}
}

func TestEncodeEnvelopeRequiresRecipient(t *testing.T) {
	msg := sampleMessage()
	msg.Recipient = " "
	if _, _, err := encodeEnvelope(msg, time.Now()); err == nil {
		t.Fatalf("expected recipient error")
	}
	msg = sampleMessage()
	msg.ID = ""
	env, _, err := encodeEnvelope(msg, time.Now())
	if err != nil || env.ID == "" {
		t.Fatalf("expected generated id, got %q %v", env.ID, err)
	}
}

func TestNewNotifierSelectsDriver(t *testing.T) {
	notifier, closer, err := NewNotifier(context.Background(), config.NotificationConfig{Driver: config.NotifyLog}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	if _, ok := notifier.(*LogNotifier); !ok {
		t.Fatalf("expected log notifier, got %T", notifier)
	}
	if err := closer(); err != nil {
		t.Fatalf("closer: %v", err)
	}
	if err := notifier.SendTemplate(context.Background(), sampleMessage()); err != nil {
		t.Fatalf("log SendTemplate: %v", err)
	}
	if _, _, err := NewNotifier(context.Background(), config.NotificationConfig{Driver: "carrier-pigeon"}, nil); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, _, err := NewNotifier(context.Background(), config.NotificationConfig{Driver: config.NotifyKafka}, nil); err == nil {
		t.Fatalf("expected missing brokers error")
	}
}
