package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pawpal/api/internal/services"
)

// LogNotifier writes notification envelopes to the logger instead of a transport.
type LogNotifier struct {
	logger *zap.Logger
	now    func() time.Time
}

var _ services.Notifier = (*LogNotifier)(nil)

// NewLogNotifier constructs a log-only notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notifications"), now: time.Now}
}

// SendTemplate logs msg.
func (l *LogNotifier) SendTemplate(_ context.Context, msg services.NotificationMessage) error {
	env, _, err := encodeEnvelope(msg, l.now())
	if err != nil {
		return fmt.Errorf("log notifier: %w", err)
	}
	l.logger.Info("notification",
		zap.String("messageId", env.ID),
		zap.String("template", env.Template),
		zap.String("recipient", env.Recipient),
		zap.String("subject", env.Subject),
		zap.Any("data", env.Data),
	)
	return nil
}
