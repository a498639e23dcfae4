// Package jobs delivers notification messages to the configured transport.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pawpal/api/internal/services"
)

// Envelope is the wire form shared by every transport.
type Envelope struct {
	ID        string         `json:"id"`
	Template  string         `json:"template"`
	Recipient string         `json:"recipient"`
	Subject   string         `json:"subject,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	QueuedAt  time.Time      `json:"queuedAt"`
}

func encodeEnvelope(msg services.NotificationMessage, now time.Time) (Envelope, []byte, error) {
	if strings.TrimSpace(msg.Template) == "" {
		return Envelope{}, nil, errors.New("notification template is required")
	}
	if strings.TrimSpace(msg.Recipient) == "" {
		return Envelope{}, nil, errors.New("notification recipient is required")
	}
	env := Envelope{
		ID:        strings.TrimSpace(msg.ID),
		Template:  msg.Template,
		Recipient: strings.TrimSpace(msg.Recipient),
		Subject:   msg.Subject,
		Data:      msg.Data,
		QueuedAt:  now.UTC(),
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, nil, fmt.Errorf("marshal notification: %w", err)
	}
	return env, data, nil
}

func attributes(env Envelope) map[string]string {
	attrs := make(map[string]string, 3)
	setAttr(attrs, "messageId", env.ID)
	setAttr(attrs, "template", env.Template)
	return attrs
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
