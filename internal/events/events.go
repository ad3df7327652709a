package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"family-shield/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Type activation lifecycle event name
type Type string

const (
	ActivationCreated   Type = "activation_created"
	ActivationConfirmed Type = "activation_confirmed"
	ActivationRejected  Type = "activation_rejected"
	ActivationExpired   Type = "activation_expired"
)

// Event one lifecycle change of an activation.
// activation_confirmed is the hook downstream services use to unlock resources.
type Event struct {
	Type         Type                    `json:"type"`
	ActivationID string                  `json:"activation_id"`
	UserID       string                  `json:"user_id"`
	TriggerType  models.TriggerType      `json:"trigger_type,omitempty"`
	GuardianID   string                  `json:"guardian_id,omitempty"`
	Status       models.ActivationStatus `json:"status"`
	OccurredAt   time.Time               `json:"occurred_at"`
}

// ForStatus maps a terminal activation status to its event type
func ForStatus(s models.ActivationStatus) (Type, bool) {
	switch s {
	case models.ActivationConfirmed:
		return ActivationConfirmed, true
	case models.ActivationRejected:
		return ActivationRejected, true
	case models.ActivationExpired:
		return ActivationExpired, true
	}
	return "", false
}

// Publisher emits lifecycle events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// StreamPublisher appends events to a Redis Stream (XADD with data + timestamp fields)
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

var _ Publisher = (*StreamPublisher)(nil)

// NewStreamPublisher maxLen <= 0 keeps the stream untrimmed
func NewStreamPublisher(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen, logger: logger}
}

func (p *StreamPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"type":      string(event.Type),
			"data":      string(data),
			"timestamp": event.OccurredAt.Unix(),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", event.Type, p.stream, err)
	}
	p.logger.Debug("Published activation event",
		zap.String("stream", p.stream),
		zap.String("message_id", id),
		zap.String("type", string(event.Type)),
		zap.String("activation_id", event.ActivationID),
	)
	return nil
}

// Decode parses the data field of a stream message
func Decode(values map[string]interface{}) (*Event, error) {
	raw, ok := values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("stream message has no data field")
	}
	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &e, nil
}

// LogPublisher logs events instead of publishing them; used when Redis is not configured
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Info("Activation event",
		zap.String("type", string(event.Type)),
		zap.String("activation_id", event.ActivationID),
		zap.String("user_id", event.UserID),
		zap.String("status", string(event.Status)),
	)
	return nil
}
