package delivery

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Message one outbound message. Email uses Subject/HTML/Body; SMS and push use Body.
type Message struct {
	To      string
	Subject string
	Body    string
	HTML    string
}

// Sender best-effort delivery channel
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrNoRecipient a message without a destination
var ErrNoRecipient = errors.New("delivery: recipient is required")

func validate(msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return ErrNoRecipient
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them (channel disabled / development)
type LogSender struct {
	channel string
	logger  *zap.Logger
}

func NewLogSender(channel string, logger *zap.Logger) *LogSender {
	return &LogSender{channel: channel, logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	s.logger.Info("Delivery channel disabled, message logged",
		zap.String("channel", s.channel),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_len", len(msg.Body)),
	)
	return nil
}
