package delivery

import (
	"context"
	"fmt"
	"time"

	"family-shield/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// emailRequest transactional email API payload
type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type emailResponse struct {
	ID string `json:"id"`
}

type apiError struct {
	Message string `json:"message"`
}

// EmailSender posts to a transactional email HTTP API (POST /emails, bearer key)
type EmailSender struct {
	httpClient *resty.Client
	from       string
	logger     *zap.Logger
}

// NewEmailSender creates the email channel
func NewEmailSender(cfg *config.EmailConfig, logger *zap.Logger) *EmailSender {
	client := resty.New().
		SetBaseURL(cfg.APIURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &EmailSender{httpClient: client, from: cfg.From, logger: logger}
}

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}

	var result emailResponse
	var failure apiError
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(emailRequest{
			From:    s.from,
			To:      []string{msg.To},
			Subject: msg.Subject,
			HTML:    msg.HTML,
			Text:    msg.Body,
		}).
		SetResult(&result).
		SetError(&failure).
		Post("/emails")
	if err != nil {
		s.logger.Error("Email API call failed",
			zap.String("to", msg.To),
			zap.Error(err),
		)
		return fmt.Errorf("failed to call email API: %w", err)
	}
	if resp.IsError() {
		s.logger.Error("Email API returned error",
			zap.String("to", msg.To),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("msg", failure.Message),
		)
		return fmt.Errorf("email API error: %s (status: %d)", failure.Message, resp.StatusCode())
	}

	s.logger.Debug("Email sent",
		zap.String("to", msg.To),
		zap.String("message_id", result.ID),
	)
	return nil
}
