package delivery

import (
	"context"
	"fmt"
	"time"

	"family-shield/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// smsMaxLen longer bodies are truncated; gateways split or reject them otherwise
const smsMaxLen = 1600

type smsResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type smsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SMSSender posts form-encoded messages to an account-scoped SMS gateway (basic auth)
type SMSSender struct {
	httpClient *resty.Client
	accountID  string
	from       string
	logger     *zap.Logger
}

// NewSMSSender creates the SMS channel
func NewSMSSender(cfg *config.SMSConfig, logger *zap.Logger) *SMSSender {
	client := resty.New().
		SetBaseURL(cfg.APIURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetBasicAuth(cfg.AccountID, cfg.AuthToken).
		SetHeader("Accept", "application/json")

	return &SMSSender{httpClient: client, accountID: cfg.AccountID, from: cfg.From, logger: logger}
}

func (s *SMSSender) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	body := msg.Body
	if len(body) > smsMaxLen {
		body = body[:smsMaxLen]
	}

	var result smsResponse
	var failure smsError
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetPathParam("account", s.accountID).
		SetFormData(map[string]string{
			"To":   msg.To,
			"From": s.from,
			"Body": body,
		}).
		SetResult(&result).
		SetError(&failure).
		Post("/2010-04-01/Accounts/{account}/Messages.json")
	if err != nil {
		s.logger.Error("SMS API call failed",
			zap.String("to", msg.To),
			zap.Error(err),
		)
		return fmt.Errorf("failed to call SMS API: %w", err)
	}
	if resp.IsError() {
		s.logger.Error("SMS API returned error",
			zap.String("to", msg.To),
			zap.Int("status_code", resp.StatusCode()),
			zap.Int("code", failure.Code),
			zap.String("msg", failure.Message),
		)
		return fmt.Errorf("SMS API error: %s (status: %d)", failure.Message, resp.StatusCode())
	}

	s.logger.Debug("SMS sent",
		zap.String("to", msg.To),
		zap.String("sid", result.SID),
		zap.String("status", result.Status),
	)
	return nil
}
