package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"family-shield/internal/models"

	"github.com/go-playground/validator/v10"
)

// ============================================
// request bodies
// ============================================

// GuardianResponseRequest POST /emergency/verify/{token}
type GuardianResponseRequest struct {
	GuardianID string  `json:"guardian_id" validate:"required"`
	Response   string  `json:"response" validate:"required,oneof=confirmed rejected"`
	Notes      *string `json:"notes" validate:"omitempty,max=2000"`
}

// TriggerRequest POST /api/v1/users/{user_id}/activations
type TriggerRequest struct {
	TriggerType string  `json:"trigger_type" validate:"required,oneof=inactivity_detected manual_guardian admin_override health_check_failure"`
	GuardianID  *string `json:"guardian_id" validate:"required_if=TriggerType manual_guardian"`
	Notes       *string `json:"notes" validate:"omitempty,max=2000"`
}

// HealthCheckRequest POST /api/v1/users/{user_id}/health-checks
type HealthCheckRequest struct {
	CheckType string `json:"check_type" validate:"required,oneof=login api_ping document_access manual_confirmation"`
	Responded *bool  `json:"responded" validate:"required"`
}

// ReminderRequest POST /api/v1/activations/{activation_id}/reminders
type ReminderRequest struct {
	ReminderType string `json:"reminder_type" validate:"required,oneof=first_reminder urgent_reminder final_warning"`
}

// MarkReadRequest POST /api/v1/notifications/{notification_id}/read
type MarkReadRequest struct {
	GuardianID string `json:"guardian_id" validate:"required"`
}

var validate = validator.New()

// decode reads the JSON body into out and validates its tags
func decode(r *http.Request, out any) error {
	if err := readBodyJSON(r, maxBodyBytes, out); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return err
		}
		return fmt.Errorf("invalid request body: %w", models.ErrInvalidArgument)
	}
	return validate.Struct(out)
}
