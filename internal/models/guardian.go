package models

import (
	"time"
)

// Guardian trusted contact; created elsewhere and read-only here
type Guardian struct {
	ID                       string    `json:"id" db:"id"`
	UserID                   string    `json:"user_id" db:"user_id"`
	Name                     string    `json:"name" db:"name"`
	Email                    string    `json:"email" db:"email"`
	Phone                    *string   `json:"phone,omitempty" db:"phone"`
	Relationship             *string   `json:"relationship,omitempty" db:"relationship"`
	IsActive                 bool      `json:"is_active" db:"is_active"`
	CanTriggerEmergency      bool      `json:"can_trigger_emergency" db:"can_trigger_emergency"`
	CanAccessHealthDocs      bool      `json:"can_access_health_docs" db:"can_access_health_docs"`
	CanAccessFinancialDocs   bool      `json:"can_access_financial_docs" db:"can_access_financial_docs"`
	IsChildGuardian          bool      `json:"is_child_guardian" db:"is_child_guardian"`
	IsWillExecutor           bool      `json:"is_will_executor" db:"is_will_executor"`
	EmergencyContactPriority int       `json:"emergency_contact_priority" db:"emergency_contact_priority"`
	CreatedAt                time.Time `json:"created_at" db:"created_at"`
}

// GuardianPermissions the permission flags copied from a Guardian
type GuardianPermissions struct {
	CanTriggerEmergency      bool `json:"can_trigger_emergency"`
	CanAccessHealthDocs      bool `json:"can_access_health_docs"`
	CanAccessFinancialDocs   bool `json:"can_access_financial_docs"`
	IsChildGuardian          bool `json:"is_child_guardian"`
	IsWillExecutor           bool `json:"is_will_executor"`
	EmergencyContactPriority int  `json:"emergency_contact_priority"`
}

// Permissions snapshots the guardian's stored flags
func (g *Guardian) Permissions() GuardianPermissions {
	return GuardianPermissions{
		CanTriggerEmergency:      g.CanTriggerEmergency,
		CanAccessHealthDocs:      g.CanAccessHealthDocs,
		CanAccessFinancialDocs:   g.CanAccessFinancialDocs,
		IsChildGuardian:          g.IsChildGuardian,
		IsWillExecutor:           g.IsWillExecutor,
		EmergencyContactPriority: g.EmergencyContactPriority,
	}
}

// GuardianResponse guardian_activation_responses row, one per (activation, guardian)
type GuardianResponse struct {
	ID           string           `json:"id" db:"id"`
	ActivationID string           `json:"activation_id" db:"activation_id"`
	GuardianID   string           `json:"guardian_id" db:"guardian_id"`
	Response     ActivationStatus `json:"response" db:"response"`
	Notes        *string          `json:"notes,omitempty" db:"notes"`
	RespondedAt  time.Time        `json:"responded_at" db:"responded_at"`
}

// NotificationType kind of guardian notification
type NotificationType string

const (
	NotificationActivationRequest  NotificationType = "activation_request"
	NotificationVerificationNeeded NotificationType = "verification_needed"
)

// Priority of a notification
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// DeliveryStatus of a notification row
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// ReminderType escalation stage
type ReminderType string

const (
	ReminderFirst  ReminderType = "first_reminder"
	ReminderUrgent ReminderType = "urgent_reminder"
	ReminderFinal  ReminderType = "final_warning"
)

// Valid reports whether r is a known stage
func (r ReminderType) Valid() bool {
	return r == ReminderFirst || r == ReminderUrgent || r == ReminderFinal
}

// GuardianNotification guardian_notifications row; one per guardian per send
type GuardianNotification struct {
	ID                string           `json:"id" db:"id"`
	GuardianID        string           `json:"guardian_id" db:"guardian_id"`
	UserID            string           `json:"user_id" db:"user_id"`
	NotificationType  NotificationType `json:"notification_type" db:"notification_type"`
	ReminderType      *ReminderType    `json:"reminder_type,omitempty" db:"reminder_type"`
	Title             string           `json:"title" db:"title"`
	Message           string           `json:"message" db:"message"`
	ActionRequired    bool             `json:"action_required" db:"action_required"`
	ActionURL         string           `json:"action_url" db:"action_url"`
	VerificationToken string           `json:"verification_token" db:"verification_token"`
	Priority          Priority         `json:"priority" db:"priority"`
	DeliveryMethod    string           `json:"delivery_method" db:"delivery_method"`
	DeliveryStatus    DeliveryStatus   `json:"delivery_status" db:"delivery_status"`
	DeliveryError     *string          `json:"delivery_error,omitempty" db:"delivery_error"`
	SentAt            *time.Time       `json:"sent_at,omitempty" db:"sent_at"`
	ReadAt            *time.Time       `json:"read_at,omitempty" db:"read_at"`
	RespondedAt       *time.Time       `json:"responded_at,omitempty" db:"responded_at"`
	ExpiresAt         time.Time        `json:"expires_at" db:"expires_at"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
}
