package models

import (
	"time"
)

// TriggerType why an activation was opened
type TriggerType string

const (
	TriggerInactivityDetected TriggerType = "inactivity_detected"
	TriggerManualGuardian     TriggerType = "manual_guardian"
	TriggerAdminOverride      TriggerType = "admin_override"
	TriggerHealthCheckFailure TriggerType = "health_check_failure"
)

// Valid reports whether t is one of the known trigger types
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerInactivityDetected, TriggerManualGuardian, TriggerAdminOverride, TriggerHealthCheckFailure:
		return true
	}
	return false
}

// Automatic triggers come from the detection engine rather than a person.
func (t TriggerType) Automatic() bool {
	return t == TriggerInactivityDetected || t == TriggerHealthCheckFailure
}

// ActivationStatus moves only forward: pending -> confirmed | rejected | expired
type ActivationStatus string

const (
	ActivationPending   ActivationStatus = "pending"
	ActivationConfirmed ActivationStatus = "confirmed"
	ActivationRejected  ActivationStatus = "rejected"
	ActivationExpired   ActivationStatus = "expired"
)

// Terminal reports whether no further transition is allowed
func (s ActivationStatus) Terminal() bool {
	return s == ActivationConfirmed || s == ActivationRejected || s == ActivationExpired
}

// ShieldStatus per-user protocol state
type ShieldStatus string

const (
	ShieldInactive            ShieldStatus = "inactive"
	ShieldArmed               ShieldStatus = "armed"
	ShieldPendingVerification ShieldStatus = "pending_verification"
	ShieldActivated           ShieldStatus = "activated"
)

// Severity of a trigger evaluation
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AtLeast compares severities by rank
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// Max returns the higher of the two severities
func (s Severity) Max(other Severity) Severity {
	if other.AtLeast(s) {
		return other
	}
	return s
}

// ShieldSettings family_shield_settings row
type ShieldSettings struct {
	ID                             string       `json:"id" db:"id"`
	UserID                         string       `json:"user_id" db:"user_id"`
	InactivityPeriodMonths         int          `json:"inactivity_period_months" db:"inactivity_period_months"`
	RequiredGuardiansForActivation int          `json:"required_guardians_for_activation" db:"required_guardians_for_activation"`
	IsShieldEnabled                bool         `json:"is_shield_enabled" db:"is_shield_enabled"`
	ShieldStatus                   ShieldStatus `json:"shield_status" db:"shield_status"`
	CreatedAt                      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt                      time.Time    `json:"updated_at" db:"updated_at"`
}

const (
	DefaultInactivityPeriodMonths = 6
	DefaultRequiredGuardians      = 1
)

// DefaultShieldSettings shield disabled, 6-month threshold, 1 required guardian
func DefaultShieldSettings(userID string) ShieldSettings {
	return ShieldSettings{
		UserID:                         userID,
		InactivityPeriodMonths:         DefaultInactivityPeriodMonths,
		RequiredGuardiansForActivation: DefaultRequiredGuardians,
		IsShieldEnabled:                false,
		ShieldStatus:                   ShieldInactive,
	}
}

// EmergencyActivation family_shield_activation_log row
type EmergencyActivation struct {
	ID                string           `json:"id" db:"id"`
	UserID            string           `json:"user_id" db:"user_id"`
	TriggerType       TriggerType      `json:"trigger_type" db:"trigger_type"`
	GuardianID        *string          `json:"guardian_id,omitempty" db:"guardian_id"`
	VerificationToken string           `json:"verification_token" db:"verification_token"`
	TokenExpiresAt    time.Time        `json:"token_expires_at" db:"token_expires_at"`
	Status            ActivationStatus `json:"status" db:"status"`
	Notes             *string          `json:"notes,omitempty" db:"notes"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	ConfirmedAt       *time.Time       `json:"confirmed_at,omitempty" db:"confirmed_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// IsExpiredAt reports whether the token window has closed at now
func (a *EmergencyActivation) IsExpiredAt(now time.Time) bool {
	return !now.Before(a.TokenExpiresAt)
}

// DetectionRule emergency_detection_rules row
type DetectionRule struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	RuleType       string    `json:"rule_type" db:"rule_type"`
	ThresholdValue int       `json:"threshold_value" db:"threshold_value"`
	Severity       Severity  `json:"severity" db:"severity"`
	IsEnabled      bool      `json:"is_enabled" db:"is_enabled"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

const (
	RuleInactivity         = "inactivity"
	RuleInactivityWarning  = "inactivity_warning"
	RuleHealthCheckMissed  = "health_check_missed"
	RuleCriticalInactivity = "critical_inactivity"
)

// HealthCheckType kinds of liveness signal
type HealthCheckType string

const (
	CheckLogin              HealthCheckType = "login"
	CheckAPIPing            HealthCheckType = "api_ping"
	CheckDocumentAccess     HealthCheckType = "document_access"
	CheckManualConfirmation HealthCheckType = "manual_confirmation"
)

// Valid reports whether c is a known signal type
func (c HealthCheckType) Valid() bool {
	switch c {
	case CheckLogin, CheckAPIPing, CheckDocumentAccess, CheckManualConfirmation:
		return true
	}
	return false
}

// HealthCheck emergency_health_checks row: one recorded outcome
type HealthCheck struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	CheckType HealthCheckType `json:"check_type" db:"check_type"`
	Responded bool            `json:"responded" db:"responded"`
	CheckedAt time.Time       `json:"checked_at" db:"checked_at"`
}

// ActivityTracker recomputed snapshot of last-seen signals; never persisted
type ActivityTracker struct {
	UserID                   string     `json:"user_id"`
	LastLogin                *time.Time `json:"last_login,omitempty"`
	LastAPIPing              *time.Time `json:"last_api_ping,omitempty"`
	LastDocumentAccess       *time.Time `json:"last_document_access,omitempty"`
	LastManualConfirmation   *time.Time `json:"last_manual_confirmation,omitempty"`
	LastActivity             time.Time  `json:"last_activity"`
	InactiveDays             int        `json:"inactive_days"`
	ConsecutiveMissedChecks  int        `json:"consecutive_missed_checks"`
	TotalMissedChecks        int        `json:"total_missed_checks"`
	ShieldEnabled            bool       `json:"shield_enabled"`
	InactivityThresholdMonth int        `json:"inactivity_threshold_months"`
	CheckedAt                time.Time  `json:"checked_at"`
}

// TriggerEvaluation deterministic rule outcome
type TriggerEvaluation struct {
	ShouldTrigger bool         `json:"should_trigger"`
	TriggerType   *TriggerType `json:"trigger_type,omitempty"`
	Severity      Severity     `json:"severity"`
	Reasons       []string     `json:"reasons"`
}
