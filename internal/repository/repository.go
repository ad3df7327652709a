package repository

import (
	"context"
	"time"

	"family-shield/internal/models"
)

// ShieldSettingsRepository family_shield_settings
type ShieldSettingsRepository interface {
	// GetShieldSettings returns models.ErrNotFound when the user was never initialized
	GetShieldSettings(ctx context.Context, userID string) (*models.ShieldSettings, error)
	// CreateShieldSettings returns models.ErrAlreadyExists when a row exists for the user
	CreateShieldSettings(ctx context.Context, settings *models.ShieldSettings) error
	UpdateShieldStatus(ctx context.Context, userID string, status models.ShieldStatus, at time.Time) error
	ListEnabledShieldUsers(ctx context.Context) ([]string, error)
	CountEnabledShields(ctx context.Context) (int, error)
}

// DetectionRulesRepository emergency_detection_rules
type DetectionRulesRepository interface {
	// InitializeDefaultRules inserts rules the user does not have yet (by rule_type)
	InitializeDefaultRules(ctx context.Context, userID string, rules []models.DetectionRule) error
	ListDetectionRules(ctx context.Context, userID string) ([]models.DetectionRule, error)
}

// ActivationsRepository family_shield_activation_log
type ActivationsRepository interface {
	// CreateActivation returns models.ErrActivationAlreadyPending if the user already has a pending row
	CreateActivation(ctx context.Context, activation *models.EmergencyActivation) error
	GetActivation(ctx context.Context, activationID string) (*models.EmergencyActivation, error)
	GetActivationByToken(ctx context.Context, token string) (*models.EmergencyActivation, error)
	GetPendingActivation(ctx context.Context, userID string) (*models.EmergencyActivation, error)
	ListActivations(ctx context.Context, userID string) ([]*models.EmergencyActivation, error)
	ListPendingActivations(ctx context.Context) ([]*models.EmergencyActivation, error)
	// TransitionActivation moves a pending activation to a terminal status.
	// Returns models.ErrActivationNotPending when the row already left pending.
	TransitionActivation(ctx context.Context, activationID string, to models.ActivationStatus, at time.Time, notes *string) error
	CountActivationsByStatus(ctx context.Context, status models.ActivationStatus) (int, error)
	// ExpireOldActivationTokens marks every pending activation past its window as expired
	ExpireOldActivationTokens(ctx context.Context, now time.Time) (int, error)
}

// GuardiansRepository guardians (read-only)
type GuardiansRepository interface {
	GetGuardian(ctx context.Context, guardianID string) (*models.Guardian, error)
	// ListActiveGuardians ordered by emergency_contact_priority
	ListActiveGuardians(ctx context.Context, userID string) ([]*models.Guardian, error)
}

// NotificationsRepository guardian_notifications
type NotificationsRepository interface {
	CreateNotification(ctx context.Context, n *models.GuardianNotification) error
	UpdateNotificationDelivery(ctx context.Context, notificationID string, status models.DeliveryStatus, deliveryErr *string, sentAt *time.Time) error
	ListNotificationsByToken(ctx context.Context, token string) ([]*models.GuardianNotification, error)
	// MarkNotificationsResponded sets responded_at on the guardian's rows for the token
	// that have not been responded yet. Already-set values are never overwritten.
	MarkNotificationsResponded(ctx context.Context, token, guardianID string, at time.Time) (int, error)
	MarkNotificationRead(ctx context.Context, notificationID, guardianID string, at time.Time) error
	HasReminder(ctx context.Context, token string, reminder models.ReminderType) (bool, error)
	CountNotificationsByDeliveryStatus(ctx context.Context, status models.DeliveryStatus) (int, error)
	// CleanupExpiredEmergencyData removes unanswered notifications whose token window closed
	CleanupExpiredEmergencyData(ctx context.Context, now time.Time) (int, error)
}

// ResponsesRepository guardian_activation_responses
type ResponsesRepository interface {
	// RecordGuardianResponse returns models.ErrAlreadyResponded for a second response
	// from the same guardian on the same activation
	RecordGuardianResponse(ctx context.Context, response *models.GuardianResponse) error
	ListGuardianResponses(ctx context.Context, activationID string) ([]*models.GuardianResponse, error)
}

// ActivitySignals raw aggregates of emergency_health_checks for one user
type ActivitySignals struct {
	LastSeen          map[models.HealthCheckType]time.Time
	ConsecutiveMissed int
	TotalMissed       int
}

// HealthChecksRepository emergency_health_checks
type HealthChecksRepository interface {
	RecordHealthCheck(ctx context.Context, check *models.HealthCheck) error
	GetActivitySignals(ctx context.Context, userID string) (*ActivitySignals, error)
}

// ProfilesRepository profiles (read-only)
type ProfilesRepository interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// ResourcesRepository documents, contacts, time capsules, guidance (read-only)
type ResourcesRepository interface {
	ListDocuments(ctx context.Context, userID string) ([]models.Document, error)
	ListEmergencyContacts(ctx context.Context, userID string) ([]models.EmergencyContact, error)
	ListTimeCapsules(ctx context.Context, userID string) ([]models.TimeCapsule, error)
	ListGuidanceEntries(ctx context.Context, userID string) ([]models.GuidanceEntry, error)
}

// Store is everything the emergency protocol reads and writes
type Store interface {
	ShieldSettingsRepository
	DetectionRulesRepository
	ActivationsRepository
	GuardiansRepository
	NotificationsRepository
	ResponsesRepository
	HealthChecksRepository
	ProfilesRepository
	ResourcesRepository
}
