package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"family-shield/internal/clock"
	"family-shield/internal/models"
	"family-shield/internal/repository"

	"go.uber.org/zap"
)

// Store the slice of the persistent store the engine reads and writes
type Store interface {
	repository.ShieldSettingsRepository
	repository.DetectionRulesRepository
	repository.ActivationsRepository
	repository.GuardiansRepository
	repository.HealthChecksRepository
}

// Config engine tunables
type Config struct {
	// TokenTTL fixed window between created_at and token_expires_at
	TokenTTL                 time.Duration
	HealthCheckMissThreshold int
	InactivityWarningDays    int
}

// TriggerRequest input of TriggerEmergencyActivation
type TriggerRequest struct {
	UserID      string
	TriggerType models.TriggerType
	GuardianID  *string
	Notes       *string
}

// ActivationStatus current protocol state of one user
type ActivationStatus struct {
	UserID           string                      `json:"user_id"`
	ShieldEnabled    bool                        `json:"shield_enabled"`
	ShieldStatus     models.ShieldStatus         `json:"shield_status"`
	HasPending       bool                        `json:"has_pending"`
	Latest           *models.EmergencyActivation `json:"latest_activation,omitempty"`
	ExpiresInSeconds int64                       `json:"expires_in_seconds,omitempty"`
}

// Engine Activity/Detection Engine
type Engine struct {
	store  Store
	clock  clock.Clock
	cfg    Config
	tokens TokenGenerator
	logger *zap.Logger
}

// NewEngine creates the detection engine
func NewEngine(store Store, clk clock.Clock, cfg Config, tokens TokenGenerator, logger *zap.Logger) *Engine {
	if tokens == nil {
		tokens = RandomToken
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 72 * time.Hour
	}
	return &Engine{store: store, clock: clk, cfg: cfg, tokens: tokens, logger: logger}
}

// Config returns the tunables the engine was built with
func (e *Engine) Config() Config {
	return e.cfg
}

// CheckUserActivity builds the current activity snapshot. Read-only.
func (e *Engine) CheckUserActivity(ctx context.Context, userID string) (*models.ActivityTracker, error) {
	settings, err := e.store.GetShieldSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	signals, err := e.store.GetActivitySignals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity signals: %w", err)
	}
	now := e.clock.Now()
	return buildTracker(userID, settings, signals, now), nil
}

func buildTracker(userID string, settings *models.ShieldSettings, signals *repository.ActivitySignals, now time.Time) *models.ActivityTracker {
	t := &models.ActivityTracker{
		UserID:                   userID,
		ConsecutiveMissedChecks:  signals.ConsecutiveMissed,
		TotalMissedChecks:        signals.TotalMissed,
		ShieldEnabled:            settings.IsShieldEnabled,
		InactivityThresholdMonth: settings.InactivityPeriodMonths,
		CheckedAt:                now,
	}
	seen := func(ct models.HealthCheckType) *time.Time {
		if ts, ok := signals.LastSeen[ct]; ok {
			ts := ts
			return &ts
		}
		return nil
	}
	t.LastLogin = seen(models.CheckLogin)
	t.LastAPIPing = seen(models.CheckAPIPing)
	t.LastDocumentAccess = seen(models.CheckDocumentAccess)
	t.LastManualConfirmation = seen(models.CheckManualConfirmation)

	// no signal at all: the shield's creation is the last known activity
	t.LastActivity = settings.CreatedAt
	for _, ts := range signals.LastSeen {
		if ts.After(t.LastActivity) {
			t.LastActivity = ts
		}
	}
	if now.After(t.LastActivity) {
		t.InactiveDays = int(now.Sub(t.LastActivity).Hours() / hoursPerDay)
	}
	return t
}

// EvaluateEmergencyTriggers runs the rule set for one user. No side effects.
func (e *Engine) EvaluateEmergencyTriggers(ctx context.Context, userID string) (*models.TriggerEvaluation, error) {
	tracker, err := e.CheckUserActivity(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.EvaluateTracker(ctx, tracker)
}

// EvaluateTracker evaluates a snapshot already produced by CheckUserActivity
func (e *Engine) EvaluateTracker(ctx context.Context, tracker *models.ActivityTracker) (*models.TriggerEvaluation, error) {
	rules, err := e.store.ListDetectionRules(ctx, tracker.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load detection rules: %w", err)
	}
	hasPending := false
	if tracker.ShieldEnabled {
		pending, err := e.pendingActivation(ctx, tracker.UserID)
		if err != nil {
			return nil, err
		}
		hasPending = pending != nil && !pending.IsExpiredAt(tracker.CheckedAt)
	}
	return Evaluate(tracker, rules, e.cfg, hasPending, tracker.CheckedAt), nil
}

// ProcessHealthCheck records one liveness outcome
func (e *Engine) ProcessHealthCheck(ctx context.Context, userID string, checkType models.HealthCheckType, responded bool) error {
	if userID == "" {
		return fmt.Errorf("user_id is required: %w", models.ErrInvalidArgument)
	}
	if !checkType.Valid() {
		return fmt.Errorf("unknown check_type %q: %w", checkType, models.ErrInvalidArgument)
	}
	check := &models.HealthCheck{
		UserID:    userID,
		CheckType: checkType,
		Responded: responded,
		CheckedAt: e.clock.Now(),
	}
	if err := e.store.RecordHealthCheck(ctx, check); err != nil {
		e.logger.Error("Failed to record health check",
			zap.String("user_id", userID),
			zap.String("check_type", string(checkType)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// TriggerEmergencyActivation opens a pending activation with a fresh token.
// At most one pending activation exists per user; a second call returns ErrActivationAlreadyPending.
func (e *Engine) TriggerEmergencyActivation(ctx context.Context, req TriggerRequest) (*models.EmergencyActivation, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user_id is required: %w", models.ErrInvalidArgument)
	}
	if !req.TriggerType.Valid() {
		return nil, fmt.Errorf("unknown trigger_type %q: %w", req.TriggerType, models.ErrInvalidArgument)
	}

	settings, err := e.store.GetShieldSettings(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if req.TriggerType != models.TriggerAdminOverride && !settings.IsShieldEnabled {
		return nil, models.ErrShieldDisabled
	}
	if req.TriggerType == models.TriggerManualGuardian {
		if err := e.authorizeGuardianTrigger(ctx, req); err != nil {
			return nil, err
		}
	}

	pending, err := e.pendingActivation(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		if !pending.IsExpiredAt(e.clock.Now()) {
			return nil, models.ErrActivationAlreadyPending
		}
		// a lapsed token no longer blocks; close it before opening the next one
		if err := e.store.TransitionActivation(ctx, pending.ID, models.ActivationExpired, e.clock.Now(), nil); err != nil &&
			!errors.Is(err, models.ErrActivationNotPending) {
			return nil, fmt.Errorf("failed to expire lapsed activation: %w", err)
		}
	}

	token, err := e.tokens()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification token: %w", err)
	}
	now := e.clock.Now()
	activation := &models.EmergencyActivation{
		UserID:            req.UserID,
		TriggerType:       req.TriggerType,
		GuardianID:        req.GuardianID,
		VerificationToken: token,
		TokenExpiresAt:    now.Add(e.cfg.TokenTTL),
		Status:            models.ActivationPending,
		Notes:             req.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.store.CreateActivation(ctx, activation); err != nil {
		e.logger.Error("Failed to create emergency activation",
			zap.String("user_id", req.UserID),
			zap.String("trigger_type", string(req.TriggerType)),
			zap.Error(err),
		)
		return nil, err
	}

	if err := e.store.UpdateShieldStatus(ctx, req.UserID, models.ShieldPendingVerification, now); err != nil {
		// the activation row is authoritative; the status column is display state
		e.logger.Warn("Failed to update shield status",
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
	}

	e.logger.Info("Emergency activation created",
		zap.String("user_id", req.UserID),
		zap.String("activation_id", activation.ID),
		zap.String("trigger_type", string(req.TriggerType)),
		zap.Time("token_expires_at", activation.TokenExpiresAt),
	)
	return activation, nil
}

// pendingActivation returns nil when the user has no pending row
func (e *Engine) pendingActivation(ctx context.Context, userID string) (*models.EmergencyActivation, error) {
	a, err := e.store.GetPendingActivation(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check pending activation: %w", err)
	}
	return a, nil
}

func (e *Engine) authorizeGuardianTrigger(ctx context.Context, req TriggerRequest) error {
	if req.GuardianID == nil || *req.GuardianID == "" {
		return fmt.Errorf("guardian_id is required for manual_guardian: %w", models.ErrInvalidArgument)
	}
	g, err := e.store.GetGuardian(ctx, *req.GuardianID)
	if err != nil {
		return err
	}
	if g.UserID != req.UserID || !g.IsActive || !g.CanTriggerEmergency {
		return fmt.Errorf("guardian %s cannot trigger an emergency for this user: %w", g.ID, models.ErrPermissionDenied)
	}
	return nil
}

// GetActivationStatus shield state plus the most recent activation
func (e *Engine) GetActivationStatus(ctx context.Context, userID string) (*ActivationStatus, error) {
	settings, err := e.store.GetShieldSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	list, err := e.store.ListActivations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activations: %w", err)
	}
	status := &ActivationStatus{
		UserID:        userID,
		ShieldEnabled: settings.IsShieldEnabled,
		ShieldStatus:  settings.ShieldStatus,
	}
	if len(list) > 0 {
		status.Latest = list[0]
		if list[0].Status == models.ActivationPending {
			status.HasPending = true
			if left := list[0].TokenExpiresAt.Sub(e.clock.Now()); left > 0 {
				status.ExpiresInSeconds = int64(left / time.Second)
			}
		}
	}
	return status, nil
}
