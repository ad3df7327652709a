package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"family-shield/internal/access"
	"family-shield/internal/clock"
	"family-shield/internal/detection"
	"family-shield/internal/events"
	"family-shield/internal/metrics"
	"family-shield/internal/models"
	"family-shield/internal/notifier"
	"family-shield/internal/repository"

	"go.uber.org/zap"
)

// EmergencyService Activation Orchestrator: the public entry points of the emergency protocol
type EmergencyService struct {
	store    repository.Store
	engine   *detection.Engine
	notifier *notifier.Manager
	resolver *access.Resolver
	events   events.Publisher
	metrics  *metrics.Metrics
	clock    clock.Clock
	logger   *zap.Logger
}

// NewEmergencyService wires the orchestrator. publisher and m may be nil.
func NewEmergencyService(
	store repository.Store,
	engine *detection.Engine,
	manager *notifier.Manager,
	resolver *access.Resolver,
	publisher events.Publisher,
	m *metrics.Metrics,
	clk clock.Clock,
	logger *zap.Logger,
) *EmergencyService {
	if publisher == nil {
		publisher = events.NewLogPublisher(logger)
	}
	return &EmergencyService{
		store:    store,
		engine:   engine,
		notifier: manager,
		resolver: resolver,
		events:   publisher,
		metrics:  m,
		clock:    clk,
		logger:   logger,
	}
}

// ============================================
// initialization
// ============================================

// InitializeResult outcome of InitializeForUser
type InitializeResult struct {
	Created  bool                   `json:"created"`
	Settings *models.ShieldSettings `json:"settings"`
}

// InitializeForUser creates default shield settings and detection rules once.
// Calling it again is a no-op that returns the stored settings.
func (s *EmergencyService) InitializeForUser(ctx context.Context, userID string) (*InitializeResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required: %w", models.ErrInvalidArgument)
	}
	existing, err := s.store.GetShieldSettings(ctx, userID)
	if err == nil {
		return &InitializeResult{Created: false, Settings: existing}, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to load shield settings: %w", err)
	}

	now := s.clock.Now()
	settings := models.DefaultShieldSettings(userID)
	settings.CreatedAt = now
	settings.UpdatedAt = now
	if err := s.store.CreateShieldSettings(ctx, &settings); err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			// lost the race to a concurrent initializer
			existing, gerr := s.store.GetShieldSettings(ctx, userID)
			if gerr != nil {
				return nil, gerr
			}
			return &InitializeResult{Created: false, Settings: existing}, nil
		}
		s.logger.Error("Failed to create shield settings", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to create shield settings: %w", err)
	}

	rules := detection.DefaultRules(userID, s.engine.Config(), now)
	if err := s.store.InitializeDefaultRules(ctx, userID, rules); err != nil {
		s.logger.Error("Failed to seed detection rules", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to seed detection rules: %w", err)
	}

	s.logger.Info("Family shield initialized", zap.String("user_id", userID))
	return &InitializeResult{Created: true, Settings: &settings}, nil
}

// ============================================
// monitoring
// ============================================

// MonitorResult one monitor pass for one user. Inner failures are listed in Errors.
type MonitorResult struct {
	UserID        string                        `json:"user_id"`
	Tracker       *models.ActivityTracker       `json:"tracker,omitempty"`
	Evaluation    *models.TriggerEvaluation     `json:"evaluation,omitempty"`
	Triggered     bool                          `json:"triggered"`
	Activation    *models.EmergencyActivation   `json:"activation,omitempty"`
	Notifications *notifier.NotificationSummary `json:"notifications,omitempty"`
	ShouldAlert   bool                          `json:"should_alert"`
	Errors        []string                      `json:"errors"`
}

// MonitorUserActivity snapshot, evaluate, and trigger when the rules say so
func (s *EmergencyService) MonitorUserActivity(ctx context.Context, userID string) *MonitorResult {
	result := &MonitorResult{UserID: userID, Errors: []string{}}

	tracker, err := s.engine.CheckUserActivity(ctx, userID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Activity check failed: %v", err))
		s.metrics.MonitorPass("error")
		s.logger.Error("Monitor pass failed", zap.String("user_id", userID), zap.Error(err))
		return result
	}
	result.Tracker = tracker

	eval, err := s.engine.EvaluateTracker(ctx, tracker)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Trigger evaluation failed: %v", err))
		s.metrics.MonitorPass("error")
		s.logger.Error("Monitor pass failed", zap.String("user_id", userID), zap.Error(err))
		return result
	}
	result.Evaluation = eval
	result.ShouldAlert = eval.Severity.AtLeast(models.SeverityHigh)

	if !eval.ShouldTrigger || eval.TriggerType == nil {
		s.metrics.MonitorPass("clear")
		return result
	}

	notes := "Automatic trigger: " + strings.Join(eval.Reasons, "; ")
	activation, summary, err := s.openActivation(ctx, detection.TriggerRequest{
		UserID:      userID,
		TriggerType: *eval.TriggerType,
		Notes:       &notes,
	})
	if err != nil {
		if errors.Is(err, models.ErrActivationAlreadyPending) {
			s.metrics.MonitorPass("pending")
			return result
		}
		result.Errors = append(result.Errors, fmt.Sprintf("Emergency activation failed: %v", err))
		s.metrics.MonitorPass("error")
		return result
	}
	result.Triggered = true
	result.Activation = activation
	result.Notifications = summary
	result.Errors = append(result.Errors, summary.Errors...)
	s.metrics.MonitorPass("triggered")
	return result
}

// ============================================
// triggers
// ============================================

// TriggerResult activation opened by a trigger plus the guardian fan-out summary
type TriggerResult struct {
	Activation    *models.EmergencyActivation   `json:"activation"`
	Notifications *notifier.NotificationSummary `json:"notifications"`
}

// ManualTrigger opens an activation on behalf of a guardian or an administrator
func (s *EmergencyService) ManualTrigger(ctx context.Context, req detection.TriggerRequest) (*TriggerResult, error) {
	activation, summary, err := s.openActivation(ctx, req)
	if err != nil {
		return nil, err
	}
	return &TriggerResult{Activation: activation, Notifications: summary}, nil
}

// openActivation creates the activation, notifies every active guardian and announces it
func (s *EmergencyService) openActivation(ctx context.Context, req detection.TriggerRequest) (*models.EmergencyActivation, *notifier.NotificationSummary, error) {
	activation, err := s.engine.TriggerEmergencyActivation(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	s.metrics.ActivationCreated(string(activation.TriggerType))

	summary := &notifier.NotificationSummary{Errors: []string{}}
	guardians, err := s.store.ListActiveGuardians(ctx, activation.UserID)
	if err != nil {
		s.logger.Error("Failed to list guardians",
			zap.String("user_id", activation.UserID),
			zap.String("activation_id", activation.ID),
			zap.Error(err),
		)
		summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to list guardians: %v", err))
	} else {
		*summary = s.notifier.NotifyGuardians(ctx, activation, guardians, s.userName(ctx, activation.UserID, "User"))
		s.metrics.NotificationsSent(string(models.NotificationActivationRequest), summary.Sent, summary.Failed)
	}

	guardianID := ""
	if activation.GuardianID != nil {
		guardianID = *activation.GuardianID
	}
	s.publish(ctx, events.Event{
		Type:         events.ActivationCreated,
		ActivationID: activation.ID,
		UserID:       activation.UserID,
		TriggerType:  activation.TriggerType,
		GuardianID:   guardianID,
		Status:       activation.Status,
		OccurredAt:   activation.CreatedAt,
	})
	return activation, summary, nil
}

// GetActivationStatus shield state plus the most recent activation
func (s *EmergencyService) GetActivationStatus(ctx context.Context, userID string) (*detection.ActivationStatus, error) {
	return s.engine.GetActivationStatus(ctx, userID)
}

// RecordHealthCheck records one liveness signal
func (s *EmergencyService) RecordHealthCheck(ctx context.Context, userID string, checkType models.HealthCheckType, responded bool) error {
	return s.engine.ProcessHealthCheck(ctx, userID, checkType, responded)
}

// EvaluateEmergencyTriggers dry-run of the rule set
func (s *EmergencyService) EvaluateEmergencyTriggers(ctx context.Context, userID string) (*models.TriggerEvaluation, error) {
	return s.engine.EvaluateEmergencyTriggers(ctx, userID)
}

// SendReminderNotifications re-notifies the guardians who have not answered
func (s *EmergencyService) SendReminderNotifications(ctx context.Context, activationID string, reminder models.ReminderType) notifier.ReminderResult {
	result := s.notifier.SendReminderNotification(ctx, activationID, reminder)
	s.metrics.NotificationsSent(string(reminder), result.NotificationsSent, len(result.Errors))
	return result
}

// MarkNotificationAsRead sets read_at for the guardian's own notification
func (s *EmergencyService) MarkNotificationAsRead(ctx context.Context, notificationID, guardianID string) error {
	return s.notifier.MarkNotificationAsRead(ctx, notificationID, guardianID)
}

// ListEnabledShieldUsers users the monitor pass visits
func (s *EmergencyService) ListEnabledShieldUsers(ctx context.Context) ([]string, error) {
	return s.store.ListEnabledShieldUsers(ctx)
}

func (s *EmergencyService) userName(ctx context.Context, userID, fallback string) string {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil || p.FullName == "" {
		return fallback
	}
	return p.FullName
}

func (s *EmergencyService) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("Failed to publish activation event",
			zap.String("type", string(e.Type)),
			zap.String("activation_id", e.ActivationID),
			zap.Error(err),
		)
	}
}
