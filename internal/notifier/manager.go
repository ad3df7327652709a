package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"family-shield/internal/clock"
	"family-shield/internal/config"
	"family-shield/internal/delivery"
	"family-shield/internal/models"
	"family-shield/internal/repository"

	"go.uber.org/zap"
)

// Store the slice of the persistent store the manager reads and writes
type Store interface {
	repository.ShieldSettingsRepository
	repository.ActivationsRepository
	repository.GuardiansRepository
	repository.NotificationsRepository
	repository.ResponsesRepository
	repository.ProfilesRepository
	repository.ResourcesRepository
}

// Channels delivery senders. Email is required; SMS and Push may be nil.
type Channels struct {
	Email delivery.Sender
	SMS   delivery.Sender
	Push  delivery.Sender
}

// Options manager settings
type Options struct {
	BaseURL       string
	ConsensusMode string
}

// NotificationSummary outcome of notifying every guardian of one activation
type NotificationSummary struct {
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
}

// ReminderResult outcome of one reminder cycle
type ReminderResult struct {
	Success           bool     `json:"success"`
	NotificationsSent int      `json:"notifications_sent"`
	Errors            []string `json:"errors"`
}

// ResponseOutcome what a recorded guardian response did to the activation
type ResponseOutcome struct {
	ActivationID    string                  `json:"activation_id"`
	UserID          string                  `json:"user_id"`
	Response        models.ActivationStatus `json:"response"`
	Status          models.ActivationStatus `json:"status"`
	Finalized       bool                    `json:"finalized"`
	AlreadyRecorded bool                    `json:"already_recorded"`
	Confirmations   int                     `json:"confirmations"`
	Rejections      int                     `json:"rejections"`
	Required        int                     `json:"required"`
}

// Manager Guardian Notification & Consensus Manager
type Manager struct {
	store    Store
	channels Channels
	clock    clock.Clock
	opts     Options
	logger   *zap.Logger
}

// NewManager creates the notification manager
func NewManager(store Store, channels Channels, clk clock.Clock, opts Options, logger *zap.Logger) *Manager {
	if opts.ConsensusMode == "" {
		opts.ConsensusMode = config.ConsensusSingle
	}
	return &Manager{store: store, channels: channels, clock: clk, opts: opts, logger: logger}
}

// ============================================
// activation notifications
// ============================================

// SendActivationNotification persists one notification row for the guardian, then delivers it.
// The returned row carries the final delivery status even when err is non-nil.
func (m *Manager) SendActivationNotification(ctx context.Context, activation *models.EmergencyActivation, guardian *models.Guardian, userName string) (*models.GuardianNotification, error) {
	data := m.buildTemplateData(ctx, activation, guardian, userName, "")
	priority := PriorityFor(activation.TriggerType)

	n := &models.GuardianNotification{
		GuardianID:        guardian.ID,
		UserID:            activation.UserID,
		NotificationType:  models.NotificationActivationRequest,
		Title:             activationTitle,
		Message:           notificationMessage(data),
		ActionRequired:    true,
		ActionURL:         data.VerificationURL,
		VerificationToken: activation.VerificationToken,
		Priority:          priority,
		DeliveryMethod:    deliveryEmail,
		DeliveryStatus:    models.DeliveryPending,
		ExpiresAt:         activation.TokenExpiresAt,
		CreatedAt:         m.clock.Now(),
	}
	if err := m.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification record: %w", err)
	}

	if err := m.deliver(ctx, n, guardian, data, false); err != nil {
		return n, err
	}

	if priority == models.PriorityUrgent && guardian.Phone != nil && *guardian.Phone != "" && m.channels.SMS != nil {
		if err := m.channels.SMS.Send(ctx, delivery.Message{To: *guardian.Phone, Body: smsMessage(data)}); err != nil {
			// email already went out; SMS is an extra nudge
			m.logger.Warn("Failed to send activation SMS",
				zap.String("guardian_id", guardian.ID),
				zap.String("activation_id", activation.ID),
				zap.Error(err),
			)
		}
	}
	return n, nil
}

// NotifyGuardians sends the activation notification to each guardian independently
func (m *Manager) NotifyGuardians(ctx context.Context, activation *models.EmergencyActivation, guardians []*models.Guardian, userName string) NotificationSummary {
	summary := NotificationSummary{Errors: []string{}}
	for _, g := range guardians {
		if _, err := m.SendActivationNotification(ctx, activation, g, userName); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to notify guardian %s: %v", g.ID, err))
			m.logger.Error("Failed to notify guardian",
				zap.String("activation_id", activation.ID),
				zap.String("guardian_id", g.ID),
				zap.Error(err),
			)
			continue
		}
		summary.Sent++
	}
	return summary
}

// deliver sends the email for n and records the delivery outcome on the row
func (m *Manager) deliver(ctx context.Context, n *models.GuardianNotification, guardian *models.Guardian, data templateData, reminder bool) error {
	sendErr := m.sendEmail(ctx, guardian.Email, data, reminder)
	now := m.clock.Now()

	if sendErr != nil {
		msg := sendErr.Error()
		n.DeliveryStatus = models.DeliveryFailed
		n.DeliveryError = &msg
		if err := m.store.UpdateNotificationDelivery(ctx, n.ID, models.DeliveryFailed, &msg, nil); err != nil {
			m.logger.Error("Failed to record delivery failure",
				zap.String("notification_id", n.ID),
				zap.Error(err),
			)
		}
		return sendErr
	}

	n.DeliveryStatus = models.DeliverySent
	n.SentAt = &now
	if err := m.store.UpdateNotificationDelivery(ctx, n.ID, models.DeliverySent, nil, &now); err != nil {
		m.logger.Error("Failed to record delivery",
			zap.String("notification_id", n.ID),
			zap.Error(err),
		)
	}

	if m.channels.Push != nil {
		if err := m.channels.Push.Send(ctx, delivery.Message{To: guardian.ID, Subject: n.Title, Body: n.Message}); err != nil {
			m.logger.Warn("Failed to push notification",
				zap.String("guardian_id", guardian.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (m *Manager) sendEmail(ctx context.Context, to string, data templateData, reminder bool) error {
	if m.channels.Email == nil {
		return errors.New("email channel is not configured")
	}
	html, err := renderEmail(data)
	if err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}
	return m.channels.Email.Send(ctx, delivery.Message{
		To:      to,
		Subject: emailSubject(data.UserName, reminder),
		Body:    notificationMessage(data),
		HTML:    html,
	})
}

func (m *Manager) buildTemplateData(ctx context.Context, activation *models.EmergencyActivation, guardian *models.Guardian, userName, reminder string) templateData {
	return templateData{
		GuardianName:     guardian.Name,
		UserName:         userName,
		ActivationReason: ReasonText(activation.TriggerType),
		VerificationURL:  VerificationURL(m.opts.BaseURL, activation.VerificationToken),
		ExpiresAt:        formatExpiry(activation.TokenExpiresAt),
		Instructions:     m.instructions(ctx, activation.UserID),
		Reminder:         reminder,
	}
}

func (m *Manager) instructions(ctx context.Context, userID string) []string {
	entries, err := m.store.ListGuidanceEntries(ctx, userID)
	if err != nil {
		m.logger.Warn("Failed to load emergency guidance, using defaults",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		entries = nil
	}
	return emergencyInstructions(entries)
}

// ============================================
// reminders
// ============================================

// SendReminderNotification re-notifies every guardian who has not answered the pending activation
func (m *Manager) SendReminderNotification(ctx context.Context, activationID string, reminder models.ReminderType) ReminderResult {
	fail := func(msg string) ReminderResult {
		return ReminderResult{Success: false, Errors: []string{msg}}
	}
	if !reminder.Valid() {
		return fail(fmt.Sprintf("unknown reminder type %q", reminder))
	}

	activation, err := m.store.GetActivation(ctx, activationID)
	if err != nil || activation.Status != models.ActivationPending {
		return fail("Activation not found or not pending")
	}
	if activation.IsExpiredAt(m.clock.Now()) {
		return fail("Activation token has expired")
	}

	userName := "User"
	if p, err := m.store.GetProfile(ctx, activation.UserID); err == nil && p.FullName != "" {
		userName = p.FullName
	}

	rows, err := m.store.ListNotificationsByToken(ctx, activation.VerificationToken)
	if err != nil {
		return fail(err.Error())
	}
	responded := map[string]bool{}
	for _, n := range rows {
		if n.RespondedAt != nil {
			responded[n.GuardianID] = true
		}
	}

	result := ReminderResult{Errors: []string{}}
	seen := map[string]bool{}
	for _, n := range rows {
		if responded[n.GuardianID] || seen[n.GuardianID] {
			continue
		}
		seen[n.GuardianID] = true

		guardian, err := m.store.GetGuardian(ctx, n.GuardianID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Error processing guardian %s: %v", n.GuardianID, err))
			continue
		}
		if !guardian.IsActive {
			continue
		}
		if err := m.sendReminder(ctx, activation, guardian, userName, reminder); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to send to %s: %v", guardian.Email, err))
			continue
		}
		result.NotificationsSent++
	}
	result.Success = len(result.Errors) == 0

	m.logger.Info("Reminder cycle finished",
		zap.String("activation_id", activationID),
		zap.String("reminder_type", string(reminder)),
		zap.Int("sent", result.NotificationsSent),
		zap.Int("errors", len(result.Errors)),
	)
	return result
}

func (m *Manager) sendReminder(ctx context.Context, activation *models.EmergencyActivation, guardian *models.Guardian, userName string, reminder models.ReminderType) error {
	data := m.buildTemplateData(ctx, activation, guardian, userName, urgencyLabel(reminder))
	rt := reminder
	n := &models.GuardianNotification{
		GuardianID:        guardian.ID,
		UserID:            activation.UserID,
		NotificationType:  models.NotificationVerificationNeeded,
		ReminderType:      &rt,
		Title:             reminderTitle(reminder),
		Message:           reminderMessage(reminder, data),
		ActionRequired:    true,
		ActionURL:         data.VerificationURL,
		VerificationToken: activation.VerificationToken,
		Priority:          ReminderPriority(reminder),
		DeliveryMethod:    deliveryEmail,
		DeliveryStatus:    models.DeliveryPending,
		ExpiresAt:         activation.TokenExpiresAt,
		CreatedAt:         m.clock.Now(),
	}
	if err := m.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to create reminder record: %w", err)
	}
	return m.deliver(ctx, n, guardian, data, true)
}

// ============================================
// responses
// ============================================

// RecordGuardianResponse records one guardian's decision and applies the consensus policy.
// The activation status changes only by compare-and-swap from pending.
func (m *Manager) RecordGuardianResponse(ctx context.Context, token, guardianID string, response models.ActivationStatus, notes *string) (*ResponseOutcome, error) {
	if response != models.ActivationConfirmed && response != models.ActivationRejected {
		return nil, fmt.Errorf("response must be confirmed or rejected: %w", models.ErrInvalidArgument)
	}
	if guardianID == "" {
		return nil, fmt.Errorf("guardian_id is required: %w", models.ErrInvalidArgument)
	}

	activation, err := m.store.GetActivationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	guardian, err := m.store.GetGuardian(ctx, guardianID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("guardian %s is not a guardian of this user: %w", guardianID, models.ErrPermissionDenied)
		}
		return nil, err
	}
	if guardian.UserID != activation.UserID || !guardian.IsActive {
		return nil, fmt.Errorf("guardian %s is not a guardian of this user: %w", guardianID, models.ErrPermissionDenied)
	}

	existing, err := m.store.ListGuardianResponses(ctx, activation.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load guardian responses: %w", err)
	}
	now := m.clock.Now()
	for _, r := range existing {
		if r.GuardianID == guardianID {
			return m.retally(ctx, activation, r, now)
		}
	}

	if activation.Status == models.ActivationExpired {
		return nil, models.ErrTokenExpired
	}
	if activation.Status != models.ActivationPending {
		return nil, models.ErrActivationNotPending
	}
	if activation.IsExpiredAt(now) {
		m.expire(ctx, activation, now)
		return nil, models.ErrTokenExpired
	}

	if err := m.store.RecordGuardianResponse(ctx, &models.GuardianResponse{
		ActivationID: activation.ID,
		GuardianID:   guardianID,
		Response:     response,
		Notes:        notes,
		RespondedAt:  now,
	}); err != nil {
		return nil, err
	}
	if _, err := m.store.MarkNotificationsResponded(ctx, token, guardianID, now); err != nil {
		m.logger.Error("Failed to mark notifications responded",
			zap.String("activation_id", activation.ID),
			zap.String("guardian_id", guardianID),
			zap.Error(err),
		)
	}

	outcome, err := m.applyConsensus(ctx, activation, response, notes, now)
	if err != nil {
		return nil, err
	}
	m.logger.Info("Guardian response recorded",
		zap.String("activation_id", activation.ID),
		zap.String("guardian_id", guardianID),
		zap.String("response", string(response)),
		zap.String("status", string(outcome.Status)),
		zap.Bool("finalized", outcome.Finalized),
	)
	return outcome, nil
}

// retally handles a repeated response. The first answer stands, but while the activation is
// still pending the tally is applied again so a finalization that failed earlier is not lost.
func (m *Manager) retally(ctx context.Context, activation *models.EmergencyActivation, first *models.GuardianResponse, now time.Time) (*ResponseOutcome, error) {
	if activation.Status != models.ActivationPending || activation.IsExpiredAt(now) {
		return nil, models.ErrAlreadyResponded
	}
	if _, err := m.store.MarkNotificationsResponded(ctx, activation.VerificationToken, first.GuardianID, first.RespondedAt); err != nil {
		m.logger.Warn("Failed to mark notifications responded",
			zap.String("activation_id", activation.ID),
			zap.String("guardian_id", first.GuardianID),
			zap.Error(err),
		)
	}
	outcome, err := m.applyConsensus(ctx, activation, first.Response, first.Notes, now)
	if err != nil {
		return nil, err
	}
	if !outcome.Finalized {
		return nil, models.ErrAlreadyResponded
	}
	outcome.AlreadyRecorded = true
	m.logger.Info("Guardian response re-applied",
		zap.String("activation_id", activation.ID),
		zap.String("guardian_id", first.GuardianID),
		zap.String("status", string(outcome.Status)),
	)
	return outcome, nil
}

// expire closes a lapsed activation and re-arms the shield
func (m *Manager) expire(ctx context.Context, activation *models.EmergencyActivation, now time.Time) {
	err := m.store.TransitionActivation(ctx, activation.ID, models.ActivationExpired, now, nil)
	if err != nil {
		if !errors.Is(err, models.ErrActivationNotPending) {
			m.logger.Error("Failed to expire activation", zap.String("activation_id", activation.ID), zap.Error(err))
		}
		return
	}
	shield := models.ShieldArmed
	if s, err := m.store.GetShieldSettings(ctx, activation.UserID); err == nil && !s.IsShieldEnabled {
		shield = models.ShieldInactive
	}
	if err := m.store.UpdateShieldStatus(ctx, activation.UserID, shield, now); err != nil {
		m.logger.Warn("Failed to re-arm shield", zap.String("user_id", activation.UserID), zap.Error(err))
	}
}

// MarkNotificationAsRead sets read_at for the guardian's own notification
func (m *Manager) MarkNotificationAsRead(ctx context.Context, notificationID, guardianID string) error {
	if notificationID == "" || guardianID == "" {
		return fmt.Errorf("notification_id and guardian_id are required: %w", models.ErrInvalidArgument)
	}
	return m.store.MarkNotificationRead(ctx, notificationID, guardianID, m.clock.Now())
}
