package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"family-shield/internal/models"
	"github.com/google/uuid"
)

// ============================================
// guardian_notifications
// ============================================

const notificationColumns = `
	id, guardian_id, user_id, notification_type, reminder_type, title, message,
	action_required, action_url, verification_token, priority, delivery_method,
	delivery_status, delivery_error, sent_at, read_at, responded_at, expires_at, created_at
`

func (s *PostgresStore) CreateNotification(ctx context.Context, n *models.GuardianNotification) error {
	if n == nil || n.GuardianID == "" || n.VerificationToken == "" {
		return fmt.Errorf("notification guardian_id and verification_token are required: %w", models.ErrInvalidArgument)
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.DeliveryStatus == "" {
		n.DeliveryStatus = models.DeliveryPending
	}
	var reminder interface{}
	if n.ReminderType != nil {
		reminder = string(*n.ReminderType)
	}
	query := `
		INSERT INTO guardian_notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := s.db.ExecContext(ctx, query,
		n.ID, n.GuardianID, n.UserID, string(n.NotificationType), reminder, n.Title, n.Message,
		n.ActionRequired, n.ActionURL, n.VerificationToken, string(n.Priority), n.DeliveryMethod,
		string(n.DeliveryStatus), nullable(n.DeliveryError), nullableTime(n.SentAt), nullableTime(n.ReadAt),
		nullableTime(n.RespondedAt), n.ExpiresAt, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateNotificationDelivery(ctx context.Context, notificationID string, status models.DeliveryStatus, deliveryErr *string, sentAt *time.Time) error {
	query := `
		UPDATE guardian_notifications
		SET delivery_status = $2, delivery_error = $3, sent_at = COALESCE($4, sent_at)
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query, notificationID, string(status), nullable(deliveryErr), nullableTime(sentAt))
	if err != nil {
		return fmt.Errorf("failed to update notification delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("notification_id=%s: %w", notificationID, models.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListNotificationsByToken(ctx context.Context, token string) ([]*models.GuardianNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM guardian_notifications WHERE verification_token = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, token)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.GuardianNotification
	for rows.Next() {
		var n models.GuardianNotification
		var ntype, priority, status string
		var reminder, deliveryErr sql.NullString
		var sentAt, readAt, respondedAt sql.NullTime
		if err := rows.Scan(
			&n.ID, &n.GuardianID, &n.UserID, &ntype, &reminder, &n.Title, &n.Message,
			&n.ActionRequired, &n.ActionURL, &n.VerificationToken, &priority, &n.DeliveryMethod,
			&status, &deliveryErr, &sentAt, &readAt, &respondedAt, &n.ExpiresAt, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.NotificationType = models.NotificationType(ntype)
		n.Priority = models.Priority(priority)
		n.DeliveryStatus = models.DeliveryStatus(status)
		if reminder.Valid {
			rt := models.ReminderType(reminder.String)
			n.ReminderType = &rt
		}
		n.DeliveryError = stringPtr(deliveryErr)
		n.SentAt = timePtr(sentAt)
		n.ReadAt = timePtr(readAt)
		n.RespondedAt = timePtr(respondedAt)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkNotificationsResponded(ctx context.Context, token, guardianID string, at time.Time) (int, error) {
	query := `
		UPDATE guardian_notifications
		SET responded_at = $3
		WHERE verification_token = $1 AND guardian_id = $2 AND responded_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, token, guardianID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications responded: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, notificationID, guardianID string, at time.Time) error {
	query := `
		UPDATE guardian_notifications
		SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND guardian_id = $2
	`
	res, err := s.db.ExecContext(ctx, query, notificationID, guardianID, at)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("notification_id=%s guardian_id=%s: %w", notificationID, guardianID, models.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) HasReminder(ctx context.Context, token string, reminder models.ReminderType) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM guardian_notifications WHERE verification_token = $1 AND reminder_type = $2)`
	if err := s.db.QueryRowContext(ctx, query, token, string(reminder)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check reminder: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CountNotificationsByDeliveryStatus(ctx context.Context, status models.DeliveryStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guardian_notifications WHERE delivery_status = $1`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CleanupExpiredEmergencyData(ctx context.Context, now time.Time) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT cleanup_expired_emergency_data($1)`, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("cleanup_expired_emergency_data: %w", err)
	}
	return n, nil
}

// ============================================
// guardian_activation_responses
// ============================================

func (s *PostgresStore) RecordGuardianResponse(ctx context.Context, r *models.GuardianResponse) error {
	if r == nil || r.ActivationID == "" || r.GuardianID == "" {
		return fmt.Errorf("response activation_id and guardian_id are required: %w", models.ErrInvalidArgument)
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	query := `
		INSERT INTO guardian_activation_responses (id, activation_id, guardian_id, response, notes, responded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query, r.ID, r.ActivationID, r.GuardianID, string(r.Response), nullable(r.Notes), r.RespondedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("activation_id=%s guardian_id=%s: %w", r.ActivationID, r.GuardianID, models.ErrAlreadyResponded)
		}
		return fmt.Errorf("failed to record guardian response: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListGuardianResponses(ctx context.Context, activationID string) ([]*models.GuardianResponse, error) {
	query := `
		SELECT id, activation_id, guardian_id, response, notes, responded_at
		FROM guardian_activation_responses
		WHERE activation_id = $1
		ORDER BY responded_at
	`
	rows, err := s.db.QueryContext(ctx, query, activationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query guardian responses: %w", err)
	}
	defer rows.Close()

	var out []*models.GuardianResponse
	for rows.Next() {
		var r models.GuardianResponse
		var response string
		var notes sql.NullString
		if err := rows.Scan(&r.ID, &r.ActivationID, &r.GuardianID, &response, &notes, &r.RespondedAt); err != nil {
			return nil, fmt.Errorf("failed to scan guardian response: %w", err)
		}
		r.Response = models.ActivationStatus(response)
		r.Notes = stringPtr(notes)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate guardian responses: %w", err)
	}
	return out, nil
}
