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
// family_shield_activation_log
// ============================================

const activationColumns = `
	id, user_id, trigger_type, guardian_id, verification_token, token_expires_at,
	status, notes, created_at, confirmed_at, updated_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanActivation(row rowScanner) (*models.EmergencyActivation, error) {
	var a models.EmergencyActivation
	var trigger, status string
	var guardianID, notes sql.NullString
	var confirmedAt sql.NullTime
	if err := row.Scan(
		&a.ID, &a.UserID, &trigger, &guardianID, &a.VerificationToken, &a.TokenExpiresAt,
		&status, &notes, &a.CreatedAt, &confirmedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.TriggerType = models.TriggerType(trigger)
	a.Status = models.ActivationStatus(status)
	a.GuardianID = stringPtr(guardianID)
	a.Notes = stringPtr(notes)
	a.ConfirmedAt = timePtr(confirmedAt)
	return &a, nil
}

func (s *PostgresStore) CreateActivation(ctx context.Context, a *models.EmergencyActivation) error {
	if a == nil || a.UserID == "" || a.VerificationToken == "" {
		return fmt.Errorf("activation user_id and verification_token are required: %w", models.ErrInvalidArgument)
	}
	if !a.TokenExpiresAt.After(a.CreatedAt) {
		return fmt.Errorf("token_expires_at must be after created_at: %w", models.ErrInvalidArgument)
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	query := `
		INSERT INTO family_shield_activation_log (` + activationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.UserID, string(a.TriggerType), nullable(a.GuardianID), a.VerificationToken, a.TokenExpiresAt,
		string(a.Status), nullable(a.Notes), a.CreatedAt, nullableTime(a.ConfirmedAt), a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user_id=%s: %w", a.UserID, models.ErrActivationAlreadyPending)
		}
		return fmt.Errorf("failed to create activation: %w", err)
	}
	return nil
}

func (s *PostgresStore) getActivationWhere(ctx context.Context, where string, arg string) (*models.EmergencyActivation, error) {
	query := `SELECT ` + activationColumns + ` FROM family_shield_activation_log WHERE ` + where
	a, err := scanActivation(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get activation: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) GetActivation(ctx context.Context, activationID string) (*models.EmergencyActivation, error) {
	return s.getActivationWhere(ctx, "id = $1", activationID)
}

func (s *PostgresStore) GetActivationByToken(ctx context.Context, token string) (*models.EmergencyActivation, error) {
	if token == "" {
		return nil, models.ErrInvalidToken
	}
	a, err := s.getActivationWhere(ctx, "verification_token = $1", token)
	if err == models.ErrNotFound {
		return nil, models.ErrInvalidToken
	}
	return a, err
}

func (s *PostgresStore) GetPendingActivation(ctx context.Context, userID string) (*models.EmergencyActivation, error) {
	return s.getActivationWhere(ctx, "user_id = $1 AND status = 'pending'", userID)
}

func (s *PostgresStore) queryActivations(ctx context.Context, query string, args ...interface{}) ([]*models.EmergencyActivation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activations: %w", err)
	}
	defer rows.Close()

	var out []*models.EmergencyActivation
	for rows.Next() {
		a, err := scanActivation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activation: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListActivations(ctx context.Context, userID string) ([]*models.EmergencyActivation, error) {
	return s.queryActivations(ctx,
		`SELECT `+activationColumns+` FROM family_shield_activation_log WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
}

func (s *PostgresStore) ListPendingActivations(ctx context.Context) ([]*models.EmergencyActivation, error) {
	return s.queryActivations(ctx,
		`SELECT `+activationColumns+` FROM family_shield_activation_log WHERE status = 'pending' ORDER BY created_at`)
}

// TransitionActivation compare-and-swap on status = 'pending'
func (s *PostgresStore) TransitionActivation(ctx context.Context, activationID string, to models.ActivationStatus, at time.Time, notes *string) error {
	if !to.Terminal() {
		return fmt.Errorf("invalid target status %q: %w", to, models.ErrInvalidArgument)
	}
	var confirmedAt interface{}
	if to == models.ActivationConfirmed {
		confirmedAt = at
	}
	query := `
		UPDATE family_shield_activation_log
		SET status = $2,
		    confirmed_at = COALESCE($3, confirmed_at),
		    notes = COALESCE($4, notes),
		    updated_at = $5
		WHERE id = $1 AND status = 'pending'
	`
	res, err := s.db.ExecContext(ctx, query, activationID, string(to), confirmedAt, nullable(notes), at)
	if err != nil {
		return fmt.Errorf("failed to transition activation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("activation_id=%s: %w", activationID, models.ErrActivationNotPending)
	}
	return nil
}

func (s *PostgresStore) CountActivationsByStatus(ctx context.Context, status models.ActivationStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM family_shield_activation_log WHERE status = $1`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count activations: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ExpireOldActivationTokens(ctx context.Context, now time.Time) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT expire_old_activation_tokens($1)`, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("expire_old_activation_tokens: %w", err)
	}
	return n, nil
}
