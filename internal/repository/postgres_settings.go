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
// family_shield_settings
// ============================================

func (s *PostgresStore) GetShieldSettings(ctx context.Context, userID string) (*models.ShieldSettings, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required: %w", models.ErrInvalidArgument)
	}
	query := `
		SELECT id, user_id, inactivity_period_months, required_guardians_for_activation,
		       is_shield_enabled, shield_status, created_at, updated_at
		FROM family_shield_settings
		WHERE user_id = $1
	`
	var st models.ShieldSettings
	var status string
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&st.ID, &st.UserID, &st.InactivityPeriodMonths, &st.RequiredGuardiansForActivation,
		&st.IsShieldEnabled, &status, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("shield settings not found: user_id=%s: %w", userID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get shield settings: %w", err)
	}
	st.ShieldStatus = models.ShieldStatus(status)
	return &st, nil
}

func (s *PostgresStore) CreateShieldSettings(ctx context.Context, settings *models.ShieldSettings) error {
	if settings == nil || settings.UserID == "" {
		return fmt.Errorf("settings.user_id is required: %w", models.ErrInvalidArgument)
	}
	if settings.ID == "" {
		settings.ID = uuid.New().String()
	}
	query := `
		INSERT INTO family_shield_settings (
			id, user_id, inactivity_period_months, required_guardians_for_activation,
			is_shield_enabled, shield_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		settings.ID, settings.UserID, settings.InactivityPeriodMonths, settings.RequiredGuardiansForActivation,
		settings.IsShieldEnabled, string(settings.ShieldStatus), settings.CreatedAt, settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create shield settings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("shield settings for user_id=%s: %w", settings.UserID, models.ErrAlreadyExists)
	}
	return nil
}

func (s *PostgresStore) UpdateShieldStatus(ctx context.Context, userID string, status models.ShieldStatus, at time.Time) error {
	query := `UPDATE family_shield_settings SET shield_status = $2, updated_at = $3 WHERE user_id = $1`
	res, err := s.db.ExecContext(ctx, query, userID, string(status), at)
	if err != nil {
		return fmt.Errorf("failed to update shield status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("shield settings not found: user_id=%s: %w", userID, models.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListEnabledShieldUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM family_shield_settings WHERE is_shield_enabled ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled shields: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user_id: %w", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate enabled shields: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) CountEnabledShields(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM family_shield_settings WHERE is_shield_enabled`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count enabled shields: %w", err)
	}
	return n, nil
}

// ============================================
// emergency_detection_rules
// ============================================

func (s *PostgresStore) InitializeDefaultRules(ctx context.Context, userID string, rules []models.DetectionRule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO emergency_detection_rules (id, user_id, rule_type, threshold_value, severity, is_enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, rule_type) DO NOTHING
	`
	for _, r := range rules {
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx, query, id, userID, r.RuleType, r.ThresholdValue, string(r.Severity), r.IsEnabled, r.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert rule %s: %w", r.RuleType, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rules: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDetectionRules(ctx context.Context, userID string) ([]models.DetectionRule, error) {
	query := `
		SELECT id, user_id, rule_type, threshold_value, severity, is_enabled, created_at
		FROM emergency_detection_rules
		WHERE user_id = $1
		ORDER BY rule_type
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detection rules: %w", err)
	}
	defer rows.Close()

	var out []models.DetectionRule
	for rows.Next() {
		var r models.DetectionRule
		var severity string
		if err := rows.Scan(&r.ID, &r.UserID, &r.RuleType, &r.ThresholdValue, &severity, &r.IsEnabled, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan detection rule: %w", err)
		}
		r.Severity = models.Severity(severity)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate detection rules: %w", err)
	}
	return out, nil
}
