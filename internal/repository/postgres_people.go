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
// guardians / profiles (read-only)
// ============================================

const guardianColumns = `
	id, user_id, name, email, phone, relationship, is_active, can_trigger_emergency,
	can_access_health_docs, can_access_financial_docs, is_child_guardian, is_will_executor,
	emergency_contact_priority, created_at
`

func scanGuardian(row rowScanner) (*models.Guardian, error) {
	var g models.Guardian
	var phone, relationship sql.NullString
	if err := row.Scan(
		&g.ID, &g.UserID, &g.Name, &g.Email, &phone, &relationship, &g.IsActive, &g.CanTriggerEmergency,
		&g.CanAccessHealthDocs, &g.CanAccessFinancialDocs, &g.IsChildGuardian, &g.IsWillExecutor,
		&g.EmergencyContactPriority, &g.CreatedAt,
	); err != nil {
		return nil, err
	}
	g.Phone = stringPtr(phone)
	g.Relationship = stringPtr(relationship)
	return &g, nil
}

func (s *PostgresStore) GetGuardian(ctx context.Context, guardianID string) (*models.Guardian, error) {
	g, err := scanGuardian(s.db.QueryRowContext(ctx, `SELECT `+guardianColumns+` FROM guardians WHERE id = $1`, guardianID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("guardian not found: guardian_id=%s: %w", guardianID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get guardian: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) ListActiveGuardians(ctx context.Context, userID string) ([]*models.Guardian, error) {
	query := `SELECT ` + guardianColumns + ` FROM guardians WHERE user_id = $1 AND is_active ORDER BY emergency_contact_priority, created_at`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query guardians: %w", err)
	}
	defer rows.Close()

	var out []*models.Guardian
	for rows.Next() {
		g, err := scanGuardian(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guardian: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate guardians: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	var avatar, memorial sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, full_name, email, avatar_url, memorial_message FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.FullName, &p.Email, &avatar, &memorial)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("profile not found: user_id=%s: %w", userID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	p.AvatarURL = stringPtr(avatar)
	p.MemorialMessage = stringPtr(memorial)
	return &p, nil
}

// ============================================
// emergency_health_checks
// ============================================

func (s *PostgresStore) RecordHealthCheck(ctx context.Context, c *models.HealthCheck) error {
	if c == nil || c.UserID == "" || !c.CheckType.Valid() {
		return fmt.Errorf("health check user_id and valid check_type are required: %w", models.ErrInvalidArgument)
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO emergency_health_checks (id, user_id, check_type, responded, checked_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.UserID, string(c.CheckType), c.Responded, c.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record health check: %w", err)
	}
	return nil
}

// GetActivitySignals last responded time per check type, plus missed counts.
// Consecutive misses are the unanswered checks after the most recent answered one.
func (s *PostgresStore) GetActivitySignals(ctx context.Context, userID string) (*ActivitySignals, error) {
	signals := &ActivitySignals{LastSeen: map[models.HealthCheckType]time.Time{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT check_type, MAX(checked_at)
		FROM emergency_health_checks
		WHERE user_id = $1 AND responded
		GROUP BY check_type
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity signals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var checkType string
		var last time.Time
		if err := rows.Scan(&checkType, &last); err != nil {
			return nil, fmt.Errorf("failed to scan activity signal: %w", err)
		}
		signals.LastSeen[models.HealthCheckType(checkType)] = last
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity signals: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE NOT h.responded),
			COUNT(*) FILTER (WHERE NOT h.responded AND h.checked_at > COALESCE(last.t, '-infinity'::timestamptz))
		FROM emergency_health_checks h,
		     (SELECT MAX(checked_at) AS t FROM emergency_health_checks WHERE user_id = $1 AND responded) last
		WHERE h.user_id = $1
	`, userID).Scan(&signals.TotalMissed, &signals.ConsecutiveMissed)
	if err != nil {
		return nil, fmt.Errorf("failed to count missed health checks: %w", err)
	}
	return signals, nil
}
