package repository

import (
	"context"
	"database/sql"
	"fmt"

	"family-shield/internal/models"
	"github.com/lib/pq"
)

// ============================================
// documents / emergency_contacts / time_capsules / family_guidance_entries
// ============================================

func (s *PostgresStore) ListDocuments(ctx context.Context, userID string) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, file_name, description, category, is_important, is_public, created_at
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		var description sql.NullString
		if err := rows.Scan(&d.ID, &d.UserID, &d.FileName, &description, &d.Category, &d.IsImportant, &d.IsPublic, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.Description = stringPtr(description)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListEmergencyContacts(ctx context.Context, userID string) ([]models.EmergencyContact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, relationship, email, phone, priority, is_public
		FROM emergency_contacts
		WHERE user_id = $1
		ORDER BY priority, name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query emergency contacts: %w", err)
	}
	defer rows.Close()

	var out []models.EmergencyContact
	for rows.Next() {
		var c models.EmergencyContact
		var phone sql.NullString
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Relationship, &c.Email, &phone, &c.Priority, &c.IsPublic); err != nil {
			return nil, fmt.Errorf("failed to scan emergency contact: %w", err)
		}
		c.Phone = stringPtr(phone)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emergency contacts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListTimeCapsules(ctx context.Context, userID string) ([]models.TimeCapsule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, message, recipient_guardian_id, delivery_condition, deliver_at, is_public, created_at
		FROM time_capsules
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query time capsules: %w", err)
	}
	defer rows.Close()

	var out []models.TimeCapsule
	for rows.Next() {
		var c models.TimeCapsule
		var recipient sql.NullString
		var deliverAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Message, &recipient, &c.DeliveryCondition, &deliverAt, &c.IsPublic, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan time capsule: %w", err)
		}
		c.RecipientGuardianID = stringPtr(recipient)
		c.DeliverAt = timePtr(deliverAt)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate time capsules: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListGuidanceEntries(ctx context.Context, userID string) ([]models.GuidanceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, entry_type, title, content, priority, is_completed, is_public,
		       related_document_ids, created_at, updated_at
		FROM family_guidance_entries
		WHERE user_id = $1
		ORDER BY priority, created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query guidance entries: %w", err)
	}
	defer rows.Close()

	var out []models.GuidanceEntry
	for rows.Next() {
		var g models.GuidanceEntry
		var related pq.StringArray
		if err := rows.Scan(
			&g.ID, &g.UserID, &g.EntryType, &g.Title, &g.Content, &g.Priority, &g.IsCompleted, &g.IsPublic,
			&related, &g.CreatedAt, &g.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan guidance entry: %w", err)
		}
		g.RelatedDocumentIDs = []string(related)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate guidance entries: %w", err)
	}
	return out, nil
}
