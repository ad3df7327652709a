package scheduler

import (
	"time"

	"family-shield/internal/models"
)

// Cadence when each reminder stage becomes due for a pending activation
type Cadence struct {
	FirstAfter  time.Duration
	UrgentAfter time.Duration
	FinalBefore time.Duration
}

// DefaultCadence first reminder after 24h, urgent after 48h, final warning 12h before expiry
func DefaultCadence() Cadence {
	return Cadence{FirstAfter: 24 * time.Hour, UrgentAfter: 48 * time.Hour, FinalBefore: 12 * time.Hour}
}

// DueStage returns the most escalated stage due at now.
// Earlier stages that were skipped are never sent afterwards.
func (c Cadence) DueStage(a *models.EmergencyActivation, now time.Time) (models.ReminderType, bool) {
	if a.Status != models.ActivationPending || a.IsExpiredAt(now) {
		return "", false
	}
	switch {
	case !now.Before(a.TokenExpiresAt.Add(-c.FinalBefore)):
		return models.ReminderFinal, true
	case !now.Before(a.CreatedAt.Add(c.UrgentAfter)):
		return models.ReminderUrgent, true
	case !now.Before(a.CreatedAt.Add(c.FirstAfter)):
		return models.ReminderFirst, true
	}
	return "", false
}
