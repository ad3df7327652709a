package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"family-shield/internal/config"
	"family-shield/internal/models"

	"go.uber.org/zap"
)

// Decide applies the consensus policy to the current tally.
// quorum: confirmed once confirmations reach required; any rejection rejects.
// single: the latest decisive response finalizes.
func Decide(mode string, latest models.ActivationStatus, confirmations, rejections, required int) (models.ActivationStatus, bool) {
	if mode == config.ConsensusSingle {
		return latest, true
	}
	if required < 1 {
		required = 1
	}
	if rejections > 0 {
		return models.ActivationRejected, true
	}
	if confirmations >= required {
		return models.ActivationConfirmed, true
	}
	return models.ActivationPending, false
}

func (m *Manager) applyConsensus(ctx context.Context, activation *models.EmergencyActivation, latest models.ActivationStatus, notes *string, now time.Time) (*ResponseOutcome, error) {
	responses, err := m.store.ListGuardianResponses(ctx, activation.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to tally guardian responses: %w", err)
	}
	required := models.DefaultRequiredGuardians
	var settings *models.ShieldSettings
	if s, err := m.store.GetShieldSettings(ctx, activation.UserID); err == nil {
		settings = s
		if s.RequiredGuardiansForActivation > 0 {
			required = s.RequiredGuardiansForActivation
		}
	}

	outcome := &ResponseOutcome{
		ActivationID: activation.ID,
		UserID:       activation.UserID,
		Response:     latest,
		Status:       models.ActivationPending,
		Required:     required,
	}
	for _, r := range responses {
		switch r.Response {
		case models.ActivationConfirmed:
			outcome.Confirmations++
		case models.ActivationRejected:
			outcome.Rejections++
		}
	}

	status, final := Decide(m.opts.ConsensusMode, latest, outcome.Confirmations, outcome.Rejections, required)
	if !final {
		return outcome, nil
	}

	if err := m.store.TransitionActivation(ctx, activation.ID, status, now, notes); err != nil {
		if errors.Is(err, models.ErrActivationNotPending) {
			// another response or the expiry sweep finalized it first
			if current, gerr := m.store.GetActivation(ctx, activation.ID); gerr == nil {
				outcome.Status = current.Status
			}
			return outcome, nil
		}
		return nil, fmt.Errorf("failed to finalize activation: %w", err)
	}
	outcome.Status = status
	outcome.Finalized = true

	shield := models.ShieldActivated
	if status == models.ActivationRejected {
		shield = models.ShieldInactive
		if settings == nil || settings.IsShieldEnabled {
			shield = models.ShieldArmed
		}
	}
	if err := m.store.UpdateShieldStatus(ctx, activation.UserID, shield, now); err != nil {
		m.logger.Warn("Failed to update shield status",
			zap.String("user_id", activation.UserID),
			zap.String("shield_status", string(shield)),
			zap.Error(err),
		)
	}
	return outcome, nil
}
