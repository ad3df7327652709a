package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"family-shield/internal/models"
	"family-shield/internal/report"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CleanupResult outcome of the maintenance sweep
type CleanupResult struct {
	Cleaned int      `json:"cleaned"`
	Errors  []string `json:"errors"`
}

// CleanupExpiredData expires lapsed tokens, then removes stale notifications.
// Each step runs even if the other failed.
func (s *EmergencyService) CleanupExpiredData(ctx context.Context) CleanupResult {
	result := CleanupResult{Errors: []string{}}
	now := s.clock.Now()

	expired, err := s.store.ExpireOldActivationTokens(ctx, now)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Token cleanup failed: %v", err))
	} else {
		result.Cleaned += expired
		s.metrics.Cleaned("tokens", expired)
		s.metrics.ActivationFinalized(string(models.ActivationExpired), expired)
	}

	removed, err := s.store.CleanupExpiredEmergencyData(ctx, now)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Data cleanup failed: %v", err))
	} else {
		result.Cleaned += removed
		s.metrics.Cleaned("notifications", removed)
	}

	if len(result.Errors) > 0 {
		s.logger.Warn("Cleanup finished with errors",
			zap.Int("cleaned", result.Cleaned),
			zap.Strings("errors", result.Errors),
		)
	} else {
		s.logger.Info("Cleanup finished", zap.Int("cleaned", result.Cleaned))
	}
	return result
}

// SystemStatus protocol-wide counters
type SystemStatus struct {
	ActiveShields        int       `json:"active_shields"`
	PendingActivations   int       `json:"pending_activations"`
	PendingNotifications int       `json:"pending_notifications"`
	Errors               []string  `json:"errors"`
	IsHealthy            bool      `json:"is_healthy"`
	CheckedAt            time.Time `json:"checked_at"`
}

// GetSystemStatus counts run in parallel; each failure is reported, not fatal
func (s *EmergencyService) GetSystemStatus(ctx context.Context) SystemStatus {
	status := SystemStatus{Errors: []string{}, CheckedAt: s.clock.Now()}
	var mu sync.Mutex
	fail := func(what string, err error) {
		mu.Lock()
		defer mu.Unlock()
		status.Errors = append(status.Errors, fmt.Sprintf("%s: %v", what, err))
	}

	var g errgroup.Group
	g.Go(func() error {
		n, err := s.store.CountEnabledShields(ctx)
		if err != nil {
			fail("Failed to count active shields", err)
			return nil
		}
		status.ActiveShields = n
		return nil
	})
	g.Go(func() error {
		n, err := s.store.CountActivationsByStatus(ctx, models.ActivationPending)
		if err != nil {
			fail("Failed to count pending activations", err)
			return nil
		}
		status.PendingActivations = n
		return nil
	})
	g.Go(func() error {
		n, err := s.store.CountNotificationsByDeliveryStatus(ctx, models.DeliveryPending)
		if err != nil {
			fail("Failed to count pending notifications", err)
			return nil
		}
		status.PendingNotifications = n
		return nil
	})
	_ = g.Wait()

	status.IsHealthy = len(status.Errors) == 0
	return status
}

// ExportActivations XLSX audit of the user's activations and their notifications
func (s *EmergencyService) ExportActivations(ctx context.Context, userID string) ([]byte, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required: %w", models.ErrInvalidArgument)
	}
	activations, err := s.store.ListActivations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activations: %w", err)
	}
	audits := make([]report.ActivationAudit, 0, len(activations))
	for _, a := range activations {
		rows, err := s.store.ListNotificationsByToken(ctx, a.VerificationToken)
		if err != nil {
			return nil, fmt.Errorf("failed to list notifications for activation %s: %w", a.ID, err)
		}
		audits = append(audits, report.ActivationAudit{Activation: a, Notifications: rows})
	}
	return report.ActivationExport(audits)
}
