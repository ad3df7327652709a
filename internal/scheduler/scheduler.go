package scheduler

import (
	"context"
	"fmt"
	"time"

	"family-shield/internal/clock"
	"family-shield/internal/lock"
	"family-shield/internal/models"
	"family-shield/internal/notifier"
	"family-shield/internal/service"

	"go.uber.org/zap"
)

// Service the orchestrator operations the scheduler drives
type Service interface {
	ListEnabledShieldUsers(ctx context.Context) ([]string, error)
	MonitorUserActivity(ctx context.Context, userID string) *service.MonitorResult
	SendReminderNotifications(ctx context.Context, activationID string, reminder models.ReminderType) notifier.ReminderResult
	CleanupExpiredData(ctx context.Context) service.CleanupResult
}

// ReminderStore reads needed to plan reminders
type ReminderStore interface {
	ListPendingActivations(ctx context.Context) ([]*models.EmergencyActivation, error)
	HasReminder(ctx context.Context, token string, reminder models.ReminderType) (bool, error)
}

// Config tick intervals
type Config struct {
	MonitorInterval time.Duration
	CleanupInterval time.Duration
	Cadence         Cadence
}

// TickSummary what one monitor tick did
type TickSummary struct {
	Users     int
	Skipped   int
	Triggered int
	Reminders int
	Errors    int
}

// Scheduler periodic driver of the monitor pass, reminder cadence and cleanup.
// With a Locker, overlapping instances never work on the same user or sweep at once.
type Scheduler struct {
	svc    Service
	store  ReminderStore
	locker lock.Locker
	clock  clock.Clock
	cfg    Config
	logger *zap.Logger
}

// NewScheduler locker may be nil for a single instance
func NewScheduler(svc Service, store ReminderStore, locker lock.Locker, clk clock.Clock, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 24 * time.Hour
	}
	return &Scheduler{svc: svc, store: store, locker: locker, clock: clk, cfg: cfg, logger: logger}
}

// Run ticks until ctx is cancelled. The first monitor and cleanup ticks run immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Scheduler started",
		zap.Duration("monitor_interval", s.cfg.MonitorInterval),
		zap.Duration("cleanup_interval", s.cfg.CleanupInterval),
	)
	monitor := time.NewTicker(s.cfg.MonitorInterval)
	defer monitor.Stop()
	cleanup := time.NewTicker(s.cfg.CleanupInterval)
	defer cleanup.Stop()

	s.Tick(ctx)
	s.CleanupTick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-monitor.C:
			s.Tick(ctx)
		case <-cleanup.C:
			s.CleanupTick(ctx)
		}
	}
}

// Tick runs the monitor pass for every enabled user, then the reminder cadence
func (s *Scheduler) Tick(ctx context.Context) TickSummary {
	var summary TickSummary

	users, err := s.svc.ListEnabledShieldUsers(ctx)
	if err != nil {
		s.logger.Error("Failed to list enabled shields", zap.Error(err))
		summary.Errors++
	}
	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		summary.Users++
		ran, err := s.withLock(ctx, "monitor:"+userID, func() {
			res := s.svc.MonitorUserActivity(ctx, userID)
			if res.Triggered {
				summary.Triggered++
			}
			summary.Errors += len(res.Errors)
		})
		if err != nil {
			s.logger.Error("Monitor lock failed", zap.String("user_id", userID), zap.Error(err))
			summary.Errors++
			continue
		}
		if !ran {
			summary.Skipped++
		}
	}

	sent, errs := s.ReminderTick(ctx)
	summary.Reminders += sent
	summary.Errors += errs

	s.logger.Info("Monitor tick finished",
		zap.Int("users", summary.Users),
		zap.Int("skipped", summary.Skipped),
		zap.Int("triggered", summary.Triggered),
		zap.Int("reminders", summary.Reminders),
		zap.Int("errors", summary.Errors),
	)
	return summary
}

// ReminderTick sends the due reminder stage of each pending activation, at most once per stage
func (s *Scheduler) ReminderTick(ctx context.Context) (sent, errs int) {
	pending, err := s.store.ListPendingActivations(ctx)
	if err != nil {
		s.logger.Error("Failed to list pending activations", zap.Error(err))
		return 0, 1
	}
	now := s.clock.Now()
	for _, a := range pending {
		stage, due := s.cfg.Cadence.DueStage(a, now)
		if !due {
			continue
		}
		done, err := s.store.HasReminder(ctx, a.VerificationToken, stage)
		if err != nil {
			s.logger.Error("Failed to check reminder history",
				zap.String("activation_id", a.ID),
				zap.Error(err),
			)
			errs++
			continue
		}
		if done {
			continue
		}
		ran, err := s.withLock(ctx, fmt.Sprintf("reminder:%s:%s", a.ID, stage), func() {
			res := s.svc.SendReminderNotifications(ctx, a.ID, stage)
			sent += res.NotificationsSent
			errs += len(res.Errors)
		})
		if err != nil {
			errs++
			continue
		}
		if !ran {
			s.logger.Debug("Reminder handled by another scheduler", zap.String("activation_id", a.ID))
		}
	}
	return sent, errs
}

// CleanupTick runs the expiry sweep under a global lock
func (s *Scheduler) CleanupTick(ctx context.Context) service.CleanupResult {
	var result service.CleanupResult
	ran, err := s.withLock(ctx, "cleanup", func() {
		result = s.svc.CleanupExpiredData(ctx)
	})
	if err != nil {
		return service.CleanupResult{Errors: []string{err.Error()}}
	}
	if !ran {
		s.logger.Debug("Cleanup handled by another scheduler")
	}
	return result
}

// withLock runs fn while holding the named lease; ran is false when someone else holds it
func (s *Scheduler) withLock(ctx context.Context, name string, fn func()) (bool, error) {
	if s.locker == nil {
		fn()
		return true, nil
	}
	lease, err := s.locker.TryAcquire(ctx, name)
	if err != nil {
		return false, err
	}
	if lease == nil {
		return false, nil
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			s.logger.Warn("Failed to release lock", zap.String("lock", name), zap.Error(err))
		}
	}()
	fn()
	return true, nil
}
