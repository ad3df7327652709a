package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"family-shield/internal/app"
	"family-shield/internal/config"
	"family-shield/internal/lock"
	"family-shield/internal/logger"
	"family-shield/internal/scheduler"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "family-shield-scheduler")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := app.New(ctx, cfg, zapLogger)
	defer a.Close()

	var locker lock.Locker
	if a.Redis != nil {
		locker = lock.NewRedisLocker(a.Redis, cfg.Scheduler.LockKeyPrefix, cfg.Scheduler.LockTTL)
	} else {
		zapLogger.Warn("Running without distributed locks; start a single scheduler instance only")
	}

	sched := scheduler.NewScheduler(a.Service, a.Store, locker, a.Clock, scheduler.Config{
		MonitorInterval: cfg.Scheduler.MonitorInterval,
		CleanupInterval: cfg.Scheduler.CleanupInterval,
		Cadence: scheduler.Cadence{
			FirstAfter:  cfg.Shield.Reminders.FirstAfter,
			UrgentAfter: cfg.Shield.Reminders.UrgentAfter,
			FinalBefore: cfg.Shield.Reminders.FinalBefore,
		},
	}, zapLogger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		zapLogger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := sched.Run(ctx); err != nil {
		zapLogger.Error("Scheduler failed", zap.Error(err))
	}
}
