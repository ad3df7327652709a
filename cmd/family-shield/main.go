package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"family-shield/internal/app"
	"family-shield/internal/config"
	"family-shield/internal/httpapi"
	"family-shield/internal/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "family-shield")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := app.New(ctx, cfg, zapLogger)
	defer a.Close()

	handler := httpapi.NewEmergencyHandler(a.Service, zapLogger)
	router := httpapi.NewRouter(handler, a.Metrics, a.Registry)
	srv := httpapi.NewServer(cfg.HTTP.Addr, router, zapLogger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		zapLogger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		zapLogger.Error("HTTP server stopped", zap.Error(err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		zapLogger.Error("Failed to stop HTTP server", zap.Error(err))
	}
}
