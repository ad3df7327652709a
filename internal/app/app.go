package app

import (
	"context"
	"database/sql"

	"family-shield/internal/access"
	"family-shield/internal/clock"
	"family-shield/internal/config"
	"family-shield/internal/database"
	"family-shield/internal/delivery"
	"family-shield/internal/detection"
	"family-shield/internal/events"
	"family-shield/internal/metrics"
	"family-shield/internal/notifier"
	"family-shield/internal/repository"
	"family-shield/internal/service"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// eventStreamMaxLen approximate cap on the lifecycle event stream
const eventStreamMaxLen = 10000

// App the wired emergency protocol shared by the API and scheduler processes
type App struct {
	Service  *service.EmergencyService
	Store    repository.Store
	Redis    *redis.Client // nil when Redis is unreachable
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Clock    clock.Clock

	db   *sql.DB
	mqtt *delivery.MQTTClient
}

// New connects the stores and channels named by cfg.
// Postgres and Redis failures degrade to in-memory storage and log-only events.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) *App {
	a := &App{Clock: clock.Real{}, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	a.Store = a.openStore(cfg, logger)

	var publisher events.Publisher
	if client, err := database.NewRedisClient(ctx, &cfg.Redis); err == nil {
		a.Redis = client
		publisher = events.NewStreamPublisher(client, cfg.Shield.EventStream, eventStreamMaxLen, logger)
		logger.Info("Redis enabled", zap.String("stream", cfg.Shield.EventStream))
	} else {
		logger.Warn("Redis unavailable, lifecycle events are logged only", zap.Error(err))
		publisher = events.NewLogPublisher(logger)
	}

	engine := detection.NewEngine(a.Store, a.Clock, detection.Config{
		TokenTTL:                 cfg.Shield.TokenTTL,
		HealthCheckMissThreshold: cfg.Shield.HealthCheckMissThreshold,
		InactivityWarningDays:    cfg.Shield.InactivityWarningDays,
	}, detection.RandomToken, logger)
	manager := notifier.NewManager(a.Store, a.channels(cfg, logger), a.Clock, notifier.Options{
		BaseURL:       cfg.Shield.BaseURL,
		ConsensusMode: cfg.Shield.ConsensusMode,
	}, logger)
	resolver := access.NewResolver(a.Store, a.Clock, logger)

	a.Service = service.NewEmergencyService(a.Store, engine, manager, resolver, publisher, a.Metrics, a.Clock, logger)
	return a
}

func (a *App) openStore(cfg *config.Config, logger *zap.Logger) repository.Store {
	if !cfg.DBEnabled {
		logger.Warn("DB disabled, using in-memory store")
		return repository.NewMemoryStore()
	}
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		logger.Warn("DB enabled but connection failed, falling back to in-memory store", zap.Error(err))
		return repository.NewMemoryStore()
	}
	if err := database.Migrate(db); err != nil {
		logger.Error("Schema migration failed", zap.Error(err))
	}
	a.db = db
	logger.Info("DB enabled", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.Database))
	return repository.NewPostgresStore(db, logger)
}

func (a *App) channels(cfg *config.Config, logger *zap.Logger) notifier.Channels {
	var ch notifier.Channels
	if cfg.Email.Enabled {
		ch.Email = delivery.NewEmailSender(&cfg.Email, logger)
	} else {
		ch.Email = delivery.NewLogSender("email", logger)
	}
	if cfg.SMS.Enabled {
		ch.SMS = delivery.NewSMSSender(&cfg.SMS, logger)
	} else {
		ch.SMS = delivery.NewLogSender("sms", logger)
	}
	if cfg.MQTT.Enabled {
		client, err := delivery.NewMQTTClient(&cfg.MQTT, logger)
		if err != nil {
			logger.Warn("MQTT unavailable, push notifications disabled", zap.Error(err))
		} else {
			a.mqtt = client
			ch.Push = delivery.NewPushSender(client, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS, logger)
		}
	}
	return ch
}

// Close releases every connection New opened
func (a *App) Close() {
	if a.mqtt != nil {
		a.mqtt.Disconnect()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	_ = database.Close(a.db)
}
