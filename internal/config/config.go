package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig Postgres connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN builds a lib/pq connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig push channel settings
type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// EmailConfig transactional email API settings
type EmailConfig struct {
	Enabled bool
	APIURL  string
	APIKey  string
	From    string
}

// SMSConfig SMS gateway settings
type SMSConfig struct {
	Enabled   bool
	APIURL    string
	AccountID string
	AuthToken string
	From      string
}

const (
	ConsensusQuorum = "quorum"
	ConsensusSingle = "single"
)

// ShieldConfig emergency protocol settings
type ShieldConfig struct {
	// BaseURL prefixes the guardian verification link: {BaseURL}/emergency/verify/{token}
	BaseURL string
	// TokenTTL is the fixed window between activation creation and token expiry
	TokenTTL time.Duration
	// ConsensusMode is "single" (first decisive response, the default) or "quorum" (N-of-M).
	// In quorum mode with more than one required guardian a single rejection still
	// finalizes the activation as rejected.
	ConsensusMode string

	HealthCheckMissThreshold int
	InactivityWarningDays    int

	Reminders struct {
		FirstAfter  time.Duration
		UrgentAfter time.Duration
		FinalBefore time.Duration
	}

	EventStream string
}

// SchedulerConfig periodic driver settings
type SchedulerConfig struct {
	MonitorInterval time.Duration
	CleanupInterval time.Duration
	LockTTL         time.Duration
	LockKeyPrefix   string
}

// Config family-shield configuration
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  DatabaseConfig
	Redis     RedisConfig

	Shield    ShieldConfig
	Email     EmailConfig
	SMS       SMSConfig
	MQTT      MQTTConfig
	Scheduler SchedulerConfig

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "family_shield")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Shield.BaseURL = getEnv("SHIELD_BASE_URL", "http://localhost:3000")
	cfg.Shield.TokenTTL = parseDuration(getEnv("SHIELD_TOKEN_TTL", "72h"), 72*time.Hour)
	cfg.Shield.ConsensusMode = getEnv("SHIELD_CONSENSUS_MODE", ConsensusSingle)
	cfg.Shield.HealthCheckMissThreshold = parseInt(getEnv("SHIELD_HEALTH_CHECK_MISS_THRESHOLD", "3"), 3)
	cfg.Shield.InactivityWarningDays = parseInt(getEnv("SHIELD_INACTIVITY_WARNING_DAYS", "30"), 30)
	cfg.Shield.Reminders.FirstAfter = parseDuration(getEnv("SHIELD_REMINDER_FIRST_AFTER", "24h"), 24*time.Hour)
	cfg.Shield.Reminders.UrgentAfter = parseDuration(getEnv("SHIELD_REMINDER_URGENT_AFTER", "48h"), 48*time.Hour)
	cfg.Shield.Reminders.FinalBefore = parseDuration(getEnv("SHIELD_REMINDER_FINAL_BEFORE", "12h"), 12*time.Hour)
	cfg.Shield.EventStream = getEnv("SHIELD_EVENT_STREAM", "family-shield:activations")

	cfg.Email.Enabled = getEnv("EMAIL_ENABLED", "false") == "true"
	cfg.Email.APIURL = getEnv("EMAIL_API_URL", "https://api.resend.com")
	cfg.Email.APIKey = getEnv("EMAIL_API_KEY", "")
	cfg.Email.From = getEnv("EMAIL_FROM", "LegacyGuard <emergency@legacyguard.local>")

	cfg.SMS.Enabled = getEnv("SMS_ENABLED", "false") == "true"
	cfg.SMS.APIURL = getEnv("SMS_API_URL", "https://api.twilio.com")
	cfg.SMS.AccountID = getEnv("SMS_ACCOUNT_ID", "")
	cfg.SMS.AuthToken = getEnv("SMS_AUTH_TOKEN", "")
	cfg.SMS.From = getEnv("SMS_FROM", "")

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "family-shield")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "family-shield/guardians")
	cfg.MQTT.QoS = 1

	cfg.Scheduler.MonitorInterval = parseDuration(getEnv("SCHEDULER_MONITOR_INTERVAL", "1h"), time.Hour)
	cfg.Scheduler.CleanupInterval = parseDuration(getEnv("SCHEDULER_CLEANUP_INTERVAL", "24h"), 24*time.Hour)
	cfg.Scheduler.LockTTL = parseDuration(getEnv("SCHEDULER_LOCK_TTL", "5m"), 5*time.Minute)
	cfg.Scheduler.LockKeyPrefix = getEnv("SCHEDULER_LOCK_PREFIX", "family-shield:lock:")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the protocol cannot run with
func (c *Config) Validate() error {
	if c.Shield.TokenTTL <= 0 {
		return fmt.Errorf("SHIELD_TOKEN_TTL must be positive, got %s", c.Shield.TokenTTL)
	}
	switch c.Shield.ConsensusMode {
	case ConsensusQuorum, ConsensusSingle:
	default:
		return fmt.Errorf("unknown SHIELD_CONSENSUS_MODE %q", c.Shield.ConsensusMode)
	}
	if c.Shield.HealthCheckMissThreshold <= 0 {
		return fmt.Errorf("SHIELD_HEALTH_CHECK_MISS_THRESHOLD must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
