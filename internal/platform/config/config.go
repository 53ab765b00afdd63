package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration of the enrollment service.
type Config struct {
	Server    Server
	Auth      AuthConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Search    SearchConfig
	Notify    NotifyConfig
	Outbox    OutboxConfig
	Reconcile ReconcileConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	Environment    string
	LogLevel       slog.Level
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	TrustedProxies []netip.Prefix
	// DocumentsStore selects the object store for enrollment documents: "" (none) or
	// "memory". Without one, reads carry no signed URLs and deletes leave blobs alone.
	DocumentsStore string
	DocumentsURL   string
}

// AuthConfig holds admin token verification settings.
type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
}

// DatabaseConfig holds the canonical store connection settings.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxTimeout       time.Duration
	LockTimeout     time.Duration
}

// RedisConfig holds the search index connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables event fan-out when Brokers is set.
type KafkaConfig struct {
	Brokers         string
	Topic           string
	GroupID         string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
}

// Enabled reports whether Kafka fan-out is configured.
func (k KafkaConfig) Enabled() bool { return k.Brokers != "" }

// SearchConfig tunes the projector.
type SearchConfig struct {
	KeyPrefix        string
	IndexTimeout     time.Duration
	BatchSize        int
	BreakerFailures  int
	BreakerSuccesses int
}

// NotifyConfig selects and tunes the messaging channel.
type NotifyConfig struct {
	Channel          string // "log" or "whatsapp"
	TemplateID       string
	Language         string
	SendTimeout      time.Duration
	RetryInterval    time.Duration
	RetryGrace       time.Duration
	RetryBatchSize   int
	// RetryBackoff is the delay after the first failed send. It doubles per failure up
	// to RetryMaxBackoff.
	RetryBackoff     time.Duration
	RetryMaxBackoff  time.Duration
	RetryMaxAttempts int
	WhatsApp         WhatsAppConfig
}

// WhatsAppConfig holds Cloud API credentials.
type WhatsAppConfig struct {
	BaseURL       string
	PhoneNumberID string
	AccessToken   string
}

// OutboxConfig tunes the follow-up worker.
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	Lease        time.Duration
	Retention    time.Duration
}

// ReconcileConfig tunes the reconciliation sweep.
type ReconcileConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
	LockTTL   time.Duration
}

// Load reads an optional .env file and then builds the config from the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	cfg := FromEnv()
	return cfg, cfg.Validate()
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:           envString("ENROLLMENT_ADDR", ":8080"),
			Environment:    envString("ENVIRONMENT", "development"),
			LogLevel:       envLevel("LOG_LEVEL", slog.LevelInfo),
			RequestTimeout: envDuration("REQUEST_TIMEOUT", 15*time.Second),
			MaxBodyBytes:   int64(envInt("MAX_BODY_BYTES", 1<<20)),
			TrustedProxies: envPrefixes("TRUSTED_PROXIES"),
			DocumentsStore: envString("DOCUMENTS_STORE", ""),
			DocumentsURL:   envString("DOCUMENTS_BASE_URL", "http://localhost:8080/documents"),
		},
		Auth: AuthConfig{
			// Use a default for development - should be overridden in production
			JWTSigningKey: envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        envString("JWT_ISSUER", "enrollment"),
			Audience:      envString("JWT_AUDIENCE", "enrollment-admin"),
			TokenTTL:      envDuration("TOKEN_TTL", 8*time.Hour),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			TxTimeout:       envDuration("DB_TX_TIMEOUT", 5*time.Second),
			LockTimeout:     envDuration("DB_LOCK_TIMEOUT", 3*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 20),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:         os.Getenv("KAFKA_BROKERS"),
			Topic:           envString("KAFKA_TOPIC", "enrollment.events"),
			GroupID:         envString("KAFKA_GROUP_ID", "enrollment-followups"),
			Acks:            envString("KAFKA_ACKS", "all"),
			Retries:         envInt("KAFKA_RETRIES", 3),
			DeliveryTimeout: envDuration("KAFKA_DELIVERY_TIMEOUT", 30*time.Second),
		},
		Search: SearchConfig{
			KeyPrefix:        envString("SEARCH_KEY_PREFIX", "enroll:search"),
			IndexTimeout:     envDuration("SEARCH_INDEX_TIMEOUT", 2*time.Second),
			BatchSize:        envInt("SEARCH_BATCH_SIZE", 200),
			BreakerFailures:  envInt("SEARCH_BREAKER_FAILURES", 5),
			BreakerSuccesses: envInt("SEARCH_BREAKER_SUCCESSES", 2),
		},
		Notify: NotifyConfig{
			Channel:          envString("NOTIFY_CHANNEL", "log"),
			TemplateID:       envString("NOTIFY_TEMPLATE_ID", "reference_contact_notice"),
			Language:         envString("NOTIFY_LANGUAGE", "en"),
			SendTimeout:      envDuration("NOTIFY_SEND_TIMEOUT", 5*time.Second),
			RetryInterval:    envDuration("NOTIFY_RETRY_INTERVAL", 5*time.Minute),
			RetryGrace:       envDuration("NOTIFY_RETRY_GRACE", 2*time.Minute),
			RetryBatchSize:   envInt("NOTIFY_RETRY_BATCH_SIZE", 50),
			RetryBackoff:     envDuration("NOTIFY_RETRY_BACKOFF", 5*time.Minute),
			RetryMaxBackoff:  envDuration("NOTIFY_RETRY_MAX_BACKOFF", 6*time.Hour),
			RetryMaxAttempts: envInt("NOTIFY_RETRY_MAX_ATTEMPTS", 8),
			WhatsApp: WhatsAppConfig{
				BaseURL:       envString("WHATSAPP_BASE_URL", "https://graph.facebook.com/v20.0"),
				PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
				AccessToken:   os.Getenv("WHATSAPP_ACCESS_TOKEN"),
			},
		},
		Outbox: OutboxConfig{
			PollInterval: envDuration("OUTBOX_POLL_INTERVAL", 500*time.Millisecond),
			BatchSize:    envInt("OUTBOX_BATCH_SIZE", 100),
			MaxAttempts:  envInt("OUTBOX_MAX_ATTEMPTS", 10),
			Lease:        envDuration("OUTBOX_LEASE", 30*time.Second),
			Retention:    envDuration("OUTBOX_RETENTION", 72*time.Hour),
		},
		Reconcile: ReconcileConfig{
			Enabled:   envBool("RECONCILE_ENABLED", true),
			Interval:  envDuration("RECONCILE_INTERVAL", 10*time.Minute),
			BatchSize: envInt("RECONCILE_BATCH_SIZE", 500),
			LockTTL:   envDuration("RECONCILE_LOCK_TTL", 5*time.Minute),
		},
	}
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Redis.URL == "" {
		return errors.New("REDIS_URL is required")
	}
	if c.Notify.Channel == "whatsapp" && (c.Notify.WhatsApp.PhoneNumberID == "" || c.Notify.WhatsApp.AccessToken == "") {
		return errors.New("WHATSAPP_PHONE_NUMBER_ID and WHATSAPP_ACCESS_TOKEN are required for the whatsapp channel")
	}
	if c.Environment() == "production" && c.Auth.JWTSigningKey == "dev-secret-key-change-in-production" {
		return errors.New("JWT_SIGNING_KEY must be set in production")
	}
	switch c.Server.DocumentsStore {
	case "":
	case "memory":
		if c.Environment() == "production" {
			return errors.New("DOCUMENTS_STORE=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown DOCUMENTS_STORE %q", c.Server.DocumentsStore)
	}
	return nil
}

// Environment returns the deployment environment name.
func (c Config) Environment() string { return c.Server.Environment }

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envLevel(key string, fallback slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v)); err == nil {
			return level
		}
	}
	return fallback
}

func envPrefixes(key string) []netip.Prefix {
	var prefixes []netip.Prefix
	for _, raw := range strings.Split(os.Getenv(key), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if p, err := netip.ParsePrefix(raw); err == nil {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}
