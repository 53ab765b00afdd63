package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("ENROLLMENT_ADDR", "")
	t.Setenv("SEARCH_BATCH_SIZE", "")

	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 200, cfg.Search.BatchSize)
	assert.Equal(t, "log", cfg.Notify.Channel)
	assert.Equal(t, 5*time.Second, cfg.Database.TxTimeout)
	assert.Equal(t, 8, cfg.Notify.RetryMaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Notify.RetryBackoff)
	assert.Empty(t, cfg.Server.DocumentsStore)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ENROLLMENT_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SEARCH_INDEX_TIMEOUT", "750ms")
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, not-a-cidr ,192.168.0.0/16")
	t.Setenv("RECONCILE_ENABLED", "false")

	cfg := FromEnv()
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, slog.LevelDebug, cfg.Server.LogLevel)
	assert.Equal(t, 750*time.Millisecond, cfg.Search.IndexTimeout)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Len(t, cfg.Server.TrustedProxies, 2)
	assert.False(t, cfg.Reconcile.Enabled)
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("OUTBOX_BATCH_SIZE", "many")
	t.Setenv("OUTBOX_POLL_INTERVAL", "soon")

	cfg := FromEnv()
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Outbox.PollInterval)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := FromEnv()
		cfg.Database.URL = "postgres://localhost/enrollment"
		cfg.Redis.URL = "redis://localhost:6379/0"
		return cfg
	}

	t.Run("requires database", func(t *testing.T) {
		cfg := base()
		cfg.Database.URL = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("requires whatsapp credentials", func(t *testing.T) {
		cfg := base()
		cfg.Notify.Channel = "whatsapp"
		cfg.Notify.WhatsApp.AccessToken = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects default signing key in production", func(t *testing.T) {
		cfg := base()
		cfg.Server.Environment = "production"
		cfg.Auth.JWTSigningKey = "dev-secret-key-change-in-production"
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects unknown document store", func(t *testing.T) {
		cfg := base()
		cfg.Server.DocumentsStore = "s3"
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects memory document store in production", func(t *testing.T) {
		cfg := base()
		cfg.Server.Environment = "production"
		cfg.Auth.JWTSigningKey = "prod-key"
		cfg.Server.DocumentsStore = "memory"
		require.Error(t, cfg.Validate())

		cfg.Server.Environment = "development"
		require.NoError(t, cfg.Validate())
	})

	t.Run("accepts complete config", func(t *testing.T) {
		require.NoError(t, base().Validate())
	})
}
