package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.Production())
	assert.Equal(t, "auth.events", cfg.Rabbit.Exchange)
	assert.Equal(t, "mail.*", cfg.Rabbit.BindKey)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.SessionTTL)
	assert.Equal(t, 24*time.Hour, cfg.Redis.DedupTTL)
	assert.Empty(t, cfg.JWT.KeyFile)
	assert.Equal(t, ":9091", cfg.NotifierMetricsAddr)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("CLIENT_URL", "https://app.example.com")
	t.Setenv("MONGO_URI", "mongodb://mongo:27017")
	t.Setenv("JWT_SESSION_TTL", "2h")
	t.Setenv("RABBIT_CONCURRENCY", "8")
	t.Setenv("RABBIT_DISABLED", "true")
	t.Setenv("SMTP_PORT", "587")
	t.Setenv("DD_TRACE_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Production())
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "https://app.example.com", cfg.ClientURL)
	assert.Equal(t, "mongodb://mongo:27017", cfg.Mongo.URI)
	assert.Equal(t, 2*time.Hour, cfg.JWT.SessionTTL)
	assert.Equal(t, 8, cfg.Rabbit.Concurrency)
	assert.True(t, cfg.Rabbit.Disabled)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.True(t, cfg.DD.Enabled)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("JWT_SESSION_TTL", "soon")
	_, err := Load()
	require.Error(t, err)
}
