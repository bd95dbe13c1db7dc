package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"DB_MAX_CONNS", "DB_MIN_CONNS", "DB_ACQUIRE_TIMEOUT", "BOOTSTRAP_ADMINS", "RATING_LIMIT", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, 20, cfg.DBMaxConns)
	assert.Equal(t, 2, cfg.DBMinConns)
	assert.Equal(t, 30*time.Second, cfg.DBAcquireTimeout)
	assert.Equal(t, 10, cfg.RatingLimit)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Empty(t, cfg.BootstrapAdmins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "40")
	t.Setenv("DB_ACQUIRE_TIMEOUT", "5s")
	t.Setenv("THROTTLE_INTERVAL", "not-a-duration")
	t.Setenv("BOOTSTRAP_ADMINS", "101, 202,abc,,303")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RATING_LIMIT", "x")

	cfg := Load()
	assert.Equal(t, 40, cfg.DBMaxConns)
	assert.Equal(t, 5*time.Second, cfg.DBAcquireTimeout)
	assert.Equal(t, time.Second, cfg.ThrottleInterval)
	assert.Equal(t, []int64{101, 202, 303}, cfg.BootstrapAdmins)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 10, cfg.RatingLimit)
}

func TestValidate(t *testing.T) {
	cfg := App{DatabaseURL: "postgres://x", DBMaxConns: 10, DBMinConns: 2}
	require.NoError(t, cfg.Validate(false))
	assert.Error(t, cfg.Validate(true))

	cfg.BotToken = "token"
	require.NoError(t, cfg.Validate(true))

	cfg.DBMinConns = 11
	assert.Error(t, cfg.Validate(false))
}

func TestRequireSharedQueue(t *testing.T) {
	assert.NoError(t, App{QueueBackend: "redis"}.RequireSharedQueue())
	assert.Error(t, App{QueueBackend: "memory"}.RequireSharedQueue())
}
