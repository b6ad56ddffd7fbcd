package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvOnlyDefaults(t *testing.T) {
	t.Setenv("NANSEN_API_KEY", "k-123")
	t.Setenv("SF_DB_DSN", "postgres://u:p@localhost/flows")

	cfg, err := Load("", true)
	require.NoError(t, err)

	assert.Equal(t, "k-123", cfg.Nansen.APIKey)
	assert.Equal(t, "postgres", cfg.DB.Provider)
	assert.Equal(t, 30, cfg.DexScreener.BatchSize)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.TickTimeout)
	assert.Equal(t, "0 */5 * * * *", cfg.Cron.Refresh)
	assert.Len(t, cfg.Pipeline.Timeframes, 9)
	assert.False(t, cfg.API.FallbackEnabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
db:
  provider: sqlite
  dsn: flows.db
pipeline:
  timeframes: ["1h", "24h"]
  tick_timeout: 30s
nansen:
  api_key: from-file
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("SF_PIPELINE_PAGE_SIZE", "25")

	cfg, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DB.Provider)
	assert.Equal(t, []string{"1h", "24h"}, cfg.Pipeline.Timeframes)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.TickTimeout)
	assert.Equal(t, 25, cfg.Pipeline.PageSize)
	assert.Equal(t, "from-file", cfg.Nansen.APIKey)
}

func TestValidateMissingCredentials(t *testing.T) {
	err := Config{}.Validate()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Len(t, cfgErr.Missing, 2)
	assert.Contains(t, err.Error(), "nansen.api_key")
}

func TestLoadEnvOnlyLockSettings(t *testing.T) {
	t.Setenv("SF_LOCK_REDIS_ADDR", "redis:6379")
	t.Setenv("SF_LOCK_REDIS_PASSWORD", "s3cret")
	t.Setenv("SF_LOCK_REDIS_DB", "2")

	cfg, err := Load("", true)
	require.NoError(t, err)

	assert.Equal(t, "redis:6379", cfg.Lock.RedisAddr)
	assert.Equal(t, "s3cret", cfg.Lock.RedisPassword)
	assert.Equal(t, 2, cfg.Lock.RedisDB)
	assert.Equal(t, 100*time.Millisecond, cfg.Lock.RetryInterval)
}
