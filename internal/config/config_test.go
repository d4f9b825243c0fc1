package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/homecloud/internal/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "homecloud.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 32768, cfg.Cache.Capacity)
	assert.Equal(t, int64(256<<20), cfg.Cache.MaxMemory)
	assert.Equal(t, "@every 15s", cfg.Cache.SweepSchedule)
	assert.Equal(t, 30*24*time.Hour, cfg.Session.MaxAge)
	assert.False(t, cfg.Database.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Storage.Enabled())
	require.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	t.Run("yaml overrides defaults", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, `
server:
  address: ":9000"
  debug: true
cache:
  capacity: 1024
  sweep_schedule: "@every 5s"
  load_timeout: 10s
database:
  url: postgres://localhost/homecloud
storage:
  bucket: files
  path_style: true
`)
		cfg, err := config.Load(path)
		require.NoError(t, err)

		assert.Equal(t, ":9000", cfg.Server.Address)
		assert.True(t, cfg.Server.Debug)
		assert.Equal(t, 1024, cfg.Cache.Capacity)
		assert.Equal(t, "@every 5s", cfg.Cache.SweepSchedule)
		assert.Equal(t, 10*time.Second, cfg.Cache.LoadTimeout)
		assert.Equal(t, int64(256<<20), cfg.Cache.MaxMemory, "untouched default survives")
		assert.True(t, cfg.Database.Enabled())
		assert.Equal(t, int32(10), cfg.Database.MaxConns)
		assert.True(t, cfg.Storage.PathStyle)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()

		_, err := config.Load(writeFile(t, "server: [unterminated"))
		require.ErrorIs(t, err, config.ErrInvalidFile)
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Parallel()

		_, err := config.Load(writeFile(t, "cache:\n  capacity: -1\n"))
		require.ErrorIs(t, err, config.ErrInvalidConfig)
	})
}

// Environment tests cannot run in parallel with t.Setenv.
func TestLoad_Env(t *testing.T) {
	t.Setenv("HOMECLOUD_SERVER_ADDRESS", ":7000")
	t.Setenv("HOMECLOUD_CACHE_CAPACITY", "64")
	t.Setenv("HOMECLOUD_CACHE_MAX_MEMORY", "1048576")
	t.Setenv("HOMECLOUD_REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("HOMECLOUD_S3_BUCKET", "blobs")
	t.Setenv("HOMECLOUD_LOG_LEVEL", "debug")
	t.Setenv("HOMECLOUD_SESSION_MAX_AGE", "1h")

	cfg, err := config.Load(writeFile(t, "server:\n  address: \":9000\"\n"))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Address, "env wins over file")
	assert.Equal(t, 64, cfg.Cache.Capacity)
	assert.Equal(t, int64(1<<20), cfg.Cache.MaxMemory)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Redis.URL)
	assert.Equal(t, "blobs", cfg.Storage.Bucket)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, time.Hour, cfg.Session.MaxAge)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("HOMECLOUD_CACHE_CAPACITY", "lots")

	_, err := config.Load("")
	require.ErrorIs(t, err, config.ErrInvalidEnv)
}
