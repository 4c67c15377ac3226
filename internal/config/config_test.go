package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 4, cfg.ChangeFeed.Workers)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("DB_DSN", "postgres://localhost/documents")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("CHANGE_FEED_QUEUE", "5")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.True(t, cfg.Log.Pretty)
	assert.Equal(t, 5, cfg.ChangeFeed.QueueSize)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("REDIS_ADDR=cache:6379\nDB_MAX_OPEN_CONNS=7\n"), 0o600))
	for _, key := range []string{"REDIS_ADDR", "DB_MAX_OPEN_CONNS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 7, cfg.Database.MaxOpenConns)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"DB_DRIVER":         "oracle",
		"DB_MAX_OPEN_CONNS": "many",
		"CACHE_TTL":         "soon",
		"LOG_PRETTY":        "sure",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.ErrorContains(t, err, key)
		})
	}
}
