package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"API_ADDR", "GRAPHTRACK_STORE", "GRAPHTRACK_MAX_CYCLES", "REDIS_URL", "MINIO_USE_SSL", "GRAPHTRACK_REPORT_TTL_SECONDS"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, 100, cfg.MaxCycles)
	assert.Empty(t, cfg.RedisURL)
	assert.False(t, cfg.MinioUseSSL)
	assert.Equal(t, 24*time.Hour, cfg.ReportTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GRAPHTRACK_STORE", "postgres")
	t.Setenv("GRAPHTRACK_MAX_CYCLES", "25")
	t.Setenv("GRAPHTRACK_REPORT_TTL_SECONDS", "60")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("GRAPHTRACK_MIGRATIONS_DIR", "/srv/migrations/")

	cfg := Load()
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, 25, cfg.MaxCycles)
	assert.Equal(t, time.Minute, cfg.ReportTTL)
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, "/srv/migrations/postgres", cfg.MigrationsPath("postgres"))
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("GRAPHTRACK_MAX_CYCLES", "lots")
	t.Setenv("MINIO_USE_SSL", "maybe")
	cfg := Load()
	assert.Equal(t, 100, cfg.MaxCycles)
	assert.False(t, cfg.MinioUseSSL)
}
