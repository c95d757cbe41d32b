package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphtrack/api/internal/config"
)

func TestBootstrapSQLite(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Config{
		Store:         "sqlite",
		SQLitePath:    filepath.Join(t.TempDir(), "nested", "graph.db"),
		MigrationsDir: filepath.Join("..", "..", "db", "migrations"),
		MaxCycles:     7,
		RedisURL:      "redis://" + mr.Addr(),
	}
	ctx := context.Background()

	rt, err := Bootstrap(ctx, cfg, nil, true)
	require.NoError(t, err)
	defer rt.Close()

	require.NoError(t, rt.Service.Ping(ctx))
	report := rt.Service.ValidateBatch(ctx, batchFixture())
	_, err = rt.Service.GetReport(ctx, report.ID)
	assert.NoError(t, err, "reports are retained when redis is configured")

	cycles, err := rt.Service.DetectCycles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, cycles.Limit)
}

func TestBootstrapUnknownStore(t *testing.T) {
	_, err := Bootstrap(context.Background(), config.Config{Store: "mongo"}, nil, false)
	assert.Error(t, err)
}

func TestBootstrapSkipsUnreachableRedis(t *testing.T) {
	cfg := config.Config{
		Store:         "sqlite",
		SQLitePath:    filepath.Join(t.TempDir(), "graph.db"),
		MigrationsDir: filepath.Join("..", "..", "db", "migrations"),
		RedisURL:      "redis://127.0.0.1:1",
	}
	rt, err := Bootstrap(context.Background(), cfg, nil, true)
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.Service.GetReport(context.Background(), "rpt_1")
	_, code := statusOf(err)
	assert.Equal(t, "REPORTS_UNAVAILABLE", code)
}
