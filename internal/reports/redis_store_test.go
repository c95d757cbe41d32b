package reports

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphtrack/api/internal/validation"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	reports, err := NewRedisStore("redis://"+s.Addr(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reports.Close() })
	return reports, s
}

func sampleReport(id string) validation.Report {
	title := "Ship v2"
	kind := "Epic"
	return validation.ValidateBatch(validation.Batch{
		Nodes: []*validation.NodeCandidate{
			{ID: &id, Title: &title, Type: &kind},
			nil,
		},
	})
}

func TestNewRedisStore(t *testing.T) {
	reports, _ := setupTestRedis(t, time.Hour)
	assert.NoError(t, reports.Ping(context.Background()))
}

func TestNewRedisStoreBadURL(t *testing.T) {
	_, err := NewRedisStore("not-a-url", time.Hour)
	assert.Error(t, err)
}

func TestSaveAndGet(t *testing.T) {
	reports, s := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	report := sampleReport("n1")
	report.ID = "rpt_1"
	require.NoError(t, reports.Save(ctx, report))
	assert.True(t, s.Exists("report:rpt_1"))

	stored, err := reports.Get(ctx, "rpt_1")
	require.NoError(t, err)
	assert.Equal(t, "rpt_1", stored.Report.ID)
	assert.Equal(t, report.Stats, stored.Report.Stats)
	assert.Equal(t, report.Usable, stored.Report.Usable)
	require.Len(t, stored.Report.ValidNodes, 1)
	assert.Equal(t, "n1", stored.Report.ValidNodes[0].ID)
	require.Len(t, stored.Report.InvalidNodes, 1)
	assert.Equal(t, validation.CodeMissingRecord, stored.Report.InvalidNodes[0].Issues[0].Code)
	assert.False(t, stored.SavedAt.IsZero())
}

func TestSaveRequiresID(t *testing.T) {
	reports, _ := setupTestRedis(t, time.Hour)
	assert.Error(t, reports.Save(context.Background(), sampleReport("n1")))
}

func TestGetExpiredReport(t *testing.T) {
	reports, s := setupTestRedis(t, time.Minute)
	ctx := context.Background()

	report := sampleReport("n1")
	report.ID = "rpt_exp"
	require.NoError(t, reports.Save(ctx, report))

	s.FastForward(2 * time.Minute)

	_, err := reports.Get(ctx, "rpt_exp")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetMissingReport(t *testing.T) {
	reports, _ := setupTestRedis(t, time.Hour)
	_, err := reports.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	reports, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	report := sampleReport("n1")
	report.ID = "rpt_del"
	require.NoError(t, reports.Save(ctx, report))
	require.NoError(t, reports.Delete(ctx, "rpt_del"))

	_, err := reports.Get(ctx, "rpt_del")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, reports.Delete(ctx, "rpt_del"), "deleting twice is not an error")
}

func TestDefaultTTL(t *testing.T) {
	reports, s := setupTestRedis(t, 0)
	ctx := context.Background()

	report := sampleReport("n1")
	report.ID = "rpt_ttl"
	require.NoError(t, reports.Save(ctx, report))
	assert.Equal(t, DefaultTTL, s.TTL("report:rpt_ttl"))
}

func TestCorruptPayload(t *testing.T) {
	reports, s := setupTestRedis(t, time.Hour)
	require.NoError(t, s.Set("report:bad", "{not json"))
	_, err := reports.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSaveReportWithNonFiniteCandidate(t *testing.T) {
	reports, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	id, title, kind := "n2", "Unbounded", "Task"
	nan := math.NaN()
	report := validation.ValidateBatch(validation.Batch{
		Nodes: []*validation.NodeCandidate{{
			ID: &id, Title: &title, Type: &kind,
			Priority: &validation.PriorityCandidate{Executive: &nan},
		}},
	})
	report.ID = "rpt_nan"
	require.NoError(t, reports.Save(ctx, report))

	stored, err := reports.Get(ctx, "rpt_nan")
	require.NoError(t, err)
	require.Len(t, stored.Report.InvalidNodes, 1)
	executive := stored.Report.InvalidNodes[0].Candidate.Priority.Executive
	require.NotNil(t, executive)
	assert.True(t, math.IsNaN(*executive))
}
