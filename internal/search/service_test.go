package search

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphtrack/api/internal/store"
)

type fakeIndex struct {
	mu      sync.Mutex
	healthy bool
	results []Result
	err     error
	indexed []NodeRecord
	deleted []string
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) Search(q Query) ([]Result, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.results, len(f.results), nil
}

func (f *fakeIndex) IndexNodes(nodes []NodeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, nodes...)
	return nil
}

func (f *fakeIndex) DeleteNode(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func newFallbackStore(t *testing.T) *store.GraphStore {
	t.Helper()
	ctx := context.Background()
	db, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.ApplyMigrations(ctx, db, store.DialectSQLite, filepath.Join("..", "..", "db", "migrations", "sqlite")))
	return store.NewSQLiteStore(db)
}

func TestSearchUsesHealthyIndex(t *testing.T) {
	index := &fakeIndex{healthy: true, results: []Result{{ID: "n1", Title: "Roadmap"}}}
	svc := NewService(index, nil, nil)

	resp, err := svc.Search(context.Background(), Query{Text: "road"})
	require.NoError(t, err)
	assert.Equal(t, SourceIndex, resp.Source)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "n1", resp.Results[0].ID)
}

func TestSearchFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	gs := newFallbackStore(t)
	_, err := gs.CreateNode(ctx, store.NodeSpec{Title: "Launch roadmap", Type: store.NodeEpic})
	require.NoError(t, err)
	_, err = gs.CreateNode(ctx, store.NodeSpec{Title: "Hiring", Description: "roadmap for the team", Type: store.NodeTask})
	require.NoError(t, err)
	_, err = gs.CreateNode(ctx, store.NodeSpec{Title: "Unrelated"})
	require.NoError(t, err)

	t.Run("index down", func(t *testing.T) {
		svc := NewService(&fakeIndex{healthy: false}, gs, nil)
		resp, err := svc.Search(ctx, Query{Text: "ROADMAP"})
		require.NoError(t, err)
		assert.Equal(t, SourceStore, resp.Source)
		assert.Equal(t, 2, resp.Total)
	})

	t.Run("index errors", func(t *testing.T) {
		svc := NewService(&fakeIndex{healthy: true, err: errors.New("boom")}, gs, nil)
		resp, err := svc.Search(ctx, Query{Text: "roadmap", Type: store.NodeTask})
		require.NoError(t, err)
		assert.Equal(t, SourceStore, resp.Source)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "Hiring", resp.Results[0].Title)
		assert.Equal(t, "roadmap for the team", resp.Results[0].Snippet)
	})

	t.Run("no index configured", func(t *testing.T) {
		svc := NewService(nil, gs, nil)
		resp, err := svc.Search(ctx, Query{Text: "roadmap", Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, resp.Total)
		assert.Len(t, resp.Results, 1)
	})

	t.Run("blank query", func(t *testing.T) {
		svc := NewService(nil, gs, nil)
		resp, err := svc.Search(ctx, Query{Text: "   "})
		require.NoError(t, err)
		assert.Empty(t, resp.Results)
		assert.NotNil(t, resp.Results)
	})
}

func TestIndexUpdatesRunInBackground(t *testing.T) {
	index := &fakeIndex{healthy: true}
	svc := NewService(index, nil, nil)

	svc.IndexNodes(store.Node{ID: "n1", Title: "A", Type: store.NodeEpic, Priority: store.Priority{Computed: 0.7}})
	svc.RemoveNode("n2")
	svc.Wait()

	require.Len(t, index.indexed, 1)
	assert.Equal(t, NodeRecord{ID: "n1", Title: "A", Type: "Epic", Priority: 0.7}, index.indexed[0])
	assert.Equal(t, []string{"n2"}, index.deleted)
}

func TestIndexUpdatesSkippedWhenUnhealthy(t *testing.T) {
	index := &fakeIndex{healthy: false}
	svc := NewService(index, nil, nil)
	svc.IndexNodes(store.Node{ID: "n1"})
	svc.RemoveNode("n1")
	svc.Wait()
	assert.Empty(t, index.indexed)
	assert.Empty(t, index.deleted)
}

func TestReindex(t *testing.T) {
	ctx := context.Background()
	gs := newFallbackStore(t)
	for _, title := range []string{"a", "b", "c"} {
		_, err := gs.CreateNode(ctx, store.NodeSpec{Title: title})
		require.NoError(t, err)
	}

	index := &fakeIndex{healthy: true}
	require.NoError(t, NewService(index, gs, nil).Reindex(ctx, gs))
	assert.Len(t, index.indexed, 3)
}

func TestHitToResult(t *testing.T) {
	raw := func(v any) json.RawMessage {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return b
	}
	hit := meili.Hit{
		"id":          raw("n1"),
		"title":       raw("Launch roadmap"),
		"description": raw("plan"),
		"type":        raw("Epic"),
		"status":      raw("Active"),
		"priority":    raw(0.75),
		"_formatted":  raw(map[string]any{"title": "Launch <mark>road</mark>map", "priority": "0.75"}),
	}
	assert.Equal(t, Result{
		ID:       "n1",
		Title:    "Launch <mark>road</mark>map",
		Snippet:  "plan",
		Type:     "Epic",
		Status:   "Active",
		Priority: 0.75,
	}, hitToResult(hit))
}

func TestNewMeiliUnreachable(t *testing.T) {
	m := NewMeili("http://127.0.0.1:1", "", nil)
	defer m.Close()
	assert.False(t, m.Healthy())
	_, _, err := m.Search(Query{Text: "x"})
	assert.Error(t, err)
}
