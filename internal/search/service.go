package search

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"graphtrack/api/internal/store"
)

// Service is the facade that tries the index first and falls back to the store.
type Service struct {
	index    Index
	fallback Fallback
	logger   *slog.Logger
	pending  sync.WaitGroup
}

// NewService creates a search service. index may be nil if Meilisearch is not configured.
func NewService(index Index, fallback Fallback, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{index: index, fallback: fallback, logger: logger}
}

// Search tries the index if healthy, otherwise falls back to the store. A
// blank query returns no results.
func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	empty := Response{Results: []Result{}, Query: q.Text, Source: SourceStore}
	if strings.TrimSpace(q.Text) == "" {
		return empty, nil
	}

	if s.available() {
		results, total, err := s.index.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: SourceIndex}, nil
		}
		s.logger.WarnContext(ctx, "search index error, falling back to store", "error", err)
	}

	if s.fallback == nil {
		return empty, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	fetch := max(q.Offset, 0) + limit
	if q.Type != "" {
		// The store does not filter by type; over-fetch to still fill a page.
		fetch *= 4
	}
	nodes, err := s.fallback.SearchNodes(ctx, q.Text, fetch)
	if err != nil {
		return empty, err
	}
	results := make([]Result, 0, len(nodes))
	for _, n := range nodes {
		if q.Type != "" && n.Type != q.Type {
			continue
		}
		results = append(results, resultFromNode(n))
	}
	total := len(results)
	results = page(results, q.Offset, limit)
	return Response{Results: results, Total: total, Query: q.Text, Source: SourceStore}, nil
}

func resultFromNode(n store.Node) Result {
	return Result{
		ID:       n.ID,
		Title:    n.Title,
		Snippet:  n.Description,
		Type:     string(n.Type),
		Status:   string(n.Status),
		Priority: n.Priority.Computed,
	}
}

func page(results []Result, offset, limit int) []Result {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return []Result{}
	}
	end := min(offset+limit, len(results))
	return results[offset:end]
}

func (s *Service) available() bool {
	return s.index != nil && s.index.Healthy()
}

// IndexNodes pushes nodes to the index in the background.
func (s *Service) IndexNodes(nodes ...store.Node) {
	if !s.available() || len(nodes) == 0 {
		return
	}
	records := make([]NodeRecord, 0, len(nodes))
	for _, n := range nodes {
		records = append(records, RecordFromNode(n))
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.index.IndexNodes(records); err != nil {
			s.logger.Warn("search: index nodes", "count", len(records), "error", err)
		}
	}()
}

// RemoveNode deletes a node from the index in the background.
func (s *Service) RemoveNode(id string) {
	if !s.available() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.index.DeleteNode(id); err != nil {
			s.logger.Warn("search: delete node", "id", id, "error", err)
		}
	}()
}

// Reindex loads every node from the snapshot source and indexes it.
func (s *Service) Reindex(ctx context.Context, source interface {
	Snapshot(ctx context.Context) (store.GraphSnapshot, error)
}) error {
	if !s.available() {
		return nil
	}
	snap, err := source.Snapshot(ctx)
	if err != nil {
		return err
	}
	records := make([]NodeRecord, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		records = append(records, RecordFromNode(n))
	}
	if err := s.index.IndexNodes(records); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "search: reindexed nodes", "count", len(records))
	return nil
}

// Wait blocks until background index updates have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
