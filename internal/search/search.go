// Package search finds nodes by title and description. Meilisearch serves
// queries while it is healthy; the graph store answers otherwise.
package search

import (
	"context"

	"graphtrack/api/internal/store"
)

const (
	SourceIndex = "meilisearch"
	SourceStore = "store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Snippet  string  `json:"snippet"`
	Type     string  `json:"type"`
	Status   string  `json:"status"`
	Priority float64 `json:"priority"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Type   store.NodeType // empty = all types
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Source  string   `json:"source"`
}

// Index is a full-text node index.
type Index interface {
	Healthy() bool
	Search(q Query) ([]Result, int, error)
	IndexNodes(nodes []NodeRecord) error
	DeleteNode(id string) error
}

// Fallback answers queries straight from the graph store.
type Fallback interface {
	SearchNodes(ctx context.Context, text string, limit int) ([]store.Node, error)
}

// NodeRecord is the data we index for a node.
type NodeRecord struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	Priority    float64 `json:"priority"`
}

func RecordFromNode(n store.Node) NodeRecord {
	return NodeRecord{
		ID:          n.ID,
		Title:       n.Title,
		Description: n.Description,
		Type:        string(n.Type),
		Status:      string(n.Status),
		Priority:    n.Priority.Computed,
	}
}
