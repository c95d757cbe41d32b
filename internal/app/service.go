package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"graphtrack/api/internal/export"
	"graphtrack/api/internal/graph"
	"graphtrack/api/internal/logging"
	"graphtrack/api/internal/priority"
	"graphtrack/api/internal/reports"
	"graphtrack/api/internal/search"
	"graphtrack/api/internal/store"
	"graphtrack/api/internal/util"
	"graphtrack/api/internal/validation"
)

type CreateNodeInput struct {
	Title       string         `json:"title" validate:"required"`
	Description string         `json:"description"`
	Type        string         `json:"type" validate:"omitempty,nodetype"`
	Status      string         `json:"status" validate:"omitempty,nodestatus"`
	Position    store.Position `json:"position"`
	Executive   *float64       `json:"executive"`
	Individual  *float64       `json:"individual"`
	Community   *float64       `json:"community"`
	Metadata    map[string]any `json:"metadata"`
}

type UpdateNodeInput struct {
	Title       *string         `json:"title" validate:"omitempty,min=1"`
	Description *string         `json:"description"`
	Type        *string         `json:"type" validate:"omitempty,nodetype"`
	Status      *string         `json:"status" validate:"omitempty,nodestatus"`
	Position    *store.Position `json:"position"`
	Executive   *float64        `json:"executive"`
	Individual  *float64        `json:"individual"`
	Community   *float64        `json:"community"`
	Metadata    map[string]any  `json:"metadata"`
}

type CreateEdgeInput struct {
	Source   string         `json:"source" validate:"required"`
	Target   string         `json:"target" validate:"required"`
	Type     string         `json:"type" validate:"omitempty,relationship"`
	Weight   *float64       `json:"weight" validate:"omitempty,nonneg"`
	Strength *float64       `json:"strength" validate:"omitempty,unit"`
	Metadata map[string]any `json:"metadata"`
}

type UpdateEdgeInput struct {
	Type     *string        `json:"type" validate:"omitempty,relationship"`
	Weight   *float64       `json:"weight" validate:"omitempty,nonneg"`
	Strength *float64       `json:"strength" validate:"omitempty,unit"`
	Metadata map[string]any `json:"metadata"`
}

// NodeFilter selects a node listing. At most one of Type, MinPriority and
// Band may be set; none lists every node.
type NodeFilter struct {
	Type        string
	MinPriority *float64
	Band        string
}

type BandInfo struct {
	Name    priority.Band `json:"name"`
	Floor   float64       `json:"floor"`
	Ceiling float64       `json:"ceiling"`
}

type Vocabulary struct {
	Version           string                   `json:"version"`
	NodeTypes         []store.NodeType         `json:"nodeTypes"`
	NodeStatuses      []store.NodeStatus       `json:"nodeStatuses"`
	RelationshipTypes []store.RelationshipType `json:"relationshipTypes"`
	Bands             []BandInfo               `json:"bands"`
}

type Stats struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// ImportOutcome is the report of an import and, when the batch was usable,
// what was persisted.
type ImportOutcome struct {
	Report   validation.Report   `json:"report"`
	Imported *store.ImportResult `json:"imported,omitempty"`
}

type graphStore interface {
	Ping(context.Context) error
	CreateNode(context.Context, store.NodeSpec) (store.Node, error)
	GetNode(context.Context, string, bool) (store.NodeDetail, error)
	UpdateNode(context.Context, string, store.NodePatch) (store.Node, error)
	DeleteNode(context.Context, string) (bool, error)
	CreateEdge(context.Context, store.EdgeSpec) (store.Edge, error)
	GetEdge(context.Context, string) (store.Edge, error)
	UpdateEdge(context.Context, string, store.EdgePatch) (store.Edge, error)
	DeleteEdge(context.Context, string) (bool, error)
	ListNodesByType(context.Context, store.NodeType) ([]store.Node, error)
	ListNodesAbovePriority(context.Context, float64) ([]store.Node, error)
	ListNodesInRange(context.Context, float64, float64) ([]store.Node, error)
	CountNodes(context.Context) (int, error)
	CountEdges(context.Context) (int, error)
	ImportBatch(context.Context, []store.Node, []store.Edge) (store.ImportResult, error)
	DependencySnapshot(context.Context) (store.DependencySnapshot, error)
	Snapshot(context.Context) (store.GraphSnapshot, error)
	SearchNodes(context.Context, string, int) ([]store.Node, error)
}

// ReportStore retains batch validation reports.
type ReportStore interface {
	Save(ctx context.Context, report validation.Report) error
	Get(ctx context.Context, id string) (reports.Stored, error)
}

type Options struct {
	MaxCycles int
	// Search index; nil searches the store directly.
	Index search.Index
	// Reports is nil when report retention is disabled.
	Reports ReportStore
	// Uploader is nil when exports are returned inline only.
	Uploader export.Uploader
}

type Service struct {
	store   graphStore
	engine  *graph.Engine
	search  *search.Service
	exports *export.Service
	reports ReportStore
}

func New(dataStore graphStore, opts Options) *Service {
	return &Service{
		store:   dataStore,
		engine:  graph.NewEngine(dataStore, graph.WithMaxCycles(opts.MaxCycles)),
		search:  search.NewService(opts.Index, dataStore, nil),
		exports: export.NewService(dataStore, opts.Uploader),
		reports: opts.Reports,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Vocabulary() Vocabulary {
	bands := make([]BandInfo, 0, 5)
	for _, b := range priority.Bands() {
		bands = append(bands, BandInfo{Name: b, Floor: b.Floor(), Ceiling: min(b.Ceiling(), 1)})
	}
	return Vocabulary{
		Version:           store.VocabularyVersion,
		NodeTypes:         store.NodeTypes(),
		NodeStatuses:      store.NodeStatuses(),
		RelationshipTypes: store.RelationshipTypes(),
		Bands:             bands,
	}
}

func (s *Service) CreateNode(ctx context.Context, input CreateNodeInput) (store.Node, error) {
	if err := validation.Struct(input); err != nil {
		return store.Node{}, err
	}
	node, err := s.store.CreateNode(ctx, store.NodeSpec{
		Type:        store.NodeType(input.Type),
		Title:       input.Title,
		Description: input.Description,
		Status:      store.NodeStatus(input.Status),
		Position:    input.Position,
		Executive:   input.Executive,
		Individual:  input.Individual,
		Community:   input.Community,
		Metadata:    input.Metadata,
	})
	if err != nil {
		return store.Node{}, err
	}
	s.search.IndexNodes(node)
	logging.FromContext(ctx).DebugContext(ctx, "node created", "node_id", node.ID, "type", node.Type)
	return node, nil
}

func (s *Service) GetNode(ctx context.Context, id string, withLinks bool) (store.NodeDetail, error) {
	return s.store.GetNode(ctx, id, withLinks)
}

func (s *Service) UpdateNode(ctx context.Context, id string, input UpdateNodeInput) (store.Node, error) {
	if err := validation.Struct(input); err != nil {
		return store.Node{}, err
	}
	patch := store.NodePatch{
		Title:       input.Title,
		Description: input.Description,
		Position:    input.Position,
		Executive:   input.Executive,
		Individual:  input.Individual,
		Community:   input.Community,
		Metadata:    input.Metadata,
	}
	if input.Type != nil {
		nodeType := store.NodeType(*input.Type)
		patch.Type = &nodeType
	}
	if input.Status != nil {
		status := store.NodeStatus(*input.Status)
		patch.Status = &status
	}
	node, err := s.store.UpdateNode(ctx, id, patch)
	if err != nil {
		return store.Node{}, err
	}
	s.search.IndexNodes(node)
	return node, nil
}

func (s *Service) DeleteNode(ctx context.Context, id string) (bool, error) {
	removed, err := s.store.DeleteNode(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		s.search.RemoveNode(id)
		logging.FromContext(ctx).DebugContext(ctx, "node deleted", "node_id", id)
	}
	return removed, nil
}

func (s *Service) CreateEdge(ctx context.Context, input CreateEdgeInput) (store.Edge, error) {
	if err := validation.Struct(input); err != nil {
		return store.Edge{}, err
	}
	return s.store.CreateEdge(ctx, store.EdgeSpec{
		SourceID: input.Source,
		TargetID: input.Target,
		Type:     store.RelationshipType(input.Type),
		Weight:   input.Weight,
		Strength: input.Strength,
		Metadata: input.Metadata,
	})
}

func (s *Service) GetEdge(ctx context.Context, id string) (store.Edge, error) {
	return s.store.GetEdge(ctx, id)
}

func (s *Service) UpdateEdge(ctx context.Context, id string, input UpdateEdgeInput) (store.Edge, error) {
	if err := validation.Struct(input); err != nil {
		return store.Edge{}, err
	}
	patch := store.EdgePatch{
		Weight:   input.Weight,
		Strength: input.Strength,
		Metadata: input.Metadata,
	}
	if input.Type != nil {
		rel := store.RelationshipType(*input.Type)
		patch.Type = &rel
	}
	return s.store.UpdateEdge(ctx, id, patch)
}

func (s *Service) DeleteEdge(ctx context.Context, id string) (bool, error) {
	return s.store.DeleteEdge(ctx, id)
}

func (s *Service) ListNodes(ctx context.Context, filter NodeFilter) ([]store.Node, error) {
	set := 0
	for _, on := range []bool{filter.Type != "", filter.MinPriority != nil, filter.Band != ""} {
		if on {
			set++
		}
	}
	if set > 1 {
		return nil, validationError("use only one of type, minPriority and band")
	}

	switch {
	case filter.Type != "":
		return s.store.ListNodesByType(ctx, store.NodeType(filter.Type))
	case filter.MinPriority != nil:
		return s.store.ListNodesAbovePriority(ctx, *filter.MinPriority)
	case filter.Band != "":
		band, err := priority.ParseBand(filter.Band)
		if err != nil {
			return nil, validationError(err.Error())
		}
		return s.store.ListNodesInRange(ctx, band.Floor(), band.Ceiling())
	default:
		return s.store.ListNodesAbovePriority(ctx, 0)
	}
}

func (s *Service) ShortestPath(ctx context.Context, from, to string) (graph.PathResult, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return graph.PathResult{}, validationError("from and to are required")
	}
	return s.engine.ShortestPath(ctx, from, to)
}

func (s *Service) DetectCycles(ctx context.Context) (graph.CycleReport, error) {
	report, err := s.engine.DetectCycles(ctx)
	if err != nil {
		return graph.CycleReport{}, err
	}
	if report.Truncated {
		logging.FromContext(ctx).WarnContext(ctx, "cycle enumeration truncated", "limit", report.Limit)
	}
	return report, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.CountNodes(gctx)
		stats.Nodes = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.CountEdges(gctx)
		stats.Edges = n
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, fmt.Errorf("count graph: %w", err)
	}
	return stats, nil
}

// ValidateBatch runs the batch validator and, when retention is enabled,
// stores the report under a fresh id. A failed save is logged, not returned.
func (s *Service) ValidateBatch(ctx context.Context, batch validation.Batch) validation.Report {
	report := validation.ValidateBatch(batch)
	report.ID = util.NewID("rpt")
	validation.Observe(report)

	logger := logging.FromContext(ctx)
	logger.InfoContext(ctx, "batch validated",
		"report_id", report.ID,
		"usable", report.Usable,
		"valid_nodes", report.Stats.ValidNodes,
		"invalid_nodes", report.Stats.InvalidNodes,
		"valid_edges", report.Stats.ValidEdges,
		"invalid_edges", report.Stats.InvalidEdges,
	)
	if s.reports != nil {
		if err := s.reports.Save(ctx, report); err != nil {
			logger.WarnContext(ctx, "retain validation report", "report_id", report.ID, "error", err)
		}
	}
	return report
}

// ImportBatch validates batch and persists its valid part atomically when
// the report is usable. An unusable batch writes nothing.
func (s *Service) ImportBatch(ctx context.Context, batch validation.Batch) (ImportOutcome, error) {
	report := s.ValidateBatch(ctx, batch)
	if !report.Usable {
		return ImportOutcome{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "batch is not usable", report)
	}
	result, err := s.store.ImportBatch(ctx, report.ValidNodes, report.ValidEdges)
	if err != nil {
		return ImportOutcome{}, err
	}
	s.search.IndexNodes(result.Nodes...)
	logging.FromContext(ctx).InfoContext(ctx, "batch imported",
		"report_id", report.ID, "nodes", len(result.Nodes), "edges", len(result.Edges))
	return ImportOutcome{Report: report, Imported: &result}, nil
}

func (s *Service) GetReport(ctx context.Context, id string) (reports.Stored, error) {
	if s.reports == nil {
		return reports.Stored{}, domainError(http.StatusServiceUnavailable, "REPORTS_UNAVAILABLE", "Report retention is not configured", nil)
	}
	return s.reports.Get(ctx, id)
}

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	if q.Type != "" {
		canonical, ok := store.ParseNodeType(string(q.Type))
		if !ok {
			return search.Response{}, validationError(fmt.Sprintf("type %q is not a known node type", q.Type))
		}
		q.Type = canonical
	}
	return s.search.Search(ctx, q)
}

// ReindexSearch pushes every stored node to the search index.
func (s *Service) ReindexSearch(ctx context.Context) error {
	return s.search.Reindex(ctx, s.store)
}

// Export encodes the current graph. Without an uploader exactly one format
// may be requested since the result is returned inline.
func (s *Service) Export(ctx context.Context, formats []export.Format) ([]export.Result, error) {
	if !s.exports.Uploads() && len(formats) > 1 {
		return nil, validationError("only one format can be exported without object storage")
	}
	results, err := s.exports.Export(ctx, formats...)
	if err != nil {
		return nil, err
	}
	for _, result := range results {
		if result.Location != nil {
			logging.FromContext(ctx).InfoContext(ctx, "export uploaded",
				"bucket", result.Location.Bucket, "key", result.Location.Key, "size", result.Size)
		}
	}
	return results, nil
}

func (s *Service) ExportsUploaded() bool {
	return s.exports.Uploads()
}

// Wait blocks until background search index updates have finished.
func (s *Service) Wait() {
	s.search.Wait()
}
