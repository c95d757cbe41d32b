// Package graph answers structural questions about the DependsOn subgraph:
// shortest dependency paths and elementary cycles. Every call reads a fresh
// snapshot from the store; nothing is cached between calls.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"graphtrack/api/internal/store"
)

// DefaultMaxCycles bounds cycle enumeration on pathological graphs.
const DefaultMaxCycles = 100

var tracer = otel.Tracer("graphtrack/graph")

var traversalDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "graphtrack",
		Subsystem: "graph",
		Name:      "traversal_duration_seconds",
		Help:      "Duration of graph traversals, snapshot read included.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"op"},
)

// SnapshotSource provides a consistent read of the dependency graph.
type SnapshotSource interface {
	DependencySnapshot(ctx context.Context) (store.DependencySnapshot, error)
}

type Engine struct {
	source    SnapshotSource
	maxCycles int
}

type Option func(*Engine)

// WithMaxCycles sets the cycle cap. Values below 1 keep the default.
func WithMaxCycles(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxCycles = n
		}
	}
}

func NewEngine(source SnapshotSource, opts ...Option) *Engine {
	e := &Engine{source: source, maxCycles: DefaultMaxCycles}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) MaxCycles() int {
	return e.maxCycles
}

// PathResult is the outcome of ShortestPath. Found is false and Length is -1
// when no DependsOn chain connects the endpoints.
type PathResult struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Path   []string `json:"path"`
	Length int      `json:"length"`
	Found  bool     `json:"found"`
}

// CycleReport lists elementary DependsOn cycles, each closed (first id
// repeated at the end). Truncated is set when enumeration stopped at Limit.
type CycleReport struct {
	Cycles    [][]string `json:"cycles"`
	Truncated bool       `json:"truncated"`
	Limit     int        `json:"limit"`
}

// ShortestPath returns the minimum-edge DependsOn chain from -> to. A missing
// endpoint is an error wrapping store.ErrNotFound; an unreachable target is
// not.
func (e *Engine) ShortestPath(ctx context.Context, from, to string) (result PathResult, err error) {
	ctx, span := tracer.Start(ctx, "graph.ShortestPath")
	defer span.End()
	defer observeSince("shortest_path", time.Now())
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	snap, err := e.source.DependencySnapshot(ctx)
	if err != nil {
		return PathResult{}, fmt.Errorf("read dependency snapshot: %w", err)
	}
	g := newDigraph(snap)

	start, ok := g.index[from]
	if !ok {
		return PathResult{}, fmt.Errorf("path start %s: %w", from, store.ErrNotFound)
	}
	goal, ok := g.index[to]
	if !ok {
		return PathResult{}, fmt.Errorf("path end %s: %w", to, store.ErrNotFound)
	}

	result = PathResult{From: from, To: to, Path: []string{}, Length: -1}
	if start == goal {
		result.Path = []string{from}
		result.Length = 0
		result.Found = true
		return result, nil
	}

	parent := make([]int, len(g.ids))
	for i := range parent {
		parent[i] = -1
	}
	parent[start] = start
	queue := []int{start}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return PathResult{}, err
		}
		current := queue[0]
		queue = queue[1:]
		for _, next := range g.adj[current] {
			if parent[next] != -1 {
				continue
			}
			parent[next] = current
			if next == goal {
				result.Path = g.walkBack(parent, start, goal)
				result.Length = len(result.Path) - 1
				result.Found = true
				span.SetAttributes(attribute.Int("graph.path_length", result.Length))
				return result, nil
			}
			queue = append(queue, next)
		}
	}
	return result, nil
}

func (g *digraph) walkBack(parent []int, start, goal int) []string {
	var reversed []int
	for v := goal; ; v = parent[v] {
		reversed = append(reversed, v)
		if v == start {
			break
		}
	}
	path := make([]string, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, g.ids[reversed[i]])
	}
	return path
}

// DetectCycles enumerates elementary DependsOn cycles up to the engine's cap.
// A self-loop is reported as [a, a].
func (e *Engine) DetectCycles(ctx context.Context) (report CycleReport, err error) {
	ctx, span := tracer.Start(ctx, "graph.DetectCycles")
	defer span.End()
	defer observeSince("detect_cycles", time.Now())
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	snap, err := e.source.DependencySnapshot(ctx)
	if err != nil {
		return CycleReport{}, fmt.Errorf("read dependency snapshot: %w", err)
	}
	g := newDigraph(snap)

	finder := newCycleFinder(ctx, g, e.maxCycles)
	if err := finder.run(); err != nil {
		return CycleReport{}, err
	}

	report = CycleReport{Cycles: finder.cycles, Truncated: finder.truncated, Limit: e.maxCycles}
	span.SetAttributes(
		attribute.Int("graph.cycles", len(report.Cycles)),
		attribute.Bool("graph.truncated", report.Truncated),
	)
	return report, nil
}

func observeSince(op string, start time.Time) {
	traversalDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
