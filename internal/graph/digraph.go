package graph

import "graphtrack/api/internal/store"

// digraph is the DependsOn subgraph with nodes numbered in insertion order.
// Successor lists keep edge insertion order and drop parallel edges.
type digraph struct {
	ids   []string
	index map[string]int
	adj   [][]int
}

func newDigraph(snap store.DependencySnapshot) *digraph {
	g := &digraph{
		ids:   snap.NodeIDs,
		index: make(map[string]int, len(snap.NodeIDs)),
		adj:   make([][]int, len(snap.NodeIDs)),
	}
	for i, id := range snap.NodeIDs {
		g.index[id] = i
	}

	seen := make(map[[2]int]struct{}, len(snap.Links))
	for _, link := range snap.Links {
		from, ok := g.index[link.From]
		if !ok {
			continue
		}
		to, ok := g.index[link.To]
		if !ok {
			continue
		}
		key := [2]int{from, to}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		g.adj[from] = append(g.adj[from], to)
	}
	return g
}
