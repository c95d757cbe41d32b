package validation

import (
	"graphtrack/api/internal/priority"
	"graphtrack/api/internal/store"
)

// SanitizeNode turns a candidate into canonical form. Title falls back to
// name, type and status fall back to their defaults, priority inputs default
// to the midpoint and are clamped, and any non-finite number becomes 0.
func SanitizeNode(candidate NodeCandidate) store.Node {
	node := store.Node{
		ID:       trimmed(candidate.ID),
		Title:    trimmed(candidate.Title),
		Type:     store.DefaultNodeType,
		Status:   store.DefaultNodeStatus,
		Metadata: candidate.Metadata,
	}
	if node.Title == "" {
		node.Title = trimmed(candidate.Name)
	}
	if candidate.Description != nil {
		node.Description = *candidate.Description
	}
	if nodeType, ok := store.ParseNodeType(trimmed(candidate.Type)); ok {
		node.Type = nodeType
	}
	if status, ok := store.ParseNodeStatus(trimmed(candidate.Status)); ok {
		node.Status = status
	}
	if len(node.Metadata) == 0 {
		node.Metadata = nil
	}

	if p := candidate.Position; p != nil {
		node.Position = store.Position{
			X:      finitePtr(p.X),
			Y:      finitePtr(p.Y),
			Z:      finitePtr(p.Z),
			Radius: finitePtr(p.Radius),
			Theta:  finitePtr(p.Theta),
			Phi:    finitePtr(p.Phi),
		}
	}

	var dims PriorityCandidate
	if candidate.Priority != nil {
		dims = *candidate.Priority
	}
	node.Priority.Executive = dimension(dims.Executive)
	node.Priority.Individual = dimension(dims.Individual)
	node.Priority.Community = dimension(dims.Community)
	node.Priority.Computed = priority.Compute(node.Priority.Executive, node.Priority.Individual, node.Priority.Community)
	return node
}

// SanitizeEdge fills defaults and clamps weight to [0,inf) and strength to
// [0,1]. A missing id stays empty and is assigned when the edge is stored.
func SanitizeEdge(candidate EdgeCandidate) store.Edge {
	edge := store.Edge{
		ID:       trimmed(candidate.ID),
		SourceID: trimmed(candidate.Source),
		TargetID: trimmed(candidate.Target),
		Type:     store.DefaultRelationship,
		Weight:   store.DefaultEdgeWeight,
		Strength: store.DefaultEdgeStrength,
		Metadata: candidate.Metadata,
	}
	if relType, ok := store.ParseRelationshipType(trimmed(candidate.Type)); ok {
		edge.Type = relType
	}
	if candidate.Weight != nil {
		edge.Weight = finiteOr(*candidate.Weight, 0)
		if edge.Weight < 0 {
			edge.Weight = 0
		}
	}
	if candidate.Strength != nil {
		edge.Strength = priority.Clamp(finiteOr(*candidate.Strength, 0))
	}
	if len(edge.Metadata) == 0 {
		edge.Metadata = nil
	}
	return edge
}

func dimension(value *float64) float64 {
	if value == nil {
		return priority.DefaultDimension
	}
	return priority.Clamp(finiteOr(*value, 0))
}

func finitePtr(value *float64) *float64 {
	if value == nil {
		return nil
	}
	v := finiteOr(*value, 0)
	return &v
}

// Candidates converts the sanitized output of a report back into a batch.
// Validating it again yields no errors and the same orphan warnings.
func (r Report) Candidates() Batch {
	batch := Batch{
		Nodes: make([]*NodeCandidate, 0, len(r.ValidNodes)),
		Edges: make([]*EdgeCandidate, 0, len(r.ValidEdges)),
	}
	for _, n := range r.ValidNodes {
		batch.Nodes = append(batch.Nodes, NodeCandidateFrom(n))
	}
	for _, e := range r.ValidEdges {
		batch.Edges = append(batch.Edges, EdgeCandidateFrom(e))
	}
	return batch
}

func NodeCandidateFrom(n store.Node) *NodeCandidate {
	candidate := &NodeCandidate{
		ID:       stringPtr(n.ID),
		Title:    stringPtr(n.Title),
		Type:     stringPtr(string(n.Type)),
		Status:   stringPtr(string(n.Status)),
		Metadata: n.Metadata,
		Priority: &PriorityCandidate{
			Executive:  floatPtr(n.Priority.Executive),
			Individual: floatPtr(n.Priority.Individual),
			Community:  floatPtr(n.Priority.Community),
			Computed:   floatPtr(n.Priority.Computed),
		},
	}
	if n.Description != "" {
		candidate.Description = stringPtr(n.Description)
	}
	if len(n.Position.Coordinates()) > 0 {
		candidate.Position = &PositionCandidate{
			X: n.Position.X, Y: n.Position.Y, Z: n.Position.Z,
			Radius: n.Position.Radius, Theta: n.Position.Theta, Phi: n.Position.Phi,
		}
	}
	return candidate
}

func EdgeCandidateFrom(e store.Edge) *EdgeCandidate {
	candidate := &EdgeCandidate{
		Source:   stringPtr(e.SourceID),
		Target:   stringPtr(e.TargetID),
		Type:     stringPtr(string(e.Type)),
		Weight:   floatPtr(e.Weight),
		Strength: floatPtr(e.Strength),
		Metadata: e.Metadata,
	}
	if e.ID != "" {
		candidate.ID = stringPtr(e.ID)
	}
	return candidate
}

func stringPtr(v string) *string {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}
