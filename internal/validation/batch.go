// Package validation partitions untrusted node and edge payloads into a
// valid, sanitized set and an invalid set with structured diagnostics.
//
// ValidateBatch is pure: it never touches the store and returns every
// problem as data in a Report.
package validation

import (
	"fmt"
	"math"
	"strings"

	"graphtrack/api/internal/store"
)

const (
	EntityNode = "node"
	EntityEdge = "edge"
)

// Issue codes.
const (
	CodeMissingRecord       = "missing_record"
	CodeInvalidRecord       = "invalid_record"
	CodeInvalidValue        = "invalid_value"
	CodeMissingID           = "missing_id"
	CodeMissingTitle        = "missing_title"
	CodeMissingType         = "missing_type"
	CodeInvalidType         = "invalid_type"
	CodeInvalidStatus       = "invalid_status"
	CodeNonFinite           = "non_finite"
	CodeOutOfRange          = "out_of_range"
	CodeDuplicateID         = "duplicate_id"
	CodeMissingSource       = "missing_source"
	CodeMissingTarget       = "missing_target"
	CodeMissingReference    = "missing_reference"
	CodeInvalidRelationship = "invalid_relationship"
	CodeOrphanNode          = "orphan_node"
)

// PositionCandidate mirrors store.Position with every coordinate optional.
type PositionCandidate struct {
	X      *float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Y      *float64 `json:"y,omitempty" yaml:"y,omitempty"`
	Z      *float64 `json:"z,omitempty" yaml:"z,omitempty"`
	Radius *float64 `json:"radius,omitempty" yaml:"radius,omitempty"`
	Theta  *float64 `json:"theta,omitempty" yaml:"theta,omitempty"`
	Phi    *float64 `json:"phi,omitempty" yaml:"phi,omitempty"`
}

type PriorityCandidate struct {
	Executive  *float64 `json:"executive,omitempty" yaml:"executive,omitempty"`
	Individual *float64 `json:"individual,omitempty" yaml:"individual,omitempty"`
	Community  *float64 `json:"community,omitempty" yaml:"community,omitempty"`
	Computed   *float64 `json:"computed,omitempty" yaml:"computed,omitempty"`
}

// NodeCandidate is a node as submitted by an external caller. Any field may
// be absent. Decoding from JSON or YAML never fails on a wrongly typed field;
// the field is left unset and reported by ValidateBatch.
type NodeCandidate struct {
	ID          *string            `json:"id,omitempty" yaml:"id,omitempty"`
	Title       *string            `json:"title,omitempty" yaml:"title,omitempty"`
	Name        *string            `json:"name,omitempty" yaml:"name,omitempty"`
	Description *string            `json:"description,omitempty" yaml:"description,omitempty"`
	Type        *string            `json:"type,omitempty" yaml:"type,omitempty"`
	Status      *string            `json:"status,omitempty" yaml:"status,omitempty"`
	Position    *PositionCandidate `json:"position,omitempty" yaml:"position,omitempty"`
	Priority    *PriorityCandidate `json:"priority,omitempty" yaml:"priority,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	malformed string
	problems  []fieldProblem
}

type EdgeCandidate struct {
	ID       *string        `json:"id,omitempty" yaml:"id,omitempty"`
	Source   *string        `json:"source,omitempty" yaml:"source,omitempty"`
	Target   *string        `json:"target,omitempty" yaml:"target,omitempty"`
	Type     *string        `json:"type,omitempty" yaml:"type,omitempty"`
	Weight   *float64       `json:"weight,omitempty" yaml:"weight,omitempty"`
	Strength *float64       `json:"strength,omitempty" yaml:"strength,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	malformed string
	problems  []fieldProblem
}

// Batch is the input of ValidateBatch. A nil element stands for an absent
// record.
type Batch struct {
	Nodes []*NodeCandidate `json:"nodes" yaml:"nodes"`
	Edges []*EdgeCandidate `json:"edges" yaml:"edges"`
}

// Issue is one field-level diagnostic.
type Issue struct {
	Entity  string `json:"entity"`
	Index   int    `json:"index"`
	ID      string `json:"id,omitempty"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type InvalidNode struct {
	Index     int            `json:"index"`
	Candidate *NodeCandidate `json:"candidate"`
	Issues    []Issue        `json:"issues"`
}

type InvalidEdge struct {
	Index     int            `json:"index"`
	Candidate *EdgeCandidate `json:"candidate"`
	Issues    []Issue        `json:"issues"`
}

type Stats struct {
	TotalNodes        int `json:"totalNodes"`
	ValidNodes        int `json:"validNodes"`
	InvalidNodes      int `json:"invalidNodes"`
	TotalEdges        int `json:"totalEdges"`
	ValidEdges        int `json:"validEdges"`
	InvalidEdges      int `json:"invalidEdges"`
	DuplicateIDs      int `json:"duplicateIds"`
	MissingReferences int `json:"missingReferences"`
	OrphanNodes       int `json:"orphanNodes"`
}

// Report is the outcome of ValidateBatch. Valid entities are sanitized and
// ready to persist; Usable carries the degraded-mode verdict.
type Report struct {
	ID           string        `json:"id,omitempty"`
	ValidNodes   []store.Node  `json:"validNodes"`
	InvalidNodes []InvalidNode `json:"invalidNodes"`
	ValidEdges   []store.Edge  `json:"validEdges"`
	InvalidEdges []InvalidEdge `json:"invalidEdges"`
	Errors       []Issue       `json:"errors"`
	Warnings     []Issue       `json:"warnings"`
	Stats        Stats         `json:"stats"`
	Usable       bool          `json:"usable"`
}

// ValidateBatch checks nodes first, then duplicate ids among the nodes that
// passed, then edges against the accepted ids and each other, then orphans.
func ValidateBatch(batch Batch) Report {
	report := Report{
		ValidNodes:   []store.Node{},
		InvalidNodes: []InvalidNode{},
		ValidEdges:   []store.Edge{},
		InvalidEdges: []InvalidEdge{},
		Errors:       []Issue{},
		Warnings:     []Issue{},
	}
	report.Stats.TotalNodes = len(batch.Nodes)
	report.Stats.TotalEdges = len(batch.Edges)

	issuesByNode := make([][]Issue, len(batch.Nodes))
	idCounts := map[string]int{}
	for i, candidate := range batch.Nodes {
		issuesByNode[i] = checkNode(i, candidate)
		if len(issuesByNode[i]) == 0 {
			idCounts[strings.TrimSpace(*candidate.ID)]++
		}
	}

	for _, count := range idCounts {
		if count > 1 {
			report.Stats.DuplicateIDs++
		}
	}

	accepted := map[string]struct{}{}
	var acceptedIndex []int
	for i, candidate := range batch.Nodes {
		issues := issuesByNode[i]
		if len(issues) == 0 {
			id := strings.TrimSpace(*candidate.ID)
			if idCounts[id] > 1 {
				issues = append(issues, Issue{
					Entity:  EntityNode,
					Index:   i,
					ID:      id,
					Field:   "id",
					Code:    CodeDuplicateID,
					Message: fmt.Sprintf("id %q is used by %d nodes", id, idCounts[id]),
				})
			}
		}
		if len(issues) > 0 {
			report.InvalidNodes = append(report.InvalidNodes, InvalidNode{Index: i, Candidate: candidate, Issues: issues})
			report.Errors = append(report.Errors, issues...)
			continue
		}
		node := SanitizeNode(*candidate)
		accepted[node.ID] = struct{}{}
		acceptedIndex = append(acceptedIndex, i)
		report.ValidNodes = append(report.ValidNodes, node)
	}

	issuesByEdge := make([][]Issue, len(batch.Edges))
	edgeIDCounts := map[string]int{}
	for i, candidate := range batch.Edges {
		issues, missingRefs := checkEdge(i, candidate, accepted)
		report.Stats.MissingReferences += missingRefs
		issuesByEdge[i] = issues
		if len(issues) == 0 {
			if id := trimmed(candidate.ID); id != "" {
				edgeIDCounts[id]++
			}
		}
	}
	for _, count := range edgeIDCounts {
		if count > 1 {
			report.Stats.DuplicateIDs++
		}
	}

	touched := map[string]struct{}{}
	for i, candidate := range batch.Edges {
		issues := issuesByEdge[i]
		if len(issues) == 0 {
			if id := trimmed(candidate.ID); edgeIDCounts[id] > 1 {
				issues = append(issues, Issue{
					Entity:  EntityEdge,
					Index:   i,
					ID:      id,
					Field:   "id",
					Code:    CodeDuplicateID,
					Message: fmt.Sprintf("id %q is used by %d edges", id, edgeIDCounts[id]),
				})
			}
		}
		if len(issues) > 0 {
			report.InvalidEdges = append(report.InvalidEdges, InvalidEdge{Index: i, Candidate: candidate, Issues: issues})
			report.Errors = append(report.Errors, issues...)
			continue
		}
		edge := SanitizeEdge(*candidate)
		touched[edge.SourceID] = struct{}{}
		touched[edge.TargetID] = struct{}{}
		report.ValidEdges = append(report.ValidEdges, edge)
	}

	for i, node := range report.ValidNodes {
		if _, ok := touched[node.ID]; ok {
			continue
		}
		report.Warnings = append(report.Warnings, Issue{
			Entity:  EntityNode,
			Index:   acceptedIndex[i],
			ID:      node.ID,
			Code:    CodeOrphanNode,
			Message: fmt.Sprintf("node %q has no valid edges", node.ID),
		})
		report.Stats.OrphanNodes++
	}

	report.Stats.ValidNodes = len(report.ValidNodes)
	report.Stats.InvalidNodes = len(report.InvalidNodes)
	report.Stats.ValidEdges = len(report.ValidEdges)
	report.Stats.InvalidEdges = len(report.InvalidEdges)
	report.Usable = verdict(report)
	return report
}

// verdict accepts a batch with no errors, or one where at least one node is
// valid and fewer than half of the submitted nodes were rejected.
func verdict(report Report) bool {
	if len(report.Errors) == 0 {
		return true
	}
	return report.Stats.ValidNodes >= 1 && report.Stats.InvalidNodes*2 < report.Stats.TotalNodes
}

func checkNode(index int, candidate *NodeCandidate) []Issue {
	if candidate == nil {
		return []Issue{{Entity: EntityNode, Index: index, Code: CodeMissingRecord, Message: "node record is missing"}}
	}
	if candidate.malformed != "" {
		return []Issue{{Entity: EntityNode, Index: index, Code: CodeInvalidRecord, Message: "node record must be an object, got " + candidate.malformed}}
	}

	var issues []Issue
	id := trimmed(candidate.ID)
	add := func(field, code, message string) {
		issues = append(issues, Issue{Entity: EntityNode, Index: index, ID: id, Field: field, Code: code, Message: message})
	}
	for _, p := range candidate.problems {
		add(p.field, p.code, p.message)
	}

	if id == "" && !hasProblem(candidate.problems, "id") {
		add("id", CodeMissingID, "id is required")
	}
	if trimmed(candidate.Title) == "" && trimmed(candidate.Name) == "" && !hasProblem(candidate.problems, "title", "name") {
		add("title", CodeMissingTitle, "title or name is required")
	}
	if trimmed(candidate.Type) == "" {
		if !hasProblem(candidate.problems, "type") {
			add("type", CodeMissingType, "type is required")
		}
	} else if _, ok := store.ParseNodeType(*candidate.Type); !ok {
		add("type", CodeInvalidType, fmt.Sprintf("unknown node type %q", *candidate.Type))
	}
	if status := trimmed(candidate.Status); status != "" {
		if _, ok := store.ParseNodeStatus(status); !ok {
			add("status", CodeInvalidStatus, fmt.Sprintf("unknown node status %q", status))
		}
	}

	if p := candidate.Position; p != nil {
		for _, coord := range []struct {
			name  string
			value *float64
		}{{"x", p.X}, {"y", p.Y}, {"z", p.Z}, {"radius", p.Radius}, {"theta", p.Theta}, {"phi", p.Phi}} {
			if coord.value != nil && !finite(*coord.value) {
				add("position."+coord.name, CodeNonFinite, coord.name+" must be a finite number")
			}
		}
	}

	if p := candidate.Priority; p != nil {
		for _, dim := range []struct {
			name  string
			value *float64
		}{{"executive", p.Executive}, {"individual", p.Individual}, {"community", p.Community}, {"computed", p.Computed}} {
			if dim.value == nil {
				continue
			}
			field := "priority." + dim.name
			switch {
			case !finite(*dim.value):
				add(field, CodeNonFinite, dim.name+" must be a finite number")
			case *dim.value < 0 || *dim.value > 1:
				add(field, CodeOutOfRange, fmt.Sprintf("%s %v is outside [0,1]", dim.name, *dim.value))
			}
		}
	}
	if !hasProblem(candidate.problems, "metadata") && !jsonSafe(candidate.Metadata) {
		add("metadata", CodeInvalidValue, "metadata must be an object of finite JSON values")
	}
	return issues
}

// checkEdge returns the edge's issues and how many of its endpoints are
// absent from the accepted node ids.
func checkEdge(index int, candidate *EdgeCandidate, accepted map[string]struct{}) ([]Issue, int) {
	if candidate == nil {
		return []Issue{{Entity: EntityEdge, Index: index, Code: CodeMissingRecord, Message: "edge record is missing"}}, 0
	}
	if candidate.malformed != "" {
		return []Issue{{Entity: EntityEdge, Index: index, Code: CodeInvalidRecord, Message: "edge record must be an object, got " + candidate.malformed}}, 0
	}

	var issues []Issue
	id := trimmed(candidate.ID)
	add := func(field, code, message string) {
		issues = append(issues, Issue{Entity: EntityEdge, Index: index, ID: id, Field: field, Code: code, Message: message})
	}
	for _, p := range candidate.problems {
		add(p.field, p.code, p.message)
	}

	missingRefs := 0
	for _, endpoint := range []struct {
		field, missingCode string
		value              *string
	}{{"source", CodeMissingSource, candidate.Source}, {"target", CodeMissingTarget, candidate.Target}} {
		ref := trimmed(endpoint.value)
		if ref == "" {
			if hasProblem(candidate.problems, endpoint.field) {
				continue
			}
			add(endpoint.field, endpoint.missingCode, endpoint.field+" is required")
			continue
		}
		if _, ok := accepted[ref]; !ok {
			missingRefs++
			add(endpoint.field, CodeMissingReference, fmt.Sprintf("%s %q is not a valid node in this batch", endpoint.field, ref))
		}
	}

	if relType := trimmed(candidate.Type); relType != "" {
		if _, ok := store.ParseRelationshipType(relType); !ok {
			add("type", CodeInvalidRelationship, fmt.Sprintf("unknown relationship type %q", relType))
		}
	}
	if w := candidate.Weight; w != nil {
		switch {
		case !finite(*w):
			add("weight", CodeNonFinite, "weight must be a finite number")
		case *w < 0:
			add("weight", CodeOutOfRange, fmt.Sprintf("weight %v is negative", *w))
		}
	}
	if s := candidate.Strength; s != nil {
		switch {
		case !finite(*s):
			add("strength", CodeNonFinite, "strength must be a finite number")
		case *s < 0 || *s > 1:
			add("strength", CodeOutOfRange, fmt.Sprintf("strength %v is outside [0,1]", *s))
		}
	}
	if !hasProblem(candidate.problems, "metadata") && !jsonSafe(candidate.Metadata) {
		add("metadata", CodeInvalidValue, "metadata must be an object of finite JSON values")
	}
	return issues, missingRefs
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// finiteOr returns v when it is finite and fallback otherwise.
func finiteOr(v, fallback float64) float64 {
	if !finite(v) {
		return fallback
	}
	return v
}
