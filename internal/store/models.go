package store

import (
	"strings"
	"time"
)

// VocabularyVersion identifies the closed set of node types, statuses and
// relationship types below. Bump it whenever one of the sets changes.
const VocabularyVersion = "1"

type NodeType string

const (
	NodeEpic      NodeType = "Epic"
	NodeFeature   NodeType = "Feature"
	NodeTask      NodeType = "Task"
	NodeBug       NodeType = "Bug"
	NodeMilestone NodeType = "Milestone"
	NodeOutcome   NodeType = "Outcome"
	NodeIdea      NodeType = "Idea"
	NodeResearch  NodeType = "Research"
)

var nodeTypes = []NodeType{NodeEpic, NodeFeature, NodeTask, NodeBug, NodeMilestone, NodeOutcome, NodeIdea, NodeResearch}

type NodeStatus string

const (
	StatusProposed   NodeStatus = "Proposed"
	StatusPlanned    NodeStatus = "Planned"
	StatusInProgress NodeStatus = "InProgress"
	StatusBlocked    NodeStatus = "Blocked"
	StatusCompleted  NodeStatus = "Completed"
	StatusCancelled  NodeStatus = "Cancelled"
)

var nodeStatuses = []NodeStatus{StatusProposed, StatusPlanned, StatusInProgress, StatusBlocked, StatusCompleted, StatusCancelled}

type RelationshipType string

const (
	RelDependsOn     RelationshipType = "DependsOn"
	RelBlocks        RelationshipType = "Blocks"
	RelEnables       RelationshipType = "Enables"
	RelRelatesTo     RelationshipType = "RelatesTo"
	RelIsPartOf      RelationshipType = "IsPartOf"
	RelFollows       RelationshipType = "Follows"
	RelParallelWith  RelationshipType = "ParallelWith"
	RelDuplicates    RelationshipType = "Duplicates"
	RelConflictsWith RelationshipType = "ConflictsWith"
	RelValidates     RelationshipType = "Validates"
	RelReferences    RelationshipType = "References"
	RelContains      RelationshipType = "Contains"
)

var relationshipTypes = []RelationshipType{
	RelDependsOn, RelBlocks, RelEnables, RelRelatesTo, RelIsPartOf, RelFollows,
	RelParallelWith, RelDuplicates, RelConflictsWith, RelValidates, RelReferences, RelContains,
}

// Defaults applied to missing fields. Type and status default to the lowest
// commitment values of their sets.
const (
	DefaultNodeType     = NodeTask
	DefaultNodeStatus   = StatusProposed
	DefaultRelationship = RelRelatesTo
	DefaultEdgeWeight   = 1.0
	DefaultEdgeStrength = 0.8
)

func NodeTypes() []NodeType {
	return append([]NodeType(nil), nodeTypes...)
}

func NodeStatuses() []NodeStatus {
	return append([]NodeStatus(nil), nodeStatuses...)
}

func RelationshipTypes() []RelationshipType {
	return append([]RelationshipType(nil), relationshipTypes...)
}

func (t NodeType) Valid() bool {
	parsed, ok := ParseNodeType(string(t))
	return ok && parsed == t
}

func (s NodeStatus) Valid() bool {
	parsed, ok := ParseNodeStatus(string(s))
	return ok && parsed == s
}

func (r RelationshipType) Valid() bool {
	parsed, ok := ParseRelationshipType(string(r))
	return ok && parsed == r
}

// ParseNodeType matches value against the vocabulary case-insensitively and
// returns the canonical spelling.
func ParseNodeType(value string) (NodeType, bool) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range nodeTypes {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, true
		}
	}
	return "", false
}

func ParseNodeStatus(value string) (NodeStatus, bool) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range nodeStatuses {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, true
		}
	}
	return "", false
}

func ParseRelationshipType(value string) (RelationshipType, bool) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range relationshipTypes {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, true
		}
	}
	return "", false
}

// Position is a layout hint for renderers. The store passes it through
// without interpreting it.
type Position struct {
	X      *float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Y      *float64 `json:"y,omitempty" yaml:"y,omitempty"`
	Z      *float64 `json:"z,omitempty" yaml:"z,omitempty"`
	Radius *float64 `json:"radius,omitempty" yaml:"radius,omitempty"`
	Theta  *float64 `json:"theta,omitempty" yaml:"theta,omitempty"`
	Phi    *float64 `json:"phi,omitempty" yaml:"phi,omitempty"`
}

// Coordinates returns the named coordinates that are set.
func (p Position) Coordinates() map[string]float64 {
	out := map[string]float64{}
	for name, value := range map[string]*float64{
		"x": p.X, "y": p.Y, "z": p.Z, "radius": p.Radius, "theta": p.Theta, "phi": p.Phi,
	} {
		if value != nil {
			out[name] = *value
		}
	}
	return out
}

type Priority struct {
	Executive  float64 `json:"executive" yaml:"executive"`
	Individual float64 `json:"individual" yaml:"individual"`
	Community  float64 `json:"community" yaml:"community"`
	Computed   float64 `json:"computed" yaml:"computed"`
}

type Node struct {
	ID          string         `json:"id" yaml:"id"`
	Type        NodeType       `json:"type" yaml:"type"`
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Status      NodeStatus     `json:"status" yaml:"status"`
	Position    Position       `json:"position" yaml:"position"`
	Priority    Priority       `json:"priority" yaml:"priority"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt" yaml:"updatedAt"`
}

// NodeDetail is a node plus, when requested, the ids linked to it by
// DependsOn edges. Dependencies are the sources of DependsOn edges that
// target the node; Dependents are the targets of DependsOn edges it sources.
type NodeDetail struct {
	Node
	Dependencies []string `json:"dependencies,omitempty"`
	Dependents   []string `json:"dependents,omitempty"`
}

type Edge struct {
	ID        string           `json:"id" yaml:"id"`
	SourceID  string           `json:"source" yaml:"source"`
	TargetID  string           `json:"target" yaml:"target"`
	Type      RelationshipType `json:"type" yaml:"type"`
	Weight    float64          `json:"weight" yaml:"weight"`
	Strength  float64          `json:"strength" yaml:"strength"`
	Metadata  map[string]any   `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt time.Time        `json:"createdAt" yaml:"createdAt"`
}

// NodeSpec describes a node to create. Nil priority inputs default to the
// midpoint.
type NodeSpec struct {
	Type        NodeType
	Title       string
	Description string
	Status      NodeStatus
	Position    Position
	Executive   *float64
	Individual  *float64
	Community   *float64
	Metadata    map[string]any
}

// NodePatch carries the fields to merge into an existing node. Nil fields
// are left untouched; a non-nil Metadata replaces the stored bag.
type NodePatch struct {
	Type        *NodeType
	Title       *string
	Description *string
	Status      *NodeStatus
	Position    *Position
	Executive   *float64
	Individual  *float64
	Community   *float64
	Metadata    map[string]any
}

type EdgeSpec struct {
	SourceID string
	TargetID string
	Type     RelationshipType
	Weight   *float64
	Strength *float64
	Metadata map[string]any
}

// EdgePatch never moves an edge: only its type, weight, strength and
// metadata can change.
type EdgePatch struct {
	Type     *RelationshipType
	Weight   *float64
	Strength *float64
	Metadata map[string]any
}

// Link is a directed DependsOn edge reduced to its endpoints.
type Link struct {
	From string
	To   string
}

// DependencySnapshot is a consistent read of every node id (insertion
// order) and every DependsOn link (edge insertion order).
type DependencySnapshot struct {
	NodeIDs []string
	Links   []Link
}

// GraphSnapshot is a consistent read of the whole graph.
type GraphSnapshot struct {
	Nodes   []Node    `json:"nodes" yaml:"nodes"`
	Edges   []Edge    `json:"edges" yaml:"edges"`
	TakenAt time.Time `json:"takenAt" yaml:"takenAt"`
}

// ImportResult lists what ImportBatch persisted.
type ImportResult struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}
