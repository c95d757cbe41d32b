package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"graphtrack/api/internal/store"
)

func str(v string) *string   { return &v }
func num(v float64) *float64 { return &v }

func task(id string) *NodeCandidate {
	return &NodeCandidate{ID: str(id), Title: str("Title " + id), Type: str("Task")}
}

func link(source, target string) *EdgeCandidate {
	return &EdgeCandidate{Source: str(source), Target: str(target), Type: str("DependsOn")}
}

func codes(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issue.Code)
	}
	return out
}

func TestDuplicateIDsRejectEveryCopy(t *testing.T) {
	var nodes []*NodeCandidate
	for i := 0; i < 9; i++ {
		nodes = append(nodes, task(fmt.Sprintf("n%d", i)))
	}
	nodes = append(nodes, task("n3"))

	report := ValidateBatch(Batch{Nodes: nodes})

	assert.Equal(t, 10, report.Stats.TotalNodes)
	assert.Equal(t, 8, report.Stats.ValidNodes)
	assert.Equal(t, 2, report.Stats.InvalidNodes)
	assert.Equal(t, 1, report.Stats.DuplicateIDs)
	require.Len(t, report.InvalidNodes, 2)
	assert.Equal(t, 3, report.InvalidNodes[0].Index)
	assert.Equal(t, 9, report.InvalidNodes[1].Index)
	for _, invalid := range report.InvalidNodes {
		assert.Equal(t, []string{CodeDuplicateID}, codes(invalid.Issues))
	}
	for _, node := range report.ValidNodes {
		assert.NotEqual(t, "n3", node.ID)
	}
	assert.True(t, report.Usable)
}

func TestDuplicateCheckIgnoresNodesWithOtherErrors(t *testing.T) {
	broken := task("a")
	broken.Type = str("Saga")

	report := ValidateBatch(Batch{Nodes: []*NodeCandidate{task("a"), broken}})

	assert.Equal(t, 0, report.Stats.DuplicateIDs)
	assert.Equal(t, 1, report.Stats.ValidNodes)
	require.Len(t, report.InvalidNodes, 1)
	assert.Equal(t, []string{CodeInvalidType}, codes(report.InvalidNodes[0].Issues))
}

func TestEdgeToUnknownNodeIsMissingReference(t *testing.T) {
	report := ValidateBatch(Batch{
		Nodes: []*NodeCandidate{task("a"), task("b")},
		Edges: []*EdgeCandidate{link("a", "b"), link("a", "ghost"), link("ghost", "phantom")},
	})

	assert.Equal(t, 3, report.Stats.MissingReferences)
	assert.Equal(t, 1, report.Stats.ValidEdges)
	assert.Equal(t, 2, report.Stats.InvalidEdges)
	require.Len(t, report.InvalidEdges, 2)
	assert.Equal(t, 1, report.InvalidEdges[0].Index)
	assert.Equal(t, []string{CodeMissingReference}, codes(report.InvalidEdges[0].Issues))
	assert.Equal(t, "target", report.InvalidEdges[0].Issues[0].Field)
	assert.Equal(t, []string{CodeMissingReference, CodeMissingReference}, codes(report.InvalidEdges[1].Issues))
	assert.Empty(t, report.Warnings)
}

func TestEdgeToRejectedNodeIsMissingReference(t *testing.T) {
	report := ValidateBatch(Batch{
		Nodes: []*NodeCandidate{task("a"), task("b"), task("b")},
		Edges: []*EdgeCandidate{link("a", "b")},
	})

	assert.Equal(t, 1, report.Stats.MissingReferences)
	assert.Empty(t, report.ValidEdges)
}

func TestNodeErrors(t *testing.T) {
	cases := []struct {
		name      string
		candidate *NodeCandidate
		want      []string
	}{
		{"absent record", nil, []string{CodeMissingRecord}},
		{"missing id", &NodeCandidate{Title: str("x"), Type: str("Task")}, []string{CodeMissingID}},
		{"blank id", &NodeCandidate{ID: str("  "), Title: str("x"), Type: str("Task")}, []string{CodeMissingID}},
		{"missing title and name", &NodeCandidate{ID: str("a"), Type: str("Task")}, []string{CodeMissingTitle}},
		{"missing type", &NodeCandidate{ID: str("a"), Title: str("x")}, []string{CodeMissingType}},
		{"unknown type", &NodeCandidate{ID: str("a"), Title: str("x"), Type: str("Saga")}, []string{CodeInvalidType}},
		{"unknown status", &NodeCandidate{ID: str("a"), Title: str("x"), Type: str("Task"), Status: str("Done")}, []string{CodeInvalidStatus}},
		{
			"non-finite coordinates",
			&NodeCandidate{ID: str("a"), Title: str("x"), Type: str("Task"), Position: &PositionCandidate{X: num(math.NaN()), Phi: num(math.Inf(-1))}},
			[]string{CodeNonFinite, CodeNonFinite},
		},
		{
			"priority out of range and non-finite",
			&NodeCandidate{ID: str("a"), Title: str("x"), Type: str("Task"), Priority: &PriorityCandidate{Executive: num(1.2), Community: num(math.NaN()), Computed: num(-0.1)}},
			[]string{CodeOutOfRange, CodeNonFinite, CodeOutOfRange},
		},
		{
			"everything missing",
			&NodeCandidate{},
			[]string{CodeMissingID, CodeMissingTitle, CodeMissingType},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := ValidateBatch(Batch{Nodes: []*NodeCandidate{tc.candidate}})
			require.Len(t, report.InvalidNodes, 1)
			assert.Equal(t, tc.want, codes(report.InvalidNodes[0].Issues))
			assert.Equal(t, tc.want, codes(report.Errors))
			assert.False(t, report.Usable)
		})
	}
}

func TestNameFallbackAndDefaults(t *testing.T) {
	report := ValidateBatch(Batch{Nodes: []*NodeCandidate{{
		ID:   str(" a "),
		Name: str("  From name  "),
		Type: str("feature"),
	}}})

	require.Len(t, report.ValidNodes, 1)
	node := report.ValidNodes[0]
	assert.Equal(t, "a", node.ID)
	assert.Equal(t, "From name", node.Title)
	assert.Equal(t, store.NodeFeature, node.Type)
	assert.Equal(t, store.StatusProposed, node.Status)
	assert.Equal(t, store.Priority{Executive: 0.5, Individual: 0.5, Community: 0.5, Computed: 0.5}, node.Priority)
}

func TestEdgeErrorsAndDefaults(t *testing.T) {
	report := ValidateBatch(Batch{
		Nodes: []*NodeCandidate{task("a"), task("b")},
		Edges: []*EdgeCandidate{
			nil,
			{Target: str("b")},
			{Source: str("a")},
			{Source: str("a"), Target: str("b"), Type: str("Owns")},
			{Source: str("a"), Target: str("b"), Weight: num(-1)},
			{Source: str("a"), Target: str("b"), Strength: num(1.01)},
			{Source: str("a"), Target: str("b"), Weight: num(math.Inf(1)), Strength: num(math.NaN())},
			{Source: str("a"), Target: str("b")},
		},
	})

	require.Len(t, report.InvalidEdges, 7)
	assert.Equal(t, []string{CodeMissingRecord}, codes(report.InvalidEdges[0].Issues))
	assert.Equal(t, []string{CodeMissingSource}, codes(report.InvalidEdges[1].Issues))
	assert.Equal(t, []string{CodeMissingTarget}, codes(report.InvalidEdges[2].Issues))
	assert.Equal(t, []string{CodeInvalidRelationship}, codes(report.InvalidEdges[3].Issues))
	assert.Equal(t, []string{CodeOutOfRange}, codes(report.InvalidEdges[4].Issues))
	assert.Equal(t, []string{CodeOutOfRange}, codes(report.InvalidEdges[5].Issues))
	assert.Equal(t, []string{CodeNonFinite, CodeNonFinite}, codes(report.InvalidEdges[6].Issues))
	assert.Zero(t, report.Stats.MissingReferences)

	require.Len(t, report.ValidEdges, 1)
	edge := report.ValidEdges[0]
	assert.Empty(t, edge.ID)
	assert.Equal(t, store.RelRelatesTo, edge.Type)
	assert.Equal(t, 1.0, edge.Weight)
	assert.Equal(t, 0.8, edge.Strength)
}

func TestOrphanWarnings(t *testing.T) {
	report := ValidateBatch(Batch{
		Nodes: []*NodeCandidate{task("a"), nil, task("b"), task("lonely")},
		Edges: []*EdgeCandidate{link("a", "b"), link("lonely", "ghost")},
	})

	require.Len(t, report.Warnings, 1)
	warning := report.Warnings[0]
	assert.Equal(t, CodeOrphanNode, warning.Code)
	assert.Equal(t, "lonely", warning.ID)
	assert.Equal(t, 3, warning.Index)
	assert.Equal(t, 1, report.Stats.OrphanNodes)
}

func TestSanitizeClampsOutOfRangeValues(t *testing.T) {
	node := SanitizeNode(NodeCandidate{
		ID:       str("a"),
		Title:    str("a"),
		Priority: &PriorityCandidate{Executive: num(1.5), Individual: num(-0.2), Community: num(math.NaN()), Computed: num(9)},
		Position: &PositionCandidate{X: num(math.Inf(1)), Y: num(4)},
	})
	assert.Equal(t, 1.0, node.Priority.Executive)
	assert.Equal(t, 0.0, node.Priority.Individual)
	assert.Equal(t, 0.0, node.Priority.Community)
	assert.InDelta(t, 1.0/3, node.Priority.Computed, 1e-9)
	require.NotNil(t, node.Position.X)
	assert.Equal(t, 0.0, *node.Position.X)
	assert.Equal(t, 4.0, *node.Position.Y)
	assert.Nil(t, node.Position.Z)

	edge := SanitizeEdge(EdgeCandidate{Source: str("a"), Target: str("b"), Weight: num(-3), Strength: num(2)})
	assert.Equal(t, 0.0, edge.Weight)
	assert.Equal(t, 1.0, edge.Strength)

	edge = SanitizeEdge(EdgeCandidate{Source: str("a"), Target: str("b"), Weight: num(math.NaN()), Strength: num(math.Inf(-1))})
	assert.Equal(t, 0.0, edge.Weight)
	assert.Equal(t, 0.0, edge.Strength)
}

func TestComputedIsRecomputed(t *testing.T) {
	candidate := task("a")
	candidate.Priority = &PriorityCandidate{Executive: num(0.9), Individual: num(0.6), Community: num(0.3), Computed: num(0.1)}

	report := ValidateBatch(Batch{Nodes: []*NodeCandidate{candidate}})

	require.Len(t, report.ValidNodes, 1)
	assert.InDelta(t, 0.6, report.ValidNodes[0].Priority.Computed, 1e-9)
}

func TestRevalidatingSanitizedOutputIsIdempotent(t *testing.T) {
	original := ValidateBatch(Batch{
		Nodes: []*NodeCandidate{
			task("a"),
			{ID: str("b"), Name: str("named"), Type: str("bug"), Status: str("blocked"), Priority: &PriorityCandidate{Executive: num(1)}},
			task("c"),
			task("c"),
			nil,
			{ID: str("d"), Title: str("d"), Type: str("Idea"), Position: &PositionCandidate{Radius: num(3), Theta: num(0.5)}, Metadata: map[string]any{"k": "v"}},
		},
		Edges: []*EdgeCandidate{
			link("a", "b"),
			{Source: str("b"), Target: str("a"), Type: str("blocks"), Weight: num(2.5), Strength: num(0.1)},
			link("a", "c"),
		},
	})
	require.NotEmpty(t, original.Errors)

	again := ValidateBatch(original.Candidates())

	assert.Empty(t, again.Errors)
	assert.Equal(t, original.ValidNodes, again.ValidNodes)
	assert.Equal(t, original.ValidEdges, again.ValidEdges)
	require.Len(t, again.Warnings, len(original.Warnings))
	for i := range again.Warnings {
		assert.Equal(t, CodeOrphanNode, again.Warnings[i].Code)
		assert.Equal(t, original.Warnings[i].ID, again.Warnings[i].ID)
	}
	assert.True(t, again.Usable)
}

func TestVerdict(t *testing.T) {
	bad := func() *NodeCandidate { return &NodeCandidate{ID: str("x")} }

	cases := []struct {
		name  string
		nodes []*NodeCandidate
		edges []*EdgeCandidate
		want  bool
	}{
		{"empty batch", nil, nil, true},
		{"clean batch", []*NodeCandidate{task("a"), task("b")}, []*EdgeCandidate{link("a", "b")}, true},
		{"one of four invalid", []*NodeCandidate{task("a"), task("b"), task("c"), bad()}, nil, true},
		{"half invalid", []*NodeCandidate{task("a"), task("b"), bad(), bad()}, nil, false},
		{"all invalid", []*NodeCandidate{bad(), nil}, nil, false},
		{"edge errors only", []*NodeCandidate{task("a")}, []*EdgeCandidate{link("a", "ghost")}, true},
		{"edge errors without nodes", nil, []*EdgeCandidate{link("a", "b")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := ValidateBatch(Batch{Nodes: tc.nodes, Edges: tc.edges})
			assert.Equal(t, tc.want, report.Usable)
		})
	}
}

func TestDuplicateEdgeIDsRejectEveryCopy(t *testing.T) {
	first := link("a", "b")
	first.ID = str("e1")
	second := link("b", "c")
	second.ID = str("e1")
	unnamed := link("a", "c")

	report := ValidateBatch(Batch{
		Nodes: []*NodeCandidate{task("a"), task("b"), task("c")},
		Edges: []*EdgeCandidate{first, second, unnamed, link("a", "c")},
	})

	require.Len(t, report.InvalidEdges, 2)
	for _, invalid := range report.InvalidEdges {
		assert.Equal(t, []string{CodeDuplicateID}, codes(invalid.Issues))
		assert.Equal(t, "e1", invalid.Issues[0].ID)
	}
	assert.Equal(t, 1, report.Stats.DuplicateIDs)
	assert.Equal(t, 2, report.Stats.ValidEdges, "edges without ids never collide")
}

func TestMalformedJSONFieldsAreReported(t *testing.T) {
	payload := `{
		"nodes": [
			{"id": "good", "title": "Good", "type": "Task"},
			{"id": "a", "title": "A", "type": "Task", "priority": {"executive": "high"}},
			{"id": "b", "title": 7, "type": "Task"},
			{"id": "c", "title": "C", "type": "Task", "position": {"x": "left"}},
			"not a node",
			null,
			{"id": "d", "title": "D", "type": "Task", "priority": {"community": 1e999}},
			{"id": "e", "title": "E", "type": "Task", "priority": "urgent"}
		],
		"edges": [
			{"source": "good", "target": "good", "weight": "heavy"},
			42
		]
	}`

	var batch Batch
	require.NoError(t, json.Unmarshal([]byte(payload), &batch))
	report := ValidateBatch(batch)

	require.Len(t, report.ValidNodes, 1)
	assert.Equal(t, "good", report.ValidNodes[0].ID)
	require.Len(t, report.InvalidNodes, 7)

	byIndex := map[int][]Issue{}
	for _, invalid := range report.InvalidNodes {
		byIndex[invalid.Index] = invalid.Issues
	}
	assert.Equal(t, []string{CodeInvalidValue}, codes(byIndex[1]))
	assert.Equal(t, "priority.executive", byIndex[1][0].Field)
	assert.Equal(t, []string{CodeInvalidValue}, codes(byIndex[2]), "a bad title is not also reported missing")
	assert.Equal(t, "title", byIndex[2][0].Field)
	assert.Equal(t, []string{CodeInvalidValue}, codes(byIndex[3]))
	assert.Equal(t, "position.x", byIndex[3][0].Field)
	assert.Equal(t, []string{CodeInvalidRecord}, codes(byIndex[4]))
	assert.Contains(t, byIndex[4][0].Message, "string")
	assert.Equal(t, []string{CodeMissingRecord}, codes(byIndex[5]))
	assert.Equal(t, []string{CodeNonFinite}, codes(byIndex[6]), "overflowing numbers are not finite")
	assert.Equal(t, []string{CodeInvalidValue}, codes(byIndex[7]))

	require.Len(t, report.InvalidEdges, 2)
	assert.Equal(t, []string{CodeInvalidValue}, codes(report.InvalidEdges[0].Issues))
	assert.Equal(t, "weight", report.InvalidEdges[0].Issues[0].Field)
	assert.Equal(t, []string{CodeInvalidRecord}, codes(report.InvalidEdges[1].Issues))
	assert.False(t, report.Usable)
}

func TestYAMLNonFiniteValuesAreReported(t *testing.T) {
	payload := `
nodes:
  - {id: a, title: A, type: Task}
  - {id: b, title: B, type: Task, priority: {executive: .nan}}
  - {id: c, title: C, type: Task, position: {x: -.inf}}
  - {id: d, title: D, type: Task, metadata: {score: .inf}}
  - [not, a, node]
edges:
  - {source: a, target: a, strength: .nan}
`
	var batch Batch
	require.NoError(t, yaml.Unmarshal([]byte(payload), &batch))
	report := ValidateBatch(batch)

	require.Len(t, report.ValidNodes, 1)
	require.Len(t, report.InvalidNodes, 4)
	assert.Equal(t, []string{CodeNonFinite}, codes(report.InvalidNodes[0].Issues))
	assert.Equal(t, []string{CodeNonFinite}, codes(report.InvalidNodes[1].Issues))
	assert.Equal(t, []string{CodeInvalidValue}, codes(report.InvalidNodes[2].Issues))
	assert.Equal(t, "metadata", report.InvalidNodes[2].Issues[0].Field)
	assert.Equal(t, []string{CodeInvalidRecord}, codes(report.InvalidNodes[3].Issues))
	require.Len(t, report.InvalidEdges, 1)
	assert.Equal(t, []string{CodeNonFinite}, codes(report.InvalidEdges[0].Issues))
}

func TestReportWithNonFiniteCandidatesEncodesAsJSON(t *testing.T) {
	withNaN := task("b")
	withNaN.Priority = &PriorityCandidate{Executive: num(math.NaN()), Individual: num(0.4)}
	withInf := task("c")
	withInf.Position = &PositionCandidate{X: num(math.Inf(1))}
	withInf.Metadata = map[string]any{"score": math.Inf(-1)}
	edge := link("a", "a")
	edge.Weight = num(math.Inf(-1))

	report := ValidateBatch(Batch{
		Nodes: []*NodeCandidate{task("a"), withNaN, withInf, task("d")},
		Edges: []*EdgeCandidate{edge},
	})
	require.Len(t, report.InvalidNodes, 2)

	encoded, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"executive":"NaN"`)
	assert.Contains(t, string(encoded), `"x":"+Inf"`)
	assert.Contains(t, string(encoded), `"weight":"-Inf"`)

	var decoded Report
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Len(t, decoded.InvalidNodes, 2)
	executive := decoded.InvalidNodes[0].Candidate.Priority.Executive
	require.NotNil(t, executive)
	assert.True(t, math.IsNaN(*executive))
	assert.Equal(t, 0.4, *decoded.InvalidNodes[0].Candidate.Priority.Individual)
	assert.Nil(t, decoded.InvalidNodes[1].Candidate.Metadata)
	assert.True(t, math.IsInf(*decoded.InvalidEdges[0].Candidate.Weight, -1))
}
