package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// fieldProblem is a field that was present but held the wrong kind of value.
type fieldProblem struct {
	field   string
	code    string
	message string
}

func hasProblem(problems []fieldProblem, fields ...string) bool {
	for _, p := range problems {
		for _, field := range fields {
			if p.field == field {
				return true
			}
		}
	}
	return false
}

// UnmarshalJSON reads a node leniently. A wrongly typed field is recorded as
// a problem for ValidateBatch instead of failing the whole batch.
func (c *NodeCandidate) UnmarshalJSON(data []byte) error {
	fields, kind, err := jsonObject(data)
	if err != nil {
		return err
	}
	if fields == nil {
		*c = NodeCandidate{malformed: kind}
		return nil
	}
	*c = nodeFromFields(fields)
	return nil
}

func (c *NodeCandidate) UnmarshalYAML(value *yaml.Node) error {
	fields, kind := yamlObject(value)
	if fields == nil {
		*c = NodeCandidate{malformed: kind}
		return nil
	}
	*c = nodeFromFields(fields)
	return nil
}

func (c *EdgeCandidate) UnmarshalJSON(data []byte) error {
	fields, kind, err := jsonObject(data)
	if err != nil {
		return err
	}
	if fields == nil {
		*c = EdgeCandidate{malformed: kind}
		return nil
	}
	*c = edgeFromFields(fields)
	return nil
}

func (c *EdgeCandidate) UnmarshalYAML(value *yaml.Node) error {
	fields, kind := yamlObject(value)
	if fields == nil {
		*c = EdgeCandidate{malformed: kind}
		return nil
	}
	*c = edgeFromFields(fields)
	return nil
}

func nodeFromFields(fields map[string]any) NodeCandidate {
	var c NodeCandidate
	p := &c.problems
	c.ID = readString(fields, "id", "id", p)
	c.Title = readString(fields, "title", "title", p)
	c.Name = readString(fields, "name", "name", p)
	c.Description = readString(fields, "description", "description", p)
	c.Type = readString(fields, "type", "type", p)
	c.Status = readString(fields, "status", "status", p)
	if pos, ok := readObject(fields, "position", p); ok {
		c.Position = &PositionCandidate{
			X:      readNumber(pos, "x", "position.x", p),
			Y:      readNumber(pos, "y", "position.y", p),
			Z:      readNumber(pos, "z", "position.z", p),
			Radius: readNumber(pos, "radius", "position.radius", p),
			Theta:  readNumber(pos, "theta", "position.theta", p),
			Phi:    readNumber(pos, "phi", "position.phi", p),
		}
	}
	if dims, ok := readObject(fields, "priority", p); ok {
		c.Priority = &PriorityCandidate{
			Executive:  readNumber(dims, "executive", "priority.executive", p),
			Individual: readNumber(dims, "individual", "priority.individual", p),
			Community:  readNumber(dims, "community", "priority.community", p),
			Computed:   readNumber(dims, "computed", "priority.computed", p),
		}
	}
	c.Metadata = readMetadata(fields, p)
	return c
}

func edgeFromFields(fields map[string]any) EdgeCandidate {
	var c EdgeCandidate
	p := &c.problems
	c.ID = readString(fields, "id", "id", p)
	c.Source = readString(fields, "source", "source", p)
	c.Target = readString(fields, "target", "target", p)
	c.Type = readString(fields, "type", "type", p)
	c.Weight = readNumber(fields, "weight", "weight", p)
	c.Strength = readNumber(fields, "strength", "strength", p)
	c.Metadata = readMetadata(fields, p)
	return c
}

func jsonObject(data []byte) (map[string]any, string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, "", err
	}
	if fields, ok := value.(map[string]any); ok {
		return fields, "", nil
	}
	return nil, kindOf(value), nil
}

func yamlObject(value *yaml.Node) (map[string]any, string) {
	if value.Kind == yaml.AliasNode && value.Alias != nil {
		value = value.Alias
	}
	switch value.Kind {
	case yaml.MappingNode:
		var fields map[string]any
		if err := value.Decode(&fields); err != nil {
			return nil, "mapping with non-string keys"
		}
		if fields == nil {
			fields = map[string]any{}
		}
		return fields, ""
	case yaml.SequenceNode:
		return nil, "array"
	}
	switch value.ShortTag() {
	case "!!str":
		return nil, "string"
	case "!!int", "!!float":
		return nil, "number"
	case "!!bool":
		return nil, "boolean"
	}
	return nil, "scalar"
}

func kindOf(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int64, uint64:
		return "number"
	case []any:
		return "array"
	case map[string]any, map[any]any:
		return "object"
	}
	return fmt.Sprintf("%T", value)
}

func readString(fields map[string]any, key, field string, problems *[]fieldProblem) *string {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil
	}
	s, ok := raw.(string)
	if !ok {
		*problems = append(*problems, fieldProblem{field, CodeInvalidValue, fmt.Sprintf("%s must be a string, got %s", field, kindOf(raw))})
		return nil
	}
	return &s
}

// readNumber accepts numbers of any width. Strings are accepted only when
// they spell a non-finite value such as "NaN" or "+Inf", which is how such
// values are echoed back in reports.
func readNumber(fields map[string]any, key, field string, problems *[]fieldProblem) *float64 {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil
	}
	var (
		f     float64
		valid = true
	)
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := strconv.ParseFloat(v.String(), 64)
		f, valid = parsed, err == nil || errors.Is(err, strconv.ErrRange)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		f, valid = parsed, err == nil && !finite(parsed)
	default:
		valid = false
	}
	if !valid {
		*problems = append(*problems, fieldProblem{field, CodeInvalidValue, fmt.Sprintf("%s must be a number, got %s", field, kindOf(raw))})
		return nil
	}
	return &f
}

func readObject(fields map[string]any, key string, problems *[]fieldProblem) (map[string]any, bool) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil, false
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		*problems = append(*problems, fieldProblem{key, CodeInvalidValue, fmt.Sprintf("%s must be an object, got %s", key, kindOf(raw))})
		return nil, false
	}
	return obj, true
}

func readMetadata(fields map[string]any, problems *[]fieldProblem) map[string]any {
	raw, ok := fields["metadata"]
	if !ok || raw == nil {
		return nil
	}
	obj, ok := raw.(map[string]any)
	if !ok || !jsonSafe(obj) {
		*problems = append(*problems, fieldProblem{"metadata", CodeInvalidValue, "metadata must be an object of finite JSON values"})
		return nil
	}
	return normalizeNumbers(obj).(map[string]any)
}

// jsonSafe reports whether v can be encoded as JSON: no non-finite floats
// and no maps keyed by anything but strings.
func jsonSafe(v any) bool {
	switch x := v.(type) {
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case map[string]any:
		for _, item := range x {
			if !jsonSafe(item) {
				return false
			}
		}
	case []any:
		for _, item := range x {
			if !jsonSafe(item) {
				return false
			}
		}
	case map[any]any:
		return false
	}
	return true
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x
	case map[string]any:
		for k, item := range x {
			x[k] = normalizeNumbers(item)
		}
	case []any:
		for i, item := range x {
			x[i] = normalizeNumbers(item)
		}
	}
	return v
}

// jsonNumber renders a float for JSON output. Non-finite values become
// strings since JSON has no literal for them.
func jsonNumber(v *float64) any {
	if v == nil {
		return nil
	}
	if !finite(*v) {
		return strconv.FormatFloat(*v, 'g', -1, 64)
	}
	return *v
}

func (p PositionCandidate) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		X      any `json:"x,omitempty"`
		Y      any `json:"y,omitempty"`
		Z      any `json:"z,omitempty"`
		Radius any `json:"radius,omitempty"`
		Theta  any `json:"theta,omitempty"`
		Phi    any `json:"phi,omitempty"`
	}{jsonNumber(p.X), jsonNumber(p.Y), jsonNumber(p.Z), jsonNumber(p.Radius), jsonNumber(p.Theta), jsonNumber(p.Phi)})
}

func (p PriorityCandidate) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Executive  any `json:"executive,omitempty"`
		Individual any `json:"individual,omitempty"`
		Community  any `json:"community,omitempty"`
		Computed   any `json:"computed,omitempty"`
	}{jsonNumber(p.Executive), jsonNumber(p.Individual), jsonNumber(p.Community), jsonNumber(p.Computed)})
}

type nodeCandidateFields NodeCandidate

func (c NodeCandidate) MarshalJSON() ([]byte, error) {
	fields := nodeCandidateFields(c)
	if !jsonSafe(fields.Metadata) {
		fields.Metadata = nil
	}
	return json.Marshal(fields)
}

type edgeCandidateFields EdgeCandidate

func (c EdgeCandidate) MarshalJSON() ([]byte, error) {
	fields := edgeCandidateFields(c)
	if !jsonSafe(fields.Metadata) {
		fields.Metadata = nil
	}
	return json.Marshal(struct {
		edgeCandidateFields
		Weight   any `json:"weight,omitempty"`
		Strength any `json:"strength,omitempty"`
	}{fields, jsonNumber(c.Weight), jsonNumber(c.Strength)})
}
