package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"graphtrack/api/internal/store"
)

// NewDocument wraps a snapshot for export. Nil slices become empty lists.
func NewDocument(snap store.GraphSnapshot) Document {
	doc := Document{
		Vocabulary: store.VocabularyVersion,
		ExportedAt: snap.TakenAt.UTC(),
		Nodes:      snap.Nodes,
		Edges:      snap.Edges,
	}
	if doc.Nodes == nil {
		doc.Nodes = []store.Node{}
	}
	if doc.Edges == nil {
		doc.Edges = []store.Edge{}
	}
	doc.Counts = Counts{Nodes: len(doc.Nodes), Edges: len(doc.Edges)}
	return doc
}

func Encode(doc Document, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(format))
	}
}

func Decode(data []byte, format Format) (Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return Document{}, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Document{}, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownFormat, string(format))
	}
	return doc, nil
}
