// Package export serializes graph snapshots to JSON or YAML and, when object
// storage is configured, uploads them.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"graphtrack/api/internal/store"
)

// Format represents the export output format
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts json, yaml or yml. Blank means json.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, value)
	}
}

func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

func (f Format) Extension() string {
	return "." + string(f)
}

// Document is the exported form of a graph snapshot.
type Document struct {
	Vocabulary string       `json:"vocabulary" yaml:"vocabulary"`
	ExportedAt time.Time    `json:"exportedAt" yaml:"exportedAt"`
	Counts     Counts       `json:"counts" yaml:"counts"`
	Nodes      []store.Node `json:"nodes" yaml:"nodes"`
	Edges      []store.Edge `json:"edges" yaml:"edges"`
}

type Counts struct {
	Nodes int `json:"nodes" yaml:"nodes"`
	Edges int `json:"edges" yaml:"edges"`
}

// Location is where an uploaded export ended up.
type Location struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	ETag   string `json:"etag,omitempty"`
}

// Result contains the export output
type Result struct {
	Data        []byte    `json:"-"`
	Filename    string    `json:"filename"`
	Format      Format    `json:"format"`
	ContentType string    `json:"contentType"`
	Size        int       `json:"size"`
	Location    *Location `json:"location,omitempty"`
}
