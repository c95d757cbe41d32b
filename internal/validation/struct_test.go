package validation

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphtrack/api/internal/store"
)

type sampleInput struct {
	Title     string   `json:"title" validate:"required"`
	Type      string   `json:"type" validate:"omitempty,nodetype"`
	Status    string   `json:"status" validate:"omitempty,nodestatus"`
	Relation  string   `json:"relation" validate:"omitempty,relationship"`
	Executive *float64 `json:"executive" validate:"omitempty,unit"`
	Weight    *float64 `json:"weight" validate:"omitempty,nonneg"`
}

func TestStructAcceptsValidInput(t *testing.T) {
	err := Struct(sampleInput{
		Title:     "ok",
		Type:      "epic",
		Status:    "Planned",
		Relation:  "contains",
		Executive: num(1),
		Weight:    num(0),
	})
	assert.NoError(t, err)

	assert.NoError(t, Struct(sampleInput{Title: "only title"}))
}

func TestStructReportsEveryFailedField(t *testing.T) {
	err := Struct(sampleInput{
		Type:      "Saga",
		Status:    "Done",
		Relation:  "Owns",
		Executive: num(math.NaN()),
		Weight:    num(-2),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrInvalidSpec))

	var structErr *StructError
	require.ErrorAs(t, err, &structErr)
	fields := map[string]string{}
	for _, f := range structErr.Fields {
		fields[f.Field] = f.Rule
	}
	assert.Equal(t, map[string]string{
		"title":     "required",
		"type":      "nodetype",
		"status":    "nodestatus",
		"relation":  "relationship",
		"executive": "unit",
		"weight":    "nonneg",
	}, fields)
	assert.Contains(t, err.Error(), "title is required")
}
