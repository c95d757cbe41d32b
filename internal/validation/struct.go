package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"graphtrack/api/internal/store"
)

// structValidate checks mutation inputs. Custom tags:
//
//	nodetype, nodestatus, relationship: value is in the vocabulary (any case)
//	unit: finite and within [0,1]
//	nonneg: finite and >= 0
var structValidate *validator.Validate

func init() {
	structValidate = validator.New()
	structValidate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	_ = structValidate.RegisterValidation("nodetype", func(fl validator.FieldLevel) bool {
		_, ok := store.ParseNodeType(fl.Field().String())
		return ok
	})
	_ = structValidate.RegisterValidation("nodestatus", func(fl validator.FieldLevel) bool {
		_, ok := store.ParseNodeStatus(fl.Field().String())
		return ok
	})
	_ = structValidate.RegisterValidation("relationship", func(fl validator.FieldLevel) bool {
		_, ok := store.ParseRelationshipType(fl.Field().String())
		return ok
	})
	_ = structValidate.RegisterValidation("unit", func(fl validator.FieldLevel) bool {
		v := fl.Field().Float()
		return finite(v) && v >= 0 && v <= 1
	})
	_ = structValidate.RegisterValidation("nonneg", func(fl validator.FieldLevel) bool {
		v := fl.Field().Float()
		return finite(v) && v >= 0
	})
}

// FieldError is one failed struct rule.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// StructError lists every failed rule. It matches store.ErrInvalidSpec.
type StructError struct {
	Fields []FieldError
}

func (e *StructError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Message)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *StructError) Unwrap() error {
	return store.ErrInvalidSpec
}

// Struct validates v against its `validate` tags.
func Struct(v any) error {
	err := structValidate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate input: %w", err)
	}
	out := &StructError{Fields: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: describe(fe),
		})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "nodetype":
		return fmt.Sprintf("%s %q is not a known node type", fe.Field(), fe.Value())
	case "nodestatus":
		return fmt.Sprintf("%s %q is not a known node status", fe.Field(), fe.Value())
	case "relationship":
		return fmt.Sprintf("%s %q is not a known relationship type", fe.Field(), fe.Value())
	case "unit":
		return fe.Field() + " must be a finite number within [0,1]"
	case "nonneg":
		return fe.Field() + " must be a finite non-negative number"
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
