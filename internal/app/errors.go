package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"graphtrack/api/internal/export"
	"graphtrack/api/internal/reports"
	"graphtrack/api/internal/store"
	"graphtrack/api/internal/validation"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

// mapError turns a service error into the HTTP error envelope. Sentinel
// errors carry ids in their wrapped message, so it is passed through.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var structErr *validation.StructError
	if errors.As(err, &structErr) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", structErr.Error(), structErr.Fields
	}
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, reports.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", err.Error(), nil
	case errors.Is(err, store.ErrMissingEndpoint):
		return http.StatusUnprocessableEntity, "MISSING_ENDPOINT", err.Error(), nil
	case errors.Is(err, store.ErrDuplicateID):
		return http.StatusConflict, "DUPLICATE_ID", err.Error(), nil
	case errors.Is(err, store.ErrInvalidSpec):
		return http.StatusUnprocessableEntity, "INVALID_SPEC", err.Error(), nil
	case errors.Is(err, export.ErrUnknownFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "TIMEOUT", "Request timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
