package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphtrack/api/internal/store"
)

// fakeStoreForHealth overrides Ping on a real store.
type fakeStoreForHealth struct {
	*store.GraphStore
	pingFn func(context.Context) error
}

func (f *fakeStoreForHealth) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func serveHealth(t *testing.T, pingFn func(context.Context) error, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	fs := &fakeStoreForHealth{GraphStore: newTestStore(t), pingFn: pingFn}
	server := NewHTTPServer(New(fs, Options{}), "*", nil)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	var response map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	return rr, response
}

func TestHealthEndpoint(t *testing.T) {
	rr, response := serveHealth(t, nil, "/api/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, response["ok"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestReadyEndpoint_Success(t *testing.T) {
	rr, response := serveHealth(t, func(context.Context) error { return nil }, "/api/ready")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, response["ok"])
	assert.Equal(t, "ready", response["status"])
}

func TestReadyEndpoint_DatabaseFailure(t *testing.T) {
	rr, response := serveHealth(t, func(context.Context) error {
		return errors.New("connection refused")
	}, "/api/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, false, response["ok"])
	assert.Equal(t, "not_ready", response["status"])
	checks := response["checks"].(map[string]any)
	database := checks["database"].(map[string]any)
	assert.Equal(t, "error", database["status"])
	assert.Equal(t, "connection refused", database["error"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	server := NewHTTPServer(New(newTestStore(t), Options{}), "https://example.test", nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	assert.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "https://example.test", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	server := NewHTTPServer(New(newTestStore(t), Options{}), "*", nil)

	// Touch a store counter so it has a sample to expose.
	create := httptest.NewRequest(http.MethodPost, "/api/nodes", strings.NewReader(`{"title":"metrics"}`))
	server.Handler().ServeHTTP(httptest.NewRecorder(), create)

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "graphtrack_store_operations_total")
}
