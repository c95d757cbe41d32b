package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"graphtrack/api/internal/export"
	"graphtrack/api/internal/logging"
	"graphtrack/api/internal/search"
	"graphtrack/api/internal/store"
	"graphtrack/api/internal/validation"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *slog.Logger
	metrics    http.Handler
}

func NewHTTPServer(service *Service, corsOrigin string, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		logger:     logger,
		metrics:    promhttp.Handler(),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		s.metrics.ServeHTTP(w, r)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/vocabulary" {
		writeJSON(w, http.StatusOK, s.service.Vocabulary())
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	switch parts[1] {
	case "nodes":
		if len(parts) == 2 {
			s.handleNodeCollection(w, r)
			return
		}
		if len(parts) == 3 {
			s.handleNode(w, r, parts[2])
			return
		}
	case "edges":
		if len(parts) == 2 && r.Method == http.MethodPost {
			var body CreateEdgeInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			edge, err := s.service.CreateEdge(r.Context(), body)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, edge)
			return
		}
		if len(parts) == 3 {
			s.handleEdge(w, r, parts[2])
			return
		}
	case "paths":
		if len(parts) == 2 && r.Method == http.MethodGet {
			query := r.URL.Query()
			result, err := s.service.ShortestPath(r.Context(), query.Get("from"), query.Get("to"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
			return
		}
	case "cycles":
		if len(parts) == 2 && r.Method == http.MethodGet {
			report, err := s.service.DetectCycles(r.Context())
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, report)
			return
		}
	case "stats":
		if len(parts) == 2 && r.Method == http.MethodGet {
			stats, err := s.service.Stats(r.Context())
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, stats)
			return
		}
	case "validate":
		if len(parts) == 2 && r.Method == http.MethodPost {
			var batch validation.Batch
			if err := decodeBody(r, &batch); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			writeJSON(w, http.StatusOK, s.service.ValidateBatch(r.Context(), batch))
			return
		}
	case "import":
		if len(parts) == 2 && r.Method == http.MethodPost {
			var batch validation.Batch
			if err := decodeBody(r, &batch); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			outcome, err := s.service.ImportBatch(r.Context(), batch)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, outcome)
			return
		}
	case "reports":
		if len(parts) == 3 && r.Method == http.MethodGet {
			stored, err := s.service.GetReport(r.Context(), parts[2])
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, stored)
			return
		}
	case "search":
		if len(parts) == 2 && r.Method == http.MethodGet {
			s.handleSearch(w, r)
			return
		}
	case "exports":
		if len(parts) == 2 && r.Method == http.MethodPost {
			s.handleExport(w, r)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleNodeCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var body CreateNodeInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		node, err := s.service.CreateNode(r.Context(), body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, node)
		return
	}

	if r.Method == http.MethodGet {
		query := r.URL.Query()
		filter := NodeFilter{
			Type: strings.TrimSpace(query.Get("type")),
			Band: strings.TrimSpace(query.Get("band")),
		}
		if raw := strings.TrimSpace(query.Get("minPriority")); raw != "" {
			threshold, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "minPriority must be a number", nil)
				return
			}
			filter.MinPriority = &threshold
		}
		nodes, err := s.service.ListNodes(r.Context(), filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"nodes": nonNilNodes(nodes)})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleNode(w http.ResponseWriter, r *http.Request, nodeID string) {
	if r.Method == http.MethodGet {
		withLinks, _ := strconv.ParseBool(r.URL.Query().Get("links"))
		node, err := s.service.GetNode(r.Context(), nodeID, withLinks)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, node)
		return
	}

	if r.Method == http.MethodPatch {
		var body UpdateNodeInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		node, err := s.service.UpdateNode(r.Context(), nodeID, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, node)
		return
	}

	if r.Method == http.MethodDelete {
		removed, err := s.service.DeleteNode(r.Context(), nodeID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if !removed {
			writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("node %s not found", nodeID), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleEdge(w http.ResponseWriter, r *http.Request, edgeID string) {
	if r.Method == http.MethodGet {
		edge, err := s.service.GetEdge(r.Context(), edgeID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, edge)
		return
	}

	if r.Method == http.MethodPatch {
		var body UpdateEdgeInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		edge, err := s.service.UpdateEdge(r.Context(), edgeID, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, edge)
		return
	}

	if r.Method == http.MethodDelete {
		removed, err := s.service.DeleteEdge(r.Context(), edgeID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if !removed {
			writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("edge %s not found", edgeID), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	response, err := s.service.Search(r.Context(), search.Query{
		Text:   query.Get("q"),
		Type:   store.NodeType(strings.TrimSpace(query.Get("type"))),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	var formats []export.Format
	for _, raw := range strings.Split(r.URL.Query().Get("format"), ",") {
		format, err := export.ParseFormat(raw)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		formats = append(formats, format)
	}

	results, err := s.service.Export(r.Context(), formats)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if s.service.ExportsUploaded() {
		writeJSON(w, http.StatusCreated, map[string]any{"exports": results})
		return
	}

	result := results[0]
	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		logger := s.logger.With("request_id", requestID)
		ctx := logging.WithLogger(r.Context(), logger)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		logger.InfoContext(ctx, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func nonNilNodes(nodes []store.Node) []store.Node {
	if nodes == nil {
		return []store.Node{}
	}
	return nodes
}
