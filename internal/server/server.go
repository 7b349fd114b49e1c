// Package server exposes the distributor's HTTP/JSON API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/AnimatorJoe/distributor/internal/core"
	"github.com/AnimatorJoe/distributor/internal/distributor"
)

const (
	serviceName    = "Log Distributor"
	serviceVersion = "2.0.0"
)

// Server is the HTTP server for the distributor API.
type Server struct {
	addr     string
	service  *distributor.Service
	listener *listener
}

// New creates an API server for the given service.
func New(addr string, service *distributor.Service) *Server {
	return &Server{
		addr:    addr,
		service: service,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /submit", s.handleSubmit)
	mux.HandleFunc("POST /get_work", s.handleGetWork)
	mux.HandleFunc("POST /status", s.handleStatus)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return mux
}

// Start starts the API server.
func (s *Server) Start(ctx context.Context) error {
	s.listener = newListener("api", s.addr, s.Handler())
	s.listener.start()
	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	return s.listener.stop(ctx)
}

// ready guards every handler: 503 until the service is wired in.
func (s *Server) ready(w http.ResponseWriter) bool {
	if s.service == nil {
		http.Error(w, `{"error":"distributor not initialized"}`, http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}

	var rec core.LogRecord
	if err := decodeJSON(r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := rec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	taskID := s.service.Submit(&rec)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "accepted",
		"task_id": taskID,
	})
}

func (s *Server) handleGetWork(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}

	var req core.WorkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.AnalyzerID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("analyzer_id is required"))
		return
	}

	writeJSON(w, http.StatusOK, s.service.Pull(req))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}

	var update core.StatusUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if update.TaskID == "" || update.AnalyzerID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("task_id and analyzer_id are required"))
		return
	}

	// Unknown task ids are deliberately still a 200: the monitor may have
	// requeued the task already and late duplicates must be harmless.
	s.service.UpdateStatus(update)

	writeJSON(w, http.StatusOK, map[string]any{"status": "acknowledged"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.service.Stats())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.service.Metrics())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}
	s.service.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":      serviceName,
		"version":      serviceVersion,
		"architecture": "pull-based-work-queue",
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
