// Package server exposes generation, plan execution and action parsing over
// HTTP and websockets.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/forge/pkg/generate"
	"github.com/nstogner/forge/pkg/history"
	"github.com/nstogner/forge/pkg/model"
	"github.com/nstogner/forge/pkg/orchestrator"
	"github.com/nstogner/forge/pkg/sandbox"
)

// Server serves the forge REST API.
type Server struct {
	generator    *generate.Service
	orchestrator *orchestrator.Orchestrator
	registry     *model.Registry
	history      history.Log
	runner       sandbox.Runner
	srv          *http.Server
}

// New creates a new Server. hist and runner may be nil; without a runner
// shell actions fail.
func New(
	generator *generate.Service,
	orch *orchestrator.Orchestrator,
	registry *model.Registry,
	hist history.Log,
	runner sandbox.Runner,
) *Server {
	return &Server{
		generator:    generator,
		orchestrator: orch,
		registry:     registry,
		history:      hist,
		runner:       runner,
	}
}

// Handler returns the routed API with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Generation
	mux.HandleFunc("POST /api/generate", s.handleGenerate)

	// Plans
	mux.HandleFunc("POST /api/plans/execute", s.handleExecutePlan)
	mux.HandleFunc("/api/plans/ws", s.handlePlanWebSocket)

	// Actions
	mux.HandleFunc("POST /api/actions/parse", s.handleParseActions)
	mux.HandleFunc("POST /api/actions/execute", s.handleExecuteActions)
	mux.HandleFunc("/api/actions/ws", s.handleActionsWebSocket)

	// Models
	mux.HandleFunc("GET /api/models", s.handleListModels)
	mux.HandleFunc("GET /api/providers/{name}/models", s.handleListProviderModels)

	mux.HandleFunc("GET /api/history", s.handleListHistory)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return requestIDMiddleware(corsMiddleware(mux))
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting web server", "addr", addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Request served", "requestID", id, "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// envelope wraps every JSON response.
type envelope struct {
	OK    bool      `json:"ok"`
	Data  any       `json:"data,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{OK: true, Data: data})
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	code := "internal"
	switch status {
	case http.StatusBadRequest:
		code = "bad_request"
	case http.StatusNotFound:
		code = "not_found"
	}
	s.writeError(w, status, &apiError{Code: code, Message: err.Error()})
}

func (s *Server) writeError(w http.ResponseWriter, status int, e *apiError) {
	if status >= http.StatusInternalServerError {
		slog.Error("API Error", "code", e.Code, "error", e.Message)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: e})
}

// generationError maps generation failures onto status codes.
func (s *Server) generationError(w http.ResponseWriter, err error) {
	var unsafe *generate.UnsafeContentError
	switch {
	case errors.Is(err, generate.ErrMaintenance):
		s.writeError(w, http.StatusServiceUnavailable, &apiError{Code: "maintenance", Message: err.Error()})
	case errors.As(err, &unsafe):
		s.writeError(w, http.StatusBadRequest, &apiError{
			Code:    "unsafe_content",
			Message: err.Error(),
			Details: map[string]any{"category": unsafe.Category},
		})
	case errors.Is(err, generate.ErrNoQuery), errors.Is(err, generate.ErrInvalidDrawing):
		s.errorResponse(w, http.StatusBadRequest, err)
	default:
		s.errorResponse(w, http.StatusInternalServerError, err)
	}
}
