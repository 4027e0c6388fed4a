package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/nstogner/forge/pkg/action"
	"github.com/nstogner/forge/pkg/domain"
	"github.com/nstogner/forge/pkg/generate"
	"github.com/nstogner/forge/pkg/stream"
)

// --- Generation ---

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generate.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}

	if !req.Stream {
		resp, err := s.generator.Generate(r.Context(), req)
		if err != nil {
			s.generationError(w, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, resp)
		return
	}

	nw := &ndjsonWriter{w: w}
	err := s.generator.GenerateStream(r.Context(), req, stream.NewNDJSONSink(nw))
	if err == nil {
		return
	}
	if !nw.started {
		s.generationError(w, err)
		return
	}
	// The terminal error event has already been written.
	slog.Warn("Generation stream ended with error", "requestID", w.Header().Get("X-Request-ID"), "error", err)
}

// ndjsonWriter commits the streaming headers on the first write, so errors
// raised before any event can still be answered with a JSON error.
type ndjsonWriter struct {
	w       http.ResponseWriter
	started bool
}

func (n *ndjsonWriter) Write(p []byte) (int, error) {
	if !n.started {
		h := n.w.Header()
		h.Set("Content-Type", "application/x-ndjson")
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Content-Type-Options", "nosniff")
		n.w.WriteHeader(http.StatusOK)
		n.started = true
	}
	return n.w.Write(p)
}

func (n *ndjsonWriter) Flush() {
	if f, ok := n.w.(http.Flusher); ok {
		f.Flush()
	}
}

// --- Plans ---

type planRequest struct {
	Plan  *domain.Plan `json:"plan"`
	Model string       `json:"model,omitempty"`
}

func (req planRequest) validate() error {
	if req.Plan == nil {
		return fmt.Errorf("plan is required")
	}
	return nil
}

func (s *Server) handleExecutePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if err := req.validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	res := s.orchestrator.Execute(r.Context(), req.Plan, req.Model, nil)
	s.jsonResponse(w, http.StatusOK, res)
}

// --- Actions ---

type actionsRequest struct {
	Text        string `json:"text"`
	WorkspaceID string `json:"workspaceId,omitempty"`
}

type parseResponse struct {
	Actions []domain.Action `json:"actions"`
	Bundle  *action.Bundle  `json:"bundle,omitempty"`
}

func (s *Server) handleParseActions(w http.ResponseWriter, r *http.Request) {
	var req actionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	resp := parseResponse{Actions: action.Parse(req.Text)}
	if resp.Actions == nil {
		resp.Actions = []domain.Action{}
	}
	if b, ok := action.ParseBundle(req.Text); ok {
		resp.Bundle = &b
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

type actionsResponse struct {
	Steps []domain.Step        `json:"steps"`
	Files []domain.VirtualFile `json:"files"`
	Error string               `json:"error,omitempty"`
}

func (s *Server) handleExecuteActions(w http.ResponseWriter, r *http.Request) {
	var req actionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.executeActions(r.Context(), req, nil))
}

// releaser is implemented by runners that hold per-workspace resources.
type releaser interface {
	Release(ctx context.Context, workspaceID string) error
}

// executeActions runs the actions in req.Text. A request without a workspace
// id gets a throwaway workspace that is released afterwards.
func (s *Server) executeActions(ctx context.Context, req actionsRequest, observer action.Observer) actionsResponse {
	exec := &action.Executor{
		Runner:      s.runner,
		WorkspaceID: req.WorkspaceID,
		Observer:    observer,
	}
	if exec.WorkspaceID == "" {
		exec.WorkspaceID = uuid.New().String()
		if rel, ok := s.runner.(releaser); ok {
			defer func() {
				if err := rel.Release(context.WithoutCancel(ctx), exec.WorkspaceID); err != nil {
					slog.Warn("Failed to release workspace", "workspace", exec.WorkspaceID, "error", err)
				}
			}()
		}
	}

	run := exec.Execute(ctx, action.Parse(req.Text))
	resp := actionsResponse{Steps: run.Steps, Files: run.Files}
	if run.Err != nil {
		resp.Error = run.Err.Error()
	}
	s.recordActions(ctx, run)
	return resp
}

func (s *Server) recordActions(ctx context.Context, run *action.Run) {
	if s.history == nil {
		return
	}
	done := 0
	for _, st := range run.Steps {
		if st.Status == domain.StepComplete {
			done++
		}
	}
	entry := &domain.HistoryEntry{
		Kind:    domain.HistoryActions,
		Summary: fmt.Sprintf("%d/%d actions, %d files", done, len(run.Steps), len(run.Files)),
		Success: run.Err == nil,
	}
	if err := s.history.Append(context.WithoutCancel(ctx), entry); err != nil {
		slog.Warn("Failed to record history", "error", err)
	}
}

// --- Models ---

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.registry.Catalog())
}

func (s *Server) handleListProviderModels(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	p, ok := s.registry.Provider(name)
	if !ok {
		s.errorResponse(w, http.StatusNotFound, fmt.Errorf("provider %q is not configured", name))
		return
	}
	models, err := p.List(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, models)
}

// --- History ---

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.jsonResponse(w, http.StatusOK, []domain.HistoryEntry{})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.errorResponse(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	s.jsonResponse(w, http.StatusOK, entries)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
