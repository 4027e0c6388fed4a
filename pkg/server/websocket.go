package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nstogner/forge/pkg/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// progressMessage is pushed to websocket clients. Steps messages carry a full
// snapshot; the final message carries the result.
type progressMessage struct {
	Type   string        `json:"type"`
	Steps  []domain.Step `json:"steps,omitempty"`
	Result any           `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

const (
	msgSteps  = "steps"
	msgResult = "result"
	msgError  = "error"
)

// handlePlanWebSocket executes one plan per client message, streaming step
// snapshots while it runs.
func (s *Server) handlePlanWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	for {
		var req planRequest
		if !readRequest(ws, &req) {
			return
		}
		if err := req.validate(); err != nil {
			if !writeMessage(ws, progressMessage{Type: msgError, Error: err.Error()}) {
				return
			}
			continue
		}

		// The observer runs on this goroutine, so this is the only writer.
		var writeFailed bool
		res := s.orchestrator.Execute(r.Context(), req.Plan, req.Model, func(steps []domain.Step) {
			if !writeFailed {
				writeFailed = !writeMessage(ws, progressMessage{Type: msgSteps, Steps: steps})
			}
		})
		if writeFailed || !writeMessage(ws, progressMessage{Type: msgResult, Result: res}) {
			return
		}
	}
}

// handleActionsWebSocket executes the actions found in each client message,
// streaming step snapshots while they run.
func (s *Server) handleActionsWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	for {
		var req actionsRequest
		if !readRequest(ws, &req) {
			return
		}
		var writeFailed bool
		resp := s.executeActions(r.Context(), req, func(steps []domain.Step) {
			if !writeFailed {
				writeFailed = !writeMessage(ws, progressMessage{Type: msgSteps, Steps: steps})
			}
		})
		if writeFailed || !writeMessage(ws, progressMessage{Type: msgResult, Result: resp}) {
			return
		}
	}
}

func readRequest(ws *websocket.Conn, v any) bool {
	if err := ws.ReadJSON(v); err != nil {
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			slog.Error("WebSocket read error", "error", err)
		}
		return false
	}
	return true
}

func writeMessage(ws *websocket.Conn, msg progressMessage) bool {
	if err := ws.WriteJSON(msg); err != nil {
		slog.Error("WebSocket write error", "error", err)
		return false
	}
	return true
}
