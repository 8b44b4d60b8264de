package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/deepscribe/internal/agent"
	"github.com/haasonsaas/deepscribe/internal/templates"
	"github.com/haasonsaas/deepscribe/pkg/models"
)

// researchRequest is the body of POST /api/research and /api/research/stream.
type researchRequest struct {
	Query              string   `json:"query"`
	CustomInstructions string   `json:"custom_instructions,omitempty"`
	TemplateID         string   `json:"template_id,omitempty"`
	EnabledTools       []string `json:"enabled_tools,omitempty"`
}

// toLoopRequest folds template guidance into the custom instructions.
func (r *researchRequest) toLoopRequest() agent.Request {
	instructions := strings.TrimSpace(r.CustomInstructions)
	if guidance := templates.Guidance(r.TemplateID); guidance != "" {
		if instructions != "" {
			instructions += "\n\n"
		}
		instructions += guidance
	}
	return agent.Request{
		Query:              r.Query,
		CustomInstructions: instructions,
		EnabledTools:       r.EnabledTools,
	}
}

// handleResearch runs a research invocation to completion and returns the
// aggregated result.
func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	start := time.Now()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
		defer s.metrics.ActiveSessions.Dec()
	}

	result, err := s.loop.RunAggregate(r.Context(), req.toLoopRequest())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.recordOutcome(result, time.Since(start))
	s.logger.Info("research finished",
		"session_id", result.SessionID,
		"success", result.Success,
		"iterations", result.Iterations,
	)

	s.writeJSON(w, http.StatusOK, result)
}

// sseEvent is the envelope for streamed events, matching the batch API's
// client expectations: data: {"type": ..., "data": {...}}
type sseEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// handleResearchStream runs a research invocation and streams its events as
// Server-Sent Events.
func (s *Server) handleResearchStream(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	inv, err := s.loop.Run(r.Context(), req.toLoopRequest())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
		defer s.metrics.ActiveSessions.Dec()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-ID", inv.Session.ID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	start := time.Now()
	var terminal *models.Event

	for event := range inv.Events {
		if event.Type.IsTerminal() {
			terminal = event
		}
		payload, err := json.Marshal(sseEvent{Type: string(event.Type), Data: event})
		if err != nil {
			s.logger.Warn("failed to encode event", "error", err, "session_id", inv.Session.ID)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	s.recordStreamOutcome(terminal, time.Since(start))
}

// handleCancel cancels a running invocation by session ID.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if !s.loop.Cancel(sessionID) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("no active session %s", sessionID))
		return
	}

	s.logger.Info("session cancelled", "session_id", sessionID)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":     "cancelled",
		"session_id": sessionID,
	})
}

// recordOutcome updates invocation metrics for the batch path.
func (s *Server) recordOutcome(result *agent.Result, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	status := "completed"
	if !result.Success {
		status = "failed"
	}
	s.metrics.ResearchCounter.WithLabelValues(status).Inc()
	s.metrics.ResearchDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	s.metrics.ResearchIterations.Observe(float64(result.Iterations))
}

// recordStreamOutcome updates invocation metrics for the streaming path
// based on the terminal event.
func (s *Server) recordStreamOutcome(terminal *models.Event, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	status := "failed"
	if terminal != nil {
		switch {
		case terminal.Type == models.EventComplete:
			status = "completed"
		case terminal.ErrorCategory == string(agent.FailureCancelled):
			status = "cancelled"
		}
	}
	s.metrics.ResearchCounter.WithLabelValues(status).Inc()
	s.metrics.ResearchDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	if terminal != nil {
		s.metrics.ResearchIterations.Observe(float64(terminal.Iteration))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}
