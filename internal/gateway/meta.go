package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/haasonsaas/deepscribe/internal/templates"
)

// handleTemplates lists the document templates a research request can
// target.
func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"templates": templates.List(),
	})
}

// clarificationRequest is the body of POST /api/clarifications.
type clarificationRequest struct {
	TemplateID string `json:"template_id"`
	Task       string `json:"task,omitempty"`
}

// handleClarifications returns the clarification questions for a template.
// Unknown templates get a generic question set rather than an error, so
// clients can always present something to the user.
func (s *Server) handleClarifications(w http.ResponseWriter, r *http.Request) {
	var req clarificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.TemplateID == "" {
		s.writeError(w, http.StatusBadRequest, "template_id is required")
		return
	}

	s.logger.Info("generating clarification questions", "template_id", req.TemplateID)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"template_id": req.TemplateID,
		"questions":   templates.Clarifications(req.TemplateID),
	})
}
