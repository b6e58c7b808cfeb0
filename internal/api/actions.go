package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oakmere/conductor-core/internal/action"
)

// submitActionRequest is the POST /actions body. TimeoutSeconds of
// zero takes the configured default.
type submitActionRequest struct {
	RequestID      string         `json:"request_id,omitempty"`
	DeviceID       string         `json:"device_id"`
	ActionKind     string         `json:"action_kind"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"`
}

type submitActionResponse struct {
	RequestID string `json:"request_id"`
}

func (s *Server) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	var req submitActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" || req.ActionKind == "" {
		writeBadRequest(w, "device_id and action_kind are required")
		return
	}
	if req.TimeoutSeconds < 0 {
		writeBadRequest(w, "timeout_seconds must not be negative")
		return
	}

	goal := &action.Goal{
		RequestID:  req.RequestID,
		DeviceID:   req.DeviceID,
		Kind:       req.ActionKind,
		Parameters: req.Parameters,
		Timeout:    time.Duration(req.TimeoutSeconds) * time.Second,
	}
	requestID, err := s.manager.Submit(r.Context(), goal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitActionResponse{RequestID: requestID})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	rec, err := s.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCancelAction(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Cancel(chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel_requested"})
}

func (s *Server) handleActionResult(w http.ResponseWriter, r *http.Request) {
	rec, err := s.manager.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	if s.actions == nil {
		writeJSON(w, http.StatusOK, []action.Kind{})
		return
	}
	writeJSON(w, http.StatusOK, s.actions.List())
}
