package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oakmere/conductor-core/internal/run"
)

type runStepRequest struct {
	DeviceID       string         `json:"device_id"`
	ActionKind     string         `json:"action_kind"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"`
	DependsOn      []int          `json:"depends_on,omitempty"`
}

type submitRunRequest struct {
	RunID      string            `json:"run_id,omitempty"`
	Policy     run.FailurePolicy `json:"failure_policy"`
	MaxRetries int               `json:"max_retries,omitempty"`
	Steps      []runStepRequest  `json:"steps"`
}

type submitRunResponse struct {
	RunID string `json:"run_id"`
}

// handleSubmitRun accepts a run and executes it in the background.
// Validation failures surface synchronously; callers poll GET /runs/{id}
// or watch the broker for completion.
func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		writeInternalError(w, "run orchestration not configured")
		return
	}

	var req submitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	steps := make([]run.Step, len(req.Steps))
	for i, step := range req.Steps {
		if step.TimeoutSeconds < 0 {
			writeBadRequest(w, "timeout_seconds must not be negative")
			return
		}
		steps[i] = run.Step{
			DeviceID:   step.DeviceID,
			Kind:       step.ActionKind,
			Parameters: step.Parameters,
			Timeout:    time.Duration(step.TimeoutSeconds) * time.Second,
			DependsOn:  step.DependsOn,
		}
	}

	var done func(run.Run)
	if s.notifier != nil {
		done = s.notifier.RunFinished
	}

	runID, err := s.orchestrator.Submit(&run.Request{
		RunID:      req.RunID,
		Policy:     req.Policy,
		MaxRetries: req.MaxRetries,
		Steps:      steps,
	}, done)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, submitRunResponse{RunID: runID})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		writeJSON(w, http.StatusOK, []run.Run{})
		return
	}
	writeJSON(w, http.StatusOK, s.orchestrator.List())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		writeNotFound(w, "run orchestration not configured")
		return
	}
	rec, err := s.orchestrator.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
