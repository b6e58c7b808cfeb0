package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oakmere/conductor-core/internal/action"
	"github.com/oakmere/conductor-core/internal/admission"
	"github.com/oakmere/conductor-core/internal/device"
	"github.com/oakmere/conductor-core/internal/execution"
	"github.com/oakmere/conductor-core/internal/run"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeNotFound          = "not_found"
	ErrCodeConflict          = "conflict"
	ErrCodeInternal          = "internal_error"
	ErrCodeInvalidParameters = "invalid_parameters"
	ErrCodeUnknownActionKind = "unknown_action_kind"
	ErrCodeUnsupportedAction = "unsupported_action"
	ErrCodeDeviceUnavailable = "device_unavailable"
	ErrCodeQueueFull         = "queue_full"
	ErrCodeNotTerminal       = "not_terminal"
	ErrCodeUnknownRequest    = "unknown_request"
	ErrCodeUnknownDevice     = "unknown_device"
	ErrCodeUnknownRun        = "unknown_run"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps engine errors onto HTTP statuses and stable
// error codes the frontend can branch on.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, action.ErrInvalidParameters):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidParameters, err.Error())
	case errors.Is(err, action.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, ErrCodeUnknownActionKind, err.Error())
	case errors.Is(err, admission.ErrUnsupportedAction):
		writeError(w, http.StatusConflict, ErrCodeUnsupportedAction, err.Error())
	case errors.Is(err, admission.ErrDeviceUnavailable):
		writeError(w, http.StatusConflict, ErrCodeDeviceUnavailable, err.Error())
	case errors.Is(err, admission.ErrQueueFull):
		writeError(w, http.StatusConflict, ErrCodeQueueFull, err.Error())
	case errors.Is(err, execution.ErrDuplicateRequest), errors.Is(err, admission.ErrDuplicateRequest):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, execution.ErrNotTerminal):
		writeError(w, http.StatusConflict, ErrCodeNotTerminal, err.Error())
	case errors.Is(err, execution.ErrUnknownRequest):
		writeError(w, http.StatusNotFound, ErrCodeUnknownRequest, err.Error())
	case errors.Is(err, device.ErrUnknownDevice):
		writeError(w, http.StatusNotFound, ErrCodeUnknownDevice, err.Error())
	case errors.Is(err, run.ErrUnknownRun):
		writeError(w, http.StatusNotFound, ErrCodeUnknownRun, err.Error())
	case errors.Is(err, run.ErrNoSteps), errors.Is(err, run.ErrUnknownPolicy),
		errors.Is(err, run.ErrInvalidDependency):
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, run.ErrDuplicateRun):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, execution.ErrManagerClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
