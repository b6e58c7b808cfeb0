package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
)

type deviceSummary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
	Available    bool     `json:"available"`
}

type setAvailabilityRequest struct {
	Available bool `json:"available"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.devices.List()
	out := make([]deviceSummary, 0, len(devices))
	for _, d := range devices {
		caps := make([]string, 0, len(d.Capabilities))
		for kind := range d.Capabilities {
			caps = append(caps, kind)
		}
		sort.Strings(caps)
		out = append(out, deviceSummary{
			ID:           d.ID,
			Name:         d.Name,
			Capabilities: caps,
			Available:    d.Available,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSetAvailability routes availability changes through the
// execution manager so that marking a device unavailable also aborts
// its active and queued executions.
func (s *Server) handleSetAvailability(w http.ResponseWriter, r *http.Request) {
	var req setAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	deviceID := chi.URLParam(r, "id")
	var err error
	if req.Available {
		err = s.manager.MarkDeviceAvailable(deviceID)
	} else {
		err = s.manager.MarkDeviceUnavailable(deviceID)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"available": req.Available,
	})
}
