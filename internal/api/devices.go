package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Kalashnok/fire-alarm/internal/device"
)

// createDeviceRequest is the body for POST /devices.
type createDeviceRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// updateDeviceRequest is the body for PATCH /devices/{id}.
// Absent fields are left untouched.
type updateDeviceRequest struct {
	Name     *string `json:"name"`
	Location *string `json:"location"`
}

// handleListDevices returns all devices sorted by name.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleCreateDevice registers a new device and subscribes its topics when
// a broker session is live.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	d, err := s.session.AddDevice(r.Context(), req.ID, req.Name, req.Location)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// handleGetDevice returns one device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleUpdateDevice merges a name/location patch into a device.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	d, err := s.session.UpdateDevice(r.Context(), chi.URLParam(r, "id"), device.UpdatePatch{
		Name:     req.Name,
		Location: req.Location,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleDeleteDevice removes a device, its alarms and its subscriptions.
// Deleting an absent device succeeds, matching the registry's idempotent
// remove semantics.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.session.RemoveDevice(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAcknowledgeDevice acknowledges every unacknowledged alarm for a
// device and demotes an alarmed device back to active.
func (s *Server) handleAcknowledgeDevice(w http.ResponseWriter, r *http.Request) {
	count, err := s.session.AcknowledgeDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": count})
}

// handleDeviceStats returns per-status device counts.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	counts := make(map[device.Status]int, len(device.AllStatuses()))
	for _, status := range device.AllStatuses() {
		counts[status] = 0
	}
	for _, d := range s.registry.List() {
		counts[d.Status]++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":         s.registry.Count(),
		"by_status":     counts,
		"active_alarms": s.ledger.ActiveCount(),
	})
}
