package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// handleListAlarms returns alarms newest first.
//
// Query parameters:
//   - active: when "true", only unacknowledged alarms are returned
func (s *Server) handleListAlarms(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))

	alarms := s.ledger.All()
	if activeOnly {
		alarms = s.ledger.Active()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alarms": alarms,
		"count":  len(alarms),
	})
}

// handleAcknowledgeAlarm flips one alarm's acknowledged flag. Repeating the
// call succeeds without effect.
func (s *Server) handleAcknowledgeAlarm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.session.AcknowledgeAlarm(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	a, err := s.ledger.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleTestAlarm raises a synthetic alarm on the first registered device,
// running through the same transition rules as broker traffic.
func (s *Server) handleTestAlarm(w http.ResponseWriter, r *http.Request) {
	d, err := s.session.TriggerTestAlarm(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
