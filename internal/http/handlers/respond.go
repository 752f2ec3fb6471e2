// Package handlers exposes the scheduling REST API and the admin endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/appointments"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// statusForResult maps a lifecycle outcome to an HTTP status.
func statusForResult(res appointments.Result) int {
	if res.OK {
		return http.StatusOK
	}
	switch res.Reason {
	case appointments.ReasonSlotUnavailable, appointments.ReasonInvalidTransition:
		return http.StatusConflict
	case appointments.ReasonNoActive:
		return http.StatusNotFound
	case appointments.ReasonNeedName:
		return http.StatusUnprocessableEntity
	case appointments.ReasonBadTime:
		return http.StatusBadRequest
	}
	return http.StatusBadRequest
}

func trimmed(s string) string { return strings.TrimSpace(s) }
