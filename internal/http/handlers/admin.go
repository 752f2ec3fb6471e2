package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/appointments"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/session"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

// AppointmentAdmin is the privileged lifecycle surface.
type AppointmentAdmin interface {
	MarkNoShow(ctx context.Context, appointmentID uuid.UUID) (appointments.Result, error)
	PurgePatient(ctx context.Context, contact string) (bool, error)
}

// HoursAdmin manages the operating-hours override.
type HoursAdmin interface {
	Current() ([]string, bool)
	Update(ctx context.Context, specs []string) ([]string, error)
	Reset(ctx context.Context) ([]string, error)
}

// MessagePurger removes message history for a contact.
type MessagePurger interface {
	PurgeContact(ctx context.Context, contact string) (int64, error)
}

// AdminConfig wires the admin handler.
type AdminConfig struct {
	AppName      string
	Env          string
	Timezone     string
	Sessions     session.Store
	Appointments AppointmentAdmin
	Hours        HoursAdmin
	Messages     MessagePurger
	Logger       *logging.Logger
}

// AdminHandler hosts operator endpoints.
type AdminHandler struct {
	cfg    AdminConfig
	logger *logging.Logger
	now    func() time.Time
}

// NewAdminHandler builds the handler. Unset dependencies disable their routes.
func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{cfg: cfg, logger: logger, now: time.Now}
}

// Ping answers liveness checks.
func (h *AdminHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ts": h.now().UTC().Format(time.RFC3339)})
}

// Health reports the service identity and the live session count.
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	sessions := 0
	if h.cfg.Sessions != nil {
		n, err := h.cfg.Sessions.Count(r.Context())
		if err != nil {
			h.logger.Warn("session count failed", "error", err)
		}
		sessions = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"app":            h.cfg.AppName,
		"env":            h.cfg.Env,
		"tz":             h.cfg.Timezone,
		"agent_sessions": sessions,
		"ts":             h.now().UTC().Format(time.RFC3339),
	})
}

// ClearSessions drops every stored conversation.
func (h *AdminHandler) ClearSessions(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "sessions not configured")
		return
	}
	n, err := h.cfg.Sessions.Clear(r.Context())
	if err != nil {
		h.logger.Error("session clear failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear sessions")
		return
	}
	h.logger.Info("sessions cleared", "count", n)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "cleared": n})
}

// MarkNoShow handles POST /admin/appointments/{id}/no-show.
func (h *AdminHandler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Appointments == nil {
		writeError(w, http.StatusServiceUnavailable, "appointments not configured")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	res, err := h.cfg.Appointments.MarkNoShow(r.Context(), id)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			writeError(w, http.StatusNotFound, "appointment not found")
			return
		}
		h.logger.Error("mark no-show failed", "appointment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to mark no-show")
		return
	}
	writeJSON(w, statusForResult(res), res)
}

// PurgePatient handles POST /admin/patients/purge.
func (h *AdminHandler) PurgePatient(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Appointments == nil {
		writeError(w, http.StatusServiceUnavailable, "appointments not configured")
		return
	}
	var in contactInput
	if !decodeJSON(w, r, &in) {
		return
	}
	contact := trimmed(in.Contact)
	if contact == "" {
		writeError(w, http.StatusBadRequest, "contact is required")
		return
	}
	ctx := r.Context()
	removed, err := h.cfg.Appointments.PurgePatient(ctx, contact)
	if err != nil {
		h.logger.Error("patient purge failed", "contact", logging.MaskContact(contact), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to purge patient")
		return
	}
	var messages int64
	if h.cfg.Messages != nil {
		if messages, err = h.cfg.Messages.PurgeContact(ctx, contact); err != nil {
			h.logger.Error("message purge failed", "contact", logging.MaskContact(contact), "error", err)
			writeError(w, http.StatusInternalServerError, "failed to purge messages")
			return
		}
	}
	if sessions := h.cfg.Sessions; sessions != nil {
		if err := sessions.Delete(ctx, contact); err != nil {
			h.logger.Warn("session delete failed", "error", err)
		}
	}
	h.logger.Info("patient purged", "contact", logging.MaskContact(contact), "patient_removed", removed, "messages", messages)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "patient_removed": removed, "messages_removed": messages})
}

type hoursInput struct {
	Blocks []string `json:"blocks"`
}

// GetHours returns the operating blocks in effect.
func (h *AdminHandler) GetHours(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Hours == nil {
		writeError(w, http.StatusServiceUnavailable, "hours not configured")
		return
	}
	blocks, override := h.cfg.Hours.Current()
	writeJSON(w, http.StatusOK, map[string]any{"blocks": blocks, "override": override})
}

// PutHours replaces the operating blocks.
func (h *AdminHandler) PutHours(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Hours == nil {
		writeError(w, http.StatusServiceUnavailable, "hours not configured")
		return
	}
	var in hoursInput
	if !decodeJSON(w, r, &in) {
		return
	}
	blocks, err := h.cfg.Hours.Update(r.Context(), in.Blocks)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocks": blocks, "override": true})
}

// DeleteHours drops the override and restores the configured blocks.
func (h *AdminHandler) DeleteHours(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Hours == nil {
		writeError(w, http.StatusServiceUnavailable, "hours not configured")
		return
	}
	blocks, err := h.cfg.Hours.Reset(r.Context())
	if err != nil {
		h.logger.Error("hours reset failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset hours")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocks": blocks, "override": false})
}
