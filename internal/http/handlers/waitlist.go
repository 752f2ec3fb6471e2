package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/appointments"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/notify"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/waitlist"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

// PatientDirectory resolves patients by contact.
type PatientDirectory interface {
	GetOrCreatePatient(ctx context.Context, contact string) (*appointments.Patient, error)
	SetPatientName(ctx context.Context, id uuid.UUID, name string) error
}

// WaitlistStore persists waitlist entries.
type WaitlistStore interface {
	Add(ctx context.Context, e *waitlist.Entry) error
}

// WaitlistHandler serves POST /waitlist/add.
type WaitlistHandler struct {
	patients PatientDirectory
	store    WaitlistStore
	log      *notify.MessageLog
	logger   *logging.Logger
}

// NewWaitlistHandler builds the handler. log may be nil.
func NewWaitlistHandler(patients PatientDirectory, store WaitlistStore, log *notify.MessageLog, logger *logging.Logger) *WaitlistHandler {
	if patients == nil || store == nil {
		panic("handlers: waitlist dependencies cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WaitlistHandler{patients: patients, store: store, log: log, logger: logger}
}

type waitlistInput struct {
	Patient     patientInput `json:"patient"`
	Preferences string       `json:"preferences"`
	Weekdays    []string     `json:"weekdays"`
}

// Add records the patient on the waitlist and logs a queued outbound notice.
func (h *WaitlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var in waitlistInput
	if !decodeJSON(w, r, &in) {
		return
	}
	contact := trimmed(in.Patient.Contact)
	if contact == "" {
		writeError(w, http.StatusBadRequest, "patient.contact is required")
		return
	}
	days, err := waitlist.NormalizeWeekdays(in.Weekdays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	patient, err := h.patients.GetOrCreatePatient(ctx, contact)
	if err != nil {
		h.logger.Error("waitlist patient lookup failed", "contact", logging.MaskContact(contact), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add to waitlist")
		return
	}
	if name := trimmed(in.Patient.Name); name != "" && patient.Name == nil {
		if err := h.patients.SetPatientName(ctx, patient.ID, name); err != nil {
			h.logger.Warn("waitlist patient name not saved", "patient_id", patient.ID, "error", err)
		}
	}

	entry := &waitlist.Entry{PatientID: patient.ID, Preferences: trimmed(in.Preferences), Weekdays: days}
	if err := h.store.Add(ctx, entry); err != nil {
		if errors.Is(err, waitlist.ErrInvalidWeekday) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("waitlist add failed", "patient_id", patient.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add to waitlist")
		return
	}

	payload, _ := json.Marshal(map[string]any{"preferences": entry.Preferences, "weekdays": entry.Weekdays})
	if err := h.log.Record(ctx, notify.LogEntry{
		Direction: notify.DirectionOut,
		Channel:   string(appointments.ChannelWhatsApp),
		Contact:   contact,
		Template:  "waitlist_add",
		Payload:   string(payload),
		Status:    "queued",
	}); err != nil {
		h.logger.Warn("waitlist message log failed", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "waitlist_id": entry.ID})
}
