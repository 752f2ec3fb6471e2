package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/appointments"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/slots"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/timeexpr"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

// Scheduler is the lifecycle surface used by the REST API.
type Scheduler interface {
	Location() *time.Location
	ListSlots(ctx context.Context, dateISO string) (appointments.SlotList, error)
	Reserve(ctx context.Context, req appointments.BookRequest) (appointments.Result, error)
	Reschedule(ctx context.Context, req appointments.RescheduleRequest) (appointments.Result, error)
	Cancel(ctx context.Context, req appointments.CancelRequest) (appointments.Result, error)
	Confirm(ctx context.Context, contact, requestID string) (appointments.Result, error)
}

// ConsentStore records a patient's messaging consent.
type ConsentStore interface {
	SetConsent(ctx context.Context, contact string, consent bool) (bool, error)
}

// SchedulingHandler serves the direct booking API.
type SchedulingHandler struct {
	scheduler Scheduler
	consent   ConsentStore
	logger    *logging.Logger
}

// NewSchedulingHandler builds the handler. consent may be nil.
func NewSchedulingHandler(scheduler Scheduler, consent ConsentStore, logger *logging.Logger) *SchedulingHandler {
	if scheduler == nil {
		panic("handlers: scheduler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SchedulingHandler{scheduler: scheduler, consent: consent, logger: logger}
}

type patientInput struct {
	Name            string `json:"name"`
	Contact         string `json:"contact"`
	ConsentMessages *bool  `json:"consent_messages"`
}

type bookInput struct {
	Patient   patientInput `json:"patient"`
	Type      string       `json:"type"`
	Channel   string       `json:"channel"`
	Date      string       `json:"date_iso"`
	Time      string       `json:"time_hhmm"`
	StartAt   string       `json:"start_at"`
	RequestID string       `json:"client_request_id"`
}

type moveInput struct {
	Contact   string `json:"contact"`
	Date      string `json:"date_iso"`
	Time      string `json:"time_hhmm"`
	StartAt   string `json:"start_at"`
	RequestID string `json:"client_request_id"`
}

type contactInput struct {
	Contact   string `json:"contact"`
	RequestID string `json:"client_request_id"`
}

// ListSlots handles GET /slots?date=YYYY-MM-DD.
func (h *SchedulingHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	date := trimmed(r.URL.Query().Get("date"))
	if date == "" {
		date = time.Now().In(h.scheduler.Location()).Format(timeexpr.DateLayout)
	}
	list, err := h.scheduler.ListSlots(r.Context(), date)
	if err != nil {
		if errors.Is(err, appointments.ErrBadDate) {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		h.logger.Error("list slots failed", "date", date, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list slots")
		return
	}
	if list.Slots == nil {
		list.Slots = []string{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Book handles POST /book. The appointment is reserved until the patient
// confirms it.
func (h *SchedulingHandler) Book(w http.ResponseWriter, r *http.Request) {
	var in bookInput
	if !decodeJSON(w, r, &in) {
		return
	}
	contact := trimmed(in.Patient.Contact)
	if contact == "" {
		writeError(w, http.StatusBadRequest, "patient.contact is required")
		return
	}
	date, hhmm, ok := h.slotFields(in.Date, in.Time, in.StartAt)
	if !ok {
		writeError(w, http.StatusBadRequest, "start_at or date_iso and time_hhmm are required")
		return
	}

	res, err := h.scheduler.Reserve(r.Context(), appointments.BookRequest{
		Contact:   contact,
		Date:      date,
		Time:      hhmm,
		Name:      in.Patient.Name,
		Channel:   appointments.ParseChannel(in.Channel),
		Type:      trimmed(in.Type),
		RequestID: trimmed(in.RequestID),
	})
	if err != nil {
		h.fail(w, "book", contact, err)
		return
	}
	if res.OK && in.Patient.ConsentMessages != nil && !*in.Patient.ConsentMessages && h.consent != nil {
		if _, err := h.consent.SetConsent(r.Context(), contact, false); err != nil {
			h.logger.Warn("consent update failed", "contact", logging.MaskContact(contact), "error", err)
		}
	}
	writeJSON(w, statusForResult(res), res)
}

// Reschedule handles POST /reschedule.
func (h *SchedulingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var in moveInput
	if !decodeJSON(w, r, &in) {
		return
	}
	contact := trimmed(in.Contact)
	if contact == "" {
		writeError(w, http.StatusBadRequest, "contact is required")
		return
	}
	date, hhmm, ok := h.slotFields(in.Date, in.Time, in.StartAt)
	if !ok {
		writeError(w, http.StatusBadRequest, "start_at or date_iso and time_hhmm are required")
		return
	}
	res, err := h.scheduler.Reschedule(r.Context(), appointments.RescheduleRequest{
		Contact:   contact,
		Date:      date,
		Time:      hhmm,
		RequestID: trimmed(in.RequestID),
	})
	if err != nil {
		h.fail(w, "reschedule", contact, err)
		return
	}
	writeJSON(w, statusForResult(res), res)
}

// Cancel handles POST /cancel.
func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var in contactInput
	if !decodeJSON(w, r, &in) {
		return
	}
	contact := trimmed(in.Contact)
	if contact == "" {
		writeError(w, http.StatusBadRequest, "contact is required")
		return
	}
	res, err := h.scheduler.Cancel(r.Context(), appointments.CancelRequest{Contact: contact, RequestID: trimmed(in.RequestID)})
	if err != nil {
		h.fail(w, "cancel", contact, err)
		return
	}
	writeJSON(w, statusForResult(res), res)
}

// Confirm handles POST /confirm.
func (h *SchedulingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var in contactInput
	if !decodeJSON(w, r, &in) {
		return
	}
	contact := trimmed(in.Contact)
	if contact == "" {
		writeError(w, http.StatusBadRequest, "contact is required")
		return
	}
	res, err := h.scheduler.Confirm(r.Context(), contact, trimmed(in.RequestID))
	if err != nil {
		h.fail(w, "confirm", contact, err)
		return
	}
	writeJSON(w, statusForResult(res), res)
}

func (h *SchedulingHandler) fail(w http.ResponseWriter, op, contact string, err error) {
	h.logger.Error("scheduling request failed", "operation", op, "contact", logging.MaskContact(contact), "error", err)
	writeError(w, http.StatusInternalServerError, "scheduling failed")
}

// slotFields returns the date and time to book. start_at wins when present;
// an offset is converted to clinic-local wall clock, a naive value is taken
// as local already. Slots start on whole minutes, so seconds are refused.
func (h *SchedulingHandler) slotFields(date, hhmm, startAt string) (string, string, bool) {
	if startAt = trimmed(startAt); startAt != "" {
		loc := h.scheduler.Location()
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
			t, err := time.ParseInLocation(layout, startAt, loc)
			if err == nil {
				if t.Second() != 0 || t.Nanosecond() != 0 {
					return "", "", false
				}
				t = t.In(loc)
				return t.Format(timeexpr.DateLayout), t.Format(slots.TimeLayout), true
			}
		}
		return "", "", false
	}
	date, hhmm = trimmed(date), trimmed(hhmm)
	return date, hhmm, date != "" && hhmm != ""
}
