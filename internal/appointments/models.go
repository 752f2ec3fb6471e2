package appointments

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/calendar"
)

var (
	// ErrNotFound is returned when a patient or appointment does not exist.
	ErrNotFound = errors.New("appointments: not found")
	// ErrSlotTaken is returned when another active appointment holds the start.
	ErrSlotTaken = errors.New("appointments: slot already taken")
	// ErrInvalidTransition is returned for status changes the lifecycle forbids.
	ErrInvalidTransition = errors.New("appointments: invalid status transition")
)

// DefaultType is the appointment type used when none is given.
const DefaultType = "consulta"

// Status is the appointment lifecycle state.
type Status string

const (
	StatusReserved  Status = "reserved"
	StatusConfirmed Status = "confirmed"
	StatusCanceled  Status = "canceled"
	StatusNoShow    Status = "no_show"
)

// Active reports whether the status counts toward the one-active rule.
func (s Status) Active() bool {
	return s == StatusReserved || s == StatusConfirmed
}

// CanTransition reports whether from → to is allowed. Re-applying the same
// active status is allowed so moves stay idempotent.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusReserved:
		return to == StatusReserved || to == StatusConfirmed || to == StatusCanceled || to == StatusNoShow
	case StatusConfirmed:
		return to == StatusConfirmed || to == StatusCanceled || to == StatusNoShow
	}
	return false
}

// Channel is how the appointment was requested.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelPhone    Channel = "phone"
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
)

// ParseChannel maps free input to a Channel, defaulting to WhatsApp.
func ParseChannel(s string) Channel {
	switch Channel(s) {
	case ChannelPhone, ChannelSMS, ChannelEmail:
		return Channel(s)
	}
	return ChannelWhatsApp
}

// Patient is a person identified by their channel-qualified contact.
type Patient struct {
	ID              uuid.UUID `json:"id"`
	Contact         string    `json:"contact"`
	Name            *string   `json:"name,omitempty"`
	ConsentMessages bool      `json:"consent_messages"`
	CreatedAt       time.Time `json:"created_at"`
}

// DisplayName returns the patient name or a generic label.
func (p *Patient) DisplayName() string {
	if p == nil || p.Name == nil || *p.Name == "" {
		return "Paciente"
	}
	return *p.Name
}

// Appointment is a booked slot. StartAt is clinic-local wall clock.
type Appointment struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	Type      string    `json:"type"`
	StartAt   time.Time `json:"start_at"`
	Status    Status    `json:"status"`
	Channel   Channel   `json:"channel"`
	EventID   *string   `json:"event_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventRef returns the calendar reference or "".
func (a *Appointment) EventRef() string {
	if a == nil || a.EventID == nil {
		return ""
	}
	return *a.EventID
}

// Upcoming pairs an appointment with its patient for outbound reminders.
type Upcoming struct {
	Appointment Appointment
	Patient     Patient
}

// Reason explains a non-ok lifecycle result.
type Reason string

const (
	ReasonNeedName          Reason = "need_name"
	ReasonBadTime           Reason = "bad_time"
	ReasonNoActive          Reason = "no_active"
	ReasonSlotUnavailable   Reason = "slot_unavailable"
	ReasonInvalidTransition Reason = "invalid_transition"
)

// Result is the value returned by every lifecycle operation.
type Result struct {
	OK           bool              `json:"ok"`
	Reason       Reason            `json:"reason,omitempty"`
	Alternatives []string          `json:"alternatives,omitempty"`
	Appointment  *Appointment      `json:"appointment,omitempty"`
	PatientName  string            `json:"patient_name,omitempty"`
	Date         string            `json:"date_iso,omitempty"`
	Time         string            `json:"time_hhmm,omitempty"`
	Provisional  bool              `json:"provisional,omitempty"`
	Sync         *calendar.Outcome `json:"sync,omitempty"`
	Replayed     bool              `json:"replayed,omitempty"`
}

func fail(reason Reason) Result {
	return Result{OK: false, Reason: reason}
}
