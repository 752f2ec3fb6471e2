package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/slots"
)

// Repository persists patients and appointments. Implementations must treat
// appointment start times as clinic-local wall clock.
type Repository interface {
	slots.BusySource

	GetOrCreatePatient(ctx context.Context, contact string) (*Patient, error)
	GetPatientByContact(ctx context.Context, contact string) (*Patient, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	SetPatientName(ctx context.Context, id uuid.UUID, name string) error
	// SetConsent records whether the contact accepts outbound reminders. It
	// reports false when the contact is unknown.
	SetConsent(ctx context.Context, contact string, consent bool) (bool, error)
	PurgePatient(ctx context.Context, contact string) (bool, error)

	// LatestActive returns the reserved or confirmed appointment with the
	// latest start for the patient, or ErrNotFound.
	LatestActive(ctx context.Context, patientID uuid.UUID) (*Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	InsertAppointment(ctx context.Context, appt *Appointment) error
	UpdateAppointment(ctx context.Context, appt *Appointment) error
	ListStartingBetween(ctx context.Context, from, to time.Time) ([]Upcoming, error)
}

// toNaive keeps the wall clock of t in loc and drops the offset, which is how
// start_at is stored.
func toNaive(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// fromNaive reinterprets a stored wall clock as clinic-local time.
func fromNaive(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}
