package calendar

import (
	"context"
	"errors"
	"time"
)

// ErrEventGone reports a remote event that no longer exists.
var ErrEventGone = errors.New("calendar: event not found")

// Event is the remote representation of an appointment.
type Event struct {
	Summary     string
	Location    string
	Description string
	Start       time.Time
	Duration    time.Duration
}

// Provider is an external calendar.
type Provider interface {
	Create(ctx context.Context, ev Event) (string, error)
	Update(ctx context.Context, id string, start time.Time, duration time.Duration) error
	Delete(ctx context.Context, id string) error
}
