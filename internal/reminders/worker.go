// Package reminders sends the 24 hour WhatsApp reminder for upcoming
// appointments.
package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/appointments"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

// Source lists active appointments of consenting patients in [from, to).
type Source interface {
	ListStartingBetween(ctx context.Context, from, to time.Time) ([]appointments.Upcoming, error)
}

// Sender delivers one reminder.
type Sender interface {
	SendReminder(ctx context.Context, contact string, start time.Time) error
}

// Config tunes the worker.
type Config struct {
	// Interval is both the tick period and the window width.
	Interval time.Duration
	// Lead is how far ahead of the appointment the reminder goes out.
	Lead time.Duration
}

// Worker scans one window per tick and reminds each patient once.
type Worker struct {
	source Source
	sender Sender
	cfg    Config
	now    func() time.Time
	logger *logging.Logger

	mu   sync.Mutex
	sent map[uuid.UUID]time.Time
}

// NewWorker creates a reminder worker. Interval defaults to one hour and Lead
// to 24 hours.
func NewWorker(source Source, sender Sender, cfg Config, logger *logging.Logger) *Worker {
	if source == nil || sender == nil {
		panic("reminders: source and sender are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Lead <= 0 {
		cfg.Lead = 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		source: source,
		sender: sender,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
		sent:   make(map[uuid.UUID]time.Time),
	}
}

// Window returns the start range covered by a tick at now.
func (w *Worker) Window(now time.Time) (time.Time, time.Time) {
	from := now.Add(w.cfg.Lead).Truncate(w.cfg.Interval)
	return from, from.Add(w.cfg.Interval)
}

// ProcessDue reminds every appointment in the current window that has not been
// reminded yet and returns how many reminders went out.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	now := w.now()
	from, to := w.Window(now)
	due, err := w.source.ListStartingBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("reminders: list due: %w", err)
	}
	w.prune(now)
	if len(due) == 0 {
		return 0, nil
	}

	w.logger.Info("reminders: processing window", "from", from, "to", to, "count", len(due))
	processed := 0
	for _, u := range due {
		if w.alreadySent(u.Appointment.ID) {
			continue
		}
		if err := w.sender.SendReminder(ctx, u.Patient.Contact, u.Appointment.StartAt); err != nil {
			w.logger.Error("reminders: send failed",
				"appointment_id", u.Appointment.ID, "contact", logging.MaskContact(u.Patient.Contact), "error", err)
			continue
		}
		w.markSent(u.Appointment.ID, u.Appointment.StartAt)
		processed++
	}
	return processed, nil
}

// Run processes a window immediately and then once per interval until ctx is
// done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		if n, err := w.ProcessDue(ctx); err != nil {
			w.logger.Error("reminders: tick failed", "error", err)
		} else if n > 0 {
			w.logger.Info("reminders: sent", "count", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) alreadySent(id uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.sent[id]
	return ok
}

func (w *Worker) markSent(id uuid.UUID, start time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent[id] = start
}

// prune forgets appointments that already started.
func (w *Worker) prune(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, start := range w.sent {
		if start.Before(now) {
			delete(w.sent, id)
		}
	}
}
