package calendar

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.calendar")

// Action names what the synchronizer did remotely.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionRecreated Action = "recreated"
	ActionDeleted   Action = "deleted"
	ActionSkipped   Action = "skipped"
	ActionFailed    Action = "failed"
)

// Outcome is the result of a mirror attempt. It is metadata for the caller,
// never a reason to undo local state.
type Outcome struct {
	Action  Action `json:"action"`
	EventID string `json:"event_id,omitempty"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

// Failed reports whether the remote calendar may be out of date.
func (o Outcome) Failed() bool {
	return o.Action == ActionFailed
}

// Synchronizer mirrors local appointments into a Provider.
type Synchronizer struct {
	provider Provider
	timeout  time.Duration
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
}

// NewSynchronizer wraps provider. A nil provider disables mirroring.
func NewSynchronizer(provider Provider, timeout time.Duration, m *metrics.SchedulingMetrics, logger *logging.Logger) *Synchronizer {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Synchronizer{provider: provider, timeout: timeout, metrics: m, logger: logger}
}

// Enabled reports whether a provider is configured.
func (s *Synchronizer) Enabled() bool {
	return s != nil && s.provider != nil
}

// Mirror pushes ev to the calendar. With an existing reference it updates in
// place, falling back to delete and recreate. The returned EventID is the
// reference the caller should persist (empty means clear it).
func (s *Synchronizer) Mirror(ctx context.Context, existingID string, ev Event) Outcome {
	if !s.Enabled() {
		return Outcome{Action: ActionSkipped, EventID: existingID}
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "calendar.mirror")
	defer span.End()

	if existingID != "" {
		err := s.provider.Update(ctx, existingID, ev.Start, ev.Duration)
		s.metrics.ObserveCalendarSync("update", err)
		if err == nil {
			span.SetAttributes(attribute.String("clinic.calendar.action", string(ActionUpdated)))
			return Outcome{Action: ActionUpdated, EventID: existingID}
		}
		s.logger.Warn("calendar update failed, recreating event", "event_id", existingID, "error", err)
		if delErr := s.provider.Delete(ctx, existingID); delErr != nil {
			s.logger.Warn("calendar delete before recreate failed", "event_id", existingID, "error", delErr)
		}
	}

	id, err := s.provider.Create(ctx, ev)
	s.metrics.ObserveCalendarSync("create", err)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("calendar create failed; local appointment kept", "error", err)
		return Outcome{Action: ActionFailed, Err: err, Error: err.Error()}
	}
	action := ActionCreated
	if existingID != "" {
		action = ActionRecreated
	}
	span.SetAttributes(attribute.String("clinic.calendar.action", string(action)))
	return Outcome{Action: action, EventID: id}
}

// Remove deletes the referenced event, best effort.
func (s *Synchronizer) Remove(ctx context.Context, id string) Outcome {
	if !s.Enabled() || id == "" {
		return Outcome{Action: ActionSkipped}
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "calendar.remove")
	defer span.End()

	err := s.provider.Delete(ctx, id)
	s.metrics.ObserveCalendarSync("delete", err)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("calendar delete failed", "event_id", id, "error", err)
		return Outcome{Action: ActionFailed, Err: err, Error: err.Error()}
	}
	return Outcome{Action: ActionDeleted, EventID: id}
}
