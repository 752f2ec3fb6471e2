package slots

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.slots")

// BusySource reports start-times already taken by non-canceled appointments in
// [from, to). excludeID, when set, is left out of the result.
type BusySource interface {
	BusyStarts(ctx context.Context, from, to time.Time, excludeID string) ([]time.Time, error)
}

// Decision is the outcome of validating a requested slot.
type Decision struct {
	Accepted bool
	// Provisional marks an acceptance granted by the business-hours fallback
	// rather than by the reconciled open list.
	Provisional  bool
	Start        time.Time
	Alternatives []string
}

// Reconciler subtracts booked appointments from the candidate grid.
type Reconciler struct {
	calc    *Calculator
	busy    BusySource
	metrics *metrics.SchedulingMetrics
	logger  *logging.Logger
}

// NewReconciler wires a calculator to its busy source.
func NewReconciler(calc *Calculator, busy BusySource, m *metrics.SchedulingMetrics, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	if calc == nil {
		panic("slots: calculator cannot be nil")
	}
	if busy == nil {
		panic("slots: busy source cannot be nil")
	}
	return &Reconciler{calc: calc, busy: busy, metrics: m, logger: logger}
}

// Calculator exposes the underlying grid.
func (r *Reconciler) Calculator() *Calculator { return r.calc }

// ListOpen returns the open start-times for date in chronological order.
func (r *Reconciler) ListOpen(ctx context.Context, date time.Time) ([]time.Time, error) {
	ctx, span := tracer.Start(ctx, "slots.list_open")
	defer span.End()

	open, _, err := r.open(ctx, date, "")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("clinic.date", date.In(r.calc.loc).Format("2006-01-02")),
		attribute.Int("clinic.slots.open", len(open)),
	)
	r.metrics.ObserveOpenSlots(len(open))
	return open, nil
}

// Validate decides whether hhmm on date can be booked. excludeID lets a
// patient's own appointment not block itself while it is being moved.
func (r *Reconciler) Validate(ctx context.Context, date time.Time, hhmm, excludeID string) (Decision, error) {
	ctx, span := tracer.Start(ctx, "slots.validate")
	defer span.End()

	h, m, err := SplitClock(hhmm)
	if err != nil || h > 23 {
		if err == nil {
			err = fmt.Errorf("%w: %q", ErrInvalidTime, hhmm)
		}
		return Decision{}, err
	}
	y, mo, d := date.In(r.calc.loc).Date()
	start := time.Date(y, mo, d, h, m, 0, 0, r.calc.loc)

	open, busy, err := r.open(ctx, date, excludeID)
	if err != nil {
		span.RecordError(err)
		return Decision{}, err
	}

	decision := Decision{Start: start}
	for _, slot := range open {
		if slot.Equal(start) {
			decision.Accepted = true
			r.record(span, "accepted", hhmm)
			return decision, nil
		}
	}

	if r.withinFallback(h, m) && !busy[start.Format(TimeLayout)] {
		decision.Accepted = true
		decision.Provisional = true
		r.logger.Info("slot accepted by business-hours fallback", "date", start.Format("2006-01-02"), "time", hhmm)
		r.record(span, "provisional", hhmm)
		return decision, nil
	}

	decision.Alternatives = FormatAll(open)
	r.record(span, "rejected", hhmm)
	return decision, nil
}

// withinFallback admits on-grid starts from the first opening up to and
// including the last closing time.
func (r *Reconciler) withinFallback(h, m int) bool {
	openOff, closeOff := r.calc.Bounds()
	at := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	if at < openOff || at > closeOff {
		return false
	}
	step := int(r.calc.step / time.Minute)
	if step <= 0 || step > 60 {
		return m == 0
	}
	return m%step == 0
}

func (r *Reconciler) open(ctx context.Context, date time.Time, excludeID string) ([]time.Time, map[string]bool, error) {
	from, to := r.calc.DayRange(date)
	starts, err := r.busy.BusyStarts(ctx, from, to, excludeID)
	if err != nil {
		return nil, nil, fmt.Errorf("slots: load busy starts: %w", err)
	}
	busy := make(map[string]bool, len(starts))
	for _, s := range starts {
		busy[s.In(r.calc.loc).Format(TimeLayout)] = true
	}
	grid := r.calc.Grid(date)
	open := make([]time.Time, 0, len(grid))
	for _, slot := range grid {
		if !busy[slot.Format(TimeLayout)] {
			open = append(open, slot)
		}
	}
	return open, busy, nil
}

func (r *Reconciler) record(span trace.Span, decision, hhmm string) {
	span.SetAttributes(
		attribute.String("clinic.slots.decision", decision),
		attribute.String("clinic.slots.requested", hhmm),
	)
	r.metrics.ObserveValidation(decision)
}
