package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/calendar"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/slots"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/timeexpr"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.appointments")

// ErrBadDate is returned by ListSlots for malformed dates.
var ErrBadDate = errors.New("appointments: invalid date")

// Operation is the closed set of lifecycle operations.
type Operation string

const (
	OpBook       Operation = "book"
	OpReserve    Operation = "reserve"
	OpReschedule Operation = "reschedule"
	OpCancel     Operation = "cancel"
	OpConfirm    Operation = "confirm"
	OpNoShow     Operation = "no_show"
	OpListSlots  Operation = "list_slots"
)

// ConfirmationSender asks the patient to confirm a reserved appointment.
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, contact string, start time.Time) error
}

// StaffNotifier tells clinic staff about schedule changes.
type StaffNotifier interface {
	NotifyStaff(ctx context.Context, subject, body string) error
}

// BookRequest books (or moves) the contact's appointment.
type BookRequest struct {
	Contact   string  `json:"contact"`
	Date      string  `json:"date_iso"`
	Time      string  `json:"time_hhmm"`
	Name      string  `json:"patient_name"`
	Channel   Channel `json:"channel"`
	Type      string  `json:"type"`
	RequestID string  `json:"client_request_id"`
}

// RescheduleRequest moves the contact's active appointment.
type RescheduleRequest struct {
	Contact   string `json:"contact"`
	Date      string `json:"date_iso"`
	Time      string `json:"time_hhmm"`
	RequestID string `json:"client_request_id"`
}

// CancelRequest cancels the contact's active appointment.
type CancelRequest struct {
	Contact   string `json:"contact"`
	RequestID string `json:"client_request_id"`
}

// SlotList is the open-slot listing for one date.
type SlotList struct {
	Date  string   `json:"date_iso"`
	Slots []string `json:"slots"`
}

// ManagerConfig holds clinic details used for calendar events.
type ManagerConfig struct {
	Location      *time.Location
	EventDuration time.Duration
	ClinicName    string
	ClinicAddress string
}

// Manager owns the appointment lifecycle: validation, local commit, then a
// best-effort calendar mirror.
type Manager struct {
	repo          Repository
	slots         *slots.Reconciler
	sync          *calendar.Synchronizer
	cfg           ManagerConfig
	idem          IdempotencyStore
	locker        Locker
	confirmations ConfirmationSender
	staff         StaffNotifier
	metrics       *metrics.SchedulingMetrics
	logger        *logging.Logger
	now           func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

func WithIdempotencyStore(s IdempotencyStore) Option { return func(m *Manager) { m.idem = s } }
func WithLocker(l Locker) Option                     { return func(m *Manager) { m.locker = l } }
func WithConfirmationSender(s ConfirmationSender) Option {
	return func(m *Manager) { m.confirmations = s }
}
func WithStaffNotifier(n StaffNotifier) Option         { return func(m *Manager) { m.staff = n } }
func WithMetrics(sm *metrics.SchedulingMetrics) Option { return func(m *Manager) { m.metrics = sm } }
func WithLogger(l *logging.Logger) Option              { return func(m *Manager) { m.logger = l } }
func WithClock(now func() time.Time) Option            { return func(m *Manager) { m.now = now } }

// NewManager wires the lifecycle manager. Without options it uses an
// in-process locker and idempotency store.
func NewManager(repo Repository, reconciler *slots.Reconciler, sync *calendar.Synchronizer, cfg ManagerConfig, opts ...Option) *Manager {
	if repo == nil {
		panic("appointments: repository cannot be nil")
	}
	if reconciler == nil {
		panic("appointments: reconciler cannot be nil")
	}
	if cfg.Location == nil {
		cfg.Location = reconciler.Calculator().Location()
	}
	if cfg.EventDuration <= 0 {
		cfg.EventDuration = 30 * time.Minute
	}
	m := &Manager{
		repo:   repo,
		slots:  reconciler,
		sync:   sync,
		cfg:    cfg,
		idem:   NewMemoryIdempotencyStore(0),
		locker: NewLocalLocker(),
		logger: logging.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sync == nil {
		m.sync = calendar.NewSynchronizer(nil, 0, nil, m.logger)
	}
	return m
}

// Today returns the clinic-local date.
func (m *Manager) Today() time.Time {
	return timeexpr.StartOfDay(m.now().In(m.cfg.Location))
}

// Location returns the clinic timezone.
func (m *Manager) Location() *time.Location { return m.cfg.Location }

// ListSlots returns the open slots for dateISO. Past dates roll forward.
func (m *Manager) ListSlots(ctx context.Context, dateISO string) (SlotList, error) {
	date, err := m.parseDate(dateISO)
	if err != nil {
		m.metrics.ObserveOperation(string(OpListSlots), "bad_date")
		return SlotList{}, err
	}
	open, err := m.slots.ListOpen(ctx, date)
	if err != nil {
		m.metrics.ObserveOperation(string(OpListSlots), "error")
		return SlotList{}, fmt.Errorf("appointments: list slots: %w", err)
	}
	m.metrics.ObserveOperation(string(OpListSlots), "ok")
	return SlotList{Date: date.Format(timeexpr.DateLayout), Slots: slots.FormatAll(open)}, nil
}

// Book confirms an appointment for the contact, moving the active one if it
// exists. The patient name is required.
func (m *Manager) Book(ctx context.Context, req BookRequest) (Result, error) {
	name := strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(name) < 3 {
		m.metrics.ObserveOperation(string(OpBook), string(ReasonNeedName))
		return fail(ReasonNeedName), nil
	}
	return m.run(ctx, OpBook, req.Contact, req.RequestID, func(ctx context.Context) (Result, error) {
		return m.place(ctx, req, StatusConfirmed, titleCase(name))
	})
}

// Reserve places a reserved appointment from the direct API and asks the
// patient to confirm it.
func (m *Manager) Reserve(ctx context.Context, req BookRequest) (Result, error) {
	res, err := m.run(ctx, OpReserve, req.Contact, req.RequestID, func(ctx context.Context) (Result, error) {
		name := strings.TrimSpace(req.Name)
		if name != "" {
			name = titleCase(name)
		}
		return m.place(ctx, req, StatusReserved, name)
	})
	if err == nil && res.OK && !res.Replayed && m.confirmations != nil && res.Appointment != nil {
		if sendErr := m.confirmations.SendConfirmation(ctx, req.Contact, res.Appointment.StartAt); sendErr != nil {
			m.logger.Warn("reservation confirmation not sent", "contact", logging.MaskContact(req.Contact), "error", sendErr)
		}
	}
	return res, err
}

// Reschedule moves the contact's active appointment.
func (m *Manager) Reschedule(ctx context.Context, req RescheduleRequest) (Result, error) {
	return m.run(ctx, OpReschedule, req.Contact, req.RequestID, func(ctx context.Context) (Result, error) {
		patient, active, err := m.activeFor(ctx, req.Contact)
		if err != nil {
			return Result{}, err
		}
		if active == nil {
			return fail(ReasonNoActive), nil
		}
		date, hhmm, ok := m.parseSlot(req.Date, req.Time)
		if !ok {
			return fail(ReasonBadTime), nil
		}
		decision, res, err := m.validate(ctx, date, hhmm, active.ID.String())
		if err != nil || !decision.Accepted {
			return res, err
		}

		active.StartAt = decision.Start
		if err := m.repo.UpdateAppointment(ctx, active); err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return m.unavailable(ctx, date)
			}
			return Result{}, err
		}

		outcome := m.mirror(ctx, patient, active)
		m.notifyStaff(ctx, "Cita reagendada", patient, active)
		return m.success(patient, active, decision, outcome), nil
	})
}

// Cancel cancels the contact's active appointment and removes its event.
func (m *Manager) Cancel(ctx context.Context, req CancelRequest) (Result, error) {
	return m.run(ctx, OpCancel, req.Contact, req.RequestID, func(ctx context.Context) (Result, error) {
		patient, active, err := m.activeFor(ctx, req.Contact)
		if err != nil {
			return Result{}, err
		}
		if active == nil {
			return fail(ReasonNoActive), nil
		}
		eventID := active.EventRef()
		active.Status = StatusCanceled
		active.EventID = nil
		if err := m.repo.UpdateAppointment(ctx, active); err != nil {
			return Result{}, err
		}

		outcome := m.sync.Remove(ctx, eventID)
		m.notifyStaff(ctx, "Cita cancelada", patient, active)
		return Result{OK: true, Appointment: active, PatientName: nameOf(patient), Sync: &outcome}, nil
	})
}

// Confirm promotes the contact's reserved appointment to confirmed.
func (m *Manager) Confirm(ctx context.Context, contact, requestID string) (Result, error) {
	return m.run(ctx, OpConfirm, contact, requestID, func(ctx context.Context) (Result, error) {
		patient, active, err := m.activeFor(ctx, contact)
		if err != nil {
			return Result{}, err
		}
		if active == nil {
			return fail(ReasonNoActive), nil
		}
		if active.Status == StatusReserved {
			active.Status = StatusConfirmed
			if err := m.repo.UpdateAppointment(ctx, active); err != nil {
				return Result{}, err
			}
		}
		return Result{
			OK:          true,
			Appointment: active,
			PatientName: nameOf(patient),
			Date:        active.StartAt.Format(timeexpr.DateLayout),
			Time:        active.StartAt.Format(slots.TimeLayout),
		}, nil
	})
}

// MarkNoShow records that the patient missed the appointment.
func (m *Manager) MarkNoShow(ctx context.Context, appointmentID uuid.UUID) (Result, error) {
	appt, err := m.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return Result{}, err
	}
	patient, err := m.repo.GetPatient(ctx, appt.PatientID)
	if err != nil {
		return Result{}, err
	}
	return m.run(ctx, OpNoShow, patient.Contact, "", func(ctx context.Context) (Result, error) {
		appt, err := m.repo.GetAppointment(ctx, appointmentID)
		if err != nil {
			return Result{}, err
		}
		if !CanTransition(appt.Status, StatusNoShow) {
			return fail(ReasonInvalidTransition), nil
		}
		appt.Status = StatusNoShow
		if err := m.repo.UpdateAppointment(ctx, appt); err != nil {
			return Result{}, err
		}
		return Result{OK: true, Appointment: appt, PatientName: nameOf(patient)}, nil
	})
}

// PurgePatient removes a patient and their appointments.
func (m *Manager) PurgePatient(ctx context.Context, contact string) (bool, error) {
	unlock, err := m.locker.Lock(ctx, contact)
	if err != nil {
		return false, err
	}
	defer unlock()
	return m.repo.PurgePatient(ctx, contact)
}

// run serializes fn per contact and replays stored results for repeated
// request tokens.
func (m *Manager) run(ctx context.Context, op Operation, contact, requestID string, fn func(context.Context) (Result, error)) (Result, error) {
	ctx, span := tracer.Start(ctx, "appointments."+string(op))
	defer span.End()
	span.SetAttributes(attribute.String("clinic.operation", string(op)))

	unlock, err := m.locker.Lock(ctx, contact)
	if err != nil {
		span.RecordError(err)
		m.metrics.ObserveOperation(string(op), "error")
		return Result{}, err
	}
	defer unlock()

	key := ""
	if requestID != "" && m.idem != nil {
		key = fmt.Sprintf("%s:%s:%s", op, contact, requestID)
		prev, found, err := m.idem.Get(ctx, key)
		if err != nil {
			m.logger.Warn("idempotency lookup failed", "operation", op, "error", err)
		} else if found {
			prev.Replayed = true
			m.metrics.ObserveOperation(string(op), "replayed")
			return *prev, nil
		}
	}

	res, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		m.metrics.ObserveOperation(string(op), "error")
		m.logger.Error("appointment operation failed", "operation", op, "contact", logging.MaskContact(contact), "error", err)
		return Result{}, err
	}
	if res.OK && key != "" {
		if err := m.idem.Put(ctx, key, res); err != nil {
			m.logger.Warn("idempotency store failed", "operation", op, "error", err)
		}
	}

	outcome := "ok"
	if !res.OK {
		outcome = string(res.Reason)
	}
	span.SetAttributes(attribute.String("clinic.outcome", outcome))
	m.metrics.ObserveOperation(string(op), outcome)
	m.logger.Info("appointment operation", "operation", op, "contact", logging.MaskContact(contact), "outcome", outcome)
	return res, nil
}

// place validates and commits a create-or-move for req.
func (m *Manager) place(ctx context.Context, req BookRequest, status Status, name string) (Result, error) {
	date, hhmm, ok := m.parseSlot(req.Date, req.Time)
	if !ok {
		return fail(ReasonBadTime), nil
	}
	patient, err := m.repo.GetOrCreatePatient(ctx, req.Contact)
	if err != nil {
		return Result{}, err
	}
	active, err := m.latestActive(ctx, patient.ID)
	if err != nil {
		return Result{}, err
	}
	exclude := ""
	if active != nil {
		exclude = active.ID.String()
	}

	decision, res, err := m.validate(ctx, date, hhmm, exclude)
	if err != nil || !decision.Accepted {
		return res, err
	}

	if name != "" {
		if err := m.repo.SetPatientName(ctx, patient.ID, name); err != nil {
			return Result{}, err
		}
		patient.Name = &name
	}

	appt, err := m.createOrMove(ctx, patient, active, decision.Start, status, ParseChannel(string(req.Channel)), req.Type)
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return m.unavailable(ctx, date)
		}
		return Result{}, err
	}

	outcome := m.mirror(ctx, patient, appt)
	m.notifyStaff(ctx, "Nueva cita", patient, appt)
	return m.success(patient, appt, decision, outcome), nil
}

// createOrMove overwrites the latest active appointment when there is one and
// inserts a new one otherwise.
func (m *Manager) createOrMove(ctx context.Context, patient *Patient, active *Appointment, start time.Time, status Status, channel Channel, typ string) (*Appointment, error) {
	if active != nil {
		active.StartAt = start
		if CanTransition(active.Status, status) {
			active.Status = status
		}
		if err := m.repo.UpdateAppointment(ctx, active); err != nil {
			return nil, err
		}
		return active, nil
	}
	if strings.TrimSpace(typ) == "" {
		typ = DefaultType
	}
	appt := &Appointment{
		PatientID: patient.ID,
		Type:      typ,
		StartAt:   start,
		Status:    status,
		Channel:   channel,
	}
	if err := m.repo.InsertAppointment(ctx, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// mirror pushes appt to the calendar and persists a changed reference. It
// never fails the operation.
func (m *Manager) mirror(ctx context.Context, patient *Patient, appt *Appointment) calendar.Outcome {
	contactLabel := patient.Contact
	if patient.Name != nil && *patient.Name != "" {
		contactLabel = *patient.Name
	}
	outcome := m.sync.Mirror(ctx, appt.EventRef(), calendar.Event{
		Summary:     fmt.Sprintf("Consulta - %s", patient.DisplayName()),
		Location:    strings.Trim(strings.Join([]string{m.cfg.ClinicName, m.cfg.ClinicAddress}, ", "), ", "),
		Description: fmt.Sprintf("Canal: %s\nPaciente: %s", appt.Channel, contactLabel),
		Start:       appt.StartAt,
		Duration:    m.cfg.EventDuration,
	})
	if outcome.Action == calendar.ActionSkipped || outcome.EventID == appt.EventRef() {
		return outcome
	}

	if outcome.EventID == "" {
		appt.EventID = nil
	} else {
		id := outcome.EventID
		appt.EventID = &id
	}
	if err := m.repo.UpdateAppointment(context.WithoutCancel(ctx), appt); err != nil {
		m.logger.Error("failed to persist calendar reference", "appointment_id", appt.ID, "event_id", outcome.EventID, "error", err)
	}
	return outcome
}

func (m *Manager) validate(ctx context.Context, date time.Time, hhmm, exclude string) (slots.Decision, Result, error) {
	decision, err := m.slots.Validate(ctx, date, hhmm, exclude)
	if errors.Is(err, slots.ErrInvalidTime) {
		return decision, fail(ReasonBadTime), nil
	}
	if err != nil {
		return decision, Result{}, err
	}
	if !decision.Accepted {
		return decision, Result{OK: false, Reason: ReasonSlotUnavailable, Alternatives: decision.Alternatives}, nil
	}
	return decision, Result{}, nil
}

// unavailable reports a slot lost to a concurrent booking after validation.
func (m *Manager) unavailable(ctx context.Context, date time.Time) (Result, error) {
	open, err := m.slots.ListOpen(ctx, date)
	if err != nil {
		return Result{}, err
	}
	return Result{OK: false, Reason: ReasonSlotUnavailable, Alternatives: slots.FormatAll(open)}, nil
}

func (m *Manager) success(patient *Patient, appt *Appointment, decision slots.Decision, outcome calendar.Outcome) Result {
	return Result{
		OK:          true,
		Appointment: appt,
		PatientName: nameOf(patient),
		Date:        appt.StartAt.Format(timeexpr.DateLayout),
		Time:        appt.StartAt.Format(slots.TimeLayout),
		Provisional: decision.Provisional,
		Sync:        &outcome,
	}
}

func (m *Manager) activeFor(ctx context.Context, contact string) (*Patient, *Appointment, error) {
	patient, err := m.repo.GetPatientByContact(ctx, contact)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	active, err := m.latestActive(ctx, patient.ID)
	return patient, active, err
}

func (m *Manager) latestActive(ctx context.Context, patientID uuid.UUID) (*Appointment, error) {
	active, err := m.repo.LatestActive(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return active, err
}

// parseSlot parses the requested date and time, rolling a past date forward.
func (m *Manager) parseSlot(dateISO, hhmm string) (time.Time, string, bool) {
	date, err := m.parseDate(dateISO)
	if err != nil {
		return time.Time{}, "", false
	}
	if _, _, err := slots.SplitClock(hhmm); err != nil {
		return time.Time{}, "", false
	}
	return date, strings.TrimSpace(hhmm), true
}

func (m *Manager) parseDate(dateISO string) (time.Time, error) {
	date, err := timeexpr.ParseISODate(dateISO, m.cfg.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrBadDate, err)
	}
	today := m.Today()
	if date.Before(today) {
		rolled := timeexpr.RollForward(date, today)
		m.logger.Info("past date rolled forward", "requested", dateISO, "resolved", rolled.Format(timeexpr.DateLayout))
		date = rolled
	}
	return date, nil
}

func (m *Manager) notifyStaff(ctx context.Context, subject string, patient *Patient, appt *Appointment) {
	if m.staff == nil {
		return
	}
	body := fmt.Sprintf("Paciente: %s\nContacto: %s\nFecha: %s\nEstado: %s",
		patient.DisplayName(), patient.Contact, appt.StartAt.Format("2006-01-02 15:04"), appt.Status)
	if err := m.staff.NotifyStaff(ctx, subject, body); err != nil {
		m.logger.Warn("staff notification failed", "subject", subject, "error", err)
	}
}

func nameOf(p *Patient) string {
	if p == nil || p.Name == nil {
		return ""
	}
	return *p.Name
}

func titleCase(name string) string {
	return cases.Title(language.Spanish).String(strings.Join(strings.Fields(name), " "))
}
