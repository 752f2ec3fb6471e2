package appointments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/calendar"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/slots"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/timeexpr"
)

type fakeCalendar struct {
	mu        sync.Mutex
	nextID    int
	createErr error
	updateErr error
	creates   int
	updates   []string
	deletes   []string
}

func (f *fakeCalendar) Create(_ context.Context, ev calendar.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	return fmt.Sprintf("evt-%d", f.nextID), nil
}

func (f *fakeCalendar) Update(_ context.Context, id string, _ time.Time, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, id)
	return f.updateErr
}

func (f *fakeCalendar) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return nil
}

type recordingSender struct {
	contacts []string
}

func (r *recordingSender) SendConfirmation(_ context.Context, contact string, _ time.Time) error {
	r.contacts = append(r.contacts, contact)
	return nil
}

type recordingStaff struct {
	subjects []string
}

func (r *recordingStaff) NotifyStaff(_ context.Context, subject, _ string) error {
	r.subjects = append(r.subjects, subject)
	return nil
}

type harness struct {
	manager *Manager
	repo    *MemoryRepository
	cal     *fakeCalendar
	loc     *time.Location
}

func newHarness(t *testing.T, now time.Time, blocks []string, opts ...Option) *harness {
	t.Helper()
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)
	parsed, err := slots.ParseBlocks(blocks)
	require.NoError(t, err)
	calc, err := slots.NewCalculator(parsed, 30*time.Minute, loc)
	require.NoError(t, err)

	repo := NewMemoryRepository(loc)
	cal := &fakeCalendar{}
	reconciler := slots.NewReconciler(calc, repo, nil, nil)
	sync := calendar.NewSynchronizer(cal, time.Second, nil, nil)
	clock := now.In(loc)
	opts = append([]Option{WithClock(func() time.Time { return clock })}, opts...)
	m := NewManager(repo, reconciler, sync, ManagerConfig{ClinicName: "Consultorio", ClinicAddress: "Av. Siempre Viva 1"}, opts...)
	return &harness{manager: m, repo: repo, cal: cal, loc: loc}
}

func eveningHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)
	return newHarness(t, time.Date(2025, time.June, 10, 11, 0, 0, 0, loc), []string{"16:00-22:00"}, opts...)
}

func TestBookEndToEndFromFreeText(t *testing.T) {
	h := eveningHarness(t)
	ctx := context.Background()

	text := "el próximo lunes a las 8pm"
	date, ok, err := timeexpr.NewResolver(nil).ResolveDate(text, h.manager.Today(), timeexpr.ModeBook)
	require.NoError(t, err)
	require.True(t, ok)
	hhmm, ok := timeexpr.ResolveTime(text)
	require.True(t, ok)

	res, err := h.manager.Book(ctx, BookRequest{
		Contact:   "whatsapp:+5218110000001",
		Date:      date.Format(timeexpr.DateLayout),
		Time:      hhmm,
		Name:      "ana lópez",
		RequestID: "req-1",
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, "2025-06-16", res.Date)
	assert.Equal(t, "20:00", res.Time)
	assert.Equal(t, "Ana López", res.PatientName)
	assert.Equal(t, StatusConfirmed, res.Appointment.Status)
	assert.Equal(t, time.Date(2025, time.June, 16, 20, 0, 0, 0, h.loc), res.Appointment.StartAt)
	require.NotNil(t, res.Sync)
	assert.Equal(t, calendar.ActionCreated, res.Sync.Action)

	stored, err := h.repo.GetAppointment(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", stored.EventRef())
}

func TestBookCalendarFailureKeepsLocalAppointment(t *testing.T) {
	h := eveningHarness(t)
	h.cal.createErr = errors.New("calendar down")
	ctx := context.Background()

	res, err := h.manager.Book(ctx, BookRequest{Contact: "whatsapp:+5218110000001", Date: "2025-06-16", Time: "20:00", Name: "Ana López"})
	require.NoError(t, err)
	require.True(t, res.OK)
	require.NotNil(t, res.Sync)
	assert.True(t, res.Sync.Failed())

	stored, err := h.repo.GetAppointment(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.EventID)
	assert.Equal(t, StatusConfirmed, stored.Status)
	assert.Equal(t, 1, h.repo.Count())
}

func TestBookPreconditions(t *testing.T) {
	h := eveningHarness(t)
	ctx := context.Background()

	res, err := h.manager.Book(ctx, BookRequest{Contact: "c1", Date: "2025-06-16", Time: "20:00", Name: " al "})
	require.NoError(t, err)
	assert.Equal(t, ReasonNeedName, res.Reason)

	res, err = h.manager.Book(ctx, BookRequest{Contact: "c1", Date: "16/06/2025", Time: "20:00", Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, ReasonBadTime, res.Reason)

	res, err = h.manager.Book(ctx, BookRequest{Contact: "c1", Date: "2025-06-16", Time: "8pm", Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, ReasonBadTime, res.Reason)
	assert.Equal(t, 0, h.repo.Count())
}

func TestBookSlotTakenByAnotherPatient(t *testing.T) {
	h := eveningHarness(t)
	ctx := context.Background()

	first, err := h.manager.Book(ctx, BookRequest{Contact: "c1", Date: "2025-06-16", Time: "20:00", Name: "Ana López"})
	require.NoError(t, err)
	require.True(t, first.OK)

	res, err := h.manager.Book(ctx, BookRequest{Contact: "c2", Date: "2025-06-16", Time: "20:00", Name: "Luis Pérez"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonSlotUnavailable, res.Reason)
	assert.Len(t, res.Alternatives, 11)
	assert.NotContains(t, res.Alternatives, "20:00")
}

func TestBookTwiceMovesSingleActiveAppointment(t *testing.T) {
	h := eveningHarness(t)
	ctx := context.Background()

	first, err := h.manager.Book(ctx, BookRequest{Contact: "c1", Date: "2025-06-16", Time: "20:00", Name: "Ana López"})
	require.NoError(t, err)
	second, err := h.manager.Book(ctx, BookRequest{Contact: "c1", Date: "2025-06-17", Time: "17:30", Name: "Ana López"})
	require.NoError(t, err)
	require.True(t, second.OK)

	assert.Equal(t, first.Appointment.ID, second.Appointment.ID)
	assert.Equal(t, 1, h.repo.Count())
	assert.Equal(t, calendar.ActionUpdated, second.Sync.Action)
	assert.Equal(t, []string{"evt-1"}, h.cal.updates)

	// same slot again is a no-op move, not a conflict with itself
	third, err := h.manager.Book(ctx, BookRequest{Contact: "c1", Date: "2025-06-17", Time: "17:30", Name: "Ana López"})
	require.NoError(t, err)
	assert.True(t, third.OK)
	assert.Equal(t, 1, h.repo.Count())
}

func TestBookReplaysRequestToken(t *testing.T) {
	h := eveningHarness(t)
	ctx := context.Background()
	req := BookRequest{Contact: "c1", Date: "2025-06-16", Time: "20:00", Name: "Ana López", RequestID: "abc"}

	first, err := h.manager.Book(ctx, req)
	require.NoError(t, err)
	second, err := h.manager.Book(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Appointment.ID, second.Appointment.ID)
	assert.Equal(t, 1, h.cal.creates)
	assert.Empty(t, h.cal.updates)
}

func TestBookRollsPastDateForward(t *testing.T) {
	h := eveningHarness(t)
	res, err := h.manager.Book(context.Background(), BookRequest{Contact: "c1", Date: "2025-03-15", Time: "18:00", Name: "Ana López"})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, "2026-03-15", res.Date)
	assert.False(t, res.Appointment.StartAt.Before(h.manager.Today()))
}

func TestBookProvisionalFallback(t *testing.T) {
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)
	h := newHarness(t, time.Date(2025, time.June, 10, 9, 0, 0, 0, loc), []string{"09:00-14:00", "16:00-19:00"})

	res, err := h.manager.Book(context.Background(), BookRequest{Contact: "c1", Date: "2025-06-11", Time: "15:00", Name: "Ana López"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.True(t, res.Provisional)

	res, err = h.manager.Book(context.Background(), BookRequest{Contact: "c2", Date: "2025-06-11", Time: "08:00", Name: "Luis Pérez"})
	require.NoError(t, err)
	assert.Equal(t, ReasonSlotUnavailable, res.Reason)
	assert.Len(t, res.Alternatives, 16)
}

func TestRescheduleAndCancel(t *testing.T) {
	staff := &recordingStaff{}
	h := eveningHarness(t, WithStaffNotifier(staff))
	ctx := context.Background()

	res, err := h.manager.Reschedule(ctx, RescheduleRequest{Contact: "c1", Date: "2025-06-16", Time: "20:00"})
	require.NoError(t, err)
	assert.Equal(t, ReasonNoActive, res.Reason)

	_, err = h.manager.Book(ctx, BookRequest{Contact: "c1", Date: "2025-06-16", Time: "20:00", Name: "Ana López"})
	require.NoError(t, err)

	res, err = h.manager.Reschedule(ctx, RescheduleRequest{Contact: "c1", Date: "2025-06-16", Time: "nope"})
	require.NoError(t, err)
	assert.Equal(t, ReasonBadTime, res.Reason)

	res, err = h.manager.Reschedule(ctx, RescheduleRequest{Contact: "c1", Date: "2025-06-18", Time: "16:30"})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, "2025-06-18", res.Date)
	assert.Equal(t, "16:30", res.Time)
	assert.Equal(t, []string{"evt-1"}, h.cal.updates)

	res, err = h.manager.Cancel(ctx, CancelRequest{Contact: "c1"})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, StatusCanceled, res.Appointment.Status)
	assert.Nil(t, res.Appointment.EventID)
	assert.Equal(t, []string{"evt-1"}, h.cal.deletes)
	assert.Equal(t, calendar.ActionDeleted, res.Sync.Action)

	res, err = h.manager.Cancel(ctx, CancelRequest{Contact: "c1"})
	require.NoError(t, err)
	assert.Equal(t, ReasonNoActive, res.Reason)

	assert.Equal(t, []string{"Nueva cita", "Cita reagendada", "Cita cancelada"}, staff.subjects)

	// canceled slot frees up
	open, err := h.manager.ListSlots(ctx, "2025-06-18")
	require.NoError(t, err)
	assert.Contains(t, open.Slots, "16:30")
}

func TestRescheduleUpdateFailureRecreatesEvent(t *testing.T) {
	h := eveningHarness(t)
	ctx := context.Background()
	_, err := h.manager.Book(ctx, BookRequest{Contact: "c1", Date: "2025-06-16", Time: "20:00", Name: "Ana López"})
	require.NoError(t, err)

	h.cal.updateErr = calendar.ErrEventGone
	res, err := h.manager.Reschedule(ctx, RescheduleRequest{Contact: "c1", Date: "2025-06-16", Time: "21:00"})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, calendar.ActionRecreated, res.Sync.Action)

	stored, err := h.repo.GetAppointment(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, "evt-2", stored.EventRef())
}

func TestReserveSendsConfirmationThenConfirm(t *testing.T) {
	sender := &recordingSender{}
	h := eveningHarness(t, WithConfirmationSender(sender))
	ctx := context.Background()

	res, err := h.manager.Reserve(ctx, BookRequest{Contact: "c1", Date: "2025-06-16", Time: "18:00"})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, StatusReserved, res.Appointment.Status)
	assert.Equal(t, []string{"c1"}, sender.contacts)

	res, err = h.manager.Confirm(ctx, "c1", "")
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, StatusConfirmed, res.Appointment.Status)

	// a confirmed appointment never goes back to reserved
	res, err = h.manager.Reserve(ctx, BookRequest{Contact: "c1", Date: "2025-06-16", Time: "19:00"})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, res.Appointment.Status)
}

func TestMarkNoShow(t *testing.T) {
	h := eveningHarness(t)
	ctx := context.Background()
	booked, err := h.manager.Book(ctx, BookRequest{Contact: "c1", Date: "2025-06-16", Time: "20:00", Name: "Ana López"})
	require.NoError(t, err)

	res, err := h.manager.MarkNoShow(ctx, booked.Appointment.ID)
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, StatusNoShow, res.Appointment.Status)

	res, err = h.manager.MarkNoShow(ctx, booked.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidTransition, res.Reason)
}

func TestConcurrentBookingsKeepOneActive(t *testing.T) {
	h := eveningHarness(t)
	ctx := context.Background()
	times := []string{"16:00", "16:30", "17:00", "17:30", "18:00", "18:30", "19:00", "19:30"}

	var wg sync.WaitGroup
	for _, hhmm := range times {
		wg.Add(1)
		go func(hhmm string) {
			defer wg.Done()
			_, err := h.manager.Book(ctx, BookRequest{Contact: "c1", Date: "2025-06-16", Time: hhmm, Name: "Ana López"})
			assert.NoError(t, err)
		}(hhmm)
	}
	wg.Wait()

	assert.Equal(t, 1, h.repo.Count())
	patient, err := h.repo.GetPatientByContact(ctx, "c1")
	require.NoError(t, err)
	_, err = h.repo.LatestActive(ctx, patient.ID)
	require.NoError(t, err)
}

func TestListSlotsBadDate(t *testing.T) {
	h := eveningHarness(t)
	_, err := h.manager.ListSlots(context.Background(), "mañana")
	assert.ErrorIs(t, err, ErrBadDate)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusReserved, StatusConfirmed))
	assert.True(t, CanTransition(StatusConfirmed, StatusCanceled))
	assert.True(t, CanTransition(StatusReserved, StatusNoShow))
	assert.False(t, CanTransition(StatusConfirmed, StatusReserved))
	assert.False(t, CanTransition(StatusCanceled, StatusConfirmed))
	assert.False(t, CanTransition(StatusNoShow, StatusCanceled))
}
