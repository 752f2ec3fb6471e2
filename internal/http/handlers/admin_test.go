package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/appointments"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/clinic"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/notify"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/session"
)

func adminRouter(h *AdminHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/admin/ping", h.Ping)
	r.Get("/admin/health", h.Health)
	r.Post("/admin/sessions/clear", h.ClearSessions)
	r.Post("/admin/appointments/{id}/no-show", h.MarkNoShow)
	r.Post("/admin/patients/purge", h.PurgePatient)
	r.Get("/admin/hours", h.GetHours)
	r.Put("/admin/hours", h.PutHours)
	r.Delete("/admin/hours", h.DeleteHours)
	return r
}

func TestAdminHealthAndSessions(t *testing.T) {
	sessions := session.NewMemoryStore(time.Hour)
	require.NoError(t, sessions.Put(context.Background(), testContact, &session.State{}))

	h := NewAdminHandler(AdminConfig{AppName: "clinic", Env: "test", Timezone: "America/Mexico_City", Sessions: sessions})
	router := adminRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["ok"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/health", nil))
	body := decodeBody(t, rec)
	assert.Equal(t, "clinic", body["app"])
	assert.Equal(t, "America/Mexico_City", body["tz"])
	assert.EqualValues(t, 1, body["agent_sessions"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/sessions/clear", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["cleared"])

	n, err := sessions.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAdminMarkNoShow(t *testing.T) {
	f := newSchedFixture(t)
	res, err := f.manager.Reserve(context.Background(), appointments.BookRequest{
		Contact: testContact, Date: "2025-06-16", Time: "17:00",
	})
	require.NoError(t, err)
	require.True(t, res.OK)

	router := adminRouter(NewAdminHandler(AdminConfig{Appointments: f.manager}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/appointments/not-a-uuid/no-show", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/appointments/"+uuid.NewString()+"/no-show", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	target := "/admin/appointments/" + res.Appointment.ID.String() + "/no-show"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminPurgePatient(t *testing.T) {
	f := newSchedFixture(t)
	_, err := f.manager.Reserve(context.Background(), appointments.BookRequest{
		Contact: testContact, Date: "2025-06-16", Time: "17:00",
	})
	require.NoError(t, err)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("DELETE FROM message_logs").WithArgs(testContact).WillReturnResult(sqlmock.NewResult(0, 3))

	router := adminRouter(NewAdminHandler(AdminConfig{Appointments: f.manager, Messages: notify.NewMessageLog(db)}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/admin/patients/purge", map[string]any{"contact": testContact}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["patient_removed"])
	assert.EqualValues(t, 3, body["messages_removed"])

	_, err = f.repo.GetPatientByContact(context.Background(), testContact)
	assert.ErrorIs(t, err, appointments.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminHours(t *testing.T) {
	f := newSchedFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	hours := clinic.NewHours(clinic.NewStore(client), f.calc, []string{"16:00-22:00"}, nil)
	router := adminRouter(NewAdminHandler(AdminConfig{Hours: hours}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(t, http.MethodPut, "/admin/hours", map[string]any{"blocks": []string{"09:00-13:00"}}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, f.calc.Grid(time.Date(2025, 6, 16, 0, 0, 0, 0, f.loc)), 8)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/hours", nil))
	body := decodeBody(t, rec)
	assert.Equal(t, []any{"09:00-13:00"}, body["blocks"])
	assert.Equal(t, true, body["override"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(t, http.MethodPut, "/admin/hours", map[string]any{"blocks": []string{"13:00-09:00"}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/hours", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["override"])
	assert.Len(t, f.calc.Grid(time.Date(2025, 6, 16, 0, 0, 0, 0, f.loc)), 12)
}

func TestAdminUnconfigured(t *testing.T) {
	router := adminRouter(NewAdminHandler(AdminConfig{}))
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/admin/sessions/clear"},
		{http.MethodGet, "/admin/hours"},
		{http.MethodPost, "/admin/appointments/" + uuid.NewString() + "/no-show"},
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, tc.path)
	}
}
