package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/appointments"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/slots"
)

const testContact = "whatsapp:+5218110000001"

type schedFixture struct {
	manager *appointments.Manager
	repo    *appointments.MemoryRepository
	calc    *slots.Calculator
	loc     *time.Location
}

// newSchedFixture runs the clinic clock at 2025-06-10 12:00 with evening hours.
func newSchedFixture(t *testing.T) *schedFixture {
	t.Helper()
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)
	blocks, err := slots.ParseBlocks([]string{"16:00-22:00"})
	require.NoError(t, err)
	calc, err := slots.NewCalculator(blocks, 30*time.Minute, loc)
	require.NoError(t, err)
	repo := appointments.NewMemoryRepository(loc)
	now := time.Date(2025, time.June, 10, 12, 0, 0, 0, loc)
	manager := appointments.NewManager(repo, slots.NewReconciler(calc, repo, nil, nil), nil,
		appointments.ManagerConfig{ClinicName: "Consultorio"},
		appointments.WithClock(func() time.Time { return now }))
	return &schedFixture{manager: manager, repo: repo, calc: calc, loc: loc}
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
