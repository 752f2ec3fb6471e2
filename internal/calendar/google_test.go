package calendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *GoogleProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewGoogleProviderWithOptions(context.Background(), GoogleConfig{
		CalendarID: "clinic",
		Timezone:   "America/Mexico_City",
	}, option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	return p
}

func TestGoogleProviderCreate(t *testing.T) {
	var body map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/calendars/clinic/events"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"evt-123"}`))
	})

	loc := time.FixedZone("CST", -6*3600)
	id, err := p.Create(context.Background(), Event{
		Summary:  "Consulta - Ana López",
		Location: "Consultorio",
		Start:    time.Date(2025, 6, 16, 20, 0, 0, 0, loc),
		Duration: 30 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-123", id)

	start := body["start"].(map[string]any)
	end := body["end"].(map[string]any)
	assert.Equal(t, "2025-06-16T20:00:00-06:00", start["dateTime"])
	assert.Equal(t, "2025-06-16T20:30:00-06:00", end["dateTime"])
	assert.Equal(t, "America/Mexico_City", start["timeZone"])
}

func TestGoogleProviderUpdateGone(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`{"error":{"code":410,"message":"Resource has been deleted"}}`))
	})
	err := p.Update(context.Background(), "evt-1", time.Now(), 30*time.Minute)
	assert.ErrorIs(t, err, ErrEventGone)
}

func TestGoogleProviderDeleteMissingIsSuccess(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
	})
	assert.NoError(t, p.Delete(context.Background(), "evt-1"))
}

func TestGoogleProviderDeleteServerError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	assert.Error(t, p.Delete(context.Background(), "evt-1"))
}

func TestLoadServiceAccount(t *testing.T) {
	_, err := loadServiceAccount("")
	assert.Error(t, err)

	data, err := loadServiceAccount(` {"type":"service_account"}`)
	require.NoError(t, err)
	assert.Contains(t, string(data), "service_account")

	_, err = loadServiceAccount("/nonexistent/key.json")
	assert.Error(t, err)
}
