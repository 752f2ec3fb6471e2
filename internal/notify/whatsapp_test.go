package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/observability/metrics"
)

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                          "",
		"+5218112345678":            "whatsapp:+5218112345678",
		"5218112345678":             "whatsapp:+5218112345678",
		"whatsapp: +52 1 81 1234":   "whatsapp:+521811234",
		"whatsapp:+5218112345678":   "whatsapp:+5218112345678",
		"  whatsapp:5218112345678 ": "whatsapp:+5218112345678",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeAddress(in), in)
	}
}

func newTestSender(t *testing.T, handler http.HandlerFunc, mutate func(*WhatsAppConfig)) *WhatsAppSender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)
	cfg := WhatsAppConfig{
		AccountSID: "AC123",
		AuthToken:  "token",
		From:       "+14155238886",
		BaseURL:    srv.URL,
		Location:   loc,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s := NewWhatsAppSender(cfg, nil)
	s.sleep = func(time.Duration) {}
	return s
}

func TestWhatsAppSender_SendConfirmation(t *testing.T) {
	var gotForm map[string]string
	s := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "token", pass)
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{"To": r.PostForm.Get("To"), "From": r.PostForm.Get("From"), "Body": r.PostForm.Get("Body")}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}, nil)

	start := time.Date(2025, 6, 17, 2, 0, 0, 0, time.UTC) // 20:00 local
	require.NoError(t, s.SendConfirmation(context.Background(), "+5218110000001", start))
	assert.Equal(t, "whatsapp:+5218110000001", gotForm["To"])
	assert.Equal(t, "whatsapp:+14155238886", gotForm["From"])
	assert.Contains(t, gotForm["Body"], "16/06/2025 20:00")
	assert.Contains(t, gotForm["Body"], "*confirmar*")
}

func TestWhatsAppSender_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	s := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}, nil)

	require.NoError(t, s.SendText(context.Background(), "whatsapp:+5218110000001", "hola"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWhatsAppSender_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	s := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	}, nil)

	err := s.SendText(context.Background(), "whatsapp:+1", "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 21211")
	assert.Equal(t, int32(1), calls.Load())
}

func TestWhatsAppSender_DryRunSkipsTwilio(t *testing.T) {
	var calls atomic.Int32
	reg := prometheus.NewRegistry()
	m := metrics.NewMessagingMetrics(reg)
	s := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, func(cfg *WhatsAppConfig) { cfg.DryRun = true })
	s.metrics = m

	require.NoError(t, s.SendReminder(context.Background(), "+5218110000001", time.Now()))
	assert.Zero(t, calls.Load())

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "clinic_messaging_outbound_total" {
			found = true
			assert.Equal(t, 1.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestWhatsAppSender_RecordsMessageLog(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {}, func(cfg *WhatsAppConfig) {
		cfg.AccountSID = ""
	})
	s.log = NewMessageLog(db)

	mock.ExpectExec("INSERT INTO message_logs").
		WithArgs(DirectionOut, "whatsapp", "whatsapp:+5218110000001", TemplateText, "hola", "mock").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.SendText(context.Background(), "5218110000001", "hola"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWhatsAppSender_RejectsEmptyInput(t *testing.T) {
	s := NewWhatsAppSender(WhatsAppConfig{}, nil)
	assert.Error(t, s.SendText(context.Background(), "", "hola"))
	assert.Error(t, s.SendText(context.Background(), "+52", "  "))
}
