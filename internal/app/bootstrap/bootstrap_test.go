package bootstrap

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/appointments"
	appconfig "github.com/wolfman30/clinic-scheduling-assistant/internal/config"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		ClinicName:          "Consultorio",
		Timezone:            "America/Mexico_City",
		ClinicHours:         "16:00-22:00",
		SlotMinutes:         30,
		EventDurationMin:    30,
		CalendarSyncTimeout: time.Second,
		IdempotencyTTL:      time.Hour,
		LLMProvider:         "none",
	}
}

func TestBuildRedisClient(t *testing.T) {
	logger := logging.New("error")
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, logger, true))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, true)
	require.NotNil(t, client)
	defer client.Close()

	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, true))
}

func TestConnectPostgresEmptyURLReturnsNil(t *testing.T) {
	db, err := ConnectPostgres(context.Background(), "  ", logging.New("error"))
	require.NoError(t, err)
	assert.Nil(t, db)
	db.Close()
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation(" America/Mexico_City ")
	require.NoError(t, err)
	assert.Equal(t, "America/Mexico_City", loc.String())

	_, err = LoadLocation("Mars/Olympus")
	assert.Error(t, err)
}

func TestBuildSchedulingInMemory(t *testing.T) {
	s, err := BuildScheduling(context.Background(), testConfig(), SchedulingDeps{}, logging.New("error"))
	require.NoError(t, err)
	assert.Nil(t, s.Calendar)
	assert.IsType(t, &appointments.MemoryRepository{}, s.Repository)

	blocks, override := s.Hours.Current()
	assert.Equal(t, []string{"16:00-22:00"}, blocks)
	assert.False(t, override)

	date := time.Now().In(s.Location).AddDate(0, 0, 7).Format("2006-01-02")
	res, err := s.Manager.Book(context.Background(), appointments.BookRequest{
		Contact: "whatsapp:+5218110000001", Date: date, Time: "18:00", Name: "Ana López",
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestBuildSchedulingLoadsHoursOverride(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("clinic:hours", `["09:00-12:00"]`))
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, nil, false)
	defer client.Close()

	s, err := BuildScheduling(context.Background(), testConfig(), SchedulingDeps{Redis: client}, logging.New("error"))
	require.NoError(t, err)
	blocks, override := s.Hours.Current()
	assert.Equal(t, []string{"09:00-12:00"}, blocks)
	assert.True(t, override)
}

func TestBuildSchedulingRejectsBadConfig(t *testing.T) {
	_, err := BuildScheduling(context.Background(), nil, SchedulingDeps{}, nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.ClinicHours = "22:00-16:00"
	_, err = BuildScheduling(context.Background(), cfg, SchedulingDeps{}, logging.New("error"))
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Timezone = "Nowhere/City"
	_, err = BuildScheduling(context.Background(), cfg, SchedulingDeps{}, logging.New("error"))
	assert.Error(t, err)
}

func TestBuildCalendarProviderDisabledWithoutServiceAccount(t *testing.T) {
	provider, err := BuildCalendarProvider(context.Background(), testConfig(), logging.New("error"))
	require.NoError(t, err)
	assert.Nil(t, provider)
}

func TestBuildAssistantOffline(t *testing.T) {
	s, err := BuildScheduling(context.Background(), testConfig(), SchedulingDeps{}, logging.New("error"))
	require.NoError(t, err)

	a, err := BuildAssistant(context.Background(), testConfig(), s.Manager, nil, logging.New("error"))
	require.NoError(t, err)
	reply := a.Reply(context.Background(), "whatsapp:+5218110000001", "¿dónde están ubicados?")
	assert.NotEmpty(t, reply)

	cfg := testConfig()
	cfg.LLMProvider = "claude-on-a-toaster"
	_, err = BuildAssistant(context.Background(), cfg, s.Manager, nil, logging.New("error"))
	assert.Error(t, err)
}

func TestBuildWhatsAppSenderForcesDryRun(t *testing.T) {
	sender := BuildWhatsAppSender(testConfig(), time.UTC, nil, nil, logging.New("error"))
	require.NotNil(t, sender)
	assert.NoError(t, sender.SendText(context.Background(), "whatsapp:+5218110000001", "hola"))
}

func TestBuildStaffMailerNilWithoutSendGrid(t *testing.T) {
	assert.Nil(t, BuildStaffMailer(testConfig(), logging.New("error")))

	cfg := testConfig()
	cfg.SendGridAPIKey = "key"
	cfg.SendGridFromEmail = "bot@example.com"
	assert.Nil(t, BuildStaffMailer(cfg, logging.New("error")))

	cfg.StaffEmails = []string{"staff@example.com"}
	assert.NotNil(t, BuildStaffMailer(cfg, logging.New("error")))
}
