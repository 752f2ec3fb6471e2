package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/appointments"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/calendar"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/clinic"
	appconfig "github.com/wolfman30/clinic-scheduling-assistant/internal/config"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/slots"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

// Scheduling holds the wired scheduling core.
type Scheduling struct {
	Location   *time.Location
	Calculator *slots.Calculator
	Hours      *clinic.Hours
	Repository appointments.Repository
	Calendar   calendar.Provider
	Manager    *appointments.Manager
}

// SchedulingDeps are the optional collaborators of the scheduling core.
type SchedulingDeps struct {
	DB       *Database
	Redis    *redis.Client
	Metrics  *metrics.SchedulingMetrics
	Calendar calendar.Provider
	Options  []appointments.Option
}

// BuildScheduling wires slots, storage, calendar mirroring and the lifecycle
// manager. Without a database it runs on in-memory storage; without Redis it
// locks and deduplicates in process.
func BuildScheduling(ctx context.Context, cfg *appconfig.Config, deps SchedulingDeps, logger *logging.Logger) (*Scheduling, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	loc, err := LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	defaults := cfg.OperatingHours()
	blocks, err := slots.ParseBlocks(defaults)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: clinic hours: %w", err)
	}
	calc, err := slots.NewCalculator(blocks, time.Duration(cfg.SlotMinutes)*time.Minute, loc)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: slot calculator: %w", err)
	}

	var hoursStore *clinic.Store
	if deps.Redis != nil {
		hoursStore = clinic.NewStore(deps.Redis)
	}
	hours := clinic.NewHours(hoursStore, calc, defaults, logger)
	if err := hours.Load(ctx); err != nil {
		logger.Warn("operating hours override not loaded", "error", err)
	}

	var repo appointments.Repository
	if deps.DB != nil && deps.DB.Pool != nil {
		repo = appointments.NewPostgresRepository(deps.DB.Pool, loc)
	} else {
		logger.Warn("DATABASE_URL not set; appointments are kept in memory")
		repo = appointments.NewMemoryRepository(loc)
	}

	provider := deps.Calendar
	if provider == nil {
		provider, err = BuildCalendarProvider(ctx, cfg, logger)
		if err != nil {
			logger.Warn("calendar sync disabled", "error", err)
			provider = nil
		}
	}

	reconciler := slots.NewReconciler(calc, repo, deps.Metrics, logger)
	syncer := calendar.NewSynchronizer(provider, cfg.CalendarSyncTimeout, deps.Metrics, logger)

	opts := []appointments.Option{
		appointments.WithLogger(logger),
		appointments.WithMetrics(deps.Metrics),
	}
	if deps.Redis != nil {
		opts = append(opts,
			appointments.WithLocker(appointments.NewRedisLocker(deps.Redis, 30*time.Second, 10*time.Second)),
			appointments.WithIdempotencyStore(appointments.NewRedisIdempotencyStore(deps.Redis, cfg.IdempotencyTTL)),
		)
	} else {
		opts = append(opts, appointments.WithIdempotencyStore(appointments.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)))
	}
	opts = append(opts, deps.Options...)

	manager := appointments.NewManager(repo, reconciler, syncer, appointments.ManagerConfig{
		Location:      loc,
		EventDuration: time.Duration(cfg.EventDurationMin) * time.Minute,
		ClinicName:    cfg.ClinicName,
		ClinicAddress: cfg.ClinicAddress,
	}, opts...)

	return &Scheduling{
		Location:   loc,
		Calculator: calc,
		Hours:      hours,
		Repository: repo,
		Calendar:   provider,
		Manager:    manager,
	}, nil
}

// BuildCalendarProvider returns the Google Calendar provider, or nil when no
// service account is configured.
func BuildCalendarProvider(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (calendar.Provider, error) {
	if cfg == nil || strings.TrimSpace(cfg.GCalServiceAccount) == "" {
		if logger != nil {
			logger.Info("no calendar service account configured; calendar sync disabled")
		}
		return nil, nil
	}
	provider, err := calendar.NewGoogleProvider(ctx, calendar.GoogleConfig{
		CalendarID:       cfg.GCalCalendarID,
		ServiceAccount:   cfg.GCalServiceAccount,
		ImpersonateEmail: cfg.GCalImpersonateEmail,
		Timezone:         cfg.Timezone,
	})
	if err != nil {
		return nil, err
	}
	return provider, nil
}
