package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/api/router"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/app/bootstrap"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/appointments"
	appconfig "github.com/wolfman30/clinic-scheduling-assistant/internal/config"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-scheduling-assistant/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/messaging"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/notify"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/reminders"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/session"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/waitlist"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic scheduling assistant",
		"env", cfg.Env,
		"port", cfg.Port,
		"timezone", cfg.Timezone,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	db, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	metricsHandler, messagingMetrics, schedulingMetrics := setupMetrics()

	loc, err := bootstrap.LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}
	var messageLog *notify.MessageLog
	if db != nil {
		messageLog = notify.NewMessageLog(db.SQL)
	}
	sender := bootstrap.BuildWhatsAppSender(cfg, loc, messageLog, messagingMetrics, logger)

	opts := []appointments.Option{appointments.WithConfirmationSender(sender)}
	if staff := bootstrap.BuildStaffMailer(cfg, logger); staff != nil {
		opts = append(opts, appointments.WithStaffNotifier(staff))
	}
	sched, err := bootstrap.BuildScheduling(ctx, cfg, bootstrap.SchedulingDeps{
		DB:      db,
		Redis:   redisClient,
		Metrics: schedulingMetrics,
		Options: opts,
	}, logger)
	if err != nil {
		return err
	}

	var sessions session.Store = session.NewMemoryStore(cfg.SessionTTL)
	if redisClient != nil {
		sessions = session.NewRedisStore(redisClient, cfg.SessionTTL)
	}
	asst, err := bootstrap.BuildAssistant(ctx, cfg, sched.Manager, sessions, logger)
	if err != nil {
		return err
	}

	webhookSecret := cfg.TwilioWebhookSecret
	if webhookSecret == "" {
		webhookSecret = cfg.TwilioAuthToken
	}
	messagingHandler := messaging.NewHandler(messaging.HandlerConfig{
		WebhookSecret: webhookSecret,
		PublicBaseURL: cfg.PublicBaseURL,
	}, asst, sender, logger,
		messaging.WithMessageLog(messageLog),
		messaging.WithMetrics(messagingMetrics),
		messaging.WithConsentStore(sched.Repository),
	)

	var waitlistHandler *handlers.WaitlistHandler
	adminCfg := handlers.AdminConfig{
		AppName:      cfg.AppName,
		Env:          cfg.Env,
		Timezone:     cfg.Timezone,
		Sessions:     sessions,
		Appointments: sched.Manager,
		Hours:        sched.Hours,
		Logger:       logger,
	}
	if db != nil {
		waitlistHandler = handlers.NewWaitlistHandler(sched.Repository, waitlist.NewStore(db.SQL), messageLog, logger)
		adminCfg.Messages = messageLog
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.WebhookRateLimit)
	go evictLimiter(ctx, limiter)

	worker := reminders.NewWorker(sched.Repository, sender, reminders.Config{Interval: cfg.ReminderInterval}, logger)
	go worker.Run(ctx)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.New(&router.Config{
			Logger:             logger,
			MessagingHandler:   messagingHandler,
			Scheduling:         handlers.NewSchedulingHandler(sched.Manager, sched.Repository, logger),
			Waitlist:           waitlistHandler,
			Admin:              handlers.NewAdminHandler(adminCfg),
			AdminAuthSecret:    cfg.AdminJWTSecret,
			MetricsHandler:     metricsHandler,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			RateLimiter:        limiter,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// setupMetrics registers the application collectors on a private registry.
func setupMetrics() (http.Handler, *metrics.MessagingMetrics, *metrics.SchedulingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return handler, metrics.NewMessagingMetrics(reg), metrics.NewSchedulingMetrics(reg)
}

func evictLimiter(ctx context.Context, limiter *httpmiddleware.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Evict(10 * time.Minute)
		}
	}
}
