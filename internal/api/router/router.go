package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-scheduling-assistant/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/messaging"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	MessagingHandler   *messaging.Handler
	Scheduling         *handlers.SchedulingHandler
	Waitlist           *handlers.WaitlistHandler
	Admin              *handlers.AdminHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// RateLimiter guards the webhook and the booking API. Nil disables it.
	RateLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	limit := func(h chi.Router) {
		if cfg.RateLimiter != nil {
			h.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.MessagingHandler != nil {
		r.Group(func(webhooks chi.Router) {
			limit(webhooks)
			webhooks.Post("/webhooks/whatsapp", cfg.MessagingHandler.WhatsAppWebhook)
		})
	}

	r.Group(func(api chi.Router) {
		limit(api)
		if cfg.Scheduling != nil {
			api.Get("/slots", cfg.Scheduling.ListSlots)
			api.Post("/book", cfg.Scheduling.Book)
			api.Post("/reschedule", cfg.Scheduling.Reschedule)
			api.Post("/cancel", cfg.Scheduling.Cancel)
			api.Post("/confirm", cfg.Scheduling.Confirm)
		}
		if cfg.Waitlist != nil {
			api.Post("/waitlist/add", cfg.Waitlist.Add)
		}
	})

	if cfg.Admin != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Get("/ping", cfg.Admin.Ping)
			admin.Get("/health", cfg.Admin.Health)

			admin.Group(func(protected chi.Router) {
				protected.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
				protected.Post("/sessions/clear", cfg.Admin.ClearSessions)
				protected.Post("/appointments/{id}/no-show", cfg.Admin.MarkNoShow)
				protected.Post("/patients/purge", cfg.Admin.PurgePatient)
				protected.Get("/hours", cfg.Admin.GetHours)
				protected.Put("/hours", cfg.Admin.PutHours)
				protected.Delete("/hours", cfg.Admin.DeleteHours)
			})
		})
	}

	return r
}
