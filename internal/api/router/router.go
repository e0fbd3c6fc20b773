package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/booking-crm/internal/booking"
	httpmiddleware "github.com/wolfman30/booking-crm/internal/http/middleware"
	"github.com/wolfman30/booking-crm/internal/noshow"
	"github.com/wolfman30/booking-crm/internal/payments"
	"github.com/wolfman30/booking-crm/internal/reminders"
	"github.com/wolfman30/booking-crm/internal/settings"
	"github.com/wolfman30/booking-crm/internal/waitlist"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger          *logging.Logger
	Bookings        *booking.Handler
	Settings        *settings.Handler
	NoShows         *noshow.Handler
	Waitlist        *waitlist.Handler
	Messages        *reminders.Handler
	StripeWebhook   *payments.StripeWebhookHandler
	AdminAuthSecret string
	MetricsHandler  http.Handler
	WebhookLimiter  *httpmiddleware.RateLimiter

	// Health dependencies, keyed by name (e.g. "postgres", "redis").
	HealthChecks map[string]Pinger
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.StripeWebhook != nil {
			var mws []func(http.Handler) http.Handler
			if cfg.WebhookLimiter != nil {
				mws = append(mws, httpmiddleware.RateLimit(cfg.WebhookLimiter))
			}
			public.With(mws...).Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
		}
	})

	// Admin routes (HS256 JWT)
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Use(middleware.Compress(5))
			if cfg.Bookings != nil {
				admin.Mount("/bookings", cfg.Bookings.Routes())
				admin.Get("/availability", cfg.Bookings.Availability)
			}
			if cfg.Settings != nil {
				admin.Mount("/settings", cfg.Settings.Routes())
			}
			if cfg.NoShows != nil {
				admin.Mount("/no-shows", cfg.NoShows.Routes())
			}
			if cfg.Waitlist != nil {
				admin.Mount("/waitlist", cfg.Waitlist.Routes())
			}
			if cfg.Messages != nil {
				admin.Mount("/scheduled-messages", cfg.Messages.Routes())
			}
		})
	}

	return r
}

func healthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := map[string]string{"status": "ok"}
		for name, p := range checks {
			if p == nil {
				continue
			}
			if err := p.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				resp["status"] = "degraded"
				resp[name] = err.Error()
				continue
			}
			resp[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
