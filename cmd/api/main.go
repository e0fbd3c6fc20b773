package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/booking-crm/internal/api/router"
	"github.com/wolfman30/booking-crm/internal/app/bootstrap"
	"github.com/wolfman30/booking-crm/internal/booking"
	appconfig "github.com/wolfman30/booking-crm/internal/config"
	httpmiddleware "github.com/wolfman30/booking-crm/internal/http/middleware"
	"github.com/wolfman30/booking-crm/internal/noshow"
	"github.com/wolfman30/booking-crm/internal/payments"
	"github.com/wolfman30/booking-crm/internal/reminders"
	"github.com/wolfman30/booking-crm/internal/settings"
	"github.com/wolfman30/booking-crm/internal/waitlist"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-crm API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, metricsHandler := setupMetrics()
	svc, err := bootstrap.BuildServices(ctx, cfg, reg, logger)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	// Without a broker the waitlist listens in this process.
	if svc.BusKind == "memory" {
		if err := svc.Listener.Subscribe(svc.Bus); err != nil {
			logger.Error("failed to subscribe waitlist listener", "error", err)
			os.Exit(1)
		}
	}

	redisPing := func(ctx context.Context) error { return svc.Redis.Ping(ctx).Err() }
	limiter := httpmiddleware.NewRateLimiter(20, 40)
	go evictIdleClients(ctx, limiter)

	r := router.New(&router.Config{
		Logger:          logger,
		Bookings:        booking.NewHandler(svc.Engine, logger),
		Settings:        settings.NewHandler(svc.Settings, logger),
		NoShows:         noshow.NewHandler(svc.NoShows, svc.Engine, logger),
		Waitlist:        waitlist.NewHandler(svc.Waitlist, logger),
		Messages:        reminders.NewHandler(svc.Messages, logger),
		StripeWebhook:   newStripeWebhook(cfg, svc, logger),
		AdminAuthSecret: cfg.AdminJWTSecret,
		MetricsHandler:  metricsHandler,
		WebhookLimiter:  limiter,
		HealthChecks: map[string]router.Pinger{
			"postgres": router.PingFunc(svc.Pool.Ping),
			"redis":    router.PingFunc(redisPing),
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("server stopped")
}

// setupMetrics builds a dedicated registry with Go runtime collectors.
func setupMetrics() (*prometheus.Registry, http.Handler) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func newStripeWebhook(cfg *appconfig.Config, svc *bootstrap.Services, logger *logging.Logger) *payments.StripeWebhookHandler {
	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; stripe webhook disabled")
		return nil
	}
	return payments.NewStripeWebhookHandler(cfg.StripeWebhookSecret, svc.Payments, svc.Processed, logger)
}

func evictIdleClients(ctx context.Context, limiter *httpmiddleware.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			limiter.Evict(now.Add(-10 * time.Minute))
		}
	}
}
