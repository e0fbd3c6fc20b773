package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/booking-crm/internal/app/bootstrap"
	appconfig "github.com/wolfman30/booking-crm/internal/config"
	"github.com/wolfman30/booking-crm/internal/events"
	"github.com/wolfman30/booking-crm/internal/observability/metrics"
	"github.com/wolfman30/booking-crm/internal/reminders"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel).With("component", "worker")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	svc, err := bootstrap.BuildServices(ctx, cfg, reg, logger)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	workerMetrics := metrics.NewWorkerMetrics(reg)
	reminderWorker := reminders.NewWorker(svc.Messages, svc.WhatsApp, logger).
		WithBatchSize(cfg.ReminderBatchSize).
		WithMaxAttempts(cfg.ReminderMaxAttempts).
		WithInterval(cfg.ReminderPollInterval).
		WithMetrics(workerMetrics)
	deliverer := events.NewDeliverer(svc.Outbox, events.NewBusHandler(svc.Bus), logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval).
		WithMetrics(workerMetrics)

	if err := svc.Listener.Subscribe(svc.Bus); err != nil {
		logger.Error("failed to subscribe waitlist listener", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		reminderWorker.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		deliverer.Start(ctx)
	}()

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	logger.Info("worker started",
		"bus", svc.BusKind,
		"reminder_interval", cfg.ReminderPollInterval.String(),
		"outbox_interval", cfg.OutboxPollInterval.String(),
	)
	<-ctx.Done()
	logger.Info("shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	wg.Wait()
	logger.Info("worker stopped")
}
