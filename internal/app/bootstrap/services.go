package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/booking-crm/internal/booking"
	"github.com/wolfman30/booking-crm/internal/bookings"
	appconfig "github.com/wolfman30/booking-crm/internal/config"
	"github.com/wolfman30/booking-crm/internal/documents"
	"github.com/wolfman30/booking-crm/internal/events"
	"github.com/wolfman30/booking-crm/internal/noshow"
	"github.com/wolfman30/booking-crm/internal/notify"
	"github.com/wolfman30/booking-crm/internal/observability/metrics"
	"github.com/wolfman30/booking-crm/internal/payments"
	"github.com/wolfman30/booking-crm/internal/reminders"
	"github.com/wolfman30/booking-crm/internal/settings"
	"github.com/wolfman30/booking-crm/internal/slotlock"
	"github.com/wolfman30/booking-crm/internal/waitlist"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

// Services holds everything both binaries need.
type Services struct {
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Bus       events.Bus
	BusKind   string
	Settings  *settings.Store
	Messages  *reminders.Store
	Outbox    *events.OutboxStore
	Processed *events.ProcessedStore
	Payments  *payments.Repository
	NoShows   *noshow.Store
	Waitlist  *waitlist.Store
	WhatsApp  notify.WhatsAppSender
	Engine    *booking.Engine
	Listener  *waitlist.Listener
}

// BuildServices connects to Postgres, Redis and the event bus and assembles
// the booking engine with every side-effect collaborator.
func BuildServices(ctx context.Context, cfg *appconfig.Config, reg prometheus.Registerer, logger *logging.Logger) (*Services, error) {
	if logger == nil {
		logger = logging.Default()
	}
	loc := LoadLocation(cfg.BusinessTimezone, logger)

	pool, err := OpenPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rdb := BuildRedisClient(ctx, cfg, logger, true)
	if rdb == nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: redis is required for settings and slot locks")
	}
	bus, busKind, err := BuildEventBus(cfg, logger)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, err
	}
	s := &Services{
		Pool:      pool,
		Redis:     rdb,
		Bus:       bus,
		BusKind:   busKind,
		Settings:  settings.NewStore(rdb),
		Messages:  reminders.NewStore(pool),
		Outbox:    events.NewOutboxStore(pool),
		Processed: events.NewProcessedStore(pool),
		Payments:  payments.NewRepository(pool),
		NoShows:   noshow.NewStore(pool, noshow.DefaultPolicy),
		Waitlist:  waitlist.NewStore(pool),
	}

	cal, calKind, err := BuildCalendarProvider(ctx, cfg, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	var awsCfg *aws.Config
	if cfg.EmailProvider == "ses" || cfg.DocumentsBucket != "" {
		loaded, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			s.Close()
			return nil, err
		}
		awsCfg = &loaded
	}
	email, emailKind := BuildEmailSender(cfg, awsCfg, logger)
	whatsapp, whatsappKind := BuildWhatsAppSender(cfg, logger)
	s.WhatsApp = whatsapp

	renderer, err := notify.NewRenderer(loc)
	if err != nil {
		s.Close()
		return nil, err
	}
	sink := notify.NewSink(email, whatsapp, renderer, logger)

	stripe := payments.NewStripeClient(cfg.StripeSecretKey, cfg.StripeSuccessURL, cfg.StripeCancelURL, logger,
		payments.WithDryRun(cfg.StripeDryRun || cfg.StripeSecretKey == ""))
	gateway := payments.NewGateway(s.Payments, stripe, sink, cfg.PaymentCurrency, logger)

	quiet, err := reminders.ParseQuietHours(cfg.QuietHoursStart, cfg.QuietHoursEnd, loc)
	if err != nil {
		s.Close()
		return nil, err
	}
	scheduler := reminders.NewScheduler(s.Messages, loc, quiet, cfg.ReviewURL, logger)

	var docs *documents.Scheduler
	if awsCfg != nil && cfg.DocumentsBucket != "" {
		s3Client := BuildS3Client(*awsCfg, cfg.AWSEndpointOverride)
		docs = documents.NewScheduler(cfg.DocumentsBucket, s3Client, s3.NewPresignClient(s3Client), s.Messages, cfg.DocumentLinkTTL, logger)
	} else {
		docs = documents.NewScheduler("", nil, nil, nil, cfg.DocumentLinkTTL, logger)
	}

	// Events go through the outbox when a broker is configured; in memory
	// mode they are delivered in process.
	var publisher booking.CancellationPublisher = events.NewBusPublisher(bus)
	if busKind == "nats" {
		publisher = events.NewOutboxPublisher(s.Outbox)
	}

	engine, err := booking.NewEngine(booking.Deps{
		Store:       bookings.NewStore(pool),
		Calendar:    cal,
		Settings:    s.Settings,
		Hours:       settings.NewHoursResolver(s.Settings, loc),
		Suspensions: s.NoShows,
		Payments:    gateway,
		Notifier:    sink,
		Reminders:   scheduler,
		Documents:   docs,
		Publisher:   publisher,
		Locker:      slotlock.New(rdb, cfg.SlotLockTTL, logger),
		Metrics:     metrics.NewBookingMetrics(reg),
		Logger:      logger,
	},
		booking.WithLocation(loc),
		booking.WithEmailFailurePolicy(booking.ParseEmailFailurePolicy(cfg.EmailFailurePolicy)),
		booking.WithGlobalConflictCheck(cfg.GlobalConflictCheck),
		booking.WithCallTimeout(cfg.ExternalCallTimeout),
	)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Engine = engine
	s.Listener = waitlist.NewListener(s.Waitlist, s.Processed, whatsapp, loc, logger)

	logger.Info("services ready",
		"timezone", loc.String(),
		"calendar", calKind,
		"email", emailKind,
		"whatsapp", whatsappKind,
		"bus", busKind,
		"documents", docs.Enabled(),
	)
	return s, nil
}

// Close releases connections in reverse order of creation.
func (s *Services) Close() {
	if s.Bus != nil {
		_ = s.Bus.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}
