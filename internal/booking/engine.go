package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/wolfman30/booking-crm/internal/observability/metrics"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

var bookingTracer = otel.Tracer("booking.internal.booking")

// Deps are the collaborators of the engine. Store, Calendar, Settings, Hours
// and Suspensions are required; the rest are skipped when nil.
type Deps struct {
	Store       Store
	Calendar    CalendarProvider
	Settings    SettingsStore
	Hours       HoursResolver
	Suspensions SuspensionOracle
	Payments    PaymentGateway
	Notifier    NotificationSink
	Reminders   ReminderScheduler
	Documents   DocumentScheduler
	Publisher   CancellationPublisher
	Locker      SlotLocker
	Metrics     *metrics.BookingMetrics
	Logger      *logging.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLocation sets the business timezone used for hours and schedules.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithEmailFailurePolicy sets how confirmation email failures are treated.
func WithEmailFailurePolicy(p EmailFailurePolicy) Option {
	return func(e *Engine) {
		e.emailPolicy = p
	}
}

// WithGlobalConflictCheck toggles the team-agnostic conflict check for
// requests that name a team member. Requests without one are always checked.
func WithGlobalConflictCheck(enabled bool) Option {
	return func(e *Engine) {
		e.globalConflictCheck = enabled
	}
}

// WithCallTimeout bounds every external call made by the engine.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine runs the booking workflow.
type Engine struct {
	store       Store
	calendar    CalendarProvider
	policy      policy
	hours       HoursResolver
	suspensions SuspensionOracle
	payments    PaymentGateway
	notifier    NotificationSink
	reminders   ReminderScheduler
	documents   DocumentScheduler
	publisher   CancellationPublisher
	locker      SlotLocker
	metrics     *metrics.BookingMetrics
	logger      *logging.Logger

	loc                 *time.Location
	emailPolicy         EmailFailurePolicy
	globalConflictCheck bool
	callTimeout         time.Duration
	now                 func() time.Time
	newID               func() uuid.UUID
	async               func(func())
}

// NewEngine wires an engine from its collaborators.
func NewEngine(deps Deps, opts ...Option) (*Engine, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("booking: store required")
	case deps.Calendar == nil:
		return nil, errors.New("booking: calendar provider required")
	case deps.Settings == nil:
		return nil, errors.New("booking: settings store required")
	case deps.Hours == nil:
		return nil, errors.New("booking: business hours resolver required")
	case deps.Suspensions == nil:
		return nil, errors.New("booking: suspension oracle required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	e := &Engine{
		store:               deps.Store,
		calendar:            deps.Calendar,
		policy:              policy{settings: deps.Settings},
		hours:               deps.Hours,
		suspensions:         deps.Suspensions,
		payments:            deps.Payments,
		notifier:            deps.Notifier,
		reminders:           deps.Reminders,
		documents:           deps.Documents,
		publisher:           deps.Publisher,
		locker:              deps.Locker,
		metrics:             deps.Metrics,
		logger:              deps.Logger,
		loc:                 time.UTC,
		emailPolicy:         EmailFailureFatal,
		globalConflictCheck: true,
		callTimeout:         10 * time.Second,
		now:                 time.Now,
		newID:               uuid.New,
		async:               func(f func()) { go f() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// callCtx bounds a single external call.
func (e *Engine) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.callTimeout)
}

// GetAvailability returns free and busy slots on the default calendar.
func (e *Engine) GetAvailability(ctx context.Context, start, end time.Time) ([]TimeSlot, error) {
	if !end.After(start) {
		return nil, violation(RuleInvalidRequest, "availability range end must be after start")
	}
	callCtx, cancel := e.callCtx(ctx)
	defer cancel()
	slots, err := e.calendar.GetAvailability(callCtx, "", start, end)
	if err != nil {
		return nil, err
	}
	return slots, nil
}

// GetBookingStats aggregates bookings, optionally bounded by start time.
func (e *Engine) GetBookingStats(ctx context.Context, start, end *time.Time) (*Stats, error) {
	return e.store.Stats(ctx, start, end)
}

// GetBooking loads a single booking.
func (e *Engine) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return e.store.GetBooking(ctx, id)
}

// businessName is used in customer-facing messages.
func (e *Engine) businessName(ctx context.Context) string {
	name, err := e.policy.stringValue(ctx, SettingBusinessName, "")
	if err != nil {
		e.logger.Warn("booking: business name lookup failed", "error", err)
	}
	return name
}

func (e *Engine) observeRejection(err error) {
	if v, ok := AsPolicyViolation(err); ok {
		e.metrics.ObserveRejection(v.Rule)
	}
}
