package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wolfman30/booking-crm/internal/events"
)

// Store is the persistence boundary of the booking engine.
type Store interface {
	GetContact(ctx context.Context, id uuid.UUID) (*Contact, error)
	GetService(ctx context.Context, id uuid.UUID) (*Service, error)
	GetTeamMember(ctx context.Context, id uuid.UUID) (*TeamMember, error)
	IsTeamMemberAssigned(ctx context.Context, teamMemberID, serviceID uuid.UUID) (bool, error)
	ListUnavailability(ctx context.Context, teamMemberID uuid.UUID, start, end time.Time) ([]UnavailabilityPeriod, error)

	// ListTeamMemberConflicts returns confirmed or pending bookings of the
	// team member whose buffered columns overlap [start,end).
	ListTeamMemberConflicts(ctx context.Context, teamMemberID uuid.UUID, start, end time.Time) ([]Booking, error)
	// ListConfirmedNear returns confirmed bookings that may occupy [start,end).
	ListConfirmedNear(ctx context.Context, start, end time.Time) ([]OccupiedSlot, error)
	// ListContactOverlaps returns the contact's confirmed or pending bookings
	// overlapping [start,end).
	ListContactOverlaps(ctx context.Context, contactID uuid.UUID, start, end time.Time) ([]Booking, error)

	InsertBooking(ctx context.Context, b *Booking) error
	// InsertBatch stores all rows in one transaction and returns the stored rows.
	InsertBatch(ctx context.Context, bookings []Booking) ([]Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	DeleteBooking(ctx context.Context, id uuid.UUID) error
	SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) error
	MarkCancelled(ctx context.Context, c Cancellation) error
	Stats(ctx context.Context, start, end *time.Time) (*Stats, error)
}

// Cancellation is the state written when a booking is cancelled.
type Cancellation struct {
	BookingID      uuid.UUID
	CancelledAt    time.Time
	Reason         string
	PenaltyApplied bool
	PenaltyFee     decimal.Decimal
}

// CalendarProvider writes appointment events. An empty calendarID targets
// the provider's default calendar.
type CalendarProvider interface {
	CreateEvent(ctx context.Context, calendarID string, event CalendarEvent) (string, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, patch CalendarEventPatch) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	GetAvailability(ctx context.Context, calendarID string, start, end time.Time) ([]TimeSlot, error)
}

// SettingsStore is string-typed key/value policy configuration.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// HoursResolver resolves business opening hours.
type HoursResolver interface {
	// AvailableWindows returns the open windows for the calendar day of day,
	// with breaks already removed. Closed days return no windows.
	AvailableWindows(ctx context.Context, day time.Time) ([]TimeRange, error)
	EmergencyBlockers(ctx context.Context) ([]DateRange, error)
}

// SuspensionOracle answers whether a contact may book.
type SuspensionOracle interface {
	IsContactSuspended(ctx context.Context, contactID uuid.UUID) (Suspension, error)
}

// PenaltyRequest describes a late-cancellation fee.
type PenaltyRequest struct {
	BookingID    uuid.UUID
	ContactID    uuid.UUID
	ContactName  string
	ContactEmail string
	ContactPhone string
	Amount       decimal.Decimal
	Description  string
}

// PaymentGateway are the payment hooks used during cancellation.
type PaymentGateway interface {
	// HandleCancellationRefund refunds a prior successful payment for the
	// booking. It reports false when there was nothing to refund.
	HandleCancellationRefund(ctx context.Context, bookingID uuid.UUID) (bool, error)
	// CreatePenaltyTransaction records at most one penalty per booking and
	// returns ErrPenaltyExists on repeats.
	CreatePenaltyTransaction(ctx context.Context, req PenaltyRequest) (uuid.UUID, error)
	SendPenaltyPaymentLink(ctx context.Context, transactionID uuid.UUID, req PenaltyRequest) error
}

// Email templates understood by NotificationSink implementations.
const (
	TemplateConfirmation      = "booking_confirmation"
	TemplateBatchConfirmation = "batch_confirmation"
	TemplateCancellation      = "booking_cancellation"
	TemplateSecretaryBooking  = "secretary_new_booking"
	TemplateSecretaryCancel   = "secretary_cancellation"
)

// TemplatedEmail is an email rendered by the sink from a named template.
type TemplatedEmail struct {
	Template       string
	To             string
	ToName         string
	BusinessName   string
	Appointments   []Appointment
	Reason         string
	PenaltyApplied bool
	PenaltyFee     decimal.Decimal
}

// NotificationSink delivers WhatsApp text and templated email.
type NotificationSink interface {
	SendWhatsApp(ctx context.Context, phone, body string) error
	SendTemplatedEmail(ctx context.Context, email TemplatedEmail) error
}

// ReminderScheduler queues outbound messages tied to a booking.
type ReminderScheduler interface {
	ScheduleReminders(ctx context.Context, appt Appointment, leadTimes []time.Duration) error
	ScheduleReviewRequest(ctx context.Context, appt Appointment, delay time.Duration) error
	CancelForBooking(ctx context.Context, bookingID uuid.UUID) (int64, error)
}

// DocumentScheduler delivers per-service documents (aftercare, consent forms).
type DocumentScheduler interface {
	ScheduleForBooking(ctx context.Context, appt Appointment) error
}

// CancellationPublisher emits the booking-cancelled event consumed by the waitlist.
type CancellationPublisher interface {
	PublishBookingCancelled(ctx context.Context, evt events.BookingCancelledV1) error
}

// SlotLocker serializes booking creation per team member and day.
type SlotLocker interface {
	// Acquire returns acquired=false when another request holds the key.
	Acquire(ctx context.Context, key string) (acquired bool, release func(), err error)
}
