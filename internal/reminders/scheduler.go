package reminders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-crm/internal/booking"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

type messageStore interface {
	Insert(ctx context.Context, msgs []Message) error
	CancelForBooking(ctx context.Context, bookingID uuid.UUID) (int64, error)
}

// Scheduler queues reminder and review messages for a booking.
type Scheduler struct {
	store     messageStore
	quiet     QuietHours
	loc       *time.Location
	reviewURL string
	logger    *logging.Logger
	now       func() time.Time
}

var _ booking.ReminderScheduler = (*Scheduler)(nil)

// NewScheduler creates a Scheduler that renders times in loc and defers
// marketing messages out of quiet. An empty reviewURL omits the link.
func NewScheduler(store *Store, loc *time.Location, quiet QuietHours, reviewURL string, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		quiet:     quiet,
		loc:       loc,
		reviewURL: strings.TrimSpace(reviewURL),
		logger:    logger,
		now:       time.Now,
	}
	if store != nil {
		s.store = store
	}
	return s
}

// ScheduleReminders queues one reminder per lead time. Lead times that
// would fire in the past are skipped.
func (s *Scheduler) ScheduleReminders(ctx context.Context, appt booking.Appointment, leadTimes []time.Duration) error {
	if s.store == nil {
		return fmt.Errorf("reminders: store not configured")
	}
	if appt.ContactPhone == "" {
		s.logger.Warn("reminders: contact has no phone, skipping reminders", "booking_id", appt.BookingID)
		return nil
	}
	now := s.now()
	var msgs []Message
	for _, lead := range leadTimes {
		if lead <= 0 {
			continue
		}
		sendAt := appt.StartTime.Add(-lead)
		if !sendAt.After(now) {
			continue
		}
		msgs = append(msgs, Message{
			BookingID: appt.BookingID,
			ContactID: appt.ContactID,
			Kind:      KindReminder,
			Phone:     appt.ContactPhone,
			Body:      reminderMessage(appt, s.loc),
			SendAt:    sendAt,
		})
	}
	if err := s.store.Insert(ctx, msgs); err != nil {
		return err
	}
	s.logger.Debug("reminders scheduled", "booking_id", appt.BookingID, "count", len(msgs))
	return nil
}

// ScheduleReviewRequest queues a review request delay after the
// appointment ends, pushed out of quiet hours.
func (s *Scheduler) ScheduleReviewRequest(ctx context.Context, appt booking.Appointment, delay time.Duration) error {
	if s.store == nil {
		return fmt.Errorf("reminders: store not configured")
	}
	if appt.ContactPhone == "" {
		return nil
	}
	sendAt := s.quiet.Defer(appt.EndTime.Add(delay), PurposeMarketing)
	return s.store.Insert(ctx, []Message{{
		BookingID: appt.BookingID,
		ContactID: appt.ContactID,
		Kind:      KindReview,
		Phone:     appt.ContactPhone,
		Body:      reviewMessage(appt, s.reviewURL),
		SendAt:    sendAt,
	}})
}

// CancelForBooking cancels the booking's pending messages and reports how
// many were cancelled.
func (s *Scheduler) CancelForBooking(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	if s.store == nil {
		return 0, fmt.Errorf("reminders: store not configured")
	}
	return s.store.CancelForBooking(ctx, bookingID)
}

func appointmentLabel(appt booking.Appointment) string {
	if appt.ServiceName != "" {
		return appt.ServiceName
	}
	if appt.Title != "" {
		return appt.Title
	}
	return "appointment"
}

func greeting(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return "Hi " + strings.Fields(name)[0]
	}
	return "Hi"
}

func reminderMessage(appt booking.Appointment, loc *time.Location) string {
	start := appt.StartTime.In(loc)
	return fmt.Sprintf("%s, a reminder of your %s on %s at %s. Reply CANCEL if you can no longer make it.",
		greeting(appt.ContactName), appointmentLabel(appt), start.Format("Mon 02.01.2006"), start.Format("15:04"))
}

func reviewMessage(appt booking.Appointment, reviewURL string) string {
	msg := fmt.Sprintf("%s, thank you for your visit for %s. We would love to hear how it went.",
		greeting(appt.ContactName), appointmentLabel(appt))
	if reviewURL != "" {
		msg += " Leave a review: " + reviewURL
	}
	return msg
}
