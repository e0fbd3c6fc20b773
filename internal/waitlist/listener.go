package waitlist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-crm/internal/events"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

// consumerName keys processed_events rows written by the listener.
const consumerName = "waitlist"

type entryStore interface {
	FindMatching(ctx context.Context, date string, serviceID, teamMemberID *uuid.UUID) ([]Entry, error)
	MarkNotified(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type processedTracker interface {
	Claim(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

// Sender delivers a WhatsApp message.
type Sender interface {
	SendWhatsApp(ctx context.Context, to, body string) error
}

// Listener offers freed slots to matching waitlist entries.
type Listener struct {
	store     entryStore
	processed processedTracker
	sender    Sender
	loc       *time.Location
	logger    *logging.Logger
}

// NewListener creates a Listener. processed dedupes redelivered events per
// consumer; offers are worded for loc.
func NewListener(store *Store, processed *events.ProcessedStore, sender Sender, loc *time.Location, logger *logging.Logger) *Listener {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	l := &Listener{sender: sender, loc: loc, logger: logger}
	if store != nil {
		l.store = store
	}
	if processed != nil {
		l.processed = processed
	}
	return l
}

// Subscribe attaches the listener to the booking-cancelled subject.
func (l *Listener) Subscribe(bus events.Bus) error {
	return bus.Subscribe(events.SubjectBookingCancelled, consumerName, l.HandleMessage)
}

// HandleMessage decodes a bus message carrying a BookingCancelledV1 envelope.
func (l *Listener) HandleMessage(ctx context.Context, msg events.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return fmt.Errorf("waitlist: decode envelope: %w", err)
	}
	var evt events.BookingCancelledV1
	if err := env.Decode(&evt); err != nil {
		return err
	}
	if evt.EventID == "" {
		evt.EventID = env.EventID.String()
	}
	return l.Handle(ctx, evt)
}

// Handle notifies every matching entry once per event. Individual send
// failures are logged; those entries stay waiting.
func (l *Listener) Handle(ctx context.Context, evt events.BookingCancelledV1) error {
	if l.processed != nil && evt.EventID != "" {
		claimed, err := l.processed.Claim(ctx, consumerName, evt.EventID)
		if err != nil {
			return err
		}
		if !claimed {
			l.logger.Debug("waitlist: event already handled", "event_id", evt.EventID)
			return nil
		}
	}
	if err := l.notify(ctx, evt); err != nil {
		if l.processed != nil && evt.EventID != "" {
			if relErr := l.processed.Release(ctx, consumerName, evt.EventID); relErr != nil {
				l.logger.Error("waitlist: release claim", "error", relErr, "event_id", evt.EventID)
			}
		}
		return err
	}
	return nil
}

func (l *Listener) notify(ctx context.Context, evt events.BookingCancelledV1) error {
	date := evt.StartTime.In(l.loc).Format(dateLayout)
	entries, err := l.store.FindMatching(ctx, date, parseOptionalUUID(evt.ServiceID), parseOptionalUUID(evt.TeamMemberID))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	var notified []uuid.UUID
	for _, e := range entries {
		if err := l.sender.SendWhatsApp(ctx, e.Phone, offerMessage(e, evt.StartTime.In(l.loc))); err != nil {
			l.logger.Warn("waitlist: offer failed", "error", err, "entry_id", e.ID, "booking_id", evt.BookingID)
			continue
		}
		notified = append(notified, e.ID)
	}
	n, err := l.store.MarkNotified(ctx, notified)
	if err != nil {
		return err
	}
	l.logger.Info("waitlist: slot offered", "booking_id", evt.BookingID, "matches", len(entries), "notified", n)
	return nil
}

func parseOptionalUUID(raw string) *uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &id
}

func offerMessage(e Entry, start time.Time) string {
	hello := "Hi"
	if name := strings.Fields(e.Name); len(name) > 0 {
		hello = "Hi " + name[0]
	}
	return fmt.Sprintf("%s, a slot just opened on %s at %s. Reply to this message to book it.",
		hello, start.Format("Mon 02.01.2006"), start.Format("15:04"))
}
