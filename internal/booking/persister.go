package booking

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// PersistBooking creates the calendar event and then the confirmed booking
// row from a validated context. A calendar event left behind by a failed
// insert is reported through PersistError and is not cleaned up here.
func (e *Engine) PersistBooking(ctx context.Context, wc WorkflowContext) (*Booking, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.persist")
	defer span.End()
	started := e.now()
	defer func() { e.metrics.ObservePhase("persist", time.Since(started).Seconds()) }()

	event := wc.Event
	callCtx, cancel := e.callCtx(ctx)
	eventID, err := e.calendar.CreateEvent(callCtx, wc.CalendarID, event)
	cancel()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("booking: create calendar event: %w", err)
	}

	now := e.now().UTC()
	b := &Booking{
		ID:               e.newID(),
		ContactID:        wc.ContactID,
		ConversationID:   wc.ConversationID,
		ServiceID:        wc.ServiceID,
		TeamMemberID:     wc.TeamMemberID,
		Title:            event.Title,
		Description:      event.Description,
		StartTime:        event.StartTime,
		EndTime:          event.EndTime,
		ActualStartTime:  wc.ActualStartTime,
		ActualEndTime:    wc.ActualEndTime,
		BufferTimeBefore: wc.BufferTimeBefore,
		BufferTimeAfter:  wc.BufferTimeAfter,
		Status:           StatusConfirmed,
		CalendarEventID:  eventID,
		DiscountCode:     wc.DiscountCode,
		DiscountAmount:   wc.DiscountAmount,
		PromoVoucher:     wc.PromoVoucher,
		PaymentStatus:    wc.PaymentStatus,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	span.SetAttributes(
		attribute.String("booking.id", b.ID.String()),
		attribute.String("booking.calendar_event_id", eventID),
	)

	if err := e.store.InsertBooking(ctx, b); err != nil {
		span.RecordError(err)
		e.logger.Error("booking: insert failed after calendar event was created",
			"error", err,
			"contact_id", wc.ContactID,
			"calendar_event_id", eventID,
		)
		return nil, &PersistError{CalendarID: wc.CalendarID, CalendarEventID: eventID, Err: err}
	}
	return b, nil
}
