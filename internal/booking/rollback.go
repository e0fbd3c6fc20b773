package booking

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// RollbackBooking deletes the booking row and then its calendar event. Both
// steps are attempted independently and failures are only logged.
func (e *Engine) RollbackBooking(ctx context.Context, bookingID uuid.UUID, calendarID, calendarEventID string) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := bookingTracer.Start(ctx, "booking.rollback")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.id", bookingID.String()),
		attribute.String("booking.calendar_event_id", calendarEventID),
	)
	e.metrics.ObserveRollback()

	if bookingID != uuid.Nil {
		callCtx, cancel := e.callCtx(ctx)
		err := e.store.DeleteBooking(callCtx, bookingID)
		cancel()
		if err != nil {
			span.RecordError(err)
			e.logger.Error("booking rollback: delete booking row failed", "error", err, "booking_id", bookingID)
		} else {
			e.logger.Info("booking rollback: booking row deleted", "booking_id", bookingID)
		}
	}

	e.deleteCalendarEvent(ctx, calendarID, calendarEventID, bookingID)
}

func (e *Engine) deleteCalendarEvent(ctx context.Context, calendarID, eventID string, bookingID uuid.UUID) bool {
	if eventID == "" {
		return true
	}
	callCtx, cancel := e.callCtx(ctx)
	defer cancel()
	if err := e.calendar.DeleteEvent(callCtx, calendarID, eventID); err != nil {
		e.logger.Error("booking: delete calendar event failed",
			"error", err,
			"booking_id", bookingID,
			"calendar_id", calendarID,
			"calendar_event_id", eventID,
		)
		return false
	}
	return true
}
