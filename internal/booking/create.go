package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const lockKeyGlobal = "global"

// CreateBooking validates, persists and finalizes one appointment. Either the
// booking and all fatal side effects succeed, or nothing remains.
func (e *Engine) CreateBooking(ctx context.Context, in CreateBookingInput) (*Booking, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.create")
	defer span.End()
	span.SetAttributes(attribute.String("booking.contact_id", in.ContactID.String()))

	b, wc, err := e.reserve(ctx, in)
	if err != nil {
		span.RecordError(err)
		e.observeRejection(err)
		e.metrics.ObserveCreated("single", "rejected")
		return nil, err
	}

	if err := e.FinalizeSideEffects(ctx, b, wc); err != nil {
		e.logger.Error("booking: side effects failed; rolling back",
			"error", err,
			"booking_id", b.ID,
			"contact_id", b.ContactID,
		)
		e.RollbackBooking(ctx, b.ID, wc.CalendarID, b.CalendarEventID)
		e.metrics.ObserveCreated("single", "rolled_back")
		return nil, err
	}

	e.metrics.ObserveCreated("single", "success")
	e.logger.Info("booking confirmed",
		"booking_id", b.ID,
		"contact_id", b.ContactID,
		"calendar_event_id", b.CalendarEventID,
		"start_time", b.StartTime,
	)
	return b, nil
}

// reserve holds the slot lock across validation and persistence.
func (e *Engine) reserve(ctx context.Context, in CreateBookingInput) (*Booking, WorkflowContext, error) {
	if e.locker != nil {
		acquired, release, err := e.locker.Acquire(ctx, e.slotLockKey(in))
		if err != nil {
			return nil, WorkflowContext{}, fmt.Errorf("booking: acquire slot lock: %w", err)
		}
		if !acquired {
			return nil, WorkflowContext{}, violation(RuleSlotBusy, "another booking for this time is being processed; please try again")
		}
		defer release()
	}

	wc, err := e.ValidateAndPrepare(ctx, in)
	if err != nil {
		return nil, WorkflowContext{}, err
	}

	b, err := e.PersistBooking(ctx, wc)
	if err != nil {
		var perr *PersistError
		if errors.As(err, &perr) {
			e.deleteCalendarEvent(context.WithoutCancel(ctx), perr.CalendarID, perr.CalendarEventID, uuid.Nil)
		}
		return nil, WorkflowContext{}, err
	}
	return b, wc, nil
}

// slotLockKey scopes the lock to the team member (or the whole business)
// and the local calendar day of the request.
func (e *Engine) slotLockKey(in CreateBookingInput) string {
	owner := lockKeyGlobal
	if in.Options.TeamMemberID != nil && !e.globalConflictCheck {
		owner = in.Options.TeamMemberID.String()
	}
	return owner + ":" + in.Event.StartTime.In(e.loc).Format("2006-01-02")
}
