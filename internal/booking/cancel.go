package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/booking-crm/internal/events"
)

// CancellationResult is returned by CancelBooking.
type CancellationResult struct {
	PenaltyApplied bool            `json:"penalty_applied"`
	PenaltyFee     decimal.Decimal `json:"penalty_fee"`
	Refunded       bool            `json:"refunded"`
	Late           bool            `json:"late"`
}

// CancelBooking cancels a booking. The status update is the claim: it runs
// before any penalty, refund or calendar change, so a failed or concurrent
// cancel never charges twice. After the claim every step is attempted and
// sub-step failures are only logged.
func (e *Engine) CancelBooking(ctx context.Context, bookingID uuid.UUID, reason string) (*CancellationResult, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", bookingID.String()))

	b, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("booking: load booking %s: %w", bookingID, err)
	}
	if b.Status.Terminal() {
		return nil, violation(RuleAlreadyFinal, "booking is already %s", b.Status)
	}
	log := e.logger.With("booking_id", b.ID, "contact_id", b.ContactID)

	contact, err := e.store.GetContact(ctx, b.ContactID)
	if err != nil {
		log.Warn("booking cancel: contact lookup failed", "error", err)
		contact = &Contact{ID: b.ContactID}
	}
	var svc *Service
	if b.ServiceID != nil {
		if svc, err = e.store.GetService(ctx, *b.ServiceID); err != nil {
			log.Warn("booking cancel: service lookup failed", "error", err)
			svc = nil
		}
	}

	now := e.now()
	result := &CancellationResult{PenaltyFee: decimal.Zero}
	window, err := e.policy.cancellationWindow(ctx)
	if err != nil {
		log.Warn("booking cancel: policy lookup failed; treating as on time", "error", err)
	} else {
		result.Late = b.StartTime.Sub(now) < window
	}
	if result.Late {
		price := decimal.Zero
		if svc != nil {
			price = svc.Price
		}
		fee, err := e.policy.penaltyFor(ctx, price)
		if err != nil {
			log.Warn("booking cancel: penalty policy lookup failed", "error", err)
		}
		if fee.IsPositive() {
			result.PenaltyApplied = true
			result.PenaltyFee = fee
		}
	}

	err = e.store.MarkCancelled(ctx, Cancellation{
		BookingID:      b.ID,
		CancelledAt:    now.UTC(),
		Reason:         reason,
		PenaltyApplied: result.PenaltyApplied,
		PenaltyFee:     result.PenaltyFee,
	})
	if errors.Is(err, ErrNotFound) {
		// Loaded as active but no longer is: another cancel won.
		return nil, violation(RuleAlreadyFinal, "booking was cancelled concurrently")
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("booking: mark cancelled: %w", err)
	}
	e.metrics.ObserveCancellation(result.Late)

	switch {
	case result.PenaltyApplied:
		e.chargePenalty(ctx, b, contact, svc, result.PenaltyFee)
	case !result.Late && e.payments != nil:
		callCtx, cancel := e.callCtx(ctx)
		refunded, err := e.payments.HandleCancellationRefund(callCtx, b.ID)
		cancel()
		if err != nil {
			log.Error("booking cancel: refund failed", "error", err)
		}
		result.Refunded = refunded
	}

	if b.CalendarEventID != "" {
		e.deleteCalendarEvent(ctx, e.teamMemberCalendar(ctx, b), b.CalendarEventID, b.ID)
	}

	appt := Appointment{
		BookingID:    b.ID,
		ContactID:    b.ContactID,
		ContactName:  contact.Name,
		ContactPhone: contact.Phone,
		ContactEmail: contact.Email,
		ServiceID:    b.ServiceID,
		Title:        b.Title,
		StartTime:    b.StartTime,
		EndTime:      b.EndTime,
	}
	if svc != nil {
		appt.ServiceName = svc.Name
	}

	if contact.Email != "" && e.notifier != nil {
		err := e.sendEmail(ctx, TemplatedEmail{
			Template:       TemplateCancellation,
			To:             contact.Email,
			ToName:         contact.Name,
			BusinessName:   e.businessName(ctx),
			Appointments:   []Appointment{appt},
			Reason:         reason,
			PenaltyApplied: result.PenaltyApplied,
			PenaltyFee:     result.PenaltyFee,
		})
		if err != nil {
			log.Error("booking cancel: cancellation email failed", "error", err)
		}
	}

	if e.reminders != nil {
		callCtx, cancel := e.callCtx(ctx)
		n, err := e.reminders.CancelForBooking(callCtx, b.ID)
		cancel()
		if err != nil {
			log.Error("booking cancel: cancel reminders failed", "error", err)
		} else if n > 0 {
			log.Info("booking cancel: pending reminders cancelled", "count", n)
		}
	}

	if err := e.notifySecretary(ctx, TemplateSecretaryCancel, appt, reason); err != nil {
		log.Warn("booking cancel: secretary notification failed", "error", err)
	}

	if e.publisher != nil {
		evt := events.BookingCancelledV1{
			EventID:     e.newID().String(),
			BookingID:   b.ID.String(),
			ContactID:   b.ContactID.String(),
			StartTime:   b.StartTime,
			EndTime:     b.EndTime,
			CancelledAt: now.UTC(),
			Reason:      reason,
		}
		if b.ServiceID != nil {
			evt.ServiceID = b.ServiceID.String()
		}
		if b.TeamMemberID != nil {
			evt.TeamMemberID = b.TeamMemberID.String()
		}
		callCtx, cancel := e.callCtx(ctx)
		err := e.publisher.PublishBookingCancelled(callCtx, evt)
		cancel()
		if err != nil {
			log.Error("booking cancel: publish cancellation event failed", "error", err)
		}
	}

	log.Info("booking cancelled",
		"late", result.Late,
		"penalty_applied", result.PenaltyApplied,
		"penalty_fee", result.PenaltyFee.StringFixed(2),
		"refunded", result.Refunded,
	)
	return result, nil
}

// chargePenalty records the penalty transaction and sends the payment link
// in the background.
func (e *Engine) chargePenalty(ctx context.Context, b *Booking, contact *Contact, svc *Service, fee decimal.Decimal) {
	if e.payments == nil {
		return
	}
	desc := "Late cancellation fee"
	if svc != nil {
		desc = fmt.Sprintf("Late cancellation fee: %s", svc.Name)
	}
	req := PenaltyRequest{
		BookingID:    b.ID,
		ContactID:    b.ContactID,
		ContactName:  contact.Name,
		ContactEmail: contact.Email,
		ContactPhone: contact.Phone,
		Amount:       fee,
		Description:  desc,
	}
	callCtx, cancel := e.callCtx(ctx)
	txID, err := e.payments.CreatePenaltyTransaction(callCtx, req)
	cancel()
	if errors.Is(err, ErrPenaltyExists) {
		e.logger.Warn("booking cancel: penalty already recorded; no new payment link", "booking_id", b.ID)
		return
	}
	if err != nil {
		e.logger.Error("booking cancel: create penalty transaction failed", "error", err, "booking_id", b.ID)
		return
	}

	bg := context.WithoutCancel(ctx)
	e.async(func() {
		linkCtx, cancel := e.callCtx(bg)
		defer cancel()
		if err := e.payments.SendPenaltyPaymentLink(linkCtx, txID, req); err != nil {
			e.logger.Error("booking cancel: penalty payment link failed", "error", err, "booking_id", b.ID, "transaction_id", txID)
		}
	})
}

func (e *Engine) teamMemberCalendar(ctx context.Context, b *Booking) string {
	if b.TeamMemberID == nil {
		return ""
	}
	member, err := e.store.GetTeamMember(ctx, *b.TeamMemberID)
	if err != nil {
		e.logger.Warn("booking: team member lookup failed; using default calendar", "error", err, "booking_id", b.ID)
		return ""
	}
	return member.CalendarID
}
