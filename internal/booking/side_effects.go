package booking

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Side effect names used in errors, logs and metrics.
const (
	EffectConfirmationEmail = "confirmation_email"
	EffectReminders         = "reminders"
	EffectReviewRequest     = "review_request"
	EffectSecretary         = "secretary_notification"
	EffectDocuments         = "document_delivery"
	EffectCalendarSync      = "calendar_sync"
)

// FinalizeSideEffects runs the post-persist steps in order. The first fatal
// failure is returned as a SideEffectError; secretary notification is always
// best-effort and the confirmation email follows the email failure policy.
func (e *Engine) FinalizeSideEffects(ctx context.Context, b *Booking, wc WorkflowContext) error {
	ctx, span := bookingTracer.Start(ctx, "booking.finalize_side_effects")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", b.ID.String()))
	started := e.now()
	defer func() { e.metrics.ObservePhase("side_effects", time.Since(started).Seconds()) }()

	appt := wc.appointment(b)

	if wc.ContactEmail != "" && e.notifier != nil {
		err := e.sendEmail(ctx, TemplatedEmail{
			Template:     TemplateConfirmation,
			To:           wc.ContactEmail,
			ToName:       wc.ContactName,
			BusinessName: e.businessName(ctx),
			Appointments: []Appointment{appt},
		})
		if err != nil {
			e.metrics.ObserveSideEffectFailure(EffectConfirmationEmail)
			if e.emailPolicy != EmailFailureBestEffort {
				span.RecordError(err)
				return &SideEffectError{Effect: EffectConfirmationEmail, Err: err}
			}
			e.logger.Warn("booking: confirmation email failed; keeping booking", "error", err, "booking_id", b.ID)
		}
	}

	if e.reminders != nil {
		leadTimes, err := e.policy.reminderLeadTimes(ctx)
		if err == nil {
			callCtx, cancel := e.callCtx(ctx)
			err = e.reminders.ScheduleReminders(callCtx, appt, leadTimes)
			cancel()
		}
		if err != nil {
			return e.fatalSideEffect(span, EffectReminders, err)
		}

		delay, err := e.policy.reviewDelay(ctx)
		if err == nil {
			callCtx, cancel := e.callCtx(ctx)
			err = e.reminders.ScheduleReviewRequest(callCtx, appt, delay)
			cancel()
		}
		if err != nil {
			return e.fatalSideEffect(span, EffectReviewRequest, err)
		}
	}

	if err := e.notifySecretary(ctx, TemplateSecretaryBooking, appt, ""); err != nil {
		e.metrics.ObserveSideEffectFailure(EffectSecretary)
		e.logger.Warn("booking: secretary notification failed", "error", err, "booking_id", b.ID)
	}

	if wc.ServiceID != nil && e.documents != nil {
		callCtx, cancel := e.callCtx(ctx)
		err := e.documents.ScheduleForBooking(callCtx, appt)
		cancel()
		if err != nil {
			return e.fatalSideEffect(span, EffectDocuments, err)
		}
	}
	return nil
}

func (e *Engine) fatalSideEffect(span trace.Span, effect string, err error) error {
	e.metrics.ObserveSideEffectFailure(effect)
	span.RecordError(err)
	return &SideEffectError{Effect: effect, Err: err}
}

func (e *Engine) sendEmail(ctx context.Context, email TemplatedEmail) error {
	callCtx, cancel := e.callCtx(ctx)
	defer cancel()
	if err := e.notifier.SendTemplatedEmail(callCtx, email); err != nil {
		return fmt.Errorf("send %s email: %w", email.Template, err)
	}
	return nil
}
