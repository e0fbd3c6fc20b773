package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Options are the optional parts of a booking request.
type Options struct {
	ServiceID      *uuid.UUID      `json:"service_id,omitempty"`
	TeamMemberID   *uuid.UUID      `json:"team_member_id,omitempty"`
	DiscountCode   string          `json:"discount_code,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	PromoVoucher   string          `json:"promo_voucher,omitempty"`
	PaymentStatus  string          `json:"payment_status,omitempty"`
}

// CreateBookingInput is a single appointment request.
type CreateBookingInput struct {
	ContactID      uuid.UUID     `json:"contact_id"`
	ConversationID *uuid.UUID    `json:"conversation_id,omitempty"`
	Event          CalendarEvent `json:"event"`
	Options        Options       `json:"options"`
}

// WorkflowContext is produced by validation and consumed by persistence and
// side effects within one createBooking call. It is passed by value and
// never modified after construction.
type WorkflowContext struct {
	ContactID      uuid.UUID
	ConversationID *uuid.UUID
	ServiceID      *uuid.UUID
	TeamMemberID   *uuid.UUID
	Event          CalendarEvent

	BufferTimeBefore int
	BufferTimeAfter  int
	ActualStartTime  time.Time
	ActualEndTime    time.Time

	ContactName  string
	ContactEmail string
	ContactPhone string
	ServiceName  string
	CalendarID   string

	DiscountCode   string
	DiscountAmount decimal.Decimal
	PromoVoucher   string
	PaymentStatus  string
}

// appointment builds the denormalized view for a persisted booking.
func (wc WorkflowContext) appointment(b *Booking) Appointment {
	return Appointment{
		BookingID:    b.ID,
		ContactID:    wc.ContactID,
		ContactName:  wc.ContactName,
		ContactPhone: wc.ContactPhone,
		ContactEmail: wc.ContactEmail,
		ServiceID:    wc.ServiceID,
		ServiceName:  wc.ServiceName,
		Title:        b.Title,
		StartTime:    b.StartTime,
		EndTime:      b.EndTime,
	}
}

// ValidateAndPrepare runs every read-only gate in a fixed order and returns
// the workflow context. It never writes, so it is safe to retry.
func (e *Engine) ValidateAndPrepare(ctx context.Context, in CreateBookingInput) (WorkflowContext, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.validate_and_prepare")
	defer span.End()
	span.SetAttributes(attribute.String("booking.contact_id", in.ContactID.String()))
	started := e.now()
	defer func() { e.metrics.ObservePhase("validate", time.Since(started).Seconds()) }()

	wc, err := e.validateAndPrepare(ctx, in)
	if err != nil {
		span.RecordError(err)
		return WorkflowContext{}, err
	}
	return wc, nil
}

func (e *Engine) validateAndPrepare(ctx context.Context, in CreateBookingInput) (WorkflowContext, error) {
	if in.ContactID == uuid.Nil {
		return WorkflowContext{}, violation(RuleInvalidRequest, "a contact is required to book")
	}
	if !in.Event.EndTime.After(in.Event.StartTime) {
		return WorkflowContext{}, violation(RuleInvalidRequest, "appointment end must be after its start")
	}

	suspension, err := e.suspensions.IsContactSuspended(ctx, in.ContactID)
	if err != nil {
		return WorkflowContext{}, fmt.Errorf("booking: suspension check: %w", err)
	}
	if suspension.Suspended {
		if suspension.Until != nil {
			return WorkflowContext{}, violation(RuleContactSuspended,
				"booking is suspended after missed appointments until %s", suspension.Until.In(e.loc).Format("2006-01-02 15:04"))
		}
		return WorkflowContext{}, violation(RuleContactSuspended, "booking is suspended after missed appointments")
	}

	contact, err := e.store.GetContact(ctx, in.ContactID)
	if errors.Is(err, ErrNotFound) {
		return WorkflowContext{}, violation(RuleContactNotFound, "contact %s does not exist", in.ContactID)
	}
	if err != nil {
		return WorkflowContext{}, fmt.Errorf("booking: load contact: %w", err)
	}
	if err := checkPaymentStanding(contact); err != nil {
		return WorkflowContext{}, err
	}

	var svc *Service
	if in.Options.ServiceID != nil {
		svc, err = e.store.GetService(ctx, *in.Options.ServiceID)
		if errors.Is(err, ErrNotFound) {
			return WorkflowContext{}, violation(RuleServiceNotFound, "the selected service does not exist")
		}
		if err != nil {
			return WorkflowContext{}, fmt.Errorf("booking: load service: %w", err)
		}
	}

	wc := WorkflowContext{
		ContactID:      in.ContactID,
		ConversationID: in.ConversationID,
		ServiceID:      in.Options.ServiceID,
		TeamMemberID:   in.Options.TeamMemberID,
		Event:          in.Event,
		ContactName:    contact.Name,
		ContactEmail:   contact.Email,
		ContactPhone:   contact.Phone,
		DiscountCode:   in.Options.DiscountCode,
		DiscountAmount: in.Options.DiscountAmount,
		PromoVoucher:   in.Options.PromoVoucher,
		PaymentStatus:  in.Options.PaymentStatus,
	}
	if svc != nil {
		wc.BufferTimeBefore = svc.BufferTimeBefore
		wc.BufferTimeAfter = svc.BufferTimeAfter
		wc.ServiceName = svc.Name
	}
	wc.ActualStartTime, wc.ActualEndTime = BufferedInterval(in.Event.StartTime, in.Event.EndTime, wc.BufferTimeBefore, wc.BufferTimeAfter)

	if err := e.checkConfiguration(ctx, in.Event, svc); err != nil {
		return WorkflowContext{}, err
	}

	if e.globalConflictCheck || in.Options.TeamMemberID == nil {
		if err := e.checkGlobalConflicts(ctx, wc.ActualStartTime, wc.ActualEndTime); err != nil {
			return WorkflowContext{}, err
		}
	}

	if in.Options.TeamMemberID != nil {
		calendarID, err := e.checkTeamMember(ctx, *in.Options.TeamMemberID, in.Options.ServiceID, wc.ActualStartTime, wc.ActualEndTime)
		if err != nil {
			return WorkflowContext{}, err
		}
		wc.CalendarID = calendarID
	}

	if wc.Event.Title == "" {
		wc.Event.Title = defaultTitle(wc)
	}
	return wc, nil
}

func defaultTitle(wc WorkflowContext) string {
	switch {
	case wc.ServiceName != "" && wc.ContactName != "":
		return wc.ServiceName + " - " + wc.ContactName
	case wc.ServiceName != "":
		return wc.ServiceName
	case wc.ContactName != "":
		return "Appointment - " + wc.ContactName
	default:
		return "Appointment"
	}
}
