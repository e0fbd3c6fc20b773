package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// SyncStatus aggregates per-item outcomes of a batch side effect.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncPartial SyncStatus = "partial"
	SyncFailed  SyncStatus = "failed"
	SyncSkipped SyncStatus = "skipped"
)

func aggregateStatus(ok, total int) SyncStatus {
	switch {
	case total == 0:
		return SyncSkipped
	case ok == total:
		return SyncSuccess
	case ok == 0:
		return SyncFailed
	default:
		return SyncPartial
	}
}

// SessionSlot is one requested session of a multi-session treatment.
type SessionSlot struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// BatchBookingRequest books every session of a treatment together.
type BatchBookingRequest struct {
	ContactID      uuid.UUID       `json:"contact_id"`
	ConversationID *uuid.UUID      `json:"conversation_id,omitempty"`
	ServiceID      uuid.UUID       `json:"service_id"`
	TeamMemberID   *uuid.UUID      `json:"team_member_id,omitempty"`
	Title          string          `json:"title,omitempty"`
	Description    string          `json:"description,omitempty"`
	Sessions       []SessionSlot   `json:"sessions"`
	DiscountCode   string          `json:"discount_code,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	PromoVoucher   string          `json:"promo_voucher,omitempty"`
	PaymentStatus  string          `json:"payment_status,omitempty"`
}

// BatchBookingResult reports a batch. Bookings exist once Success is true,
// whatever the calendar and email status.
type BatchBookingResult struct {
	Success            bool       `json:"success"`
	SessionGroupID     uuid.UUID  `json:"session_group_id"`
	Bookings           []Booking  `json:"bookings"`
	CalendarSyncStatus SyncStatus `json:"calendar_sync_status"`
	EmailStatus        SyncStatus `json:"email_status"`
	Error              string     `json:"error,omitempty"`
}

// batchPlan is the validated input of the persist phase.
type batchPlan struct {
	contact    *Contact
	service    *Service
	calendarID string
}

// CreateBatchBooking validates every session, inserts all rows in one
// transaction and then syncs calendars and sends email best-effort. Side
// effect failures never remove committed rows. The returned result is never
// nil; on error Success is false.
func (e *Engine) CreateBatchBooking(ctx context.Context, req BatchBookingRequest) (*BatchBookingResult, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.create_batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.contact_id", req.ContactID.String()),
		attribute.Int("booking.sessions", len(req.Sessions)),
	)

	result := &BatchBookingResult{CalendarSyncStatus: SyncSkipped, EmailStatus: SyncSkipped}
	fail := func(err error) (*BatchBookingResult, error) {
		span.RecordError(err)
		e.observeRejection(err)
		e.metrics.ObserveCreated("batch", "failed")
		result.Success = false
		result.Bookings = nil
		result.Error = err.Error()
		return result, err
	}

	plan, err := e.validateBatch(ctx, req)
	if err != nil {
		return fail(err)
	}

	groupID := e.newID()
	rows := e.buildBatchRows(req, plan, groupID)
	stored, err := e.store.InsertBatch(ctx, rows)
	if err != nil {
		return fail(fmt.Errorf("booking: batch insert: %w", err))
	}
	if len(stored) != len(rows) {
		return fail(fmt.Errorf("%w: stored %d of %d sessions", ErrBatchIncomplete, len(stored), len(rows)))
	}

	result.Success = true
	result.SessionGroupID = groupID
	result.Bookings = stored
	e.metrics.ObserveCreated("batch", "success")
	e.logger.Info("batch booking committed",
		"session_group_id", groupID,
		"contact_id", req.ContactID,
		"sessions", len(stored),
	)

	result.CalendarSyncStatus = e.syncBatchCalendar(ctx, result.Bookings, plan.calendarID)
	result.EmailStatus = e.sendBatchEmails(ctx, result.Bookings, plan)
	return result, nil
}

func (e *Engine) validateBatch(ctx context.Context, req BatchBookingRequest) (batchPlan, error) {
	var plan batchPlan
	if len(req.Sessions) == 0 {
		return plan, violation(RuleInvalidRequest, "at least one session is required")
	}
	if req.ContactID == uuid.Nil || req.ServiceID == uuid.Nil {
		return plan, violation(RuleInvalidRequest, "contact and service are required for a multi-session booking")
	}

	suspension, err := e.suspensions.IsContactSuspended(ctx, req.ContactID)
	if err != nil {
		return plan, fmt.Errorf("booking: suspension check: %w", err)
	}
	if suspension.Suspended {
		return plan, violation(RuleContactSuspended, "booking is suspended after missed appointments")
	}

	svc, err := e.store.GetService(ctx, req.ServiceID)
	if errors.Is(err, ErrNotFound) {
		return plan, violation(RuleServiceNotFound, "the selected service does not exist")
	}
	if err != nil {
		return plan, fmt.Errorf("booking: load service: %w", err)
	}
	if !svc.IsActive {
		return plan, violation(RuleServiceInactive, "%s is not currently offered", svc.Name)
	}
	plan.service = svc

	contact, err := e.store.GetContact(ctx, req.ContactID)
	if errors.Is(err, ErrNotFound) {
		return plan, violation(RuleContactNotFound, "contact %s does not exist", req.ContactID)
	}
	if err != nil {
		return plan, fmt.Errorf("booking: load contact: %w", err)
	}
	plan.contact = contact

	if req.TeamMemberID != nil {
		member, err := e.store.GetTeamMember(ctx, *req.TeamMemberID)
		if errors.Is(err, ErrNotFound) {
			return plan, violation(RuleTeamMemberNotFound, "the selected team member does not exist")
		}
		if err != nil {
			return plan, fmt.Errorf("booking: load team member: %w", err)
		}
		if !member.IsActive {
			return plan, violation(RuleTeamMemberInactive, "%s is not currently taking appointments", member.Name)
		}
		plan.calendarID = member.CalendarID
	}

	sessions := make([]SessionSlot, len(req.Sessions))
	copy(sessions, req.Sessions)
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartTime.Before(sessions[j].StartTime) })

	for i, s := range req.Sessions {
		if !s.EndTime.After(s.StartTime) {
			return plan, violation(RuleInvalidRequest, "session %d: end must be after start", i+1)
		}
		start, end := BufferedInterval(s.StartTime, s.EndTime, svc.BufferTimeBefore, svc.BufferTimeAfter)
		existing, err := e.store.ListContactOverlaps(ctx, req.ContactID, start, end)
		if err != nil {
			return plan, fmt.Errorf("booking: session %d: load contact bookings: %w", i+1, err)
		}
		if len(existing) > 0 {
			titles := make([]string, 0, len(existing))
			for _, b := range existing {
				titles = append(titles, b.Title)
			}
			return plan, violation(RuleContactOverlap, "session %d on %s overlaps an existing appointment: %s",
				i+1, s.StartTime.In(e.loc).Format("2006-01-02 15:04"), strings.Join(titles, ", "))
		}
	}
	// Sessions share one service, so adjacent buffered intervals are enough.
	for i := 1; i < len(sessions); i++ {
		prevStart, prevEnd := BufferedInterval(sessions[i-1].StartTime, sessions[i-1].EndTime, svc.BufferTimeBefore, svc.BufferTimeAfter)
		curStart, curEnd := BufferedInterval(sessions[i].StartTime, sessions[i].EndTime, svc.BufferTimeBefore, svc.BufferTimeAfter)
		if Overlaps(prevStart, prevEnd, curStart, curEnd) {
			return plan, violation(RuleContactOverlap, "requested sessions on %s overlap each other",
				sessions[i].StartTime.In(e.loc).Format("2006-01-02 15:04"))
		}
	}
	return plan, nil
}

func (e *Engine) buildBatchRows(req BatchBookingRequest, plan batchPlan, groupID uuid.UUID) []Booking {
	now := e.now().UTC()
	total := len(req.Sessions)
	title := req.Title
	if title == "" {
		title = defaultTitle(WorkflowContext{ServiceName: plan.service.Name, ContactName: plan.contact.Name})
	}
	serviceID := req.ServiceID
	rows := make([]Booking, 0, total)
	for i, s := range req.Sessions {
		start, end := BufferedInterval(s.StartTime, s.EndTime, plan.service.BufferTimeBefore, plan.service.BufferTimeAfter)
		group := groupID
		rows = append(rows, Booking{
			ID:               e.newID(),
			ContactID:        req.ContactID,
			ConversationID:   req.ConversationID,
			ServiceID:        &serviceID,
			TeamMemberID:     req.TeamMemberID,
			Title:            fmt.Sprintf("%s (%d/%d)", title, i+1, total),
			Description:      req.Description,
			StartTime:        s.StartTime,
			EndTime:          s.EndTime,
			ActualStartTime:  start,
			ActualEndTime:    end,
			BufferTimeBefore: plan.service.BufferTimeBefore,
			BufferTimeAfter:  plan.service.BufferTimeAfter,
			Status:           StatusConfirmed,
			DiscountCode:     req.DiscountCode,
			DiscountAmount:   req.DiscountAmount,
			PromoVoucher:     req.PromoVoucher,
			PaymentStatus:    req.PaymentStatus,
			SessionGroupID:   &group,
			SessionNumber:    i + 1,
			TotalSessions:    total,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	return rows
}

// syncBatchCalendar creates one event per booking; each failure is isolated.
func (e *Engine) syncBatchCalendar(ctx context.Context, bookings []Booking, calendarID string) SyncStatus {
	ok := 0
	for i := range bookings {
		b := &bookings[i]
		if err := e.syncOne(ctx, b, calendarID); err != nil {
			e.metrics.ObserveSideEffectFailure(EffectCalendarSync)
			e.logger.Error("batch booking: calendar sync failed",
				"error", err,
				"booking_id", b.ID,
				"session_number", b.SessionNumber,
			)
			continue
		}
		ok++
	}
	return aggregateStatus(ok, len(bookings))
}

func (e *Engine) syncOne(ctx context.Context, b *Booking, calendarID string) error {
	callCtx, cancel := e.callCtx(ctx)
	defer cancel()
	eventID, err := e.calendar.CreateEvent(callCtx, calendarID, CalendarEvent{
		Title:       b.Title,
		Description: b.Description,
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
	})
	if err != nil {
		return err
	}
	if err := e.store.SetCalendarEventID(ctx, b.ID, eventID); err != nil {
		e.deleteCalendarEvent(ctx, calendarID, eventID, b.ID)
		return fmt.Errorf("store calendar event id: %w", err)
	}
	b.CalendarEventID = eventID
	return nil
}

// sendBatchEmails tries one summary email and falls back to one email per session.
func (e *Engine) sendBatchEmails(ctx context.Context, bookings []Booking, plan batchPlan) SyncStatus {
	if plan.contact.Email == "" || e.notifier == nil {
		return SyncSkipped
	}
	appts := make([]Appointment, 0, len(bookings))
	for _, b := range bookings {
		appts = append(appts, Appointment{
			BookingID:    b.ID,
			ContactID:    b.ContactID,
			ContactName:  plan.contact.Name,
			ContactPhone: plan.contact.Phone,
			ContactEmail: plan.contact.Email,
			ServiceID:    b.ServiceID,
			ServiceName:  plan.service.Name,
			Title:        b.Title,
			StartTime:    b.StartTime,
			EndTime:      b.EndTime,
		})
	}
	business := e.businessName(ctx)
	err := e.sendEmail(ctx, TemplatedEmail{
		Template:     TemplateBatchConfirmation,
		To:           plan.contact.Email,
		ToName:       plan.contact.Name,
		BusinessName: business,
		Appointments: appts,
	})
	if err == nil {
		return SyncSuccess
	}
	e.logger.Warn("batch booking: summary email failed; sending individual confirmations", "error", err, "contact_id", plan.contact.ID)

	ok := 0
	for _, appt := range appts {
		err := e.sendEmail(ctx, TemplatedEmail{
			Template:     TemplateConfirmation,
			To:           plan.contact.Email,
			ToName:       plan.contact.Name,
			BusinessName: business,
			Appointments: []Appointment{appt},
		})
		if err != nil {
			e.metrics.ObserveSideEffectFailure(EffectConfirmationEmail)
			e.logger.Error("batch booking: confirmation email failed", "error", err, "booking_id", appt.BookingID)
			continue
		}
		ok++
	}
	return aggregateStatus(ok, len(appts))
}
