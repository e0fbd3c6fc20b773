// Package booking implements the appointment workflow: validation gates,
// persistence, post-persist side effects with compensating rollback, atomic
// multi-session batches and cancellation.
package booking

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusNoShow
}

// Booking is the persisted appointment record.
type Booking struct {
	ID             uuid.UUID  `json:"id"`
	ContactID      uuid.UUID  `json:"contact_id"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	ServiceID      *uuid.UUID `json:"service_id,omitempty"`
	TeamMemberID   *uuid.UUID `json:"team_member_id,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`

	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	ActualStartTime  time.Time `json:"actual_start_time"`
	ActualEndTime    time.Time `json:"actual_end_time"`
	BufferTimeBefore int       `json:"buffer_time_before"`
	BufferTimeAfter  int       `json:"buffer_time_after"`

	Status          Status `json:"status"`
	CalendarEventID string `json:"calendar_event_id,omitempty"`

	DiscountCode   string          `json:"discount_code,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	PromoVoucher   string          `json:"promo_voucher,omitempty"`
	PaymentStatus  string          `json:"payment_status,omitempty"`
	PenaltyApplied bool            `json:"penalty_applied"`
	PenaltyFee     decimal.Decimal `json:"penalty_fee"`

	SessionGroupID *uuid.UUID `json:"session_group_id,omitempty"`
	SessionNumber  int        `json:"session_number,omitempty"`
	TotalSessions  int        `json:"total_sessions,omitempty"`

	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// OccupiedSlot is an existing confirmed booking as seen by the global
// conflict check. Rows written before buffer columns existed carry no
// actual times, so the occupied interval is derived from the raw times.
type OccupiedSlot struct {
	ID               uuid.UUID
	Title            string
	StartTime        time.Time
	EndTime          time.Time
	ActualStartTime  *time.Time
	ActualEndTime    *time.Time
	BufferTimeBefore int
	BufferTimeAfter  int
}

// Interval returns the buffered interval the slot occupies.
func (s OccupiedSlot) Interval() (time.Time, time.Time) {
	if s.ActualStartTime != nil && s.ActualEndTime != nil {
		return *s.ActualStartTime, *s.ActualEndTime
	}
	return BufferedInterval(s.StartTime, s.EndTime, s.BufferTimeBefore, s.BufferTimeAfter)
}

// CalendarEvent is the requested appointment as the calendar sees it.
type CalendarEvent struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// CalendarEventPatch carries the fields to change on an existing event.
type CalendarEventPatch struct {
	Title       *string
	Description *string
	StartTime   *time.Time
	EndTime     *time.Time
}

// TimeSlot is a segment of calendar time returned by availability lookups.
type TimeSlot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// Contact is the customer a booking belongs to.
type Contact struct {
	ID                      uuid.UUID
	Name                    string
	Email                   string
	Phone                   string
	OutstandingBalanceChf   decimal.Decimal
	PaymentAllowanceGranted bool
}

// ServiceRestrictions narrow when a service may be booked.
type ServiceRestrictions struct {
	MinSlotHours   *float64       `json:"min_slot_hours,omitempty"`
	MaxSlotHours   *float64       `json:"max_slot_hours,omitempty"`
	OnlyMornings   bool           `json:"only_mornings,omitempty"`
	OnlyAfternoons bool           `json:"only_afternoons,omitempty"`
	OnlyWeekdays   bool           `json:"only_weekdays,omitempty"`
	ExcludedDays   []time.Weekday `json:"excluded_days,omitempty"`
}

// Empty reports whether no restriction is configured.
func (r ServiceRestrictions) Empty() bool {
	return r.MinSlotHours == nil && r.MaxSlotHours == nil && !r.OnlyMornings &&
		!r.OnlyAfternoons && !r.OnlyWeekdays && len(r.ExcludedDays) == 0
}

// Service is a bookable treatment. Buffers are copied onto each booking at
// creation time.
type Service struct {
	ID               uuid.UUID
	Name             string
	DurationMinutes  int
	Price            decimal.Decimal
	BufferTimeBefore int
	BufferTimeAfter  int
	IsActive         bool
	Restrictions     ServiceRestrictions
}

// TeamMember is a practitioner with their own calendar and weekly schedule.
type TeamMember struct {
	ID                   uuid.UUID
	Name                 string
	CalendarID           string
	IsActive             bool
	AvailabilitySchedule map[time.Weekday][]TimeRange
}

// UnavailabilityPeriod is an absence such as vacation, sick leave or training.
type UnavailabilityPeriod struct {
	ID           uuid.UUID
	TeamMemberID uuid.UUID
	StartTime    time.Time
	EndTime      time.Time
	Reason       string
}

// DateRange is an emergency blocker window; End is exclusive.
type DateRange struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason,omitempty"`
}

// Suspension is the answer of a SuspensionOracle.
type Suspension struct {
	Suspended bool
	Until     *time.Time
}

// Stats aggregates bookings for reporting.
type Stats struct {
	Total             int             `json:"total"`
	Confirmed         int             `json:"confirmed"`
	Pending           int             `json:"pending"`
	Cancelled         int             `json:"cancelled"`
	NoShow            int             `json:"no_show"`
	LateCancellations int             `json:"late_cancellations"`
	PenaltyTotal      decimal.Decimal `json:"penalty_total"`
	SessionGroups     int             `json:"session_groups"`
}

// Appointment is the denormalized view handed to reminder, document and
// notification collaborators.
type Appointment struct {
	BookingID    uuid.UUID
	ContactID    uuid.UUID
	ContactName  string
	ContactPhone string
	ContactEmail string
	ServiceID    *uuid.UUID
	ServiceName  string
	Title        string
	StartTime    time.Time
	EndTime      time.Time
}
