package bookings

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/booking-crm/internal/booking"
)

// bookingColumns is the single source of truth for the bookings row shape.
// scanBooking and insertArgs must follow this order exactly.
var bookingColumns = []string{
	"id",
	"contact_id",
	"conversation_id",
	"service_id",
	"team_member_id",
	"title",
	"description",
	"start_time",
	"end_time",
	"actual_start_time",
	"actual_end_time",
	"buffer_time_before",
	"buffer_time_after",
	"status",
	"calendar_event_id",
	"discount_code",
	"discount_amount",
	"promo_voucher",
	"payment_status",
	"penalty_applied",
	"penalty_fee",
	"session_group_id",
	"session_number",
	"total_sessions",
	"cancelled_at",
	"cancellation_reason",
	"created_at",
	"updated_at",
}

// numericColumns are read back as text so decimals keep their exact value.
var numericColumns = map[string]bool{
	"discount_amount": true,
	"penalty_fee":     true,
}

var bookingSelect = selectList(bookingColumns)

func selectList(cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		if numericColumns[c] {
			parts[i] = c + "::text"
			continue
		}
		parts[i] = c
	}
	return strings.Join(parts, ", ")
}

func placeholders(first, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", first+i)
	}
	return strings.Join(parts, ", ")
}

func insertArgs(b *booking.Booking) []any {
	return []any{
		b.ID,
		b.ContactID,
		b.ConversationID,
		b.ServiceID,
		b.TeamMemberID,
		b.Title,
		b.Description,
		b.StartTime,
		b.EndTime,
		b.ActualStartTime,
		b.ActualEndTime,
		b.BufferTimeBefore,
		b.BufferTimeAfter,
		string(b.Status),
		b.CalendarEventID,
		b.DiscountCode,
		b.DiscountAmount.StringFixed(2),
		b.PromoVoucher,
		b.PaymentStatus,
		b.PenaltyApplied,
		b.PenaltyFee.StringFixed(2),
		b.SessionGroupID,
		b.SessionNumber,
		b.TotalSessions,
		b.CancelledAt,
		b.CancellationReason,
		b.CreatedAt,
		b.UpdatedAt,
	}
}

// scanBooking reads one row selected with bookingSelect. Rows written before
// buffers were stored have no actual times; those are derived from the raw
// times and buffer minutes.
func scanBooking(row pgx.Row) (*booking.Booking, error) {
	var (
		b                    booking.Booking
		conversationID       *uuid.UUID
		serviceID            *uuid.UUID
		teamMemberID         *uuid.UUID
		actualStart          *time.Time
		actualEnd            *time.Time
		status               string
		discount, penaltyFee string
		sessionGroupID       *uuid.UUID
	)
	err := row.Scan(
		&b.ID,
		&b.ContactID,
		&conversationID,
		&serviceID,
		&teamMemberID,
		&b.Title,
		&b.Description,
		&b.StartTime,
		&b.EndTime,
		&actualStart,
		&actualEnd,
		&b.BufferTimeBefore,
		&b.BufferTimeAfter,
		&status,
		&b.CalendarEventID,
		&b.DiscountCode,
		&discount,
		&b.PromoVoucher,
		&b.PaymentStatus,
		&b.PenaltyApplied,
		&penaltyFee,
		&sessionGroupID,
		&b.SessionNumber,
		&b.TotalSessions,
		&b.CancelledAt,
		&b.CancellationReason,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.ConversationID = conversationID
	b.ServiceID = serviceID
	b.TeamMemberID = teamMemberID
	b.SessionGroupID = sessionGroupID
	b.Status = booking.Status(status)

	if actualStart != nil && actualEnd != nil {
		b.ActualStartTime, b.ActualEndTime = *actualStart, *actualEnd
	} else {
		b.ActualStartTime, b.ActualEndTime = booking.BufferedInterval(b.StartTime, b.EndTime, b.BufferTimeBefore, b.BufferTimeAfter)
	}
	if b.DiscountAmount, err = parseDecimal(discount); err != nil {
		return nil, fmt.Errorf("discount_amount: %w", err)
	}
	if b.PenaltyFee, err = parseDecimal(penaltyFee); err != nil {
		return nil, fmt.Errorf("penalty_fee: %w", err)
	}
	return &b, nil
}
