package events

import "time"

// Subjects used on the event bus. The subject equals the event type.
const (
	SubjectBookingCancelled = "booking.cancelled.v1"
)

// CanonicalEvent represents a versioned domain event.
type CanonicalEvent interface {
	EventType() string
}

// BookingCancelledV1 is emitted once a booking is marked cancelled. The
// waitlist listener uses it to offer the freed slot.
type BookingCancelledV1 struct {
	EventID      string    `json:"event_id"`
	BookingID    string    `json:"booking_id"`
	ContactID    string    `json:"contact_id"`
	ServiceID    string    `json:"service_id,omitempty"`
	TeamMemberID string    `json:"team_member_id,omitempty"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	CancelledAt  time.Time `json:"cancelled_at"`
	Reason       string    `json:"reason,omitempty"`
}

func (BookingCancelledV1) EventType() string {
	return SubjectBookingCancelled
}
