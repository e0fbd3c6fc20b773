package reminders

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies why a message was scheduled.
type Kind string

const (
	KindReminder Kind = "reminder"
	KindReview   Kind = "review"
	KindDocument Kind = "document"
)

// Status is the lifecycle state of a scheduled message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Message is a WhatsApp message queued for delivery at SendAt.
type Message struct {
	ID        uuid.UUID  `json:"id"`
	BookingID uuid.UUID  `json:"booking_id"`
	ContactID uuid.UUID  `json:"contact_id"`
	Kind      Kind       `json:"kind"`
	Phone     string     `json:"phone"`
	Body      string     `json:"body"`
	SendAt    time.Time  `json:"send_at"`
	Status    Status     `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
