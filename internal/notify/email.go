// Package notify delivers booking emails and adapts the email and WhatsApp
// senders to the booking engine's notification sink.
package notify

import (
	"context"
	"strconv"
	"strings"

	"github.com/wolfman30/booking-crm/pkg/logging"
)

const defaultFromName = "Bookings"

// EmailSender delivers a rendered booking email. SendGrid, SES and
// MailerSend implementations are interchangeable.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a rendered booking email.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string // plain text
	HTML    string // optional

	// FromName overrides the sender's configured display name, normally
	// with the business name.
	FromName string
	// Template is the booking template the message was rendered from.
	Template string
	// BookingIDs are the bookings the message is about; a batch
	// confirmation carries one per session.
	BookingIDs []string
}

// trackingTags are attached to every provider's message so delivery events
// can be traced back to bookings.
func (m EmailMessage) trackingTags() map[string]string {
	tags := map[string]string{}
	if m.Template != "" {
		tags["template"] = m.Template
	}
	if len(m.BookingIDs) > 0 {
		tags["booking_id"] = m.BookingIDs[0]
		tags["sessions"] = strconv.Itoa(len(m.BookingIDs))
	}
	return tags
}

func (m EmailMessage) fromName(fallback string) string {
	if name := strings.TrimSpace(m.FromName); name != "" {
		return name
	}
	return fallback
}

// StubEmailSender logs instead of sending.
type StubEmailSender struct {
	logger *logging.Logger
}

// NewStubEmailSender creates a stub email sender.
func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

// Send logs the email.
func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send email",
		"to", msg.To, "subject", msg.Subject, "template", msg.Template, "booking_ids", msg.BookingIDs)
	return nil
}

var _ EmailSender = (*StubEmailSender)(nil)
