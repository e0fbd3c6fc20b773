package notify

import (
	"context"
	"errors"

	"github.com/wolfman30/booking-crm/internal/booking"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

// WhatsAppSender delivers a WhatsApp text message.
type WhatsAppSender interface {
	SendWhatsApp(ctx context.Context, to, body string) error
}

// Sink implements booking.NotificationSink over an email sender and a
// WhatsApp sender.
type Sink struct {
	email    EmailSender
	whatsapp WhatsAppSender
	renderer *Renderer
	logger   *logging.Logger
}

// NewSink creates a notification sink. Either sender may be nil; sending on a
// missing channel returns an error so the caller's failure policy applies.
func NewSink(email EmailSender, whatsapp WhatsAppSender, renderer *Renderer, logger *logging.Logger) *Sink {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sink{email: email, whatsapp: whatsapp, renderer: renderer, logger: logger}
}

var _ booking.NotificationSink = (*Sink)(nil)

// SendWhatsApp sends a plain text message.
func (s *Sink) SendWhatsApp(ctx context.Context, phone, body string) error {
	if s.whatsapp == nil {
		return errors.New("notify: whatsapp sender not configured")
	}
	return s.whatsapp.SendWhatsApp(ctx, phone, body)
}

// SendTemplatedEmail renders and sends a booking email.
func (s *Sink) SendTemplatedEmail(ctx context.Context, email booking.TemplatedEmail) error {
	if s.email == nil {
		return errors.New("notify: email sender not configured")
	}
	msg, err := s.renderer.Render(email)
	if err != nil {
		return err
	}
	return s.email.Send(ctx, msg)
}
