package notify

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mailersend/mailersend-go"

	"github.com/wolfman30/booking-crm/pkg/logging"
)

// MailerSendSender sends emails via the MailerSend API.
type MailerSendSender struct {
	client *mailersend.Mailersend
	from   mailersend.From
	logger *logging.Logger
}

// MailerSendConfig holds configuration for MailerSend.
type MailerSendConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewMailerSendSender creates a MailerSend sender. It returns nil when the
// API key or sender address is missing.
func NewMailerSendSender(cfg MailerSendConfig, logger *logging.Logger) *MailerSendSender {
	if cfg.APIKey == "" || cfg.FromEmail == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &MailerSendSender{
		client: mailersend.NewMailersend(cfg.APIKey),
		from:   mailersend.From{Name: cfg.FromName, Email: cfg.FromEmail},
		logger: logger,
	}
}

// Send sends an email via MailerSend.
func (s *MailerSendSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: mailersend client not configured")
	}

	message := s.client.Email.NewMessage()
	from := s.from
	from.Name = msg.fromName(s.from.Name)
	message.SetFrom(from)
	message.SetRecipients([]mailersend.Recipient{{Name: msg.ToName, Email: msg.To}})
	message.SetSubject(msg.Subject)
	if strings.TrimSpace(msg.Body) != "" {
		message.SetText(msg.Body)
	}
	if strings.TrimSpace(msg.HTML) != "" {
		message.SetHTML(msg.HTML)
	}

	if msg.Template != "" {
		message.SetTags([]string{bookingCategory, msg.Template})
	}

	res, err := s.client.Email.Send(ctx, message)
	if err != nil {
		s.logger.Error("mailersend send failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: mailersend send failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		s.logger.Error("mailersend returned error status", "status", res.StatusCode, "body", strings.TrimSpace(string(body)), "to", msg.To)
		return fmt.Errorf("notify: mailersend returned status %d", res.StatusCode)
	}

	s.logger.Info("email sent via mailersend", "to", msg.To, "subject", msg.Subject, "message_id", res.Header.Get("X-Message-Id"))
	return nil
}

var _ EmailSender = (*MailerSendSender)(nil)
