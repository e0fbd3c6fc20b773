// Package messaging sends WhatsApp messages through Twilio.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/booking-crm/pkg/logging"
)

const (
	whatsAppPrefix = "whatsapp:"
	twilioBaseURL  = "https://api.twilio.com"
	maxAttempts    = 3
)

var twilioSendTracer = otel.Tracer("booking.internal.messaging.twilio_send")

// TwilioWhatsAppSender posts WhatsApp messages using Twilio's REST API.
// Every call opens its own request; there is no shared session to reconnect.
type TwilioWhatsAppSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	backoff    func(attempt int) time.Duration
}

// NewTwilioWhatsAppSender builds a sender with sane defaults.
func NewTwilioWhatsAppSender(accountSID, authToken, from string, logger *logging.Logger) *TwilioWhatsAppSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioWhatsAppSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    twilioBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
		backoff: func(int) time.Duration {
			return time.Duration(200+rand.Intn(300)) * time.Millisecond
		},
	}
}

// WithBaseURL overrides the Twilio API base URL (for testing).
func (s *TwilioWhatsAppSender) WithBaseURL(baseURL string) *TwilioWhatsAppSender {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

// SendWhatsApp dispatches a single message, retrying transient failures.
func (s *TwilioWhatsAppSender) SendWhatsApp(ctx context.Context, to, body string) error {
	if s.accountSID == "" || s.authToken == "" {
		return errors.New("messaging: twilio credentials missing")
	}
	toAddr := WhatsAppAddress(to)
	if toAddr == "" {
		return errors.New("messaging: to required")
	}
	fromAddr := WhatsAppAddress(s.from)
	if fromAddr == "" {
		return errors.New("messaging: from required")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("messaging: body required")
	}

	ctx, span := twilioSendTracer.Start(ctx, "messaging.twilio.send_whatsapp")
	defer span.End()
	span.SetAttributes(attribute.String("messaging.to", toAddr))

	payload := url.Values{}
	payload.Set("To", toAddr)
	payload.Set("From", fromAddr)
	payload.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
		if err != nil {
			lastErr = err
			break
		}
		req.SetBasicAuth(s.accountSID, s.authToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				var parsed struct {
					SID string `json:"sid"`
				}
				_ = json.Unmarshal(respBody, &parsed)
				s.logger.Info("twilio whatsapp sent", "to", toAddr, "message_sid", parsed.SID)
				return nil
			}
			lastErr = fmt.Errorf("messaging: twilio send failed: %s", formatTwilioError(resp.StatusCode, respBody))
			// Don't retry non-rate-limit 4xx errors.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				break
			}
		}

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = maxAttempts
			case <-time.After(s.backoff(attempt)):
			}
		}
	}

	span.RecordError(lastErr)
	return lastErr
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	// Fallback: return raw body (truncated by ReadAll limit).
	return fmt.Sprintf("status %d: %s", status, trimmed)
}

// LogSender logs WhatsApp messages instead of sending them. It is used when
// Twilio credentials are not configured.
type LogSender struct {
	logger *logging.Logger
}

// NewLogSender creates a logging sender.
func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

// SendWhatsApp logs the message.
func (s *LogSender) SendWhatsApp(_ context.Context, to, body string) error {
	s.logger.Info("whatsapp disabled: would send message", "to", NormalizeE164(to), "chars", len(body))
	return nil
}
