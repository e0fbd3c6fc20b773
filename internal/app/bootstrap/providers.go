package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"google.golang.org/api/option"

	"github.com/wolfman30/booking-crm/internal/booking"
	"github.com/wolfman30/booking-crm/internal/calendar"
	appconfig "github.com/wolfman30/booking-crm/internal/config"
	"github.com/wolfman30/booking-crm/internal/events"
	"github.com/wolfman30/booking-crm/internal/messaging"
	"github.com/wolfman30/booking-crm/internal/notify"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

// LoadAWSConfig centralizes AWS SDK initialization so both binaries share the
// same LocalStack/production wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	return awsCfg, nil
}

// BuildS3Client honours AWS_ENDPOINT_OVERRIDE (LocalStack, MinIO) with path-style addressing.
func BuildS3Client(awsCfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// BuildEmailSender picks the email provider named by EMAIL_PROVIDER and falls
// back to the stub sender when it is not configured. The second return is the
// provider actually used.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); s != nil {
			return s, "sendgrid"
		}
	case "mailersend":
		if s := notify.NewMailerSendSender(notify.MailerSendConfig{
			APIKey:    cfg.MailerSendAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); s != nil {
			return s, "mailersend"
		}
	case "ses":
		if awsCfg != nil {
			client := sesv2.NewFromConfig(*awsCfg, func(o *sesv2.Options) {
				if cfg.AWSEndpointOverride != "" {
					o.BaseEndpoint = aws.String(cfg.AWSEndpointOverride)
				}
			})
			return notify.NewSESSender(client, notify.SESConfig{
				FromEmail:        cfg.EmailFromAddress,
				FromName:         cfg.EmailFromName,
				ConfigurationSet: cfg.SESConfigurationSet,
			}, logger), "ses"
		}
	}
	if cfg.EmailProvider != "" && cfg.EmailProvider != "stub" {
		logger.Warn("email provider not configured, using stub sender", "provider", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger), "stub"
}

// BuildWhatsAppSender returns the Twilio sender when credentials are present,
// otherwise a sender that only logs.
func BuildWhatsAppSender(cfg *appconfig.Config, logger *logging.Logger) (notify.WhatsAppSender, string) {
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioWhatsAppFrom != "" {
		return messaging.NewTwilioWhatsAppSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom, logger), "twilio"
	}
	return messaging.NewLogSender(logger), "log"
}

// BuildCalendarProvider returns the Google Calendar provider when a
// credentials file is configured, otherwise an in-memory calendar.
func BuildCalendarProvider(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (booking.CalendarProvider, string, error) {
	if path := strings.TrimSpace(cfg.GoogleCalendarCredentialsFile); path != "" {
		provider, err := calendar.NewGoogleProvider(ctx, cfg.GoogleCalendarDefaultID, logger, option.WithCredentialsFile(path))
		if err != nil {
			return nil, "", err
		}
		return provider, "google", nil
	}
	return calendar.NewMemoryProvider(), "memory", nil
}

// BuildEventBus connects to NATS when NATS_URL is set. Without it events stay
// in process.
func BuildEventBus(cfg *appconfig.Config, logger *logging.Logger) (events.Bus, string, error) {
	if url := strings.TrimSpace(cfg.NATSURL); url != "" {
		bus, err := events.NewNATSBus(url, logger)
		if err != nil {
			return nil, "", err
		}
		return bus, "nats", nil
	}
	return events.NewMemoryBus(), "memory", nil
}
