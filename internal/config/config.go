package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process configuration. Business policy (hours, penalties,
// reminder lead times) lives in the settings store, not here.
type Config struct {
	Port             string
	Env              string
	LogLevel         string
	DatabaseURL      string
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	BusinessTimezone string
	AdminJWTSecret   string

	// Booking engine
	EmailFailurePolicy  string
	GlobalConflictCheck bool
	SlotLockTTL         time.Duration
	ExternalCallTimeout time.Duration

	// Workers
	ReminderPollInterval time.Duration
	ReminderBatchSize    int
	ReminderMaxAttempts  int
	OutboxPollInterval   time.Duration
	OutboxBatchSize      int
	QuietHoursStart      string
	QuietHoursEnd        string
	ReviewURL            string
	WorkerMetricsPort    string

	// Email
	EmailProvider       string
	EmailFromAddress    string
	EmailFromName       string
	SendGridAPIKey      string
	MailerSendAPIKey    string
	SESConfigurationSet string

	// AWS (SES + document bucket)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	DocumentsBucket     string
	DocumentLinkTTL     time.Duration

	// Twilio WhatsApp
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioWhatsAppFrom string

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeSuccessURL    string
	StripeCancelURL     string
	StripeDryRun        bool
	PaymentCurrency     string

	// Google Calendar
	GoogleCalendarCredentialsFile string
	GoogleCalendarDefaultID       string

	// NATS
	NATSURL string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisAddr:        getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		BusinessTimezone: getEnv("BUSINESS_TIMEZONE", "Europe/Zurich"),
		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),

		EmailFailurePolicy:  strings.ToLower(strings.TrimSpace(getEnv("EMAIL_FAILURE_POLICY", "fatal"))),
		GlobalConflictCheck: getEnvAsBool("GLOBAL_CONFLICT_CHECK", true),
		SlotLockTTL:         getEnvAsDuration("SLOT_LOCK_TTL", 30*time.Second),
		ExternalCallTimeout: getEnvAsDuration("EXTERNAL_CALL_TIMEOUT", 10*time.Second),

		ReminderPollInterval: getEnvAsDuration("REMINDER_POLL_INTERVAL", time.Minute),
		ReminderBatchSize:    getEnvAsInt("REMINDER_BATCH_SIZE", 50),
		ReminderMaxAttempts:  getEnvAsInt("REMINDER_MAX_ATTEMPTS", 5),
		OutboxPollInterval:   getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:      getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
		QuietHoursStart:      getEnv("QUIET_HOURS_START", "21:00"),
		QuietHoursEnd:        getEnv("QUIET_HOURS_END", "08:00"),
		ReviewURL:            getEnv("REVIEW_URL", ""),
		WorkerMetricsPort:    getEnv("WORKER_METRICS_PORT", "9091"),

		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		EmailFromAddress:    getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Bookings"),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		MailerSendAPIKey:    getEnv("MAILERSEND_API_KEY", ""),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),

		AWSRegion:           getEnv("AWS_REGION", "eu-central-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		DocumentsBucket:     getEnv("DOCUMENTS_BUCKET", ""),
		DocumentLinkTTL:     getEnvAsDuration("DOCUMENT_LINK_TTL", 72*time.Hour),

		TwilioAccountSID:   getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWhatsAppFrom: getEnv("TWILIO_WHATSAPP_FROM", ""),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeSuccessURL:    getEnv("STRIPE_SUCCESS_URL", ""),
		StripeCancelURL:     getEnv("STRIPE_CANCEL_URL", ""),
		StripeDryRun:        getEnvAsBool("STRIPE_DRY_RUN", false),
		PaymentCurrency:     strings.ToLower(getEnv("PAYMENT_CURRENCY", "chf")),

		GoogleCalendarCredentialsFile: getEnv("GOOGLE_CALENDAR_CREDENTIALS_FILE", ""),
		GoogleCalendarDefaultID:       getEnv("GOOGLE_CALENDAR_DEFAULT_ID", "primary"),

		NATSURL: getEnv("NATS_URL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
