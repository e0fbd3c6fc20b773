package payments

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/booking-crm/pkg/logging"
)

var stripeTracer = otel.Tracer("booking.internal.payments.stripe")

// CheckoutParams describes a one-off Stripe Checkout payment.
type CheckoutParams struct {
	TransactionID uuid.UUID
	BookingID     uuid.UUID
	AmountCents   int64
	Currency      string
	Description   string
	CustomerEmail string
}

// CheckoutSession is the subset of a Stripe Checkout Session we keep.
type CheckoutSession struct {
	ID  string
	URL string
}

// StripeClient wraps the Stripe API calls used for cancellations.
type StripeClient struct {
	api        *client.API
	successURL string
	cancelURL  string
	logger     *logging.Logger
	dryRun     bool
}

// StripeOption customizes a StripeClient.
type StripeOption func(*stripeConfig)

type stripeConfig struct {
	baseURL    string
	httpClient *http.Client
	retries    int64
	dryRun     bool
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func WithBaseURL(baseURL string) StripeOption {
	return func(c *stripeConfig) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
			c.retries = 0
		}
	}
}

// WithHTTPClient sets the HTTP client used for Stripe calls.
func WithHTTPClient(hc *http.Client) StripeOption {
	return func(c *stripeConfig) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithDryRun enables dry-run mode (returns fake ids without calling Stripe).
func WithDryRun(enabled bool) StripeOption {
	return func(c *stripeConfig) {
		c.dryRun = enabled
	}
}

// NewStripeClient creates a Stripe client.
func NewStripeClient(secretKey, successURL, cancelURL string, logger *logging.Logger, opts ...StripeOption) *StripeClient {
	if logger == nil {
		logger = logging.Default()
	}
	cfg := stripeConfig{
		baseURL:    stripe.APIURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retries:    2,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(cfg.baseURL),
		HTTPClient:        cfg.httpClient,
		MaxNetworkRetries: stripe.Int64(cfg.retries),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelWarn},
	})
	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{
		API:     backend,
		Connect: stripe.GetBackend(stripe.ConnectBackend),
		Uploads: stripe.GetBackend(stripe.UploadsBackend),
	})

	return &StripeClient{
		api:        api,
		successURL: successURL,
		cancelURL:  cancelURL,
		logger:     logger,
		dryRun:     cfg.dryRun,
	}
}

// RefundPaymentIntent refunds a captured payment in full. The booking id is
// used as idempotency key so retries never refund twice.
func (s *StripeClient) RefundPaymentIntent(ctx context.Context, paymentIntentID string, bookingID uuid.UUID) (string, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_refund")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.id", bookingID.String()),
		attribute.String("stripe.payment_intent", paymentIntentID),
	)

	if s.dryRun {
		s.logger.Info("stripe dry run: skipping refund", "booking_id", bookingID, "payment_intent", paymentIntentID)
		return "re_dryrun_" + uuid.New().String()[:8], nil
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.SetIdempotencyKey("booking-refund-" + bookingID.String())
	params.AddMetadata("booking_id", bookingID.String())

	refund, err := s.api.Refunds.New(params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refund failed")
		return "", fmt.Errorf("payments: stripe refund: %w", err)
	}
	return refund.ID, nil
}

// CreateCheckoutSession creates a hosted payment page for the amount.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.id", p.BookingID.String()),
		attribute.Int64("booking.amount_cents", p.AmountCents),
	)

	if s.dryRun {
		fakeID := "cs_dryrun_" + uuid.New().String()[:8]
		s.logger.Info("stripe dry run: skipping checkout session creation",
			"booking_id", p.BookingID, "amount_cents", p.AmountCents)
		return &CheckoutSession{
			ID:  fakeID,
			URL: fmt.Sprintf("https://checkout.stripe.com/dry-run/%s", fakeID),
		}, nil
	}

	description := p.Description
	if strings.TrimSpace(description) == "" {
		description = "Late cancellation fee"
	}
	metadata := map[string]string{
		"transaction_id": p.TransactionID.String(),
		"booking_id":     p.BookingID.String(),
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(p.Currency),
				UnitAmount: stripe.Int64(p.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(description),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if s.successURL != "" {
		params.SuccessURL = stripe.String(s.successURL)
	}
	if s.cancelURL != "" {
		params.CancelURL = stripe.String(s.cancelURL)
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}

	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout session failed")
		return nil, fmt.Errorf("payments: stripe checkout session: %w", err)
	}
	if session.URL == "" {
		return nil, fmt.Errorf("payments: stripe response missing checkout url")
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}
