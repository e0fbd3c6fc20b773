package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/wolfman30/booking-crm/pkg/logging"
)

const webhookConsumer = "stripe"

type paymentSettler interface {
	MarkSucceeded(ctx context.Context, id uuid.UUID, providerRef string) (bool, error)
}

type processedTracker interface {
	Claim(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

// StripeWebhookHandler settles transactions when Stripe reports a completed
// checkout session.
type StripeWebhookHandler struct {
	webhookSecret string
	payments      paymentSettler
	processed     processedTracker
	logger        *logging.Logger
}

// NewStripeWebhookHandler creates a new handler for Stripe webhooks.
func NewStripeWebhookHandler(webhookSecret string, payments paymentSettler, processed processedTracker, logger *logging.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeWebhookHandler{
		webhookSecret: webhookSecret,
		payments:      payments,
		processed:     processed,
		logger:        logger,
	}
}

// Handle processes incoming Stripe webhook events.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.logger.Warn("stripe webhook rejected", "error", err)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if evt.Type != stripe.EventTypeCheckoutSessionCompleted {
		w.WriteHeader(http.StatusOK)
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		h.logger.Error("failed to decode checkout session", "event_id", evt.ID, "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	txID, err := uuid.Parse(session.Metadata["transaction_id"])
	if err != nil {
		h.logger.Warn("stripe webhook missing transaction_id", "event_id", evt.ID, "session_id", session.ID)
		// Acknowledge to prevent retries; nothing we can settle.
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()
	claimed, err := h.processed.Claim(ctx, webhookConsumer, evt.ID)
	if err != nil {
		h.logger.Error("processed claim failed", "event_id", evt.ID, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if !claimed {
		w.WriteHeader(http.StatusOK)
		return
	}

	providerRef := session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		providerRef = session.PaymentIntent.ID
	}
	settled, err := h.payments.MarkSucceeded(ctx, txID, providerRef)
	if err != nil {
		h.logger.Error("failed to settle transaction", "transaction_id", txID, "error", err)
		if relErr := h.processed.Release(ctx, webhookConsumer, evt.ID); relErr != nil {
			h.logger.Error("failed to release webhook claim", "event_id", evt.ID, "error", relErr)
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	h.logger.Info("stripe checkout completed",
		"event_id", evt.ID,
		"transaction_id", txID,
		"settled", settled,
	)
	w.WriteHeader(http.StatusOK)
}
