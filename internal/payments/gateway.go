package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wolfman30/booking-crm/internal/booking"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

type transactionStore interface {
	Insert(ctx context.Context, t *Transaction) error
	FindRefundablePayment(ctx context.Context, bookingID uuid.UUID) (*Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	SetCheckout(ctx context.Context, id uuid.UUID, providerRef, url string) error
}

type stripeAPI interface {
	RefundPaymentIntent(ctx context.Context, paymentIntentID string, bookingID uuid.UUID) (string, error)
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
}

// Gateway implements booking.PaymentGateway on Stripe.
type Gateway struct {
	store    transactionStore
	stripe   stripeAPI
	sink     booking.NotificationSink
	currency string
	logger   *logging.Logger
}

// NewGateway creates a payment gateway. sink may be nil, in which case
// payment links are stored but not sent.
func NewGateway(store transactionStore, stripe stripeAPI, sink booking.NotificationSink, currency string, logger *logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(currency) == "" {
		currency = "chf"
	}
	return &Gateway{store: store, stripe: stripe, sink: sink, currency: strings.ToLower(currency), logger: logger}
}

var _ booking.PaymentGateway = (*Gateway)(nil)

// HandleCancellationRefund refunds the booking's captured payment, if any.
func (g *Gateway) HandleCancellationRefund(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	payment, err := g.store.FindRefundablePayment(ctx, bookingID)
	if errors.Is(err, booking.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if payment.ProviderRef == "" {
		return false, fmt.Errorf("payments: payment %s has no provider reference", payment.ID)
	}

	refundID, err := g.stripe.RefundPaymentIntent(ctx, payment.ProviderRef, bookingID)
	if err != nil {
		return false, err
	}
	refund := &Transaction{
		BookingID:   bookingID,
		ContactID:   payment.ContactID,
		Kind:        KindRefund,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Status:      StatusSucceeded,
		ProviderRef: refundID,
		Description: "Refund for cancelled booking",
	}
	if err := g.store.Insert(ctx, refund); err != nil {
		// Stripe already refunded; the missing row must be reconciled by hand.
		g.logger.Error("refund issued but not recorded",
			"booking_id", bookingID, "refund_id", refundID, "error", err)
		return true, err
	}
	g.logger.Info("booking payment refunded", "booking_id", bookingID, "refund_id", refundID, "amount", payment.Amount.StringFixed(2))
	return true, nil
}

// CreatePenaltyTransaction records a pending late-cancellation fee.
func (g *Gateway) CreatePenaltyTransaction(ctx context.Context, req booking.PenaltyRequest) (uuid.UUID, error) {
	if !req.Amount.IsPositive() {
		return uuid.Nil, fmt.Errorf("payments: penalty amount must be positive, got %s", req.Amount.String())
	}
	t := &Transaction{
		BookingID:   req.BookingID,
		ContactID:   req.ContactID,
		Kind:        KindPenalty,
		Amount:      req.Amount.Round(2),
		Currency:    g.currency,
		Status:      StatusPending,
		Description: req.Description,
	}
	if err := g.store.Insert(ctx, t); err != nil {
		return uuid.Nil, err
	}
	return t.ID, nil
}

// SendPenaltyPaymentLink creates a checkout session for the penalty and sends
// its link to the contact over WhatsApp.
func (g *Gateway) SendPenaltyPaymentLink(ctx context.Context, transactionID uuid.UUID, req booking.PenaltyRequest) error {
	t, err := g.store.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}
	session, err := g.stripe.CreateCheckoutSession(ctx, CheckoutParams{
		TransactionID: t.ID,
		BookingID:     t.BookingID,
		AmountCents:   toCents(t.Amount),
		Currency:      t.Currency,
		Description:   req.Description,
		CustomerEmail: req.ContactEmail,
	})
	if err != nil {
		return err
	}
	if err := g.store.SetCheckout(ctx, t.ID, session.ID, session.URL); err != nil {
		return err
	}
	if g.sink == nil || strings.TrimSpace(req.ContactPhone) == "" {
		return nil
	}
	return g.sink.SendWhatsApp(ctx, req.ContactPhone, penaltyMessage(req.ContactName, t, session.URL))
}

func penaltyMessage(name string, t *Transaction, url string) string {
	greeting := "Hello"
	if strings.TrimSpace(name) != "" {
		greeting = "Hello " + name
	}
	return fmt.Sprintf("%s, your appointment was cancelled less than the required notice before it started. "+
		"A late cancellation fee of %s %s applies. You can pay it here: %s",
		greeting, strings.ToUpper(t.Currency), t.Amount.StringFixed(2), url)
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
