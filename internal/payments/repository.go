// Package payments charges late-cancellation fees and refunds prepaid
// bookings through Stripe, recording every movement in payment_transactions.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/wolfman30/booking-crm/internal/booking"
)

// Transaction kinds.
const (
	KindPayment = "payment"
	KindPenalty = "penalty"
	KindRefund  = "refund"
)

// Transaction statuses.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Transaction is a row of payment_transactions.
type Transaction struct {
	ID          uuid.UUID
	BookingID   uuid.UUID
	ContactID   uuid.UUID
	Kind        string
	Amount      decimal.Decimal
	Currency    string
	Status      string
	ProviderRef string
	CheckoutURL string
	Description string
	CreatedAt   time.Time
}

type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists payment transactions.
type Repository struct {
	db db
}

// NewRepository creates a repository backed by pgx.
func NewRepository(pool db) *Repository {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &Repository{db: pool}
}

const transactionColumns = `id, booking_id, contact_id, kind, amount::text, currency, status, provider_ref, checkout_url, description, created_at`

// Insert stores a transaction. Penalties are added to the contact's
// outstanding balance in the same transaction; a second penalty for the same
// booking is skipped with booking.ErrPenaltyExists and leaves the balance alone.
func (r *Repository) Insert(ctx context.Context, t *Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("payments: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO payment_transactions
			(id, booking_id, contact_id, kind, amount, currency, status, provider_ref, checkout_url, description)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10)
		ON CONFLICT (booking_id) WHERE kind = 'penalty' DO NOTHING
	`, t.ID, t.BookingID, t.ContactID, t.Kind, t.Amount.StringFixed(2), t.Currency, t.Status, t.ProviderRef, t.CheckoutURL, t.Description)
	if err != nil {
		return fmt.Errorf("payments: insert transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrPenaltyExists
	}
	if t.Kind == KindPenalty {
		if _, err := tx.Exec(ctx,
			`UPDATE contacts SET outstanding_balance_chf = outstanding_balance_chf + $2::numeric WHERE id = $1`,
			t.ContactID, t.Amount.StringFixed(2)); err != nil {
			return fmt.Errorf("payments: raise balance: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("payments: commit: %w", err)
	}
	return nil
}

// FindRefundablePayment returns the booking's succeeded payment that has not
// been refunded yet.
func (r *Repository) FindRefundablePayment(ctx context.Context, bookingID uuid.UUID) (*Transaction, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM payment_transactions p
		WHERE p.booking_id = $1 AND p.kind = 'payment' AND p.status = 'succeeded'
		  AND NOT EXISTS (
			SELECT 1 FROM payment_transactions r
			WHERE r.booking_id = p.booking_id AND r.kind = 'refund' AND r.status = 'succeeded'
		  )
		ORDER BY p.created_at DESC
		LIMIT 1
	`, bookingID)
	return scanTransaction(row)
}

// GetByID fetches a transaction.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

// SetCheckout records the checkout session created for a pending transaction.
func (r *Repository) SetCheckout(ctx context.Context, id uuid.UUID, providerRef, url string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payment_transactions
		SET provider_ref = $2, checkout_url = $3, updated_at = now()
		WHERE id = $1
	`, id, providerRef, url)
	if err != nil {
		return fmt.Errorf("payments: set checkout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

// MarkSucceeded settles a pending transaction. A settled penalty is deducted
// from the contact's outstanding balance. It reports false when the
// transaction was not pending (already settled or unknown).
func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID, providerRef string) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("payments: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var contactID uuid.UUID
	var kind, amount string
	err = tx.QueryRow(ctx, `
		UPDATE payment_transactions
		SET status = 'succeeded', provider_ref = COALESCE(NULLIF($2, ''), provider_ref), updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING contact_id, kind, amount::text
	`, id, providerRef).Scan(&contactID, &kind, &amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("payments: mark succeeded: %w", err)
	}
	if kind == KindPenalty {
		if _, err := tx.Exec(ctx, `
			UPDATE contacts SET outstanding_balance_chf = GREATEST(outstanding_balance_chf - $2::numeric, 0)
			WHERE id = $1
		`, contactID, amount); err != nil {
			return false, fmt.Errorf("payments: lower balance: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("payments: commit: %w", err)
	}
	return true, nil
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	var amount string
	err := row.Scan(&t.ID, &t.BookingID, &t.ContactID, &t.Kind, &amount, &t.Currency, &t.Status,
		&t.ProviderRef, &t.CheckoutURL, &t.Description, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payments: scan transaction: %w", err)
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("payments: parse amount %q: %w", amount, err)
	}
	return &t, nil
}
