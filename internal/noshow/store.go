// Package noshow tracks missed appointments and the booking suspensions
// they trigger.
package noshow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/booking-crm/internal/booking"
)

type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Policy controls when repeated no-shows suspend a contact.
type Policy struct {
	// StrikeThreshold is the no-show count from which a contact is suspended.
	// Zero disables suspensions.
	StrikeThreshold int
	SuspensionDays  int
}

// DefaultPolicy suspends for 30 days from the third no-show.
var DefaultPolicy = Policy{StrikeThreshold: 3, SuspensionDays: 30}

// Store reads and writes no_show_tracking, one row per missed booking. It
// implements booking.SuspensionOracle.
type Store struct {
	db     db
	policy Policy
	now    func() time.Time
	newID  func() uuid.UUID
}

// NewStore creates a no-show store.
func NewStore(pool db, policy Policy) *Store {
	if pool == nil {
		panic("noshow: pgx pool required")
	}
	return &Store{db: pool, policy: policy, now: time.Now, newID: uuid.New}
}

var _ booking.SuspensionOracle = (*Store)(nil)

// IsContactSuspended reports whether any of the contact's suspensions is
// still running.
func (s *Store) IsContactSuspended(ctx context.Context, contactID uuid.UUID) (booking.Suspension, error) {
	var until *time.Time
	err := s.db.QueryRow(ctx,
		`SELECT max(suspended_until) FROM no_show_tracking WHERE contact_id = $1`, contactID).Scan(&until)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Suspension{}, nil
	}
	if err != nil {
		return booking.Suspension{}, fmt.Errorf("noshow: load suspension: %w", err)
	}
	if until == nil || !until.After(s.now()) {
		return booking.Suspension{}, nil
	}
	return booking.Suspension{Suspended: true, Until: until}, nil
}

// Record is the no_show_tracking row written for a missed booking.
// SuspendedUntil is the contact's effective suspension after the miss.
type Record struct {
	ID             uuid.UUID  `json:"id"`
	BookingID      uuid.UUID  `json:"booking_id"`
	ContactID      uuid.UUID  `json:"contact_id"`
	StrikeCount    int        `json:"strike_count"`
	RecordedAt     time.Time  `json:"recorded_at"`
	SuspendedUntil *time.Time `json:"suspended_until,omitempty"`
}

// RecordNoShow marks the booking as a no-show and appends a strike for the
// contact, suspending the contact once the policy threshold is reached. An
// existing longer suspension is kept. Strikes for one contact are serialized
// with an advisory lock so counts never repeat.
func (s *Store) RecordNoShow(ctx context.Context, bookingID, contactID uuid.UUID) (*Record, error) {
	now := s.now().UTC()
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("noshow: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE bookings SET status = 'no_show', updated_at = $2 WHERE id = $1 AND status = 'confirmed'`,
		bookingID, now)
	if err != nil {
		return nil, fmt.Errorf("noshow: mark booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, booking.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "noshow:"+contactID.String()); err != nil {
		return nil, fmt.Errorf("noshow: lock contact: %w", err)
	}

	var strikes int
	var current *time.Time
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(max(strike_count), 0), max(suspended_until)
		FROM no_show_tracking
		WHERE contact_id = $1
	`, contactID).Scan(&strikes, &current)
	if err != nil {
		return nil, fmt.Errorf("noshow: load strikes: %w", err)
	}

	rec := Record{
		ID:          s.newID(),
		BookingID:   bookingID,
		ContactID:   contactID,
		StrikeCount: strikes + 1,
		RecordedAt:  now,
	}
	var issued *time.Time
	if s.policy.StrikeThreshold > 0 && rec.StrikeCount >= s.policy.StrikeThreshold {
		until := now.AddDate(0, 0, s.policy.SuspensionDays)
		if current == nil || until.After(*current) {
			issued = &until
		}
	}
	rec.SuspendedUntil = current
	if issued != nil {
		rec.SuspendedUntil = issued
	}
	if rec.SuspendedUntil != nil && !rec.SuspendedUntil.After(now) {
		rec.SuspendedUntil = nil
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO no_show_tracking (id, contact_id, booking_id, strike_count, suspended_until, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, contactID, bookingID, rec.StrikeCount, issued, now); err != nil {
		return nil, fmt.Errorf("noshow: record strike: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("noshow: commit: %w", err)
	}
	return &rec, nil
}
