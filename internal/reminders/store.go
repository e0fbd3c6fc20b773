package reminders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const messageColumns = `id, booking_id, contact_id, kind, phone, body, send_at, status, attempts, last_error, sent_at, created_at`

// Store persists scheduled_messages.
type Store struct {
	db  DB
	now func() time.Time
}

// NewStore creates a scheduled message store.
func NewStore(db DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Insert writes all messages in a single statement.
func (s *Store) Insert(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	now := s.now()
	var sb strings.Builder
	sb.WriteString(`INSERT INTO scheduled_messages (id, booking_id, contact_id, kind, phone, body, send_at, status, created_at) VALUES `)
	args := make([]any, 0, len(msgs)*9)
	for i := range msgs {
		m := &msgs[i]
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		if m.Status == "" {
			m.Status = StatusPending
		}
		m.CreatedAt = now
		if i > 0 {
			sb.WriteString(", ")
		}
		n := len(args)
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8, n+9)
		args = append(args, m.ID, m.BookingID, m.ContactID, string(m.Kind), m.Phone, m.Body, m.SendAt.UTC(), string(m.Status), m.CreatedAt)
	}
	if _, err := s.db.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("reminders: insert messages: %w", err)
	}
	return nil
}

// ListDue returns pending messages whose send time has passed, oldest first.
func (s *Store) ListDue(ctx context.Context, asOf time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		WHERE status = 'pending' AND send_at <= $1
		ORDER BY send_at ASC
		LIMIT $2`, asOf.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("reminders: list due: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListByBooking returns every message scheduled for a booking.
func (s *Store) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		WHERE booking_id = $1
		ORDER BY send_at ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("reminders: list by booking: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MarkSent transitions a message from pending to sent.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE scheduled_messages SET status = 'sent', sent_at = $1, attempts = attempts + 1
		WHERE id = $2 AND status = 'pending'`, s.now(), id)
	if err != nil {
		return fmt.Errorf("reminders: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminders: mark sent: no pending message with id %s", id)
	}
	return nil
}

// MarkFailed records a failed attempt. Once attempts reach maxAttempts the
// message is parked as failed; otherwise it stays pending for the next poll.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, sendErr string, maxAttempts int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE scheduled_messages
		SET attempts = attempts + 1,
		    last_error = $1,
		    status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE status END
		WHERE id = $3 AND status = 'pending'`, sendErr, maxAttempts, id)
	if err != nil {
		return fmt.Errorf("reminders: mark failed: %w", err)
	}
	return nil
}

// CancelForBooking cancels all pending messages of a booking and reports how many were cancelled.
func (s *Store) CancelForBooking(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE scheduled_messages SET status = 'cancelled'
		WHERE booking_id = $1 AND status = 'pending'`, bookingID)
	if err != nil {
		return 0, fmt.Errorf("reminders: cancel for booking: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var (
			m            Message
			kind, status string
		)
		if err := rows.Scan(&m.ID, &m.BookingID, &m.ContactID, &kind, &m.Phone, &m.Body,
			&m.SendAt, &status, &m.Attempts, &m.LastError, &m.SentAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("reminders: scan message: %w", err)
		}
		m.Kind = Kind(kind)
		m.Status = Status(status)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reminders: iterate messages: %w", err)
	}
	return out, nil
}
