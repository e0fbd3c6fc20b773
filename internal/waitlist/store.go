// Package waitlist keeps contacts waiting for a slot and offers them freed
// slots when a booking is cancelled.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	StatusWaiting  = "waiting"
	StatusNotified = "notified"
	StatusBooked   = "booked"
)

const dateLayout = "2006-01-02"

var ErrInvalidEntry = errors.New("waitlist: invalid entry")

// Entry is one contact waiting for a date.
type Entry struct {
	ID            uuid.UUID  `json:"id"`
	ContactID     uuid.UUID  `json:"contact_id"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone"`
	ServiceID     *uuid.UUID `json:"service_id,omitempty"`
	TeamMemberID  *uuid.UUID `json:"team_member_id,omitempty"`
	PreferredDate string     `json:"preferred_date"`
	Status        string     `json:"status"`
	NotifiedAt    *time.Time `json:"notified_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const entryColumns = `id, contact_id, name, phone, service_id, team_member_id, preferred_date::text, status, notified_at, created_at`

type Store struct {
	db  DB
	now func() time.Time
}

// NewStore creates a waitlist store.
func NewStore(db DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Add puts a contact on the waitlist for a date.
func (s *Store) Add(ctx context.Context, e *Entry) error {
	e.Phone = strings.TrimSpace(e.Phone)
	if e.ContactID == uuid.Nil || e.Phone == "" {
		return fmt.Errorf("%w: contact and phone are required", ErrInvalidEntry)
	}
	if _, err := time.Parse(dateLayout, e.PreferredDate); err != nil {
		return fmt.Errorf("%w: preferred_date must be YYYY-MM-DD", ErrInvalidEntry)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Status = StatusWaiting
	e.CreatedAt = s.now()
	_, err := s.db.Exec(ctx, `
		INSERT INTO waitlist_entries (id, contact_id, name, phone, service_id, team_member_id, preferred_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8, $9)`,
		e.ID, e.ContactID, e.Name, e.Phone, e.ServiceID, e.TeamMemberID, e.PreferredDate, e.Status, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("waitlist: add entry: %w", err)
	}
	return nil
}

// ListByDate returns all entries for a date regardless of status.
func (s *Store) ListByDate(ctx context.Context, date string) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE preferred_date = $1::date
		ORDER BY created_at ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("waitlist: list by date: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// FindMatching returns waiting entries for date whose service and team
// member are either unset or equal to the freed slot's.
func (s *Store) FindMatching(ctx context.Context, date string, serviceID, teamMemberID *uuid.UUID) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE status = 'waiting'
		  AND preferred_date = $1::date
		  AND (service_id IS NULL OR $2::uuid IS NULL OR service_id = $2)
		  AND (team_member_id IS NULL OR $3::uuid IS NULL OR team_member_id = $3)
		ORDER BY created_at ASC`, date, serviceID, teamMemberID)
	if err != nil {
		return nil, fmt.Errorf("waitlist: find matching: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// MarkNotified moves waiting entries to notified.
func (s *Store) MarkNotified(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE waitlist_entries SET status = 'notified', notified_at = $1
		WHERE id = ANY($2) AND status = 'waiting'`, s.now(), ids)
	if err != nil {
		return 0, fmt.Errorf("waitlist: mark notified: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ContactID, &e.Name, &e.Phone, &e.ServiceID, &e.TeamMemberID,
			&e.PreferredDate, &e.Status, &e.NotifiedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("waitlist: scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("waitlist: iterate entries: %w", err)
	}
	return out, nil
}
