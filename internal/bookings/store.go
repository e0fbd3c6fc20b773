package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/wolfman30/booking-crm/internal/booking"
)

// sqlstateExclusionViolation is raised by the bookings_team_member_no_overlap constraint.
const sqlstateExclusionViolation = "23P01"

// PgxPool is the subset of *pgxpool.Pool used by the store.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists bookings and reads the reference data the engine validates
// against. It implements booking.Store.
type Store struct {
	pool PgxPool
}

// NewStore creates a store backed by a pgx pool.
func NewStore(pool PgxPool) *Store {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &Store{pool: pool}
}

var _ booking.Store = (*Store)(nil)

func (s *Store) GetContact(ctx context.Context, id uuid.UUID) (*booking.Contact, error) {
	query := `
		SELECT id, name, email, phone, outstanding_balance_chf::text, payment_allowance_granted
		FROM contacts
		WHERE id = $1
	`
	var c booking.Contact
	var balance string
	err := s.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &balance, &c.PaymentAllowanceGranted)
	if err != nil {
		return nil, notFound("get contact", err)
	}
	if c.OutstandingBalanceChf, err = parseDecimal(balance); err != nil {
		return nil, fmt.Errorf("bookings: contact balance: %w", err)
	}
	return &c, nil
}

func (s *Store) GetService(ctx context.Context, id uuid.UUID) (*booking.Service, error) {
	query := `
		SELECT id, name, duration_minutes, price::text, buffer_time_before, buffer_time_after, is_active, restrictions
		FROM services
		WHERE id = $1
	`
	var svc booking.Service
	var price string
	var restrictions []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&svc.ID, &svc.Name, &svc.DurationMinutes, &price,
		&svc.BufferTimeBefore, &svc.BufferTimeAfter, &svc.IsActive, &restrictions,
	)
	if err != nil {
		return nil, notFound("get service", err)
	}
	if svc.Price, err = parseDecimal(price); err != nil {
		return nil, fmt.Errorf("bookings: service price: %w", err)
	}
	if len(restrictions) > 0 {
		if err := json.Unmarshal(restrictions, &svc.Restrictions); err != nil {
			return nil, fmt.Errorf("bookings: decode service restrictions: %w", err)
		}
	}
	return &svc, nil
}

func (s *Store) GetTeamMember(ctx context.Context, id uuid.UUID) (*booking.TeamMember, error) {
	query := `
		SELECT id, name, calendar_id, is_active, availability_schedule
		FROM team_members
		WHERE id = $1
	`
	var m booking.TeamMember
	var schedule []byte
	if err := s.pool.QueryRow(ctx, query, id).Scan(&m.ID, &m.Name, &m.CalendarID, &m.IsActive, &schedule); err != nil {
		return nil, notFound("get team member", err)
	}
	parsed, err := booking.ParseWeeklySchedule(schedule)
	if err != nil {
		return nil, fmt.Errorf("bookings: team member %s schedule: %w", id, err)
	}
	m.AvailabilitySchedule = parsed
	return &m, nil
}

func (s *Store) IsTeamMemberAssigned(ctx context.Context, teamMemberID, serviceID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM team_member_services
			WHERE team_member_id = $1 AND service_id = $2
		)
	`
	var assigned bool
	if err := s.pool.QueryRow(ctx, query, teamMemberID, serviceID).Scan(&assigned); err != nil {
		return false, fmt.Errorf("bookings: check assignment: %w", err)
	}
	return assigned, nil
}

func (s *Store) ListUnavailability(ctx context.Context, teamMemberID uuid.UUID, start, end time.Time) ([]booking.UnavailabilityPeriod, error) {
	query := `
		SELECT id, team_member_id, start_time, end_time, reason
		FROM team_member_unavailability
		WHERE team_member_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time
	`
	rows, err := s.pool.Query(ctx, query, teamMemberID, start, end)
	if err != nil {
		return nil, fmt.Errorf("bookings: list unavailability: %w", err)
	}
	defer rows.Close()

	var out []booking.UnavailabilityPeriod
	for rows.Next() {
		var p booking.UnavailabilityPeriod
		if err := rows.Scan(&p.ID, &p.TeamMemberID, &p.StartTime, &p.EndTime, &p.Reason); err != nil {
			return nil, fmt.Errorf("bookings: scan unavailability: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListTeamMemberConflicts(ctx context.Context, teamMemberID uuid.UUID, start, end time.Time) ([]booking.Booking, error) {
	query := `
		SELECT ` + bookingSelect + `
		FROM bookings
		WHERE team_member_id = $1
		  AND status IN ('confirmed', 'pending')
		  AND COALESCE(actual_start_time, start_time) < $3
		  AND COALESCE(actual_end_time, end_time) > $2
		ORDER BY start_time
	`
	return s.queryBookings(ctx, "list team member conflicts", query, teamMemberID, start, end)
}

// nearMargin widens the raw-time search so rows whose buffers are not
// stored are still found; buffers never exceed a day.
const nearMargin = 24 * time.Hour

func (s *Store) ListConfirmedNear(ctx context.Context, start, end time.Time) ([]booking.OccupiedSlot, error) {
	query := `
		SELECT id, title, start_time, end_time, actual_start_time, actual_end_time, buffer_time_before, buffer_time_after
		FROM bookings
		WHERE status = 'confirmed' AND start_time < $2 AND end_time > $1
		ORDER BY start_time
	`
	rows, err := s.pool.Query(ctx, query, start.Add(-nearMargin), end.Add(nearMargin))
	if err != nil {
		return nil, fmt.Errorf("bookings: list confirmed: %w", err)
	}
	defer rows.Close()

	var out []booking.OccupiedSlot
	for rows.Next() {
		var slot booking.OccupiedSlot
		if err := rows.Scan(&slot.ID, &slot.Title, &slot.StartTime, &slot.EndTime,
			&slot.ActualStartTime, &slot.ActualEndTime, &slot.BufferTimeBefore, &slot.BufferTimeAfter); err != nil {
			return nil, fmt.Errorf("bookings: scan confirmed: %w", err)
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}

func (s *Store) ListContactOverlaps(ctx context.Context, contactID uuid.UUID, start, end time.Time) ([]booking.Booking, error) {
	query := `
		SELECT ` + bookingSelect + `
		FROM bookings
		WHERE contact_id = $1
		  AND status IN ('confirmed', 'pending')
		  AND COALESCE(actual_start_time, start_time) < $3
		  AND COALESCE(actual_end_time, end_time) > $2
		ORDER BY start_time
	`
	return s.queryBookings(ctx, "list contact overlaps", query, contactID, start, end)
}

func (s *Store) InsertBooking(ctx context.Context, b *booking.Booking) error {
	query := `INSERT INTO bookings (` + strings.Join(bookingColumns, ", ") + `) VALUES (` + placeholders(1, len(bookingColumns)) + `)`
	if _, err := s.pool.Exec(ctx, query, insertArgs(b)...); err != nil {
		return translateWriteError("insert booking", err)
	}
	return nil
}

// InsertBatch stores every row in one transaction. The contact's advisory
// lock serializes concurrent batches, and the contact overlap check is
// repeated under it.
func (s *Store) InsertBatch(ctx context.Context, rows []booking.Booking) ([]booking.Booking, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("bookings: begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	contactID := rows[0].ContactID
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, contactID.String()); err != nil {
		return nil, fmt.Errorf("bookings: lock contact: %w", err)
	}

	overlapQuery := `
		SELECT title
		FROM bookings
		WHERE contact_id = $1
		  AND status IN ('confirmed', 'pending')
		  AND COALESCE(actual_start_time, start_time) < $3
		  AND COALESCE(actual_end_time, end_time) > $2
		LIMIT 1
	`
	for i := range rows {
		var title string
		err := tx.QueryRow(ctx, overlapQuery, contactID, rows[i].ActualStartTime, rows[i].ActualEndTime).Scan(&title)
		if err == nil {
			return nil, booking.NewPolicyViolation(booking.RuleContactOverlap,
				fmt.Sprintf("session %d overlaps an existing appointment: %s", i+1, title))
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("bookings: batch overlap check: %w", err)
		}
	}

	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*len(bookingColumns))
	for i := range rows {
		values = append(values, "("+placeholders(len(args)+1, len(bookingColumns))+")")
		args = append(args, insertArgs(&rows[i])...)
	}
	query := `INSERT INTO bookings (` + strings.Join(bookingColumns, ", ") + `) VALUES ` +
		strings.Join(values, ", ") + ` RETURNING ` + bookingSelect

	result, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, translateWriteError("insert batch", err)
	}
	stored, err := collectBookings(result)
	if err != nil {
		return nil, translateWriteError("insert batch", err)
	}
	if len(stored) != len(rows) {
		return nil, fmt.Errorf("%w: returned %d of %d rows", booking.ErrBatchIncomplete, len(stored), len(rows))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("bookings: commit batch: %w", err)
	}
	return stored, nil
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	query := `SELECT ` + bookingSelect + ` FROM bookings WHERE id = $1`
	b, err := scanBooking(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound("get booking", err)
	}
	return b, nil
}

func (s *Store) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id); err != nil {
		return fmt.Errorf("bookings: delete booking: %w", err)
	}
	return nil
}

func (s *Store) SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) error {
	query := `
		UPDATE bookings
		SET calendar_event_id = $2, updated_at = now()
		WHERE id = $1
	`
	ct, err := s.pool.Exec(ctx, query, id, eventID)
	if err != nil {
		return fmt.Errorf("bookings: set calendar event: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (s *Store) MarkCancelled(ctx context.Context, c booking.Cancellation) error {
	query := `
		UPDATE bookings
		SET status = 'cancelled',
			cancelled_at = $2,
			cancellation_reason = $3,
			penalty_applied = $4,
			penalty_fee = $5,
			updated_at = now()
		WHERE id = $1 AND status IN ('confirmed', 'pending')
	`
	ct, err := s.pool.Exec(ctx, query, c.BookingID, c.CancelledAt, c.Reason, c.PenaltyApplied, c.PenaltyFee.StringFixed(2))
	if err != nil {
		return fmt.Errorf("bookings: mark cancelled: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

// Stats counts bookings whose start time falls in [start, end). Nil bounds are open.
func (s *Store) Stats(ctx context.Context, start, end *time.Time) (*booking.Stats, error) {
	query := `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'confirmed'),
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'cancelled'),
			count(*) FILTER (WHERE status = 'no_show'),
			count(*) FILTER (WHERE status = 'cancelled' AND penalty_applied),
			COALESCE(sum(penalty_fee) FILTER (WHERE penalty_applied), 0)::text,
			count(DISTINCT session_group_id)
		FROM bookings
		WHERE ($1::timestamptz IS NULL OR start_time >= $1)
		  AND ($2::timestamptz IS NULL OR start_time < $2)
	`
	var st booking.Stats
	var penalties string
	err := s.pool.QueryRow(ctx, query, start, end).Scan(
		&st.Total, &st.Confirmed, &st.Pending, &st.Cancelled, &st.NoShow,
		&st.LateCancellations, &penalties, &st.SessionGroups,
	)
	if err != nil {
		return nil, fmt.Errorf("bookings: stats: %w", err)
	}
	if st.PenaltyTotal, err = parseDecimal(penalties); err != nil {
		return nil, fmt.Errorf("bookings: stats penalty total: %w", err)
	}
	return &st, nil
}

func (s *Store) queryBookings(ctx context.Context, op, query string, args ...any) ([]booking.Booking, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bookings: %s: %w", op, err)
	}
	out, err := collectBookings(rows)
	if err != nil {
		return nil, fmt.Errorf("bookings: %s: %w", op, err)
	}
	return out, nil
}

func collectBookings(rows pgx.Rows) ([]booking.Booking, error) {
	defer rows.Close()
	var out []booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func notFound(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.ErrNotFound
	}
	return fmt.Errorf("bookings: %s: %w", op, err)
}

func translateWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlstateExclusionViolation {
		return booking.NewPolicyViolation(booking.RuleTeamMemberConflict,
			"the team member is already booked at this time")
	}
	return fmt.Errorf("bookings: %s: %w", op, err)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
