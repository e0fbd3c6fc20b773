package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore records which consumer already handled which event, so
// redelivered bus messages are applied once.
type ProcessedStore struct {
	db rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{db: pool}
}

func newProcessedStoreWithExec(exec rowQuerier) *ProcessedStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &ProcessedStore{db: exec}
}

// AlreadyProcessed checks whether consumer has handled eventID.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE consumer = $1 AND event_id = $2`
	var exists int
	if err := s.db.QueryRow(ctx, query, consumer, eventID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return true, nil
}

// Claim records eventID for consumer and returns false if another delivery
// already claimed it.
func (s *ProcessedStore) Claim(ctx context.Context, consumer, eventID string) (bool, error) {
	query := `
		INSERT INTO processed_events (consumer, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.db.Exec(ctx, query, consumer, eventID)
	if err != nil {
		return false, fmt.Errorf("events: claim processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// Release forgets a claim so a failed handler can be retried on redelivery.
func (s *ProcessedStore) Release(ctx context.Context, consumer, eventID string) error {
	query := `DELETE FROM processed_events WHERE consumer = $1 AND event_id = $2`
	if _, err := s.db.Exec(ctx, query, consumer, eventID); err != nil {
		return fmt.Errorf("events: release processed: %w", err)
	}
	return nil
}
