package events

import (
	"context"
	"testing"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestProcessedStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProcessedStoreWithExec(mock)
	ctx := context.Background()

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("waitlist", "evt").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	processed, err := store.AlreadyProcessed(ctx, "waitlist", "evt")
	if err != nil || !processed {
		t.Fatalf("expected existing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("waitlist", "evt-miss").WillReturnError(pgx.ErrNoRows)
	processed, err = store.AlreadyProcessed(ctx, "waitlist", "evt-miss")
	if err != nil || processed {
		t.Fatalf("expected missing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("waitlist", "evt-new").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := store.Claim(ctx, "waitlist", "evt-new")
	if err != nil || !ok {
		t.Fatalf("expected claim success, got %v %v", ok, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("waitlist", "evt-new").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	ok, err = store.Claim(ctx, "waitlist", "evt-new")
	if err != nil || ok {
		t.Fatalf("expected duplicate claim to be rejected, got %v %v", ok, err)
	}

	mock.ExpectExec("DELETE FROM processed_events").WithArgs("waitlist", "evt-new").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := store.Release(ctx, "waitlist", "evt-new"); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
