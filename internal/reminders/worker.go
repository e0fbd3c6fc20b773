package reminders

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-crm/internal/observability/metrics"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

// Sender delivers a WhatsApp message.
type Sender interface {
	SendWhatsApp(ctx context.Context, to, body string) error
}

type dueStore interface {
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]Message, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, sendErr string, maxAttempts int) error
}

// Worker polls for due messages and sends them.
type Worker struct {
	store       dueStore
	sender      Sender
	logger      *logging.Logger
	metrics     *metrics.WorkerMetrics
	batchSize   int
	maxAttempts int
	interval    time.Duration
	now         func() time.Time
}

// NewWorker creates a worker that delivers due messages through sender.
func NewWorker(store *Store, sender Sender, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	w := &Worker{
		sender:      sender,
		logger:      logger,
		batchSize:   50,
		maxAttempts: 5,
		interval:    time.Minute,
		now:         time.Now,
	}
	if store != nil {
		w.store = store
	}
	return w
}

func (w *Worker) WithBatchSize(size int) *Worker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

func (w *Worker) WithMaxAttempts(n int) *Worker {
	if n > 0 {
		w.maxAttempts = n
	}
	return w
}

func (w *Worker) WithInterval(interval time.Duration) *Worker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

func (w *Worker) WithMetrics(m *metrics.WorkerMetrics) *Worker {
	w.metrics = m
	return w
}

// Start polls until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	if w.store == nil || w.sender == nil {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessDue(ctx); err != nil {
				w.logger.Error("reminders: process due failed", "error", err)
			}
		}
	}
}

// ProcessDue sends every due message once and returns how many were sent.
// Send failures are recorded per message and do not stop the batch.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	due, err := w.store.ListDue(ctx, w.now(), w.batchSize)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, m := range due {
		if err := w.sender.SendWhatsApp(ctx, m.Phone, m.Body); err != nil {
			w.metrics.ObserveMessage(string(m.Kind), "failed")
			w.logger.Warn("reminders: send failed", "error", err, "message_id", m.ID, "booking_id", m.BookingID, "attempt", m.Attempts+1)
			if markErr := w.store.MarkFailed(ctx, m.ID, err.Error(), w.maxAttempts); markErr != nil {
				w.logger.Error("reminders: record failure", "error", markErr, "message_id", m.ID)
			}
			continue
		}
		w.metrics.ObserveMessage(string(m.Kind), "sent")
		if err := w.store.MarkSent(ctx, m.ID); err != nil {
			w.logger.Error("reminders: mark sent", "error", err, "message_id", m.ID)
			continue
		}
		sent++
	}
	if sent > 0 {
		w.logger.Info("reminders: messages sent", "count", sent)
	}
	return sent, nil
}
