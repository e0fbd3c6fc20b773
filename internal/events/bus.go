package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wolfman30/booking-crm/pkg/logging"
)

// Message is a raw event received from the bus.
type Message struct {
	Subject    string
	Data       []byte
	ReceivedAt time.Time
}

// Handler processes one bus message.
type Handler func(ctx context.Context, msg Message) error

// Bus publishes and subscribes to subjects. Subscribers sharing a queue name
// split the message stream between them.
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(subject, queue string, handler Handler) error
	Close() error
}

// NATSBus is a Bus backed by a NATS connection.
type NATSBus struct {
	conn   *nats.Conn
	logger *logging.Logger
}

// NewNATSBus connects to the NATS server at url.
func NewNATSBus(url string, logger *logging.Logger) (*NATSBus, error) {
	if logger == nil {
		logger = logging.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("booking-crm"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect to NATS: %w", err)
	}
	return &NATSBus{conn: conn, logger: logger}, nil
}

func (b *NATSBus) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("events: publish %s: %w", subject, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(subject, queue string, handler Handler) error {
	cb := func(msg *nats.Msg) {
		m := Message{Subject: msg.Subject, Data: msg.Data, ReceivedAt: time.Now().UTC()}
		if err := handler(context.Background(), m); err != nil {
			b.logger.Error("event handler failed", "error", err, "subject", msg.Subject)
		}
	}
	var err error
	if queue != "" {
		_, err = b.conn.QueueSubscribe(subject, queue, cb)
	} else {
		_, err = b.conn.Subscribe(subject, cb)
	}
	if err != nil {
		return fmt.Errorf("events: subscribe %s: %w", subject, err)
	}
	return nil
}

func (b *NATSBus) Close() error {
	return b.conn.Drain()
}

// MemoryBus delivers messages synchronously inside the process. It is used
// when no NATS server is configured and in tests.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]Handler)}
}

func (b *MemoryBus) Publish(ctx context.Context, subject string, data []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.New("events: bus closed")
	}
	handlers := append([]Handler(nil), b.handlers[subject]...)
	b.mu.RUnlock()

	msg := Message{Subject: subject, Data: append([]byte(nil), data...), ReceivedAt: time.Now().UTC()}
	var errs []error
	for _, h := range handlers {
		if err := h(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers handler; queue groups are ignored in memory.
func (b *MemoryBus) Subscribe(subject, _ string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("events: bus closed")
	}
	b.handlers[subject] = append(b.handlers[subject], handler)
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// BusPublisher publishes booking events straight to a bus, skipping the
// outbox. Used when the API and the listeners share one process.
type BusPublisher struct {
	bus Bus
}

func NewBusPublisher(bus Bus) *BusPublisher {
	return &BusPublisher{bus: bus}
}

func (p *BusPublisher) PublishBookingCancelled(ctx context.Context, evt BookingCancelledV1) error {
	if p.bus == nil {
		return errors.New("events: bus not configured")
	}
	env, err := NewEnvelope("booking:"+evt.BookingID, evt, eventIDOption(evt.EventID))
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	return p.bus.Publish(ctx, env.EventType, data)
}
