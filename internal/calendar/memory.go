package calendar

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-crm/internal/booking"
)

// MemoryProvider keeps events in process. It backs local development when no
// Google credentials are configured.
type MemoryProvider struct {
	mu     sync.Mutex
	events map[string]memoryEvent
}

type memoryEvent struct {
	calendarID string
	event      booking.CalendarEvent
}

// NewMemoryProvider creates an empty in-memory calendar.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{events: make(map[string]memoryEvent)}
}

var _ booking.CalendarProvider = (*MemoryProvider)(nil)

func (m *MemoryProvider) CreateEvent(_ context.Context, calendarID string, event booking.CalendarEvent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.events[id] = memoryEvent{calendarID: calendarID, event: event}
	return id, nil
}

func (m *MemoryProvider) UpdateEvent(_ context.Context, _ string, eventID string, patch booking.CalendarEventPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return booking.ErrNotFound
	}
	if patch.Title != nil {
		ev.event.Title = *patch.Title
	}
	if patch.Description != nil {
		ev.event.Description = *patch.Description
	}
	if patch.StartTime != nil {
		ev.event.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		ev.event.EndTime = *patch.EndTime
	}
	m.events[eventID] = ev
	return nil
}

func (m *MemoryProvider) DeleteEvent(_ context.Context, _ string, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, eventID)
	return nil
}

// GetAvailability treats every stored event as busy, whatever its calendar.
func (m *MemoryProvider) GetAvailability(_ context.Context, _ string, start, end time.Time) ([]booking.TimeSlot, error) {
	m.mu.Lock()
	busy := make([]booking.TimeSlot, 0, len(m.events))
	for _, ev := range m.events {
		busy = append(busy, booking.TimeSlot{Start: ev.event.StartTime, End: ev.event.EndTime})
	}
	m.mu.Unlock()
	return booking.SlotsFromBusy(start, end, busy), nil
}

// Len returns the number of stored events.
func (m *MemoryProvider) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
