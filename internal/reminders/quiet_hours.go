package reminders

import (
	"fmt"
	"time"
)

// Purpose distinguishes transactional sends from solicitations.
type Purpose string

const (
	PurposeTransactional Purpose = "transactional"
	PurposeMarketing     Purpose = "marketing"
)

// QuietHours is a daily local window during which marketing sends are held back.
type QuietHours struct {
	StartMinutes int
	EndMinutes   int
	location     *time.Location
	enabled      bool
}

// ParseQuietHours builds a window from HH:MM strings in loc. Empty bounds disable it.
func ParseQuietHours(start, end string, loc *time.Location) (QuietHours, error) {
	if start == "" && end == "" {
		return QuietHours{}, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	startMin, err := parseClock(start)
	if err != nil {
		return QuietHours{}, fmt.Errorf("reminders: parse quiet hours start: %w", err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return QuietHours{}, fmt.Errorf("reminders: parse quiet hours end: %w", err)
	}
	return QuietHours{
		StartMinutes: startMin,
		EndMinutes:   endMin,
		location:     loc,
		enabled:      startMin != endMin,
	}, nil
}

func parseClock(v string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("empty clock")
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Suppress reports whether t falls inside the window for the given purpose.
func (q QuietHours) Suppress(t time.Time, purpose Purpose) bool {
	if !q.enabled || purpose != PurposeMarketing {
		return false
	}
	return q.inside(t)
}

func (q QuietHours) inside(t time.Time) bool {
	local := t.In(q.location)
	minutes := local.Hour()*60 + local.Minute()
	if q.StartMinutes < q.EndMinutes {
		return minutes >= q.StartMinutes && minutes < q.EndMinutes
	}
	// Window crosses midnight.
	return minutes >= q.StartMinutes || minutes < q.EndMinutes
}

// Defer moves t to the end of the window when it would be suppressed.
func (q QuietHours) Defer(t time.Time, purpose Purpose) time.Time {
	if !q.Suppress(t, purpose) {
		return t
	}
	local := t.In(q.location)
	end := time.Date(local.Year(), local.Month(), local.Day(), q.EndMinutes/60, q.EndMinutes%60, 0, 0, q.location)
	if !end.After(local) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}
