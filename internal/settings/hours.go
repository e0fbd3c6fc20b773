package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wolfman30/booking-crm/internal/booking"
)

const dateLayout = "2006-01-02"

// DefaultBusinessHours applies when business_hours is not configured:
// Monday to Friday, 09:00-18:00.
func DefaultBusinessHours() map[time.Weekday][]booking.TimeRange {
	day := []booking.TimeRange{{Start: "09:00", End: "18:00"}}
	return map[time.Weekday][]booking.TimeRange{
		time.Monday:    day,
		time.Tuesday:   day,
		time.Wednesday: day,
		time.Thursday:  day,
		time.Friday:    day,
	}
}

// HoursResolver derives opening windows, closures and emergency blockers
// from settings. It implements booking.HoursResolver.
type HoursResolver struct {
	settings booking.SettingsStore
	loc      *time.Location
}

// NewHoursResolver creates a resolver interpreting dates in loc.
func NewHoursResolver(settings booking.SettingsStore, loc *time.Location) *HoursResolver {
	if loc == nil {
		loc = time.UTC
	}
	return &HoursResolver{settings: settings, loc: loc}
}

var _ booking.HoursResolver = (*HoursResolver)(nil)

// AvailableWindows returns the opening windows for the local day of t, or
// none when the business is closed that day. Lunch breaks are expressed as
// gaps between windows.
func (h *HoursResolver) AvailableWindows(ctx context.Context, t time.Time) ([]booking.TimeRange, error) {
	local := t.In(h.loc)

	closed, err := h.closedDates(ctx)
	if err != nil {
		return nil, err
	}
	if closed[local.Format(dateLayout)] {
		return nil, nil
	}

	raw, ok, err := h.settings.Get(ctx, KeyBusinessHours)
	if err != nil {
		return nil, err
	}
	schedule := DefaultBusinessHours()
	if ok && raw != "" {
		schedule, err = booking.ParseWeeklySchedule([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("settings: %s: %w", KeyBusinessHours, err)
		}
	}
	return schedule[local.Weekday()], nil
}

type blockerSetting struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Reason string `json:"reason,omitempty"`
}

// EmergencyBlockers returns configured blockers. Dates are inclusive in
// settings and converted to [start of first day, start of day after last).
func (h *HoursResolver) EmergencyBlockers(ctx context.Context) ([]booking.DateRange, error) {
	raw, ok, err := h.settings.Get(ctx, KeyEmergencyBlockers)
	if err != nil || !ok || raw == "" {
		return nil, err
	}
	var entries []blockerSetting
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("settings: decode %s: %w", KeyEmergencyBlockers, err)
	}
	out := make([]booking.DateRange, 0, len(entries))
	for _, e := range entries {
		start, err := time.ParseInLocation(dateLayout, e.Start, h.loc)
		if err != nil {
			return nil, fmt.Errorf("settings: blocker start %q: %w", e.Start, err)
		}
		end := start
		if e.End != "" {
			if end, err = time.ParseInLocation(dateLayout, e.End, h.loc); err != nil {
				return nil, fmt.Errorf("settings: blocker end %q: %w", e.End, err)
			}
		}
		if end.Before(start) {
			return nil, fmt.Errorf("settings: blocker %s ends before it starts", e.Start)
		}
		out = append(out, booking.DateRange{Start: start, End: end.AddDate(0, 0, 1), Reason: e.Reason})
	}
	return out, nil
}

func (h *HoursResolver) closedDates(ctx context.Context) (map[string]bool, error) {
	raw, ok, err := h.settings.Get(ctx, KeyClosedDates)
	if err != nil || !ok || raw == "" {
		return nil, err
	}
	var dates []string
	if err := json.Unmarshal([]byte(raw), &dates); err != nil {
		return nil, fmt.Errorf("settings: decode %s: %w", KeyClosedDates, err)
	}
	out := make(map[string]bool, len(dates))
	for _, d := range dates {
		out[d] = true
	}
	return out, nil
}
