package booking

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TimeRange is a wall-clock window in HH:MM form, e.g. {"09:00","12:00"}.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r TimeRange) String() string {
	return r.Start + "-" + r.End
}

// minutes returns the window as minutes since midnight.
func (r TimeRange) minutes() (int, int, error) {
	start, err := ParseClock(r.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseClock(r.End)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// ParseClock parses "HH:MM" into minutes since midnight. "24:00" is accepted
// as end of day.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("booking: invalid clock %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("booking: invalid clock %q", s)
	}
	return h*60 + m, nil
}

// FormatClock renders t as HH:MM in loc.
func FormatClock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04")
}

// BufferedInterval widens [start,end) by the given buffer minutes.
func BufferedInterval(start, end time.Time, beforeMinutes, afterMinutes int) (time.Time, time.Time) {
	return start.Add(-time.Duration(beforeMinutes) * time.Minute),
		end.Add(time.Duration(afterMinutes) * time.Minute)
}

// Overlaps is the half-open overlap test; touching boundaries do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// CrossesDay reports whether [start,end] spans more than one calendar day in loc.
func CrossesDay(start, end time.Time, loc *time.Location) bool {
	sy, sm, sd := start.In(loc).Date()
	ey, em, ed := end.In(loc).Date()
	return sy != ey || sm != em || sd != ed
}

// clockMinutes returns minutes since midnight of t in loc.
func clockMinutes(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}

// FitsWithin reports whether the whole interval [start,end] lies inside at
// least one window. Both ends must be on the same day in loc.
func FitsWithin(start, end time.Time, windows []TimeRange, loc *time.Location) (bool, error) {
	s := clockMinutes(start, loc)
	e := clockMinutes(end, loc)
	for _, w := range windows {
		ws, we, err := w.minutes()
		if err != nil {
			return false, err
		}
		if s >= ws && e <= we {
			return true, nil
		}
	}
	return false, nil
}

func joinRanges(windows []TimeRange) string {
	parts := make([]string, 0, len(windows))
	for _, w := range windows {
		parts = append(parts, w.String())
	}
	return strings.Join(parts, ", ")
}

// SlotsFromBusy splits [start,end) into alternating busy and free slots.
// Busy intervals may be unsorted or overlapping.
func SlotsFromBusy(start, end time.Time, busy []TimeSlot) []TimeSlot {
	sorted := make([]TimeSlot, 0, len(busy))
	for _, b := range busy {
		if Overlaps(b.Start, b.End, start, end) {
			sorted = append(sorted, b)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var out []TimeSlot
	cursor := start
	for _, b := range sorted {
		bs, be := b.Start, b.End
		if bs.Before(cursor) {
			bs = cursor
		}
		if be.After(end) {
			be = end
		}
		if !be.After(bs) {
			continue
		}
		if bs.After(cursor) {
			out = append(out, TimeSlot{Start: cursor, End: bs, Available: true})
		}
		if n := len(out); n > 0 && !out[n-1].Available && !out[n-1].End.Before(bs) {
			if be.After(out[n-1].End) {
				out[n-1].End = be
			}
		} else {
			out = append(out, TimeSlot{Start: bs, End: be})
		}
		if be.After(cursor) {
			cursor = be
		}
	}
	if cursor.Before(end) {
		out = append(out, TimeSlot{Start: cursor, End: end, Available: true})
	}
	return out
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeeklySchedule decodes {"monday":[{"start":"09:00","end":"12:00"}],...}.
// Every window is validated; unknown day names are an error.
func ParseWeeklySchedule(data []byte) (map[time.Weekday][]TimeRange, error) {
	out := map[time.Weekday][]TimeRange{}
	if len(data) == 0 {
		return out, nil
	}
	var raw map[string][]TimeRange
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("booking: decode weekly schedule: %w", err)
	}
	for name, windows := range raw {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("booking: unknown weekday %q", name)
		}
		for _, w := range windows {
			start, end, err := w.minutes()
			if err != nil {
				return nil, err
			}
			if end <= start {
				return nil, fmt.Errorf("booking: window %s on %s ends before it starts", w, name)
			}
		}
		out[day] = append(out[day], windows...)
	}
	return out, nil
}
