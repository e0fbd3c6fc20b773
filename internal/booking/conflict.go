package booking

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// checkGlobalConflicts rejects the buffered interval when it overlaps any
// confirmed booking, regardless of team member.
func (e *Engine) checkGlobalConflicts(ctx context.Context, start, end time.Time) error {
	slots, err := e.store.ListConfirmedNear(ctx, start, end)
	if err != nil {
		return fmt.Errorf("booking: load confirmed bookings: %w", err)
	}
	if titles := conflictingTitles(slots, start, end); len(titles) > 0 {
		return violation(RuleBookingConflict, "the requested time conflicts with existing booking(s): %s", strings.Join(titles, ", "))
	}
	return nil
}

func conflictingTitles(slots []OccupiedSlot, start, end time.Time) []string {
	var titles []string
	for _, s := range slots {
		existingStart, existingEnd := s.Interval()
		if Overlaps(existingStart, existingEnd, start, end) {
			titles = append(titles, s.Title)
		}
	}
	return titles
}
