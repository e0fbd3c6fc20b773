package booking

import (
	"context"
	"fmt"
	"slices"
	"time"
)

const noonMinutes = 12 * 60

// checkConfiguration evaluates business configuration against the requested
// event: kill switch, buffered opening hours, emergency blockers and service
// restrictions. First violation wins.
func (e *Engine) checkConfiguration(ctx context.Context, event CalendarEvent, svc *Service) error {
	enabled, err := e.policy.bookingEnabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		return violation(RuleBookingDisabled, "online booking is currently disabled")
	}

	var before, after int
	if svc != nil {
		before, after = svc.BufferTimeBefore, svc.BufferTimeAfter
	}
	actualStart, actualEnd := BufferedInterval(event.StartTime, event.EndTime, before, after)
	if CrossesDay(actualStart, actualEnd, e.loc) {
		return violation(RuleCrossMidnight,
			"appointment %s-%s with %d/%d minute buffers crosses midnight; choose a time that starts and ends on the same day",
			FormatClock(event.StartTime, e.loc), FormatClock(event.EndTime, e.loc), before, after)
	}

	windows, err := e.hours.AvailableWindows(ctx, actualStart.In(e.loc))
	if err != nil {
		return fmt.Errorf("booking: resolve business hours: %w", err)
	}
	day := actualStart.In(e.loc)
	if len(windows) == 0 {
		return violation(RuleClosed, "we are closed on %s %s", day.Weekday(), day.Format("2006-01-02"))
	}
	fits, err := FitsWithin(actualStart, actualEnd, windows, e.loc)
	if err != nil {
		return fmt.Errorf("booking: business hours: %w", err)
	}
	if !fits {
		return violation(RuleOutsideHours,
			"appointment including preparation time (%s-%s) must fit within opening hours %s",
			FormatClock(actualStart, e.loc), FormatClock(actualEnd, e.loc), joinRanges(windows))
	}

	blockers, err := e.hours.EmergencyBlockers(ctx)
	if err != nil {
		return fmt.Errorf("booking: load emergency blockers: %w", err)
	}
	for _, b := range blockers {
		if !event.StartTime.Before(b.Start) && event.StartTime.Before(b.End) {
			reason := b.Reason
			if reason == "" {
				reason = "unforeseen closure"
			}
			return violation(RuleEmergencyBlocker, "bookings are not possible between %s and %s (%s)",
				b.Start.In(e.loc).Format("2006-01-02"), b.End.Add(-time.Nanosecond).In(e.loc).Format("2006-01-02"), reason)
		}
	}

	if svc != nil && !svc.Restrictions.Empty() {
		return e.checkRestrictions(event, svc)
	}
	return nil
}

// checkRestrictions evaluates service restrictions on the unbuffered request.
func (e *Engine) checkRestrictions(event CalendarEvent, svc *Service) error {
	r := svc.Restrictions
	hours := event.EndTime.Sub(event.StartTime).Hours()
	start := event.StartTime.In(e.loc)

	if r.MinSlotHours != nil && hours < *r.MinSlotHours {
		return violation(RuleMinSlotHours, "%s must be booked for at least %g hours (requested %g)", svc.Name, *r.MinSlotHours, hours)
	}
	if r.MaxSlotHours != nil && hours > *r.MaxSlotHours {
		return violation(RuleMaxSlotHours, "%s can be booked for at most %g hours (requested %g)", svc.Name, *r.MaxSlotHours, hours)
	}
	if r.OnlyMornings {
		end := clockMinutes(event.EndTime, e.loc)
		if CrossesDay(event.StartTime, event.EndTime, e.loc) || end > noonMinutes {
			return violation(RuleOnlyMornings, "%s is only available in the morning (must end by 12:00)", svc.Name)
		}
	}
	if r.OnlyAfternoons && clockMinutes(event.StartTime, e.loc) < noonMinutes {
		return violation(RuleOnlyAfternoons, "%s is only available in the afternoon (from 12:00)", svc.Name)
	}
	if r.OnlyWeekdays && (start.Weekday() == time.Saturday || start.Weekday() == time.Sunday) {
		return violation(RuleOnlyWeekdays, "%s is only available Monday to Friday", svc.Name)
	}
	if slices.Contains(r.ExcludedDays, start.Weekday()) {
		return violation(RuleExcludedDay, "%s is not available on %s", svc.Name, start.Weekday())
	}
	return nil
}
