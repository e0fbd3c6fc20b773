package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// checkTeamMember validates that the team member can take the buffered
// interval and returns the calendar id to write the event to.
func (e *Engine) checkTeamMember(ctx context.Context, teamMemberID uuid.UUID, serviceID *uuid.UUID, start, end time.Time) (string, error) {
	member, err := e.store.GetTeamMember(ctx, teamMemberID)
	if errors.Is(err, ErrNotFound) {
		return "", violation(RuleTeamMemberNotFound, "the selected team member does not exist")
	}
	if err != nil {
		return "", fmt.Errorf("booking: load team member: %w", err)
	}
	if !member.IsActive {
		return "", violation(RuleTeamMemberInactive, "%s is not currently taking appointments", member.Name)
	}

	if serviceID != nil {
		assigned, err := e.store.IsTeamMemberAssigned(ctx, teamMemberID, *serviceID)
		if err != nil {
			return "", fmt.Errorf("booking: check service assignment: %w", err)
		}
		if !assigned {
			return "", violation(RuleTeamMemberNotAssigned, "%s is not assigned to this service", member.Name)
		}
	}

	weekday := start.In(e.loc).Weekday()
	windows := member.AvailabilitySchedule[weekday]
	if len(windows) == 0 {
		return "", violation(RuleTeamMemberUnavailableDay, "%s does not work on %s", member.Name, weekday)
	}
	fits, err := FitsWithin(start, end, windows, e.loc)
	if err != nil {
		return "", fmt.Errorf("booking: team member schedule: %w", err)
	}
	if !fits {
		return "", violation(RuleTeamMemberOutsideSchedule,
			"%s is available on %s only %s; requested %s-%s including preparation time",
			member.Name, weekday, joinRanges(windows), FormatClock(start, e.loc), FormatClock(end, e.loc))
	}

	periods, err := e.store.ListUnavailability(ctx, teamMemberID, start, end)
	if err != nil {
		return "", fmt.Errorf("booking: load unavailability: %w", err)
	}
	for _, p := range periods {
		if !Overlaps(p.StartTime, p.EndTime, start, end) {
			continue
		}
		reason := p.Reason
		if reason == "" {
			reason = "absent"
		}
		return "", violation(RuleTeamMemberAbsent, "%s is unavailable (%s) from %s to %s",
			member.Name, reason, p.StartTime.In(e.loc).Format("2006-01-02 15:04"), p.EndTime.In(e.loc).Format("2006-01-02 15:04"))
	}

	existing, err := e.store.ListTeamMemberConflicts(ctx, teamMemberID, start, end)
	if err != nil {
		return "", fmt.Errorf("booking: load team member bookings: %w", err)
	}
	var titles []string
	for _, b := range existing {
		if Overlaps(b.ActualStartTime, b.ActualEndTime, start, end) {
			titles = append(titles, b.Title)
		}
	}
	if len(titles) > 0 {
		return "", violation(RuleTeamMemberConflict, "%s is already booked at this time: %s", member.Name, strings.Join(titles, ", "))
	}
	return member.CalendarID, nil
}
