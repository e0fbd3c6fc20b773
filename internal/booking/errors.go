package booking

import (
	"errors"
	"fmt"
)

// Policy rule identifiers reported with every PolicyViolation.
const (
	RuleInvalidRequest            = "invalid_request"
	RuleBookingDisabled           = "booking_disabled"
	RuleCrossMidnight             = "cross_midnight"
	RuleClosed                    = "closed"
	RuleOutsideHours              = "outside_hours"
	RuleEmergencyBlocker          = "emergency_blocker"
	RuleMinSlotHours              = "min_slot_hours"
	RuleMaxSlotHours              = "max_slot_hours"
	RuleOnlyMornings              = "only_mornings"
	RuleOnlyAfternoons            = "only_afternoons"
	RuleOnlyWeekdays              = "only_weekdays"
	RuleExcludedDay               = "excluded_day"
	RuleTeamMemberInactive        = "team_member_inactive"
	RuleTeamMemberNotAssigned     = "team_member_not_assigned"
	RuleTeamMemberUnavailableDay  = "team_member_unavailable_day"
	RuleTeamMemberOutsideSchedule = "team_member_outside_schedule"
	RuleTeamMemberAbsent          = "team_member_absent"
	RuleTeamMemberConflict        = "team_member_conflict"
	RuleBookingConflict           = "booking_conflict"
	RuleContactSuspended          = "contact_suspended"
	RuleOutstandingBalance        = "outstanding_balance"
	RuleContactNotFound           = "contact_not_found"
	RuleServiceNotFound           = "service_not_found"
	RuleServiceInactive           = "service_inactive"
	RuleContactOverlap            = "contact_overlap"
	RuleSlotBusy                  = "slot_busy"
	RuleAlreadyFinal              = "booking_not_cancellable"
	RuleTeamMemberNotFound        = "team_member_not_found"
)

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("booking: not found")

// ErrPenaltyExists is returned when the booking already carries a penalty
// transaction.
var ErrPenaltyExists = errors.New("booking: penalty already recorded")

// ErrBatchIncomplete is returned when a bulk insert stored fewer rows than requested.
var ErrBatchIncomplete = errors.New("booking: batch insert incomplete")

// PolicyViolation is a business-rule rejection. Its message is meant for the
// end user and names the concrete constraint that failed.
type PolicyViolation struct {
	Rule    string
	Message string
}

func (v *PolicyViolation) Error() string {
	return v.Message
}

func violation(rule, format string, args ...any) *PolicyViolation {
	return &PolicyViolation{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// NewPolicyViolation builds a violation for rules enforced outside the engine,
// such as database constraints.
func NewPolicyViolation(rule, message string) *PolicyViolation {
	return &PolicyViolation{Rule: rule, Message: message}
}

// AsPolicyViolation extracts a PolicyViolation from err, if any.
func AsPolicyViolation(err error) (*PolicyViolation, bool) {
	var v *PolicyViolation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// IsPolicyViolation reports whether err is (or wraps) a PolicyViolation.
func IsPolicyViolation(err error) bool {
	_, ok := AsPolicyViolation(err)
	return ok
}

// SideEffectError reports the post-persist step that failed during a
// single-booking creation. The booking has been rolled back when the caller
// sees it.
type SideEffectError struct {
	Effect string
	Err    error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("booking: %s failed: %v", e.Effect, e.Err)
}

func (e *SideEffectError) Unwrap() error {
	return e.Err
}

// PersistError is returned by persistBooking when the database write failed
// after the calendar event was created. CalendarEventID identifies the
// residual event so the caller can compensate.
type PersistError struct {
	CalendarID      string
	CalendarEventID string
	Err             error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("booking: persist: %v", e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
