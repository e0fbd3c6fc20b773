package booking

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Settings keys read by the engine.
const (
	SettingEnableBooking          = "enable_booking"
	SettingCancellationHours      = "cancellation_policy_hours"
	SettingPenaltyType            = "late_cancellation_penalty_type"
	SettingPenaltyAmount          = "late_cancellation_penalty_amount"
	SettingPenaltyPercentage      = "late_cancellation_penalty_percentage"
	SettingReminderLeadTimesHours = "reminder_lead_times_hours"
	SettingReviewDelayHours       = "review_request_delay_hours"
	SettingSecretaryEmail         = "secretary_email"
	SettingSecretaryPhone         = "secretary_phone"
	SettingBusinessName           = "business_name"
)

// Penalty types for late cancellations.
const (
	PenaltyFixed      = "fixed"
	PenaltyPercentage = "percentage"
)

// EmailFailurePolicy decides whether a failed confirmation email undoes a booking.
type EmailFailurePolicy string

const (
	EmailFailureFatal      EmailFailurePolicy = "fatal"
	EmailFailureBestEffort EmailFailurePolicy = "best_effort"
)

// ParseEmailFailurePolicy maps a config value to a policy; unknown values are fatal.
func ParseEmailFailurePolicy(s string) EmailFailurePolicy {
	if EmailFailurePolicy(strings.ToLower(strings.TrimSpace(s))) == EmailFailureBestEffort {
		return EmailFailureBestEffort
	}
	return EmailFailureFatal
}

// policy reads typed values from the string settings store.
type policy struct {
	settings SettingsStore
}

func (p policy) raw(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := p.settings.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("booking: read setting %s: %w", key, err)
	}
	v = strings.TrimSpace(v)
	return v, ok && v != "", nil
}

func (p policy) boolValue(ctx context.Context, key string, def bool) (bool, error) {
	v, ok, err := p.raw(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	b, perr := strconv.ParseBool(v)
	if perr != nil {
		return def, nil
	}
	return b, nil
}

func (p policy) floatValue(ctx context.Context, key string, def float64) (float64, error) {
	v, ok, err := p.raw(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	f, perr := strconv.ParseFloat(v, 64)
	if perr != nil {
		return def, nil
	}
	return f, nil
}

func (p policy) decimalValue(ctx context.Context, key string) (decimal.Decimal, error) {
	v, ok, err := p.raw(ctx, key)
	if err != nil || !ok {
		return decimal.Zero, err
	}
	d, perr := decimal.NewFromString(v)
	if perr != nil {
		return decimal.Zero, nil
	}
	return d, nil
}

func (p policy) stringValue(ctx context.Context, key, def string) (string, error) {
	v, ok, err := p.raw(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

func (p policy) bookingEnabled(ctx context.Context) (bool, error) {
	return p.boolValue(ctx, SettingEnableBooking, true)
}

func (p policy) cancellationWindow(ctx context.Context) (time.Duration, error) {
	hours, err := p.floatValue(ctx, SettingCancellationHours, 24)
	if err != nil {
		return 0, err
	}
	return time.Duration(hours * float64(time.Hour)), nil
}

// penaltyFor computes the late-cancellation fee for a service price.
func (p policy) penaltyFor(ctx context.Context, price decimal.Decimal) (decimal.Decimal, error) {
	kind, err := p.stringValue(ctx, SettingPenaltyType, PenaltyFixed)
	if err != nil {
		return decimal.Zero, err
	}
	var fee decimal.Decimal
	switch strings.ToLower(kind) {
	case PenaltyPercentage:
		pct, err := p.decimalValue(ctx, SettingPenaltyPercentage)
		if err != nil {
			return decimal.Zero, err
		}
		fee = price.Mul(pct).Div(decimal.NewFromInt(100))
	default:
		fee, err = p.decimalValue(ctx, SettingPenaltyAmount)
		if err != nil {
			return decimal.Zero, err
		}
	}
	if fee.IsNegative() {
		return decimal.Zero, nil
	}
	return fee.Round(2), nil
}

// reminderLeadTimes parses a list like "24,2" into durations.
func (p policy) reminderLeadTimes(ctx context.Context) ([]time.Duration, error) {
	v, err := p.stringValue(ctx, SettingReminderLeadTimesHours, "24,2")
	if err != nil {
		return nil, err
	}
	var out []time.Duration
	for _, part := range strings.Split(v, ",") {
		h, perr := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if perr != nil || h <= 0 {
			continue
		}
		out = append(out, time.Duration(h*float64(time.Hour)))
	}
	return out, nil
}

func (p policy) reviewDelay(ctx context.Context) (time.Duration, error) {
	hours, err := p.floatValue(ctx, SettingReviewDelayHours, 2)
	if err != nil {
		return 0, err
	}
	return time.Duration(hours * float64(time.Hour)), nil
}
