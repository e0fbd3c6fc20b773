package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateThenCancelRoundTrip(t *testing.T) {
	f := newFixture()
	f.payments.refunded = true
	in := f.withMember(f.withService(f.input(at(3, 10, 0), at(3, 11, 0))), f.member)
	b, err := f.engine.CreateBooking(context.Background(), in)
	require.NoError(t, err)
	require.True(t, f.calendar.has(b.CalendarEventID))

	res, err := f.engine.CancelBooking(context.Background(), b.ID, "feeling unwell")
	require.NoError(t, err)
	assert.False(t, res.Late)
	assert.False(t, res.PenaltyApplied)
	assert.True(t, res.Refunded)

	assert.False(t, f.calendar.has(b.CalendarEventID))
	stored, err := f.store.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Equal(t, "feeling unwell", stored.CancellationReason)
	require.NotNil(t, stored.CancelledAt)
	assert.Equal(t, monday, *stored.CancelledAt)

	assert.Equal(t, []uuid.UUID{b.ID}, f.reminders.cancelled)
	require.Len(t, f.publisher.published, 1)
	evt := f.publisher.published[0]
	assert.Equal(t, b.ID.String(), evt.BookingID)
	assert.Equal(t, f.member.ID.String(), evt.TeamMemberID)
	assert.Equal(t, f.service.ID.String(), evt.ServiceID)
	assert.Equal(t, "feeling unwell", evt.Reason)
	assert.Contains(t, f.notifier.templates(), TemplateCancellation)

	// The freed slot can be booked again.
	_, err = f.engine.CreateBooking(context.Background(), in)
	assert.NoError(t, err)
}

func TestCancelBookingLateBoundary(t *testing.T) {
	tests := []struct {
		name      string
		startIn   time.Duration
		wantLate  bool
		wantFee   int64
		wantLinks int
	}{
		{name: "exactly at window is on time", startIn: 24 * time.Hour},
		{name: "one second inside window is late", startIn: 24*time.Hour - time.Second, wantLate: true, wantFee: 50, wantLinks: 1},
		{name: "already started is late", startIn: -time.Hour, wantLate: true, wantFee: 50, wantLinks: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.settings.values[SettingPenaltyAmount] = "50"
			start := monday.Add(tt.startIn)
			b := f.seedBooking("Peel", start, start.Add(time.Hour), nil)

			res, err := f.engine.CancelBooking(context.Background(), b.ID, "")
			require.NoError(t, err)
			assert.Equal(t, tt.wantLate, res.Late)
			assert.Equal(t, tt.wantLate, res.PenaltyApplied)
			assert.True(t, res.PenaltyFee.Equal(decimal.NewFromInt(tt.wantFee)), "fee %s", res.PenaltyFee)
			assert.Len(t, f.payments.penalties, tt.wantLinks)
			assert.Equal(t, tt.wantLinks, f.payments.linksSent)
			if tt.wantLate {
				assert.Zero(t, f.payments.refundCalls)
			} else {
				assert.Equal(t, 1, f.payments.refundCalls)
			}
			require.Len(t, f.store.cancelled, 1)
			assert.True(t, f.store.cancelled[0].PenaltyFee.Equal(decimal.NewFromInt(tt.wantFee)))
		})
	}
}

func TestCancelBookingPercentagePenalty(t *testing.T) {
	f := newFixture()
	f.settings.values[SettingCancellationHours] = "48"
	f.settings.values[SettingPenaltyType] = PenaltyPercentage
	f.settings.values[SettingPenaltyPercentage] = "20"
	b := f.seedBooking("Facial", at(3, 10, 0), at(3, 11, 0), nil)
	serviceID := f.service.ID
	f.store.bookings[b.ID].ServiceID = &serviceID

	res, err := f.engine.CancelBooking(context.Background(), b.ID, "travel")
	require.NoError(t, err)
	assert.True(t, res.Late)
	assert.Equal(t, "30.00", res.PenaltyFee.StringFixed(2))
	require.Len(t, f.payments.penalties, 1)
	assert.Equal(t, "Late cancellation fee: Facial", f.payments.penalties[0].Description)
	assert.Equal(t, "lea@example.ch", f.payments.penalties[0].ContactEmail)
}

func TestCancelBookingLateWithoutPenaltyConfigured(t *testing.T) {
	f := newFixture()
	b := f.seedBooking("Peel", monday.Add(2*time.Hour), monday.Add(3*time.Hour), nil)

	res, err := f.engine.CancelBooking(context.Background(), b.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Late)
	assert.False(t, res.PenaltyApplied)
	assert.Empty(t, f.payments.penalties)
	assert.Zero(t, f.payments.refundCalls)
}

func TestCancelBookingRejectsTerminalStatus(t *testing.T) {
	for _, status := range []Status{StatusCancelled, StatusNoShow} {
		f := newFixture()
		b := f.seedBooking("Peel", at(3, 10, 0), at(3, 11, 0), nil)
		f.store.bookings[b.ID].Status = status

		_, err := f.engine.CancelBooking(context.Background(), b.ID, "")
		requireRule(t, err, RuleAlreadyFinal)
		assert.True(t, f.calendar.has(b.CalendarEventID))
	}
}

func TestCancelBookingUnknownBooking(t *testing.T) {
	f := newFixture()
	_, err := f.engine.CancelBooking(context.Background(), uuid.New(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCancelBookingToleratesSubStepFailures(t *testing.T) {
	f := newFixture()
	f.calendar.deleteErr = errors.New("google 503")
	f.payments.refundErr = errors.New("stripe 500")
	f.notifier.failFor[TemplateCancellation] = errors.New("smtp 421")
	b := f.seedBooking("Peel", at(5, 10, 0), at(5, 11, 0), f.member)

	res, err := f.engine.CancelBooking(context.Background(), b.ID, "")
	require.NoError(t, err)
	assert.False(t, res.Refunded)
	assert.Equal(t, StatusCancelled, f.store.bookings[b.ID].Status)
	assert.Len(t, f.publisher.published, 1)
}

func TestCancelBookingBoundsPublish(t *testing.T) {
	f := newFixture(WithCallTimeout(time.Second))
	b := f.seedBooking("Peel", at(5, 10, 0), at(5, 11, 0), f.member)

	_, err := f.engine.CancelBooking(context.Background(), b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, f.publisher.hadDeadline)
}

func TestCancelBookingRetryAfterStatusFailureChargesOnce(t *testing.T) {
	f := newFixture()
	f.settings.values[SettingPenaltyAmount] = "50"
	f.store.cancelErrs = []error{errors.New("connection reset")}
	b := f.seedBooking("Peel", monday.Add(2*time.Hour), monday.Add(3*time.Hour), nil)

	_, err := f.engine.CancelBooking(context.Background(), b.ID, "")
	require.Error(t, err)
	assert.Empty(t, f.payments.penalties)
	assert.Zero(t, f.payments.linksSent)
	assert.True(t, f.calendar.has(b.CalendarEventID))
	assert.Equal(t, StatusConfirmed, f.store.bookings[b.ID].Status)

	res, err := f.engine.CancelBooking(context.Background(), b.ID, "")
	require.NoError(t, err)
	assert.True(t, res.PenaltyApplied)
	assert.Len(t, f.payments.penalties, 1)
	assert.Equal(t, 1, f.payments.linksSent)
	assert.False(t, f.calendar.has(b.CalendarEventID))
}

func TestCancelBookingLosingConcurrentCancelChargesNothing(t *testing.T) {
	f := newFixture()
	f.settings.values[SettingPenaltyAmount] = "50"
	b := f.seedBooking("Peel", monday.Add(2*time.Hour), monday.Add(3*time.Hour), nil)
	f.store.beforeCancel = func(stored *Booking) { stored.Status = StatusCancelled }

	_, err := f.engine.CancelBooking(context.Background(), b.ID, "")
	requireRule(t, err, RuleAlreadyFinal)
	assert.Empty(t, f.payments.penalties)
	assert.Zero(t, f.payments.linksSent)
	assert.Empty(t, f.publisher.published)
	assert.Empty(t, f.reminders.cancelled)
}

func TestCancelBookingSkipsLinkWhenPenaltyAlreadyRecorded(t *testing.T) {
	f := newFixture()
	f.settings.values[SettingPenaltyAmount] = "50"
	b := f.seedBooking("Peel", monday.Add(2*time.Hour), monday.Add(3*time.Hour), nil)
	f.payments.penalties = []PenaltyRequest{{BookingID: b.ID, Amount: decimal.NewFromInt(50)}}

	res, err := f.engine.CancelBooking(context.Background(), b.ID, "")
	require.NoError(t, err)
	assert.True(t, res.PenaltyApplied)
	assert.Len(t, f.payments.penalties, 1)
	assert.Zero(t, f.payments.linksSent)
	assert.Equal(t, StatusCancelled, f.store.bookings[b.ID].Status)
}

func TestCancelBookingPaymentFailuresAreNonFatal(t *testing.T) {
	f := newFixture()
	f.settings.values[SettingPenaltyAmount] = "50"
	f.payments.penaltyErr = errors.New("db timeout")
	f.payments.refundErr = errors.New("stripe 500")
	b := f.seedBooking("Peel", monday.Add(2*time.Hour), monday.Add(3*time.Hour), f.member)

	res, err := f.engine.CancelBooking(context.Background(), b.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Late)
	assert.True(t, res.PenaltyApplied)
	assert.False(t, res.Refunded)
	assert.Zero(t, f.payments.refundCalls)
	assert.Zero(t, f.payments.linksSent)
	assert.Equal(t, StatusCancelled, f.store.bookings[b.ID].Status)
	assert.False(t, f.calendar.has(b.CalendarEventID))
	assert.Len(t, f.publisher.published, 1)
}
