package booking

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireRule(t *testing.T, err error, rule string) *PolicyViolation {
	t.Helper()
	require.Error(t, err)
	v, ok := AsPolicyViolation(err)
	require.True(t, ok, "expected policy violation, got %v", err)
	assert.Equal(t, rule, v.Rule, v.Message)
	return v
}

func (f *fixture) seedBooking(title string, start, end time.Time, member *TeamMember) *Booking {
	b := &Booking{
		ID:              uuid.New(),
		ContactID:       f.contact.ID,
		Title:           title,
		StartTime:       start,
		EndTime:         end,
		ActualStartTime: start,
		ActualEndTime:   end,
		Status:          StatusConfirmed,
		CalendarEventID: "seeded-" + title,
	}
	if member != nil {
		id := member.ID
		b.TeamMemberID = &id
	}
	f.store.bookings[b.ID] = b
	f.calendar.events[b.CalendarEventID] = CalendarEvent{Title: title, StartTime: start, EndTime: end}
	return b
}

func TestNewEngineRequiresCoreDeps(t *testing.T) {
	_, err := NewEngine(Deps{})
	assert.Error(t, err)
}

func TestCreateBookingHappyPath(t *testing.T) {
	f := newFixture()
	f.service.BufferTimeBefore = 15
	f.service.BufferTimeAfter = 15
	f.settings.values[SettingBusinessName] = "Praxis Sonnenberg"

	in := f.withMember(f.withService(f.input(at(3, 10, 0), at(3, 11, 0))), f.member)
	b, err := f.engine.CreateBooking(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, b.Status)
	assert.Equal(t, "Facial - Lea Meier", b.Title)
	assert.Equal(t, at(3, 9, 45), b.ActualStartTime)
	assert.Equal(t, at(3, 11, 15), b.ActualEndTime)
	assert.Equal(t, 15, b.BufferTimeBefore)
	require.NotEmpty(t, b.CalendarEventID)
	assert.True(t, f.calendar.has(b.CalendarEventID))
	assert.Equal(t, "anna@calendar", f.calendar.calendars[b.CalendarEventID])

	stored, err := f.store.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.CalendarEventID, stored.CalendarEventID)

	assert.Equal(t, []string{TemplateConfirmation}, f.notifier.templates())
	assert.Equal(t, "Praxis Sonnenberg", f.notifier.emails[0].BusinessName)
	assert.Equal(t, []time.Duration{24 * time.Hour, 2 * time.Hour}, f.reminders.scheduled)
	assert.Equal(t, 1, f.reminders.reviews)
	assert.Equal(t, 1, f.documents.calls)
	assert.Empty(t, f.notifier.whatsapps, "no secretary channel configured")
	assert.Equal(t, []string{"global:2026-03-03"}, f.locker.acquired)
}

func TestValidateAndPrepareIsIdempotent(t *testing.T) {
	f := newFixture()
	in := f.withMember(f.withService(f.input(at(3, 14, 0), at(3, 15, 0))), f.member)

	first, err := f.engine.ValidateAndPrepare(context.Background(), in)
	require.NoError(t, err)
	second, err := f.engine.ValidateAndPrepare(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "anna@calendar", first.CalendarID)
	assert.Empty(t, f.store.bookings)
	assert.Zero(t, f.calendar.count())
}

func TestCreateBookingConflictNamesExistingTitle(t *testing.T) {
	f := newFixture()
	first := f.withMember(f.input(at(3, 10, 0), at(3, 11, 0)), f.member)
	first.Event.Title = "Consultation Lea"
	_, err := f.engine.CreateBooking(context.Background(), first)
	require.NoError(t, err)

	second := f.withMember(f.input(at(3, 10, 30), at(3, 11, 30)), f.member)
	_, err = f.engine.CreateBooking(context.Background(), second)
	v := requireRule(t, err, RuleBookingConflict)
	assert.Contains(t, v.Message, "Consultation Lea")
	assert.Equal(t, 1, f.calendar.count())
}

func TestCreateBookingTouchingBoundariesDoNotConflict(t *testing.T) {
	f := newFixture()
	_, err := f.engine.CreateBooking(context.Background(), f.input(at(3, 10, 0), at(3, 11, 0)))
	require.NoError(t, err)
	_, err = f.engine.CreateBooking(context.Background(), f.input(at(3, 11, 0), at(3, 12, 0)))
	require.NoError(t, err)
	assert.Len(t, f.store.bookings, 2)
}

func TestGlobalConflictUsesBuffersOfLegacyRows(t *testing.T) {
	f := newFixture()
	f.store.legacy = []OccupiedSlot{{
		ID: uuid.New(), Title: "Legacy peel",
		StartTime: at(3, 10, 0), EndTime: at(3, 11, 0), BufferTimeAfter: 30,
	}}

	_, err := f.engine.ValidateAndPrepare(context.Background(), f.input(at(3, 11, 15), at(3, 12, 0)))
	v := requireRule(t, err, RuleBookingConflict)
	assert.Contains(t, v.Message, "Legacy peel")

	_, err = f.engine.ValidateAndPrepare(context.Background(), f.input(at(3, 11, 30), at(3, 12, 0)))
	assert.NoError(t, err)
}

func TestGlobalCheckDisabledScopesConflictsToTeamMember(t *testing.T) {
	f := newFixture(WithGlobalConflictCheck(false))
	first := f.withMember(f.withService(f.input(at(3, 10, 0), at(3, 11, 0))), f.member)
	first.Event.Title = "Anna facial"
	_, err := f.engine.CreateBooking(context.Background(), first)
	require.NoError(t, err)

	other := f.withMember(f.withService(f.input(at(3, 10, 0), at(3, 11, 0))), f.member2)
	_, err = f.engine.CreateBooking(context.Background(), other)
	require.NoError(t, err)

	same := f.withMember(f.withService(f.input(at(3, 10, 30), at(3, 11, 30))), f.member)
	_, err = f.engine.CreateBooking(context.Background(), same)
	v := requireRule(t, err, RuleTeamMemberConflict)
	assert.Contains(t, v.Message, "Anna facial")

	// Requests without a team member are still checked against everyone.
	_, err = f.engine.CreateBooking(context.Background(), f.input(at(3, 10, 15), at(3, 10, 45)))
	requireRule(t, err, RuleBookingConflict)
}

func TestSlotLockKeyPerTeamMemberWhenGlobalCheckDisabled(t *testing.T) {
	f := newFixture(WithGlobalConflictCheck(false))
	in := f.withMember(f.input(at(3, 10, 0), at(3, 11, 0)), f.member)
	assert.Equal(t, f.member.ID.String()+":2026-03-03", f.engine.slotLockKey(in))
	assert.Equal(t, "global:2026-03-03", f.engine.slotLockKey(f.input(at(3, 10, 0), at(3, 11, 0))))
}

func TestCreateBookingRejectsBusySlot(t *testing.T) {
	f := newFixture()
	f.locker.held["global:2026-03-03"] = true

	_, err := f.engine.CreateBooking(context.Background(), f.input(at(3, 10, 0), at(3, 11, 0)))
	requireRule(t, err, RuleSlotBusy)
	assert.Zero(t, f.calendar.count())
}

func TestConfigurationGate(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		start time.Time
		end   time.Time
		rule  string
	}{
		{
			name:  "kill switch",
			setup: func(f *fixture) { f.settings.values[SettingEnableBooking] = "false" },
			start: at(3, 10, 0), end: at(3, 11, 0),
			rule: RuleBookingDisabled,
		},
		{
			name: "buffers cross midnight",
			setup: func(f *fixture) {
				f.service.BufferTimeBefore = 5
				f.service.BufferTimeAfter = 5
			},
			start: at(7, 23, 45), end: at(8, 0, 15),
			rule: RuleCrossMidnight,
		},
		{
			name:  "closed on sunday",
			start: at(8, 10, 0), end: at(8, 11, 0),
			rule: RuleClosed,
		},
		{
			name:  "spans lunch break",
			start: at(3, 11, 30), end: at(3, 13, 30),
			rule: RuleOutsideHours,
		},
		{
			name:  "buffer pushes before opening",
			setup: func(f *fixture) { f.service.BufferTimeBefore = 15 },
			start: at(3, 9, 0), end: at(3, 10, 0),
			rule: RuleOutsideHours,
		},
		{
			name: "emergency blocker",
			setup: func(f *fixture) {
				f.hours.blockers = []DateRange{{Start: at(3, 0, 0), End: at(5, 0, 0), Reason: "water damage"}}
			},
			start: at(4, 10, 0), end: at(4, 11, 0),
			rule: RuleEmergencyBlocker,
		},
		{
			name: "minimum slot hours",
			setup: func(f *fixture) {
				minHours := 2.0
				f.service.Restrictions.MinSlotHours = &minHours
			},
			start: at(3, 13, 0), end: at(3, 14, 0),
			rule: RuleMinSlotHours,
		},
		{
			name: "maximum slot hours",
			setup: func(f *fixture) {
				maxHours := 1.0
				f.service.Restrictions.MaxSlotHours = &maxHours
			},
			start: at(3, 13, 0), end: at(3, 15, 0),
			rule: RuleMaxSlotHours,
		},
		{
			name:  "mornings only",
			setup: func(f *fixture) { f.service.Restrictions.OnlyMornings = true },
			start: at(3, 13, 0), end: at(3, 14, 0),
			rule: RuleOnlyMornings,
		},
		{
			name:  "afternoons only",
			setup: func(f *fixture) { f.service.Restrictions.OnlyAfternoons = true },
			start: at(3, 10, 0), end: at(3, 11, 0),
			rule: RuleOnlyAfternoons,
		},
		{
			name:  "weekdays only",
			setup: func(f *fixture) { f.service.Restrictions.OnlyWeekdays = true },
			start: at(7, 10, 0), end: at(7, 11, 0),
			rule: RuleOnlyWeekdays,
		},
		{
			name:  "excluded day",
			setup: func(f *fixture) { f.service.Restrictions.ExcludedDays = []time.Weekday{time.Tuesday} },
			start: at(3, 10, 0), end: at(3, 11, 0),
			rule: RuleExcludedDay,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.setup != nil {
				tt.setup(f)
			}
			_, err := f.engine.CreateBooking(context.Background(), f.withService(f.input(tt.start, tt.end)))
			requireRule(t, err, tt.rule)
			assert.Zero(t, f.calendar.count())
			assert.Empty(t, f.store.bookings)
		})
	}
}

func TestRestrictionsAllowMatchingSlots(t *testing.T) {
	f := newFixture()
	f.service.Restrictions.OnlyMornings = true
	_, err := f.engine.ValidateAndPrepare(context.Background(), f.withService(f.input(at(3, 11, 0), at(3, 12, 0))))
	assert.NoError(t, err, "ending exactly at noon counts as morning")

	f.service.Restrictions = ServiceRestrictions{OnlyAfternoons: true}
	_, err = f.engine.ValidateAndPrepare(context.Background(), f.withService(f.input(at(3, 13, 0), at(3, 14, 0))))
	assert.NoError(t, err)
}

func TestEmergencyBlockerEndIsExclusive(t *testing.T) {
	f := newFixture()
	f.hours.blockers = []DateRange{{Start: at(3, 0, 0), End: at(4, 0, 0)}}
	_, err := f.engine.ValidateAndPrepare(context.Background(), f.input(at(4, 10, 0), at(4, 11, 0)))
	assert.NoError(t, err)
}

func TestTeamMemberGate(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		start time.Time
		end   time.Time
		rule  string
	}{
		{
			name:  "inactive",
			setup: func(f *fixture) { f.member.IsActive = false },
			start: at(3, 10, 0), end: at(3, 11, 0),
			rule: RuleTeamMemberInactive,
		},
		{
			name:  "not assigned to service",
			setup: func(f *fixture) { delete(f.store.assignments, [2]uuid.UUID{f.member.ID, f.service.ID}) },
			start: at(3, 10, 0), end: at(3, 11, 0),
			rule: RuleTeamMemberNotAssigned,
		},
		{
			name:  "does not work that day",
			start: at(5, 10, 0), end: at(5, 11, 0),
			rule: RuleTeamMemberUnavailableDay,
		},
		{
			name:  "outside personal schedule",
			start: at(3, 16, 30), end: at(3, 17, 30),
			rule: RuleTeamMemberOutsideSchedule,
		},
		{
			name: "on vacation",
			setup: func(f *fixture) {
				f.store.absences = append(f.store.absences, UnavailabilityPeriod{
					ID: uuid.New(), TeamMemberID: f.member.ID,
					StartTime: at(3, 0, 0), EndTime: at(4, 0, 0), Reason: "vacation",
				})
			},
			start: at(3, 10, 0), end: at(3, 11, 0),
			rule: RuleTeamMemberAbsent,
		},
		{
			name:  "unknown member",
			setup: func(f *fixture) { delete(f.store.members, f.member.ID) },
			start: at(3, 10, 0), end: at(3, 11, 0),
			rule: RuleTeamMemberNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.setup != nil {
				tt.setup(f)
			}
			in := f.withMember(f.withService(f.input(tt.start, tt.end)), f.member)
			_, err := f.engine.CreateBooking(context.Background(), in)
			requireRule(t, err, tt.rule)
			assert.Zero(t, f.calendar.count())
		})
	}
}

func TestContactGates(t *testing.T) {
	t.Run("suspended until tomorrow", func(t *testing.T) {
		f := newFixture()
		f.suspensions.until[f.contact.ID] = monday.Add(24 * time.Hour)
		_, err := f.engine.CreateBooking(context.Background(), f.input(at(3, 10, 0), at(3, 11, 0)))
		v := requireRule(t, err, RuleContactSuspended)
		assert.Contains(t, v.Message, "2026-03-03")
	})

	t.Run("expired suspension", func(t *testing.T) {
		f := newFixture()
		f.suspensions.until[f.contact.ID] = monday.Add(-time.Hour)
		_, err := f.engine.CreateBooking(context.Background(), f.input(at(3, 10, 0), at(3, 11, 0)))
		assert.NoError(t, err)
	})

	t.Run("outstanding balance", func(t *testing.T) {
		f := newFixture()
		f.contact.OutstandingBalanceChf = decimal.NewFromInt(40)
		_, err := f.engine.CreateBooking(context.Background(), f.input(at(3, 10, 0), at(3, 11, 0)))
		v := requireRule(t, err, RuleOutstandingBalance)
		assert.Contains(t, v.Message, "40.00")
	})

	t.Run("balance with allowance", func(t *testing.T) {
		f := newFixture()
		f.contact.OutstandingBalanceChf = decimal.NewFromInt(40)
		f.contact.PaymentAllowanceGranted = true
		_, err := f.engine.CreateBooking(context.Background(), f.input(at(3, 10, 0), at(3, 11, 0)))
		assert.NoError(t, err)
	})

	t.Run("unknown contact", func(t *testing.T) {
		f := newFixture()
		in := f.input(at(3, 10, 0), at(3, 11, 0))
		in.ContactID = uuid.New()
		_, err := f.engine.CreateBooking(context.Background(), in)
		requireRule(t, err, RuleContactNotFound)
	})

	t.Run("end before start", func(t *testing.T) {
		f := newFixture()
		_, err := f.engine.CreateBooking(context.Background(), f.input(at(3, 11, 0), at(3, 10, 0)))
		requireRule(t, err, RuleInvalidRequest)
	})
}

func TestFatalSideEffectRollsBack(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		effect string
	}{
		{
			name:   "confirmation email",
			setup:  func(f *fixture) { f.notifier.failFor[TemplateConfirmation] = errors.New("smtp 421") },
			effect: EffectConfirmationEmail,
		},
		{
			name:   "reminders",
			setup:  func(f *fixture) { f.reminders.reminderErr = errors.New("db down") },
			effect: EffectReminders,
		},
		{
			name:   "documents",
			setup:  func(f *fixture) { f.documents.err = errors.New("s3 denied") },
			effect: EffectDocuments,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)
			in := f.withMember(f.withService(f.input(at(3, 10, 0), at(3, 11, 0))), f.member)

			b, err := f.engine.CreateBooking(context.Background(), in)
			require.Error(t, err)
			assert.Nil(t, b)

			var sideErr *SideEffectError
			require.True(t, errors.As(err, &sideErr))
			assert.Equal(t, tt.effect, sideErr.Effect)
			assert.Empty(t, f.store.bookings, "booking row must be removed")
			assert.Zero(t, f.calendar.count(), "calendar event must be removed")
		})
	}
}

func TestBestEffortEmailKeepsBooking(t *testing.T) {
	f := newFixture(WithEmailFailurePolicy(EmailFailureBestEffort))
	f.notifier.failFor[TemplateConfirmation] = errors.New("smtp 421")

	b, err := f.engine.CreateBooking(context.Background(), f.input(at(3, 10, 0), at(3, 11, 0)))
	require.NoError(t, err)
	assert.Contains(t, f.store.bookings, b.ID)
	assert.True(t, f.calendar.has(b.CalendarEventID))
	assert.Len(t, f.reminders.scheduled, 2)
}

func TestSecretaryNotificationIsBestEffort(t *testing.T) {
	f := newFixture()
	f.settings.values[SettingSecretaryPhone] = "+41790000009"
	f.settings.values[SettingSecretaryEmail] = "desk@example.ch"

	_, err := f.engine.CreateBooking(context.Background(), f.input(at(3, 10, 0), at(3, 11, 0)))
	require.NoError(t, err)
	require.Len(t, f.notifier.whatsapps, 1)
	assert.True(t, strings.HasPrefix(f.notifier.whatsapps[0], "+41790000009|"))
	assert.Equal(t, []string{TemplateConfirmation, TemplateSecretaryBooking}, f.notifier.templates())

	f.notifier.waErr = errors.New("twilio 500")
	f.notifier.failFor[TemplateSecretaryBooking] = errors.New("smtp 421")
	b, err := f.engine.CreateBooking(context.Background(), f.input(at(3, 14, 0), at(3, 15, 0)))
	require.NoError(t, err)
	assert.Contains(t, f.store.bookings, b.ID)
}

func TestInsertFailureRemovesOrphanEvent(t *testing.T) {
	f := newFixture()
	f.store.insertErr = errors.New("connection reset")

	_, err := f.engine.CreateBooking(context.Background(), f.input(at(3, 10, 0), at(3, 11, 0)))
	require.Error(t, err)
	var perr *PersistError
	require.True(t, errors.As(err, &perr))
	assert.NotEmpty(t, perr.CalendarEventID)
	assert.Zero(t, f.calendar.count())
}

func TestCalendarFailureStopsBeforeInsert(t *testing.T) {
	f := newFixture()
	f.calendar.createErr = errors.New("google 503")

	_, err := f.engine.CreateBooking(context.Background(), f.input(at(3, 10, 0), at(3, 11, 0)))
	require.Error(t, err)
	assert.Empty(t, f.store.bookings)
	assert.Empty(t, f.notifier.emails)
}

func TestRollbackToleratesCalendarFailure(t *testing.T) {
	f := newFixture()
	b := f.seedBooking("Peel", at(3, 10, 0), at(3, 11, 0), nil)
	f.calendar.deleteErr = errors.New("google 503")

	f.engine.RollbackBooking(context.Background(), b.ID, "", b.CalendarEventID)
	assert.Empty(t, f.store.bookings)
	assert.True(t, f.calendar.has(b.CalendarEventID))
}

func TestGetAvailability(t *testing.T) {
	f := newFixture()
	f.calendar.busy = []TimeSlot{{Start: at(3, 10, 0), End: at(3, 11, 0)}}

	slots, err := f.engine.GetAvailability(context.Background(), at(3, 9, 0), at(3, 12, 0))
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.True(t, slots[0].Available)
	assert.False(t, slots[1].Available)
	assert.True(t, slots[2].Available)

	_, err = f.engine.GetAvailability(context.Background(), at(3, 12, 0), at(3, 9, 0))
	requireRule(t, err, RuleInvalidRequest)
}
