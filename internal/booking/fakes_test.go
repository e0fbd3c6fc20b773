package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wolfman30/booking-crm/internal/events"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

type fakeStore struct {
	mu            sync.Mutex
	contacts      map[uuid.UUID]*Contact
	services      map[uuid.UUID]*Service
	members       map[uuid.UUID]*TeamMember
	assignments   map[[2]uuid.UUID]bool
	absences      []UnavailabilityPeriod
	bookings      map[uuid.UUID]*Booking
	legacy        []OccupiedSlot
	insertErr     error
	batchDrop     int
	batchInserted int
	cancelled     []Cancellation
	cancelErrs    []error
	beforeCancel  func(b *Booking)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contacts:    map[uuid.UUID]*Contact{},
		services:    map[uuid.UUID]*Service{},
		members:     map[uuid.UUID]*TeamMember{},
		assignments: map[[2]uuid.UUID]bool{},
		bookings:    map[uuid.UUID]*Booking{},
	}
}

func (s *fakeStore) GetContact(_ context.Context, id uuid.UUID) (*Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) GetService(_ context.Context, id uuid.UUID) (*Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *svc
	return &cp, nil
}

func (s *fakeStore) GetTeamMember(_ context.Context, id uuid.UUID) (*TeamMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) IsTeamMemberAssigned(_ context.Context, teamMemberID, serviceID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignments[[2]uuid.UUID{teamMemberID, serviceID}], nil
}

func (s *fakeStore) ListUnavailability(_ context.Context, teamMemberID uuid.UUID, start, end time.Time) ([]UnavailabilityPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []UnavailabilityPeriod
	for _, p := range s.absences {
		if p.TeamMemberID == teamMemberID && Overlaps(p.StartTime, p.EndTime, start, end) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) ListTeamMemberConflicts(_ context.Context, teamMemberID uuid.UUID, start, end time.Time) ([]Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Booking
	for _, b := range s.sorted() {
		if b.TeamMemberID == nil || *b.TeamMemberID != teamMemberID {
			continue
		}
		if (b.Status == StatusConfirmed || b.Status == StatusPending) && Overlaps(b.ActualStartTime, b.ActualEndTime, start, end) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *fakeStore) ListConfirmedNear(_ context.Context, _, _ time.Time) ([]OccupiedSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]OccupiedSlot(nil), s.legacy...)
	for _, b := range s.sorted() {
		if b.Status != StatusConfirmed {
			continue
		}
		as, ae := b.ActualStartTime, b.ActualEndTime
		out = append(out, OccupiedSlot{
			ID: b.ID, Title: b.Title, StartTime: b.StartTime, EndTime: b.EndTime,
			ActualStartTime: &as, ActualEndTime: &ae,
			BufferTimeBefore: b.BufferTimeBefore, BufferTimeAfter: b.BufferTimeAfter,
		})
	}
	return out, nil
}

func (s *fakeStore) ListContactOverlaps(_ context.Context, contactID uuid.UUID, start, end time.Time) ([]Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Booking
	for _, b := range s.sorted() {
		if b.ContactID == contactID && !b.Status.Terminal() && Overlaps(b.ActualStartTime, b.ActualEndTime, start, end) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertBooking(_ context.Context, b *Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	cp := *b
	s.bookings[b.ID] = &cp
	return nil
}

func (s *fakeStore) InsertBatch(_ context.Context, rows []Booking) ([]Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	stored := rows[:len(rows)-s.batchDrop]
	if s.batchDrop == 0 {
		for i := range stored {
			cp := stored[i]
			s.bookings[cp.ID] = &cp
		}
		s.batchInserted += len(stored)
	}
	return append([]Booking(nil), stored...), nil
}

func (s *fakeStore) GetBooking(_ context.Context, id uuid.UUID) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *fakeStore) DeleteBooking(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bookings, id)
	return nil
}

func (s *fakeStore) SetCalendarEventID(_ context.Context, id uuid.UUID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.CalendarEventID = eventID
	return nil
}

func (s *fakeStore) MarkCancelled(_ context.Context, c Cancellation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cancelErrs) > 0 {
		err := s.cancelErrs[0]
		s.cancelErrs = s.cancelErrs[1:]
		return err
	}
	b, ok := s.bookings[c.BookingID]
	if ok && s.beforeCancel != nil {
		s.beforeCancel(b)
	}
	if !ok || b.Status.Terminal() {
		return ErrNotFound
	}
	at := c.CancelledAt
	b.Status = StatusCancelled
	b.CancelledAt = &at
	b.CancellationReason = c.Reason
	b.PenaltyApplied = c.PenaltyApplied
	b.PenaltyFee = c.PenaltyFee
	s.cancelled = append(s.cancelled, c)
	return nil
}

func (s *fakeStore) Stats(context.Context, *time.Time, *time.Time) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &Stats{}
	for _, b := range s.bookings {
		st.Total++
		if b.Status == StatusConfirmed {
			st.Confirmed++
		}
	}
	return st, nil
}

func (s *fakeStore) sorted() []*Booking {
	out := make([]*Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

type fakeCalendar struct {
	mu        sync.Mutex
	events    map[string]CalendarEvent
	calendars map[string]string
	seq       int
	createErr error
	failOn    map[int]bool
	deleteErr error
	busy      []TimeSlot
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: map[string]CalendarEvent{}, calendars: map[string]string{}, failOn: map[int]bool{}}
}

func (c *fakeCalendar) CreateEvent(_ context.Context, calendarID string, event CalendarEvent) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	if c.createErr != nil || c.failOn[c.seq] {
		return "", errors.New("calendar unavailable")
	}
	id := fmt.Sprintf("evt-%d", c.seq)
	c.events[id] = event
	c.calendars[id] = calendarID
	return id, nil
}

func (c *fakeCalendar) UpdateEvent(_ context.Context, _, eventID string, patch CalendarEventPatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.events[eventID]
	if !ok {
		return ErrNotFound
	}
	if patch.Title != nil {
		ev.Title = *patch.Title
	}
	c.events[eventID] = ev
	return nil
}

func (c *fakeCalendar) DeleteEvent(_ context.Context, _, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	delete(c.events, eventID)
	return nil
}

func (c *fakeCalendar) GetAvailability(_ context.Context, _ string, start, end time.Time) ([]TimeSlot, error) {
	return SlotsFromBusy(start, end, c.busy), nil
}

func (c *fakeCalendar) has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.events[id]
	return ok
}

func (c *fakeCalendar) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type mapSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *mapSettings) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mapSettings) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

type fakeHours struct {
	windows  map[time.Weekday][]TimeRange
	blockers []DateRange
}

func (h *fakeHours) AvailableWindows(_ context.Context, day time.Time) ([]TimeRange, error) {
	return h.windows[day.Weekday()], nil
}

func (h *fakeHours) EmergencyBlockers(context.Context) ([]DateRange, error) {
	return h.blockers, nil
}

type fakeSuspensions struct {
	until map[uuid.UUID]time.Time
	now   func() time.Time
}

func (f *fakeSuspensions) IsContactSuspended(_ context.Context, id uuid.UUID) (Suspension, error) {
	until, ok := f.until[id]
	if !ok || !until.After(f.now()) {
		return Suspension{}, nil
	}
	return Suspension{Suspended: true, Until: &until}, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	emails    []TemplatedEmail
	whatsapps []string
	failFor   map[string]error
	waErr     error
}

func (n *fakeNotifier) SendWhatsApp(_ context.Context, phone, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.waErr != nil {
		return n.waErr
	}
	n.whatsapps = append(n.whatsapps, phone+"|"+body)
	return nil
}

func (n *fakeNotifier) SendTemplatedEmail(_ context.Context, email TemplatedEmail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.failFor[email.Template]; err != nil {
		return err
	}
	n.emails = append(n.emails, email)
	return nil
}

func (n *fakeNotifier) templates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.emails {
		out = append(out, e.Template)
	}
	return out
}

type fakeReminders struct {
	scheduled   []time.Duration
	reviews     int
	cancelled   []uuid.UUID
	reminderErr error
}

func (r *fakeReminders) ScheduleReminders(_ context.Context, _ Appointment, leadTimes []time.Duration) error {
	if r.reminderErr != nil {
		return r.reminderErr
	}
	r.scheduled = append(r.scheduled, leadTimes...)
	return nil
}

func (r *fakeReminders) ScheduleReviewRequest(context.Context, Appointment, time.Duration) error {
	r.reviews++
	return nil
}

func (r *fakeReminders) CancelForBooking(_ context.Context, id uuid.UUID) (int64, error) {
	r.cancelled = append(r.cancelled, id)
	return 2, nil
}

type fakeDocuments struct {
	err   error
	calls int
}

func (d *fakeDocuments) ScheduleForBooking(context.Context, Appointment) error {
	d.calls++
	return d.err
}

type fakePayments struct {
	refunded    bool
	refundErr   error
	refundCalls int
	penalties   []PenaltyRequest
	penaltyErr  error
	linksSent   int
}

func (p *fakePayments) HandleCancellationRefund(context.Context, uuid.UUID) (bool, error) {
	p.refundCalls++
	return p.refunded, p.refundErr
}

func (p *fakePayments) CreatePenaltyTransaction(_ context.Context, req PenaltyRequest) (uuid.UUID, error) {
	if p.penaltyErr != nil {
		return uuid.Nil, p.penaltyErr
	}
	for _, prev := range p.penalties {
		if prev.BookingID == req.BookingID {
			return uuid.Nil, ErrPenaltyExists
		}
	}
	p.penalties = append(p.penalties, req)
	return uuid.New(), nil
}

func (p *fakePayments) SendPenaltyPaymentLink(context.Context, uuid.UUID, PenaltyRequest) error {
	p.linksSent++
	return errors.New("stripe down")
}

type fakePublisher struct {
	published   []events.BookingCancelledV1
	hadDeadline []bool
}

func (p *fakePublisher) PublishBookingCancelled(ctx context.Context, evt events.BookingCancelledV1) error {
	_, ok := ctx.Deadline()
	p.hadDeadline = append(p.hadDeadline, ok)
	p.published = append(p.published, evt)
	return nil
}

type fakeLocker struct {
	held     map[string]bool
	acquired []string
}

func (l *fakeLocker) Acquire(_ context.Context, key string) (bool, func(), error) {
	if l.held[key] {
		return false, nil, nil
	}
	l.acquired = append(l.acquired, key)
	return true, func() {}, nil
}

// fixture wires an engine against the fakes with a Monday 08:00 UTC clock
// and opening hours 09:00-12:00, 13:00-18:00 on weekdays.
type fixture struct {
	engine      *Engine
	store       *fakeStore
	calendar    *fakeCalendar
	settings    *mapSettings
	hours       *fakeHours
	suspensions *fakeSuspensions
	notifier    *fakeNotifier
	reminders   *fakeReminders
	documents   *fakeDocuments
	payments    *fakePayments
	publisher   *fakePublisher
	locker      *fakeLocker
	now         time.Time

	contact *Contact
	service *Service
	member  *TeamMember
	member2 *TeamMember
}

var monday = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.March, day, hour, minute, 0, 0, time.UTC)
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		store:     newFakeStore(),
		calendar:  newFakeCalendar(),
		settings:  &mapSettings{values: map[string]string{}},
		notifier:  &fakeNotifier{failFor: map[string]error{}},
		reminders: &fakeReminders{},
		documents: &fakeDocuments{},
		payments:  &fakePayments{},
		publisher: &fakePublisher{},
		locker:    &fakeLocker{held: map[string]bool{}},
		now:       monday,
	}
	weekdayHours := []TimeRange{{Start: "09:00", End: "12:00"}, {Start: "13:00", End: "18:00"}}
	f.hours = &fakeHours{windows: map[time.Weekday][]TimeRange{
		time.Monday: weekdayHours, time.Tuesday: weekdayHours, time.Wednesday: weekdayHours,
		time.Thursday: weekdayHours, time.Friday: weekdayHours,
		time.Saturday: {{Start: "00:00", End: "24:00"}},
	}}
	f.suspensions = &fakeSuspensions{until: map[uuid.UUID]time.Time{}, now: func() time.Time { return f.now }}

	f.contact = &Contact{ID: uuid.New(), Name: "Lea Meier", Email: "lea@example.ch", Phone: "+41790000001"}
	f.service = &Service{ID: uuid.New(), Name: "Facial", Price: decimal.NewFromInt(150), IsActive: true}
	schedule := map[time.Weekday][]TimeRange{
		time.Monday: {{Start: "09:00", End: "17:00"}}, time.Tuesday: {{Start: "09:00", End: "17:00"}},
		time.Wednesday: {{Start: "09:00", End: "17:00"}},
	}
	f.member = &TeamMember{ID: uuid.New(), Name: "Anna", CalendarID: "anna@calendar", IsActive: true, AvailabilitySchedule: schedule}
	f.member2 = &TeamMember{ID: uuid.New(), Name: "Marc", CalendarID: "marc@calendar", IsActive: true, AvailabilitySchedule: schedule}
	f.store.contacts[f.contact.ID] = f.contact
	f.store.services[f.service.ID] = f.service
	f.store.members[f.member.ID] = f.member
	f.store.members[f.member2.ID] = f.member2
	f.store.assignments[[2]uuid.UUID{f.member.ID, f.service.ID}] = true
	f.store.assignments[[2]uuid.UUID{f.member2.ID, f.service.ID}] = true

	all := append([]Option{WithClock(func() time.Time { return f.now }), WithLocation(time.UTC)}, opts...)
	engine, err := NewEngine(Deps{
		Store:       f.store,
		Calendar:    f.calendar,
		Settings:    f.settings,
		Hours:       f.hours,
		Suspensions: f.suspensions,
		Payments:    f.payments,
		Notifier:    f.notifier,
		Reminders:   f.reminders,
		Documents:   f.documents,
		Publisher:   f.publisher,
		Locker:      f.locker,
		Logger:      logging.New("error"),
	}, all...)
	if err != nil {
		panic(err)
	}
	engine.async = func(fn func()) { fn() }
	f.engine = engine
	return f
}

func (f *fixture) input(start, end time.Time) CreateBookingInput {
	return CreateBookingInput{
		ContactID: f.contact.ID,
		Event:     CalendarEvent{StartTime: start, EndTime: end},
	}
}

func (f *fixture) withService(in CreateBookingInput) CreateBookingInput {
	id := f.service.ID
	in.Options.ServiceID = &id
	return in
}

func (f *fixture) withMember(in CreateBookingInput, m *TeamMember) CreateBookingInput {
	id := m.ID
	in.Options.TeamMemberID = &id
	return in
}
