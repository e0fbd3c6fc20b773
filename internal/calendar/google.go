// Package calendar implements booking.CalendarProvider on Google Calendar
// and in memory.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/wolfman30/booking-crm/internal/booking"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

var calendarTracer = otel.Tracer("booking.internal.calendar")

// GoogleProvider writes appointments to Google Calendar.
type GoogleProvider struct {
	service         *gcal.Service
	defaultCalendar string
	logger          *logging.Logger
}

// NewGoogleProvider creates a provider. Options typically carry credentials
// (option.WithCredentialsFile) or, in tests, an endpoint override.
func NewGoogleProvider(ctx context.Context, defaultCalendar string, logger *logging.Logger, opts ...option.ClientOption) (*GoogleProvider, error) {
	if strings.TrimSpace(defaultCalendar) == "" {
		defaultCalendar = "primary"
	}
	if logger == nil {
		logger = logging.Default()
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: failed to create google client: %w", err)
	}
	return &GoogleProvider{service: svc, defaultCalendar: defaultCalendar, logger: logger}, nil
}

var _ booking.CalendarProvider = (*GoogleProvider)(nil)

func (p *GoogleProvider) calendarID(id string) string {
	if strings.TrimSpace(id) == "" {
		return p.defaultCalendar
	}
	return id
}

// CreateEvent inserts the event and returns its id.
func (p *GoogleProvider) CreateEvent(ctx context.Context, calendarID string, event booking.CalendarEvent) (string, error) {
	ctx, span := calendarTracer.Start(ctx, "calendar.create_event")
	defer span.End()
	calID := p.calendarID(calendarID)
	span.SetAttributes(attribute.String("calendar.id", calID))

	created, err := p.service.Events.Insert(calID, &gcal.Event{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
		Start:       eventTime(event.StartTime),
		End:         eventTime(event.EndTime),
	}).Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return "", fmt.Errorf("calendar: create event: %w", err)
	}
	p.logger.Debug("calendar event created", "calendar_id", calID, "calendar_event_id", created.Id)
	return created.Id, nil
}

// UpdateEvent patches only the fields set on patch.
func (p *GoogleProvider) UpdateEvent(ctx context.Context, calendarID, eventID string, patch booking.CalendarEventPatch) error {
	ctx, span := calendarTracer.Start(ctx, "calendar.update_event")
	defer span.End()

	ev := &gcal.Event{}
	if patch.Title != nil {
		ev.Summary = *patch.Title
	}
	if patch.Description != nil {
		ev.Description = *patch.Description
	}
	if patch.StartTime != nil {
		ev.Start = eventTime(*patch.StartTime)
	}
	if patch.EndTime != nil {
		ev.End = eventTime(*patch.EndTime)
	}
	if _, err := p.service.Events.Patch(p.calendarID(calendarID), eventID, ev).Context(ctx).Do(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "patch failed")
		if isGone(err) {
			return booking.ErrNotFound
		}
		return fmt.Errorf("calendar: update event %s: %w", eventID, err)
	}
	return nil
}

// DeleteEvent removes the event. Events already deleted count as success.
func (p *GoogleProvider) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	ctx, span := calendarTracer.Start(ctx, "calendar.delete_event")
	defer span.End()

	err := p.service.Events.Delete(p.calendarID(calendarID), eventID).Context(ctx).Do()
	if err == nil || isGone(err) {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "delete failed")
	return fmt.Errorf("calendar: delete event %s: %w", eventID, err)
}

// GetAvailability queries free/busy for [start,end) and returns alternating
// busy and free slots.
func (p *GoogleProvider) GetAvailability(ctx context.Context, calendarID string, start, end time.Time) ([]booking.TimeSlot, error) {
	ctx, span := calendarTracer.Start(ctx, "calendar.get_availability")
	defer span.End()
	calID := p.calendarID(calendarID)

	resp, err := p.service.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: start.Format(time.RFC3339),
		TimeMax: end.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: calID}},
	}).Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "freebusy failed")
		return nil, fmt.Errorf("calendar: freebusy: %w", err)
	}
	cal, ok := resp.Calendars[calID]
	if !ok {
		return nil, fmt.Errorf("calendar: freebusy: no result for %s", calID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("calendar: freebusy %s: %s", calID, cal.Errors[0].Reason)
	}

	busy := make([]booking.TimeSlot, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		s, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse busy start: %w", err)
		}
		e, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse busy end: %w", err)
		}
		busy = append(busy, booking.TimeSlot{Start: s, End: e})
	}
	return booking.SlotsFromBusy(start, end, busy), nil
}

func eventTime(t time.Time) *gcal.EventDateTime {
	return &gcal.EventDateTime{DateTime: t.Format(time.RFC3339)}
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}
