package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wolfman30/booking-crm/internal/booking"
)

type recordingEmail struct {
	sent []EmailMessage
}

func (r *recordingEmail) Send(_ context.Context, msg EmailMessage) error {
	r.sent = append(r.sent, msg)
	return nil
}

type recordingWhatsApp struct {
	to, body string
}

func (r *recordingWhatsApp) SendWhatsApp(_ context.Context, to, body string) error {
	r.to, r.body = to, body
	return nil
}

func zurich(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func appointment(start time.Time) booking.Appointment {
	return booking.Appointment{
		BookingID:    uuid.New(),
		ContactName:  "Anna Muster",
		ContactPhone: "+41790000000",
		ServiceName:  "Facial",
		Title:        "Facial - Anna Muster",
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
	}
}

func TestRenderConfirmationUsesBusinessTimezone(t *testing.T) {
	r, err := NewRenderer(zurich(t))
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	start := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	msg, err := r.Render(booking.TemplatedEmail{
		Template:     booking.TemplateConfirmation,
		To:           "anna@example.com",
		ToName:       "Anna",
		BusinessName: "Praxis Zürich",
		Appointments: []booking.Appointment{appointment(start)},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.Subject != "Your appointment is confirmed - Praxis Zürich" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	if msg.FromName != "Praxis Zürich" {
		t.Errorf("expected business name as sender name, got %q", msg.FromName)
	}
	if !strings.Contains(msg.Body, "Hello Anna,") || !strings.Contains(msg.Body, "Facial: Tue 03.03.2026 10:00-11:00") {
		t.Errorf("unexpected body:\n%s", msg.Body)
	}
	if !strings.Contains(msg.HTML, "<li>Facial: Tue 03.03.2026 10:00-11:00</li>") {
		t.Errorf("unexpected html:\n%s", msg.HTML)
	}
}

func TestRenderCancellationWithPenalty(t *testing.T) {
	r, _ := NewRenderer(time.UTC)
	appt := appointment(time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))
	appt.ServiceName = ""
	msg, err := r.Render(booking.TemplatedEmail{
		Template:       booking.TemplateCancellation,
		To:             "anna@example.com",
		Appointments:   []booking.Appointment{appt},
		Reason:         "sick",
		PenaltyApplied: true,
		PenaltyFee:     decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Hello,", "Facial - Anna Muster: Tue 03.03.2026", "Reason: sick", "CHF 50.00"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestRenderBatchListsEverySession(t *testing.T) {
	r, _ := NewRenderer(time.UTC)
	start := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	var appts []booking.Appointment
	for i := 0; i < 3; i++ {
		appts = append(appts, appointment(start.AddDate(0, 0, 7*i)))
	}
	msg, err := r.Render(booking.TemplatedEmail{Template: booking.TemplateBatchConfirmation, Appointments: appts})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(msg.Body, "the following 3 appointments") || strings.Count(msg.Body, "- Facial:") != 3 {
		t.Errorf("unexpected body:\n%s", msg.Body)
	}
	if msg.Template != booking.TemplateBatchConfirmation || len(msg.BookingIDs) != 3 || msg.BookingIDs[1] != appts[1].BookingID.String() {
		t.Errorf("unexpected tracking fields template=%q ids=%v", msg.Template, msg.BookingIDs)
	}
}

func TestRenderSecretaryTemplatesAreTextOnly(t *testing.T) {
	r, _ := NewRenderer(time.UTC)
	msg, err := r.Render(booking.TemplatedEmail{
		Template:     booking.TemplateSecretaryCancel,
		Appointments: []booking.Appointment{appointment(time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))},
		Reason:       "client request",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.HTML != "" || !strings.Contains(msg.Body, "Client: Anna Muster") || !strings.Contains(msg.Body, "Reason: client request") {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	r, _ := NewRenderer(nil)
	if _, err := r.Render(booking.TemplatedEmail{Template: "nope"}); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestSinkDelegates(t *testing.T) {
	r, _ := NewRenderer(time.UTC)
	email := &recordingEmail{}
	wa := &recordingWhatsApp{}
	sink := NewSink(email, wa, r, nil)

	if err := sink.SendWhatsApp(context.Background(), "+41790000000", "hi"); err != nil {
		t.Fatalf("whatsapp: %v", err)
	}
	if wa.to != "+41790000000" || wa.body != "hi" {
		t.Fatalf("unexpected whatsapp %+v", wa)
	}
	err := sink.SendTemplatedEmail(context.Background(), booking.TemplatedEmail{
		Template:     booking.TemplateConfirmation,
		To:           "anna@example.com",
		Appointments: []booking.Appointment{appointment(time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))},
	})
	if err != nil {
		t.Fatalf("email: %v", err)
	}
	if len(email.sent) != 1 || email.sent[0].To != "anna@example.com" {
		t.Fatalf("unexpected emails %+v", email.sent)
	}
}

func TestSinkMissingChannels(t *testing.T) {
	sink := NewSink(nil, nil, nil, nil)
	if err := sink.SendWhatsApp(context.Background(), "+1", "x"); err == nil {
		t.Error("expected error without whatsapp sender")
	}
	if err := sink.SendTemplatedEmail(context.Background(), booking.TemplatedEmail{}); err == nil {
		t.Error("expected error without email sender")
	}
}
