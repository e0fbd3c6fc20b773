package booking

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// notifySecretary tells front-desk staff about a new or cancelled booking on
// whichever channels are configured. Errors from each channel are joined.
func (e *Engine) notifySecretary(ctx context.Context, template string, appt Appointment, reason string) error {
	if e.notifier == nil {
		return nil
	}
	phone, err := e.policy.stringValue(ctx, SettingSecretaryPhone, "")
	if err != nil {
		return err
	}
	email, err := e.policy.stringValue(ctx, SettingSecretaryEmail, "")
	if err != nil {
		return err
	}
	if phone == "" && email == "" {
		e.logger.Debug("booking: no secretary channels configured", "booking_id", appt.BookingID)
		return nil
	}

	var errs []string
	if phone != "" {
		callCtx, cancel := e.callCtx(ctx)
		err := e.notifier.SendWhatsApp(callCtx, phone, FormatStaffSummary(template, appt, reason, e.loc))
		cancel()
		if err != nil {
			errs = append(errs, fmt.Sprintf("whatsapp: %v", err))
		}
	}
	if email != "" {
		err := e.sendEmail(ctx, TemplatedEmail{
			Template:     template,
			To:           email,
			BusinessName: e.businessName(ctx),
			Appointments: []Appointment{appt},
			Reason:       reason,
		})
		if err != nil {
			errs = append(errs, fmt.Sprintf("email: %v", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("secretary notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// FormatStaffSummary renders the plain-text staff notice for a booking event.
func FormatStaffSummary(template string, appt Appointment, reason string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	if template == TemplateSecretaryCancel {
		b.WriteString("Booking cancelled\n\n")
	} else {
		b.WriteString("New booking\n\n")
	}
	b.WriteString(fmt.Sprintf("Client: %s\n", valueOrNA(appt.ContactName)))
	b.WriteString(fmt.Sprintf("Phone: %s\n", valueOrNA(appt.ContactPhone)))
	if appt.ContactEmail != "" {
		b.WriteString(fmt.Sprintf("Email: %s\n", appt.ContactEmail))
	}
	b.WriteString(fmt.Sprintf("Service: %s\n", valueOrNA(appt.ServiceName)))
	b.WriteString(fmt.Sprintf("When: %s %s-%s\n",
		appt.StartTime.In(loc).Format("Mon 02.01.2006"),
		appt.StartTime.In(loc).Format("15:04"),
		appt.EndTime.In(loc).Format("15:04")))
	if reason != "" {
		b.WriteString(fmt.Sprintf("Reason: %s\n", reason))
	}
	return b.String()
}

func valueOrNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
