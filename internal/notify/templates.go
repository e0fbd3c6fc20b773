package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wolfman30/booking-crm/internal/booking"
)

type emailTemplate struct {
	subject string
	text    *template.Template
	html    *htmltemplate.Template
}

const appointmentLines = `{{range .Appointments}}- {{.ServiceName | orTitle .Title}}: {{date .StartTime}} {{clock .StartTime}}-{{clock .EndTime}}
{{end}}`

const appointmentList = `<ul>{{range .Appointments}}<li>{{.ServiceName | orTitle .Title}}: {{date .StartTime}} {{clock .StartTime}}-{{clock .EndTime}}</li>{{end}}</ul>`

var emailTemplates = map[string]struct{ subject, text, html string }{
	booking.TemplateConfirmation: {
		subject: "Your appointment is confirmed",
		text: `Hello{{with .ToName}} {{.}}{{end}},

your appointment{{with .BusinessName}} at {{.}}{{end}} is confirmed:

` + appointmentLines + `
We look forward to seeing you.`,
		html: `<p>Hello{{with .ToName}} {{.}}{{end}},</p><p>your appointment{{with .BusinessName}} at {{.}}{{end}} is confirmed:</p>` +
			appointmentList + `<p>We look forward to seeing you.</p>`,
	},
	booking.TemplateBatchConfirmation: {
		subject: "Your appointments are confirmed",
		text: `Hello{{with .ToName}} {{.}}{{end}},

the following {{len .Appointments}} appointments{{with .BusinessName}} at {{.}}{{end}} are confirmed:

` + appointmentLines + `
We look forward to seeing you.`,
		html: `<p>Hello{{with .ToName}} {{.}}{{end}},</p><p>the following {{len .Appointments}} appointments{{with .BusinessName}} at {{.}}{{end}} are confirmed:</p>` +
			appointmentList + `<p>We look forward to seeing you.</p>`,
	},
	booking.TemplateCancellation: {
		subject: "Your appointment was cancelled",
		text: `Hello{{with .ToName}} {{.}}{{end}},

the following appointment{{with .BusinessName}} at {{.}}{{end}} was cancelled:

` + appointmentLines + `{{with .Reason}}
Reason: {{.}}
{{end}}{{if .PenaltyApplied}}
As the cancellation was made on short notice, a late cancellation fee of CHF {{money .PenaltyFee}} applies. You will receive a payment link separately.
{{end}}`,
		html: `<p>Hello{{with .ToName}} {{.}}{{end}},</p><p>the following appointment{{with .BusinessName}} at {{.}}{{end}} was cancelled:</p>` +
			appointmentList + `{{with .Reason}}<p>Reason: {{.}}</p>{{end}}` +
			`{{if .PenaltyApplied}}<p>As the cancellation was made on short notice, a late cancellation fee of CHF {{money .PenaltyFee}} applies. You will receive a payment link separately.</p>{{end}}`,
	},
	booking.TemplateSecretaryBooking: {
		subject: "New booking",
		text:    `New booking{{with .BusinessName}} for {{.}}{{end}}:{{range .Appointments}}
Client: {{.ContactName}}
Phone: {{.ContactPhone}}
Service: {{.ServiceName | orTitle .Title}}
When: {{date .StartTime}} {{clock .StartTime}}-{{clock .EndTime}}
{{end}}`,
	},
	booking.TemplateSecretaryCancel: {
		subject: "Booking cancelled",
		text:    `Booking cancelled{{with .BusinessName}} at {{.}}{{end}}:{{range .Appointments}}
Client: {{.ContactName}}
Phone: {{.ContactPhone}}
Service: {{.ServiceName | orTitle .Title}}
When: {{date .StartTime}} {{clock .StartTime}}-{{clock .EndTime}}
{{end}}{{with .Reason}}Reason: {{.}}
{{end}}`,
	},
}

// Renderer turns templated booking emails into messages, formatting times in
// the business timezone.
type Renderer struct {
	templates map[string]emailTemplate
}

// NewRenderer parses the built-in templates.
func NewRenderer(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}
	funcs := map[string]any{
		"date":    func(t time.Time) string { return t.In(loc).Format("Mon 02.01.2006") },
		"clock":   func(t time.Time) string { return t.In(loc).Format("15:04") },
		"money":   func(v decimal.Decimal) string { return v.StringFixed(2) },
		"orTitle": orTitle,
	}

	r := &Renderer{templates: make(map[string]emailTemplate, len(emailTemplates))}
	for name, src := range emailTemplates {
		text, err := template.New(name).Funcs(funcs).Parse(src.text)
		if err != nil {
			return nil, fmt.Errorf("notify: parse %s text: %w", name, err)
		}
		tpl := emailTemplate{subject: src.subject, text: text}
		if src.html != "" {
			if tpl.html, err = htmltemplate.New(name).Funcs(funcs).Parse(src.html); err != nil {
				return nil, fmt.Errorf("notify: parse %s html: %w", name, err)
			}
		}
		r.templates[name] = tpl
	}
	return r, nil
}

// Render builds the message for email.
func (r *Renderer) Render(email booking.TemplatedEmail) (EmailMessage, error) {
	tpl, ok := r.templates[email.Template]
	if !ok {
		return EmailMessage{}, fmt.Errorf("notify: unknown email template %q", email.Template)
	}
	var text bytes.Buffer
	if err := tpl.text.Execute(&text, email); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render %s: %w", email.Template, err)
	}
	msg := EmailMessage{
		To:       email.To,
		ToName:   email.ToName,
		Subject:  tpl.subject,
		Body:     strings.TrimSpace(text.String()),
		FromName: email.BusinessName,
		Template: email.Template,
	}
	for _, appt := range email.Appointments {
		msg.BookingIDs = append(msg.BookingIDs, appt.BookingID.String())
	}
	if email.BusinessName != "" {
		msg.Subject = fmt.Sprintf("%s - %s", tpl.subject, email.BusinessName)
	}
	if tpl.html != nil {
		var html bytes.Buffer
		if err := tpl.html.Execute(&html, email); err != nil {
			return EmailMessage{}, fmt.Errorf("notify: render %s html: %w", email.Template, err)
		}
		msg.HTML = html.String()
	}
	return msg, nil
}

func orTitle(title, name string) string {
	if strings.TrimSpace(name) == "" {
		return title
	}
	return name
}
