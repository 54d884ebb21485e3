package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

var (
	confirmationTmpl = template.Must(template.New("confirmation").Parse(`<p>Hi {{.GuestName}},</p>
<p>Your booking is confirmed.</p>
<table>
<tr><td>What</td><td>{{.EventTitle}} with {{.HostName}}</td></tr>
<tr><td>When</td><td>{{.Date}} at {{.Time}} ({{.Zone}})</td></tr>
<tr><td>Duration</td><td>{{.Duration}} minutes</td></tr>
{{- if .Notes}}
<tr><td>Notes</td><td>{{.Notes}}</td></tr>
{{- end}}
</table>
`))

	notificationTmpl = template.Must(template.New("notification").Parse(`<p>Hi {{.HostName}},</p>
<p>{{.GuestName}} ({{.GuestEmail}}) booked {{.EventTitle}}.</p>
<table>
<tr><td>When</td><td>{{.Date}} at {{.Time}} ({{.Zone}})</td></tr>
<tr><td>Duration</td><td>{{.Duration}} minutes</td></tr>
{{- if .Notes}}
<tr><td>Notes</td><td>{{.Notes}}</td></tr>
{{- end}}
</table>
<p><a href="{{.DashboardURL}}">View your bookings</a></p>
`))

	reminderTmpl = template.Must(template.New("reminder").Parse(`<p>Hi {{.GuestName}},</p>
<p>This is a reminder of your {{.EventTitle}} with {{.HostName}} tomorrow.</p>
<p>{{.Date}} at {{.Time}} ({{.Zone}}), {{.Duration}} minutes.</p>
`))
)

type emailView struct {
	GuestName    string
	GuestEmail   string
	HostName     string
	EventTitle   string
	Date         string
	Time         string
	Zone         string
	Duration     int
	Notes        string
	DashboardURL string
}

// when formats start in the host's zone; an unknown zone falls back to UTC.
func when(start time.Time, tz string) (date, clock, zone string) {
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		loc = time.UTC
	}
	local := start.In(loc)
	return local.Format("Monday, January 2, 2006"), local.Format("3:04 PM"), loc.String()
}

func render(t *template.Template, v emailView) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// RenderConfirmation builds the guest confirmation and, when the host has an
// email address, the host notification.
func RenderConfirmation(c Confirmation, baseURL string) ([]Message, error) {
	date, clock, zone := when(c.Start, c.HostTimezone)
	host := nameOr(c.HostName, "your host")
	v := emailView{
		GuestName:    c.GuestName,
		GuestEmail:   c.GuestEmail,
		HostName:     host,
		EventTitle:   c.EventTitle,
		Date:         date,
		Time:         clock,
		Zone:         zone,
		Duration:     c.Duration,
		Notes:        c.GuestNotes,
		DashboardURL: baseURL + "/dashboard/bookings",
	}

	guestHTML, err := render(confirmationTmpl, v)
	if err != nil {
		return nil, err
	}
	msgs := []Message{{
		To:      c.GuestEmail,
		Subject: fmt.Sprintf("Booking confirmed: %s with %s", c.EventTitle, host),
		HTML:    guestHTML,
	}}

	if c.HostEmail != "" {
		v.HostName = nameOr(c.HostName, "there")
		hostHTML, err := render(notificationTmpl, v)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, Message{
			To:      c.HostEmail,
			Subject: fmt.Sprintf("New booking: %s with %s", c.EventTitle, c.GuestName),
			HTML:    hostHTML,
		})
	}
	return msgs, nil
}

func RenderReminder(r Reminder) (Message, error) {
	date, clock, zone := when(r.Start, r.HostTimezone)
	html, err := render(reminderTmpl, emailView{
		GuestName:  r.GuestName,
		HostName:   nameOr(r.HostName, "your host"),
		EventTitle: r.EventTitle,
		Date:       date,
		Time:       clock,
		Zone:       zone,
		Duration:   r.Duration,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      r.GuestEmail,
		Subject: fmt.Sprintf("Reminder: %s tomorrow", r.EventTitle),
		HTML:    html,
	}, nil
}
