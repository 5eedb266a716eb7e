package email

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

type Sender interface {
	Send(to string, subject string, body string) error
}

// SMTPSender sends email via unauthenticated SMTP (Mailpit-compatible).
type SMTPSender struct {
	addr string
	from string
}

func NewSMTPSender(host string, port string, from string) *SMTPSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@medibook.local"
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%s", host, port),
		from: from,
	}
}

func (s *SMTPSender) Send(to string, subject string, body string) error {
	msg := buildMessage(s.from, to, subject, body)
	return smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg))
}

func buildMessage(from, to, subject, body string) string {
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		body,
	)
}

// Confirmation renders the booking confirmation email for a booked event.
func Confirmation(patientName, doctorName, apptType string, start, end time.Time) (subject, body string) {
	name := patientName
	if name == "" {
		name = "there"
	}
	subject = "Your appointment is confirmed"
	body = fmt.Sprintf(
		"Hi %s,\n\nYour %s with %s is confirmed for %s until %s.\n\nIf you need to change it, cancel and book again from your dashboard.\n",
		name,
		strings.ToLower(apptType),
		doctorName,
		start.UTC().Format("Mon, 02 Jan 2006 15:04 MST"),
		end.UTC().Format("15:04 MST"),
	)
	return subject, body
}

// Cancellation renders the cancellation notice for a cancelled event.
func Cancellation(patientName, doctorName, apptType string, start time.Time) (subject, body string) {
	name := patientName
	if name == "" {
		name = "there"
	}
	subject = "Your appointment was cancelled"
	body = fmt.Sprintf(
		"Hi %s,\n\nYour %s with %s scheduled for %s has been cancelled.\n\nYou can book a new appointment any time from your dashboard.\n",
		name,
		strings.ToLower(apptType),
		doctorName,
		start.UTC().Format("Mon, 02 Jan 2006 15:04 MST"),
	)
	return subject, body
}
