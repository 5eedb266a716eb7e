package email

import (
	"strings"
	"testing"
	"time"
)

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("no-reply@medibook.local", "pat@example.com", "Hello", "Body text")

	for _, want := range []string{
		"From: no-reply@medibook.local\r\n",
		"To: pat@example.com\r\n",
		"Subject: Hello\r\n",
		"\r\n\r\nBody text\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestConfirmation(t *testing.T) {
	start := time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC)
	subject, body := Confirmation("Sam Lee", "Dr. Amina Rahman", "Checkup", start, start.Add(2*time.Hour))

	if subject != "Your appointment is confirmed" {
		t.Fatalf("unexpected subject %q", subject)
	}
	for _, want := range []string{"Sam Lee", "checkup", "Dr. Amina Rahman", "Mon, 14 Sep 2026 09:00 UTC", "11:00 UTC"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestCancellation_FallsBackWhenNameMissing(t *testing.T) {
	start := time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC)
	_, body := Cancellation("", "Dr. Tom Okafor", "Consultation", start)

	if !strings.Contains(body, "Hi there,") {
		t.Fatalf("expected generic greeting, got:\n%s", body)
	}
	if !strings.Contains(body, "has been cancelled") {
		t.Fatalf("expected cancellation wording, got:\n%s", body)
	}
}
