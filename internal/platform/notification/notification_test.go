package notification

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type emailCall struct {
	To, Subject, Body string
}

// flakySender fails the first failures calls.
type flakySender struct {
	mu       sync.Mutex
	failures int
	calls    []emailCall
}

func (s *flakySender) SendEmail(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, emailCall{To: to, Subject: subject, Body: body})
	if len(s.calls) <= s.failures {
		return errors.New("smtp: 421 service not available")
	}
	return nil
}

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      "test-tpl",
		Subject: "Hello {{name}}",
		Body:    "Dear {{name}}, your code is {{code}}.",
	})

	subject, body, err := eng.Render("test-tpl", map[string]string{
		"name": "Alice",
		"code": "1234",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Hello Alice" {
		t.Errorf("subject = %q, want %q", subject, "Hello Alice")
	}
	if body != "Dear Alice, your code is 1234." {
		t.Errorf("body = %q, want %q", body, "Dear Alice, your code is 1234.")
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	eng := NewTemplateEngine()
	if _, _, err := eng.Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for missing template, got nil")
	}
}

func TestTemplateEngine_BuiltInTemplates(t *testing.T) {
	eng := NewTemplateEngine()
	if _, _, err := eng.Render(TemplateVerifyEmail, nil); err != nil {
		t.Errorf("built-in template %q: %v", TemplateVerifyEmail, err)
	}
}

func TestTemplateEngine_UnknownPlaceholderKept(t *testing.T) {
	eng := NewTemplateEngine()
	_, body, err := eng.Render(TemplateVerifyEmail, map[string]string{"name": "Ana"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body, "Hello Ana") || !strings.Contains(body, "{{verify_link}}") {
		t.Errorf("unexpected body %q", body)
	}
}

func TestMailer_Send(t *testing.T) {
	sender := &flakySender{}
	m := NewMailer(sender, NewTemplateEngine(), 3, time.Millisecond)

	msg, err := m.Send(context.Background(), TemplateVerifyEmail, "ana@example.com", map[string]string{
		"name":        "Ana",
		"verify_link": "https://clinic.example/verify?token=abc",
		"expires_in":  "24h0m0s",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Attempts != 1 || msg.SentAt.IsZero() || msg.ID == "" {
		t.Errorf("unexpected message state: %+v", msg)
	}
	if len(sender.calls) != 1 || sender.calls[0].To != "ana@example.com" {
		t.Fatalf("unexpected calls: %+v", sender.calls)
	}
	if !strings.Contains(sender.calls[0].Body, "token=abc") {
		t.Errorf("body missing link: %q", sender.calls[0].Body)
	}
}

func TestMailer_RetriesThenSucceeds(t *testing.T) {
	sender := &flakySender{failures: 2}
	m := NewMailer(sender, NewTemplateEngine(), 3, time.Millisecond)

	msg, err := m.Send(context.Background(), TemplateVerifyEmail, "ana@example.com", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", msg.Attempts)
	}
}

func TestMailer_GivesUp(t *testing.T) {
	sender := &flakySender{failures: 5}
	m := NewMailer(sender, NewTemplateEngine(), 2, time.Millisecond)

	msg, err := m.Send(context.Background(), TemplateVerifyEmail, "ana@example.com", nil)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if !strings.Contains(err.Error(), "421") {
		t.Errorf("error should wrap the sender failure: %v", err)
	}
	if msg.Attempts != 2 || len(sender.calls) != 2 {
		t.Errorf("attempts = %d, calls = %d, want 2 and 2", msg.Attempts, len(sender.calls))
	}
}

func TestMailer_StopsOnCancel(t *testing.T) {
	sender := &flakySender{failures: 5}
	m := NewMailer(sender, NewTemplateEngine(), 5, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Send(ctx, TemplateVerifyEmail, "ana@example.com", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sender.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(sender.calls))
	}
}

func TestMailer_UnknownTemplate(t *testing.T) {
	sender := &flakySender{}
	m := NewMailer(sender, NewTemplateEngine(), 1, 0)

	if _, err := m.Send(context.Background(), "missing", "ana@example.com", nil); err == nil {
		t.Fatal("expected render error")
	}
	if len(sender.calls) != 0 {
		t.Error("nothing should be sent for an unknown template")
	}
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(zerolog.New(&buf))

	if err := s.SendEmail(context.Background(), "ana@example.com", "Subject", "Body"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`"to":"ana@example.com"`, `"subject":"Subject"`, `"component":"mailer"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}
