// Package notification renders message templates and hands them to a
// delivery channel.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TemplateVerifyEmail is registered by NewTemplateEngine.
const TemplateVerifyEmail = "verify-email"

// Template is a message with {{key}} placeholders.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine stores templates by ID and renders them.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	e.RegisterTemplate(Template{
		ID:      TemplateVerifyEmail,
		Subject: "Verify your clinic account",
		Body:    "Hello {{name}}, confirm your email address by opening {{verify_link}}. The link expires in {{expires_in}}.",
	})
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	e.templates[t.ID] = t
	e.mu.Unlock()
}

// Render substitutes data into the template's subject and body. Unknown
// placeholders are left as is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// EmailSender delivers a rendered email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// LogSender writes emails to the log. Used until an SMTP relay is configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "mailer").Logger()}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.logger.Info().
		Str("to", to).
		Str("subject", subject).
		Str("body", body).
		Msg("email sent")
	return nil
}

// Message is one rendered, dispatched email.
type Message struct {
	ID         string
	TemplateID string
	To         string
	Subject    string
	Body       string
	Attempts   int
	SentAt     time.Time
}

// Mailer renders templates and sends them, retrying failed deliveries.
type Mailer struct {
	sender    EmailSender
	templates *TemplateEngine
	attempts  int
	backoff   time.Duration
}

// NewMailer returns a Mailer that tries each message up to attempts times,
// sleeping backoff, 2*backoff, ... between tries.
func NewMailer(sender EmailSender, templates *TemplateEngine, attempts int, backoff time.Duration) *Mailer {
	if attempts < 1 {
		attempts = 1
	}
	return &Mailer{sender: sender, templates: templates, attempts: attempts, backoff: backoff}
}

// Send renders templateID with data and delivers it to the recipient.
func (m *Mailer) Send(ctx context.Context, templateID, to string, data map[string]string) (*Message, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	msg := &Message{
		ID:         uuid.NewString(),
		TemplateID: templateID,
		To:         to,
		Subject:    subject,
		Body:       body,
	}

	var sendErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		msg.Attempts = attempt
		if sendErr = m.sender.SendEmail(ctx, to, subject, body); sendErr == nil {
			msg.SentAt = time.Now().UTC()
			return msg, nil
		}
		if attempt == m.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return msg, ctx.Err()
		case <-time.After(m.backoff * time.Duration(attempt)):
		}
	}
	return msg, fmt.Errorf("send %s to %s after %d attempt(s): %w", templateID, to, msg.Attempts, sendErr)
}
