package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pediaclinic/clinic/internal/platform/notification"
)

type sentEmail struct{ to, subject, body string }

type recordingSender struct {
	sent []sentEmail
	err  error
}

func (s *recordingSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.sent = append(s.sent, sentEmail{to, subject, body})
	return s.err
}

func TestEmailNotifier_SendVerification(t *testing.T) {
	sender := &recordingSender{}
	n := NewEmailNotifier(notification.NewMailer(sender, notification.NewTemplateEngine(), 1, 0), "https://clinic.example/verify", 24*time.Hour)

	a := &Account{ID: uuid.New(), FullName: "Maria Santos", Email: "maria@example.com"}
	require.NoError(t, n.SendVerification(context.Background(), a, "tok-123"))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "maria@example.com", sender.sent[0].to)
	assert.Contains(t, sender.sent[0].body, "Hello Maria Santos")
	assert.Contains(t, sender.sent[0].body, "https://clinic.example/verify?token=tok-123")
	assert.Contains(t, sender.sent[0].body, "24h0m0s")
}

func TestEmailNotifier_SenderFailure(t *testing.T) {
	sender := &recordingSender{err: errors.New("relay down")}
	n := NewEmailNotifier(notification.NewMailer(sender, notification.NewTemplateEngine(), 2, time.Millisecond), "https://clinic.example/verify", time.Hour)

	err := n.SendVerification(context.Background(), &Account{Email: "maria@example.com"}, "tok")
	assert.ErrorContains(t, err, "relay down")
	assert.Len(t, sender.sent, 2)
}

func TestVerifyLink(t *testing.T) {
	assert.Equal(t, "https://clinic.example/verify?token=a%2Bb", verifyLink("https://clinic.example/verify", "a+b"))
	assert.Equal(t, "https://clinic.example/verify?lang=en&token=x", verifyLink("https://clinic.example/verify?lang=en", "x"))
}
