package account

import (
	"context"
	"net/url"
	"time"

	"github.com/pediaclinic/clinic/internal/platform/notification"
)

// Notifier delivers account messages to the account holder.
type Notifier interface {
	SendVerification(ctx context.Context, a *Account, token string) error
}

// EmailNotifier sends verification links through the mailer.
type EmailNotifier struct {
	mailer    *notification.Mailer
	verifyURL string
	tokenTTL  time.Duration
}

// NewEmailNotifier builds links as verifyURL?token=<token>.
func NewEmailNotifier(mailer *notification.Mailer, verifyURL string, tokenTTL time.Duration) *EmailNotifier {
	return &EmailNotifier{mailer: mailer, verifyURL: verifyURL, tokenTTL: tokenTTL}
}

func (n *EmailNotifier) SendVerification(ctx context.Context, a *Account, token string) error {
	_, err := n.mailer.Send(ctx, notification.TemplateVerifyEmail, a.Email, map[string]string{
		"name":        a.FullName,
		"verify_link": verifyLink(n.verifyURL, token),
		"expires_in":  n.tokenTTL.String(),
	})
	return err
}

func verifyLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
