package email

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edupipe/edupipe/internal/breaker"
)

// Config selects and credentials the active mail provider.
type Config struct {
	Provider       string // console, mailgun, sendgrid
	From           string
	MailgunDomain  string
	MailgunAPIKey  string
	SendgridAPIKey string
}

// New constructs the active mailer from configuration. Construction is
// deterministic: the same config always yields the same adapter.
func New(cfg Config, log *zap.Logger) (Mailer, error) {
	switch cfg.Provider {
	case "", "console":
		return NewConsoleMailer(log), nil
	case "mailgun":
		return NewMailgunMailer(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.From), nil
	case "sendgrid":
		return NewSendgridMailer(cfg.SendgridAPIKey, cfg.From), nil
	default:
		return nil, fmt.Errorf("email: unknown provider %q", cfg.Provider)
	}
}

// Protected reports whether the adapter should be wrapped by a circuit
// breaker. The console adapter is exempt: it cannot fail in ways worth
// protecting against.
func Protected(m Mailer) bool {
	_, isConsole := m.(*ConsoleMailer)
	return !isConsole
}

// breakerMailer routes every send through a circuit breaker.
type breakerMailer struct {
	inner Mailer
	cb    *breaker.Breaker
}

// Wrap returns a Mailer whose calls go through the given breaker.
func Wrap(m Mailer, cb *breaker.Breaker) Mailer {
	return &breakerMailer{inner: m, cb: cb}
}

func (m *breakerMailer) Name() string { return m.inner.Name() }

func (m *breakerMailer) Send(ctx context.Context, msg Message) (string, error) {
	var id string
	err := m.cb.Do(ctx, func(ctx context.Context) error {
		var sendErr error
		id, sendErr = m.inner.Send(ctx, msg)
		return sendErr
	})
	return id, err
}
