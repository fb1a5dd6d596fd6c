package email

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConsoleMailer logs messages instead of sending them. It is the dev
// adapter and is never wrapped by a circuit breaker: it has no failure
// modes worth protecting against.
type ConsoleMailer struct {
	log *zap.Logger
}

// NewConsoleMailer creates a console mailer.
func NewConsoleMailer(log *zap.Logger) *ConsoleMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConsoleMailer{log: log}
}

func (m *ConsoleMailer) Name() string { return "console" }

func (m *ConsoleMailer) Send(_ context.Context, msg Message) (string, error) {
	id := fmt.Sprintf("console-%s", uuid.New().String())
	m.log.Info("email (console)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("locale", msg.Locale),
		zap.String("message_id", id),
	)
	return id, nil
}
