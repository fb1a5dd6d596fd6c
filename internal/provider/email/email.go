// Package email provides the outbound mail adapters. Each adapter
// implements the same capability set; exactly one is active per process,
// chosen by configuration at startup.
package email

import (
	"context"
)

// Message is an outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
	Locale  string
}

// Mailer sends email through one concrete provider. Ordinary failure
// modes (auth errors, rate limits, timeouts) come back as errors, never
// panics, so the circuit breaker can classify them.
type Mailer interface {
	// Name identifies the provider for logging and breaker naming.
	Name() string

	// Send delivers the message and returns the provider's message id.
	Send(ctx context.Context, msg Message) (string, error)
}
