// Package transcode provides the video transcoding provider adapters and
// the canonical status shape that webhook and poll deliveries normalize
// into before reconciliation.
package transcode

import (
	"context"
	"net/http"
)

// Status is the canonical transcoding status across all providers.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// Report is the canonical status report. Both webhook payloads and poll
// responses normalize into this shape, so reconciliation behaves the
// same regardless of delivery mechanism.
type Report struct {
	ProviderUID     string
	Status          Status
	PlaybackURL     string
	DurationSeconds int
	ErrorMessage    string
}

// Submission is the provider's acknowledgement of a new transcoding job.
type Submission struct {
	ProviderUID string
	Status      Status
}

// Transcoder submits media to one concrete transcoding provider and
// polls its status. Ordinary failure modes come back as errors, never
// panics, so the circuit breaker can classify them.
type Transcoder interface {
	// Name identifies the provider for logging and breaker naming.
	Name() string

	// Submit starts transcoding the given source and returns the
	// provider-assigned uid plus the initial status.
	Submit(ctx context.Context, sourceRef string) (Submission, error)

	// GetStatus polls the provider for the current status.
	GetStatus(ctx context.Context, providerUID string) (Report, error)

	// Delete removes the transcoded asset from the provider.
	Delete(ctx context.Context, providerUID string) error
}

// WebhookAdapter is implemented by providers that push status via
// webhooks. Verification runs over the raw, unparsed body; parsing gets
// the same bytes separately.
type WebhookAdapter interface {
	// VerifySignature checks the provider's signature over the raw body.
	VerifySignature(raw []byte, header http.Header) error

	// ParseWebhook normalizes a provider payload into a Report.
	ParseWebhook(raw []byte) (Report, error)
}
