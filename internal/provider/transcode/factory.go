package transcode

import (
	"context"
	"fmt"
	"net/http"

	"github.com/edupipe/edupipe/internal/breaker"
)

// Config selects and credentials the active transcoding provider.
type Config struct {
	Provider string // local, bunny, mux

	BunnyLibraryID     string
	BunnyAPIKey        string
	BunnyWebhookSecret string

	MuxTokenID       string
	MuxTokenSecret   string
	MuxWebhookSecret string
}

// New constructs the active transcoder from configuration. Construction
// is deterministic: the same config always yields the same adapter.
func New(cfg Config) (Transcoder, error) {
	switch cfg.Provider {
	case "", "local":
		return NewLocalTranscoder(), nil
	case "bunny":
		return NewBunnyTranscoder(cfg.BunnyLibraryID, cfg.BunnyAPIKey, cfg.BunnyWebhookSecret), nil
	case "mux":
		return NewMuxTranscoder(cfg.MuxTokenID, cfg.MuxTokenSecret, cfg.MuxWebhookSecret), nil
	default:
		return nil, fmt.Errorf("transcode: unknown provider %q", cfg.Provider)
	}
}

// Protected reports whether the adapter should be wrapped by a circuit
// breaker. The local adapter is exempt.
func Protected(t Transcoder) bool {
	_, isLocal := t.(*LocalTranscoder)
	return !isLocal
}

// breakerTranscoder routes every provider call through a circuit breaker.
// Webhook verification and parsing are pure local computation and stay
// unwrapped even when the underlying adapter supports webhooks.
type breakerTranscoder struct {
	inner Transcoder
	cb    *breaker.Breaker
}

// Wrap returns a Transcoder whose network calls go through the breaker.
// The returned value still satisfies WebhookAdapter if the inner adapter
// does.
func Wrap(t Transcoder, cb *breaker.Breaker) Transcoder {
	wrapped := &breakerTranscoder{inner: t, cb: cb}
	if wa, ok := t.(WebhookAdapter); ok {
		return &breakerWebhookTranscoder{breakerTranscoder: wrapped, wa: wa}
	}
	return wrapped
}

func (t *breakerTranscoder) Name() string { return t.inner.Name() }

func (t *breakerTranscoder) Submit(ctx context.Context, sourceRef string) (Submission, error) {
	var sub Submission
	err := t.cb.Do(ctx, func(ctx context.Context) error {
		var callErr error
		sub, callErr = t.inner.Submit(ctx, sourceRef)
		return callErr
	})
	return sub, err
}

func (t *breakerTranscoder) GetStatus(ctx context.Context, providerUID string) (Report, error) {
	var rep Report
	err := t.cb.Do(ctx, func(ctx context.Context) error {
		var callErr error
		rep, callErr = t.inner.GetStatus(ctx, providerUID)
		return callErr
	})
	return rep, err
}

func (t *breakerTranscoder) Delete(ctx context.Context, providerUID string) error {
	return t.cb.Do(ctx, func(ctx context.Context) error {
		return t.inner.Delete(ctx, providerUID)
	})
}

type breakerWebhookTranscoder struct {
	*breakerTranscoder
	wa WebhookAdapter
}

func (t *breakerWebhookTranscoder) VerifySignature(raw []byte, header http.Header) error {
	return t.wa.VerifySignature(raw, header)
}

func (t *breakerWebhookTranscoder) ParseWebhook(raw []byte) (Report, error) {
	return t.wa.ParseWebhook(raw)
}
