package transcode

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// LocalTranscoder is the dev adapter: it fakes instant transcoding so the
// full submit/poll flow works without any external service. It does not
// implement WebhookAdapter, so the webhook endpoint answers 501 when it
// is active, and it is never wrapped by a circuit breaker.
type LocalTranscoder struct {
	mu        sync.Mutex
	submitted map[string]string // uid -> sourceRef
}

// NewLocalTranscoder creates a local dev transcoder.
func NewLocalTranscoder() *LocalTranscoder {
	return &LocalTranscoder{submitted: make(map[string]string)}
}

func (t *LocalTranscoder) Name() string { return "local" }

func (t *LocalTranscoder) Submit(_ context.Context, sourceRef string) (Submission, error) {
	uid := "local-" + uuid.New().String()
	t.mu.Lock()
	t.submitted[uid] = sourceRef
	t.mu.Unlock()
	return Submission{ProviderUID: uid, Status: StatusPending}, nil
}

func (t *LocalTranscoder) GetStatus(_ context.Context, providerUID string) (Report, error) {
	t.mu.Lock()
	_, ok := t.submitted[providerUID]
	t.mu.Unlock()
	if !ok {
		return Report{}, fmt.Errorf("local: unknown uid %q", providerUID)
	}
	return Report{
		ProviderUID: providerUID,
		Status:      StatusReady,
		PlaybackURL: fmt.Sprintf("file:///transcoded/%s/index.m3u8", providerUID),
	}, nil
}

func (t *LocalTranscoder) Delete(_ context.Context, providerUID string) error {
	t.mu.Lock()
	delete(t.submitted, providerUID)
	t.mu.Unlock()
	return nil
}
