// Package jobs defines the queue names, job type tags, and payload types
// of the platform's background work, plus the enqueue calls the domain
// layer uses. Each type tag is tied to exactly one payload struct; the
// worker dispatches on the tag, so payloads never need runtime
// type-sniffing.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/edupipe/edupipe/internal/core"
	"github.com/edupipe/edupipe/internal/queue"
)

// Queue names.
const (
	QueueTranscoding   = "transcoding"
	QueueNotifications = "notifications"
	QueueDigests       = "digests"
	QueueMaintenance   = "maintenance"
)

// Job type tags.
const (
	TypeTranscodeSubmit = "transcode.submit"
	TypeTranscodeCheck  = "transcode.check"
	TypeEmailSend       = "email.send"
	TypeDigestRun       = "digest.run"
	TypeLicenseExpire   = "licenses.expire"
	TypeStreakReset     = "streaks.reset"
	TypeJobPrune        = "jobs.prune"
)

// TranscodeSubmitArgs starts a transcoding workflow for one content item.
type TranscodeSubmitArgs struct {
	ContentID string `json:"content_id"`
	LessonID  string `json:"lesson_id"`
	Language  string `json:"language"`
	SourceRef string `json:"source_ref"`
}

// TranscodeCheckArgs polls the provider for one tracked submission.
// Poll counts status checks, distinct from the job's own retry attempts.
type TranscodeCheckArgs struct {
	ContentID   string `json:"content_id"`
	ProviderUID string `json:"provider_uid"`
	Poll        int    `json:"poll"`
}

// EmailSendArgs delivers one notification email.
type EmailSendArgs struct {
	UserID  string `json:"user_id"`
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Locale  string `json:"locale"`
}

// DigestRunArgs triggers one digest pass.
type DigestRunArgs struct {
	Frequency string `json:"frequency"`
}

// MaintenanceArgs is the empty payload of the scheduled maintenance jobs.
type MaintenanceArgs struct{}

// EnqueueTranscodeSubmit enqueues a submit job. The unique key keeps at
// most one pending submission per content item, which is the
// caller-enforced dedup the queue itself does not provide.
func EnqueueTranscodeSubmit(ctx context.Context, q *queue.Queue, args TranscodeSubmitArgs) (string, error) {
	return q.Enqueue(ctx, TypeTranscodeSubmit, args,
		queue.OnQueue(QueueTranscoding),
		queue.MaxAttempts(3),
		queue.Backoff(core.BackoffExponential, 5*time.Second),
		queue.Unique(fmt.Sprintf("transcode:submit:%s", args.ContentID)),
	)
}

// EnqueueTranscodeCheck schedules a delayed status poll.
func EnqueueTranscodeCheck(ctx context.Context, q *queue.Queue, args TranscodeCheckArgs, delay time.Duration) (string, error) {
	return q.Enqueue(ctx, TypeTranscodeCheck, args,
		queue.OnQueue(QueueTranscoding),
		queue.MaxAttempts(3),
		queue.Backoff(core.BackoffFixed, 10*time.Second),
		queue.Delay(delay),
	)
}

// EnqueueEmailSend enqueues a notification email. Failures are retried by
// the queue and never block the user-facing action that triggered them.
func EnqueueEmailSend(ctx context.Context, q *queue.Queue, args EmailSendArgs) (string, error) {
	return q.Enqueue(ctx, TypeEmailSend, args,
		queue.OnQueue(QueueNotifications),
		queue.MaxAttempts(5),
		queue.Backoff(core.BackoffExponential, 30*time.Second),
	)
}

// EnqueueDigestRun enqueues an immediate digest pass (normally fired by
// the scheduler instead).
func EnqueueDigestRun(ctx context.Context, q *queue.Queue, args DigestRunArgs) (string, error) {
	return q.Enqueue(ctx, TypeDigestRun, args,
		queue.OnQueue(QueueDigests),
		queue.MaxAttempts(3),
	)
}
