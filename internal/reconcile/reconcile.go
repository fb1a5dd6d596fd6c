// Package reconcile merges external transcoding status reports into the
// persisted domain state. Webhook deliveries and poll results both funnel
// through Apply, so duplicate, replayed, or out-of-order reports are
// absorbed identically regardless of how they arrived.
package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edupipe/edupipe/internal/notify"
	"github.com/edupipe/edupipe/internal/platform"
	"github.com/edupipe/edupipe/internal/provider/transcode"
)

// Notification event types published on terminal transitions.
const (
	EventTranscodeReady  = "transcoding.ready"
	EventTranscodeFailed = "transcoding.failed"
)

// Outcome reasons.
const (
	ReasonApplied         = "applied"
	ReasonUnknownUID      = "unknown-uid"
	ReasonAlreadyTerminal = "already-terminal"
	ReasonNoChange        = "no-change"
)

// Outcome describes what Apply did. Unknown uids and already-terminal
// records are successes with Applied=false: callers (the webhook
// endpoint in particular) acknowledge them so providers stop retrying.
type Outcome struct {
	Applied bool
	Reason  string
}

// Reconciler advances lesson-content transcoding state. It is the only
// component allowed to mutate that state.
type Reconciler struct {
	store *platform.Store
	hub   *notify.Hub
	log   *zap.Logger
}

// New creates a Reconciler.
func New(store *platform.Store, hub *notify.Hub, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: store, hub: hub, log: log}
}

// Apply merges one canonical status report into persisted state.
//
// The state machine is pending → processing → {ready | error}; ready and
// error are terminal for a given submission. All writes are guarded
// read-check-then-write (the guard lives in the UPDATE's WHERE clause),
// so a poll job and a webhook racing on the same uid cannot double-apply
// or regress a transition.
func (r *Reconciler) Apply(ctx context.Context, report transcode.Report) (Outcome, error) {
	content, err := r.store.GetContentByUID(ctx, report.ProviderUID)
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile: lookup uid %q: %w", report.ProviderUID, err)
	}
	if content == nil {
		// Events for deleted/unknown entities are absorbed so the
		// provider does not retry forever.
		r.log.Info("status report for unknown uid",
			zap.String("provider_uid", report.ProviderUID),
			zap.String("status", string(report.Status)))
		return Outcome{Applied: false, Reason: ReasonUnknownUID}, nil
	}

	if content.TranscodeStatus.Terminal() {
		return Outcome{Applied: false, Reason: ReasonAlreadyTerminal}, nil
	}

	switch report.Status {
	case transcode.StatusReady:
		return r.applyReady(ctx, content, report)
	case transcode.StatusError:
		return r.applyError(ctx, content, report)
	case transcode.StatusProcessing:
		changed, err := r.store.MarkTranscodeProcessing(ctx, content.ID)
		if err != nil {
			return Outcome{}, fmt.Errorf("reconcile: mark processing: %w", err)
		}
		if !changed {
			return Outcome{Applied: false, Reason: ReasonNoChange}, nil
		}
		return Outcome{Applied: true, Reason: ReasonApplied}, nil
	default:
		// A pending report never moves a record anywhere.
		return Outcome{Applied: false, Reason: ReasonNoChange}, nil
	}
}

func (r *Reconciler) applyReady(ctx context.Context, content *platform.LessonContent, report transcode.Report) (Outcome, error) {
	changed, err := r.store.MarkTranscodeReady(ctx, content.ID, report.PlaybackURL, report.DurationSeconds)
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile: mark ready: %w", err)
	}
	if !changed {
		// Lost the race against another delivery; that delivery owns
		// the side effects.
		return Outcome{Applied: false, Reason: ReasonAlreadyTerminal}, nil
	}

	if report.DurationSeconds > 0 {
		if err := r.store.UpdateLessonDuration(ctx, content.LessonID, report.DurationSeconds); err != nil {
			return Outcome{}, fmt.Errorf("reconcile: update lesson duration: %w", err)
		}
	}

	r.log.Info("transcoding ready",
		zap.String("content_id", content.ID),
		zap.String("provider_uid", report.ProviderUID),
		zap.Int("duration_s", report.DurationSeconds))

	r.publish(ctx, content, notify.Event{
		Type:  EventTranscodeReady,
		Title: "Your video finished processing",
		Data: map[string]any{
			"content_id": content.ID,
			"lesson_id":  content.LessonID,
		},
	})
	return Outcome{Applied: true, Reason: ReasonApplied}, nil
}

func (r *Reconciler) applyError(ctx context.Context, content *platform.LessonContent, report transcode.Report) (Outcome, error) {
	msg := report.ErrorMessage
	if msg == "" {
		msg = "transcoding failed"
	}
	changed, err := r.store.MarkTranscodeError(ctx, content.ID, msg)
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile: mark error: %w", err)
	}
	if !changed {
		return Outcome{Applied: false, Reason: ReasonAlreadyTerminal}, nil
	}

	r.log.Warn("transcoding failed",
		zap.String("content_id", content.ID),
		zap.String("provider_uid", report.ProviderUID),
		zap.String("error", msg))

	r.publish(ctx, content, notify.Event{
		Type:  EventTranscodeFailed,
		Title: "Your video could not be processed",
		Data: map[string]any{
			"content_id": content.ID,
			"lesson_id":  content.LessonID,
			"error":      msg,
		},
	})
	return Outcome{Applied: true, Reason: ReasonApplied}, nil
}

// publish notifies the lesson owner. Notification failures are logged,
// never propagated: they must not fail the reconciliation.
func (r *Reconciler) publish(ctx context.Context, content *platform.LessonContent, ev notify.Event) {
	if r.hub == nil {
		return
	}
	lesson, err := r.store.GetLesson(ctx, content.LessonID)
	if err != nil || lesson == nil || lesson.OwnerID == "" {
		return
	}
	if err := r.hub.Publish(ctx, lesson.OwnerID, ev); err != nil {
		r.log.Error("failed to publish transcoding event",
			zap.String("lesson_id", content.LessonID), zap.Error(err))
	}
}
