package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edupipe/edupipe/internal/jobs"
	"github.com/edupipe/edupipe/internal/provider/transcode"
	"github.com/edupipe/edupipe/internal/reconcile"
)

// handleTranscodeSubmit sends the source to the provider, records the
// provider-assigned uid, and schedules the first status poll. Provider or
// breaker failures surface as errors so the queue's retry policy owns
// them; the breaker itself never retries.
func (d *Deps) handleTranscodeSubmit(ctx context.Context, args jobs.TranscodeSubmitArgs) error {
	sub, err := d.Transcoder.Submit(ctx, args.SourceRef)
	if err != nil {
		return fmt.Errorf("submit transcoding for content %s: %w", args.ContentID, err)
	}

	if err := d.Store.SetTranscodeSubmitted(ctx, args.ContentID, sub.ProviderUID); err != nil {
		return fmt.Errorf("record submission for content %s: %w", args.ContentID, err)
	}

	d.Log.Info("transcoding submitted",
		zap.String("content_id", args.ContentID),
		zap.String("provider_uid", sub.ProviderUID),
		zap.String("provider", d.Transcoder.Name()),
		zap.String("status", string(sub.Status)))

	// Some providers acknowledge with a status past pending already.
	if sub.Status != transcode.StatusPending {
		if _, err := d.Reconciler.Apply(ctx, transcode.Report{
			ProviderUID: sub.ProviderUID,
			Status:      sub.Status,
		}); err != nil {
			return err
		}
		if sub.Status.Terminal() {
			return nil
		}
	}

	_, err = jobs.EnqueueTranscodeCheck(ctx, d.Queue, jobs.TranscodeCheckArgs{
		ContentID:   args.ContentID,
		ProviderUID: sub.ProviderUID,
		Poll:        1,
	}, d.PollDelay)
	if err != nil {
		return fmt.Errorf("schedule status check for content %s: %w", args.ContentID, err)
	}
	return nil
}

// handleTranscodeCheck polls the provider and reconciles the result. If
// the provider still reports pending/processing the job re-enqueues
// itself with the next poll number; past MaxPolls it escalates to a
// terminal error instead of polling forever.
func (d *Deps) handleTranscodeCheck(ctx context.Context, args jobs.TranscodeCheckArgs) error {
	if args.Poll > d.MaxPolls {
		_, err := d.Reconciler.Apply(ctx, transcode.Report{
			ProviderUID: args.ProviderUID,
			Status:      transcode.StatusError,
			ErrorMessage: fmt.Sprintf(
				"transcoding did not finish after %d status checks", d.MaxPolls),
		})
		return err
	}

	report, err := d.Transcoder.GetStatus(ctx, args.ProviderUID)
	if err != nil {
		return fmt.Errorf("poll status for %s: %w", args.ProviderUID, err)
	}

	outcome, err := d.Reconciler.Apply(ctx, report)
	if err != nil {
		return err
	}

	// A webhook may have finalized (or the record may be gone); either
	// way the chain stops.
	if outcome.Reason == reconcile.ReasonUnknownUID || outcome.Reason == reconcile.ReasonAlreadyTerminal {
		return nil
	}
	if report.Status.Terminal() {
		return nil
	}

	_, err = jobs.EnqueueTranscodeCheck(ctx, d.Queue, jobs.TranscodeCheckArgs{
		ContentID:   args.ContentID,
		ProviderUID: args.ProviderUID,
		Poll:        args.Poll + 1,
	}, d.PollDelay)
	if err != nil {
		return fmt.Errorf("schedule next status check for %s: %w", args.ProviderUID, err)
	}
	return nil
}
