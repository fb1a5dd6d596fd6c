package handlers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edupipe/edupipe/internal/jobs"
	"github.com/edupipe/edupipe/internal/notify"
)

// staleStreakWindow is how long a streak may go without activity before
// the nightly reset zeroes it.
const staleStreakWindow = 48 * time.Hour

// handleLicenseExpire flips lapsed licenses to expired and notifies each
// affected user. Notification failures are logged, not propagated: the
// state change already happened and must not be retried.
func (d *Deps) handleLicenseExpire(ctx context.Context, _ jobs.MaintenanceArgs) error {
	expired, err := d.Store.ExpireLicenses(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("expire licenses: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	d.Log.Info("licenses expired", zap.Int("count", len(expired)))

	for _, lic := range expired {
		err := d.Hub.Publish(ctx, lic.UserID, notify.Event{
			Type:  "license.expired",
			Title: "Your license has expired",
			Data:  map[string]any{"license_id": lic.ID},
		})
		if err != nil {
			d.Log.Error("failed to publish license expiry",
				zap.String("user_id", lic.UserID),
				zap.String("license_id", lic.ID),
				zap.Error(err))
		}
	}
	return nil
}

// handleStreakReset zeroes streaks with no recent activity and notifies
// each affected user.
func (d *Deps) handleStreakReset(ctx context.Context, _ jobs.MaintenanceArgs) error {
	cutoff := time.Now().Add(-staleStreakWindow)
	reset, err := d.Store.ResetStaleStreaks(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("reset stale streaks: %w", err)
	}
	if len(reset) == 0 {
		return nil
	}

	d.Log.Info("stale streaks reset", zap.Int("count", len(reset)))

	for _, st := range reset {
		err := d.Hub.Publish(ctx, st.UserID, notify.Event{
			Type:  "streak.lost",
			Title: "Your learning streak has ended",
			Data:  map[string]any{"days": st.CurrentDays},
		})
		if err != nil {
			d.Log.Error("failed to publish streak loss",
				zap.String("user_id", st.UserID), zap.Error(err))
		}
	}
	return nil
}

// handleJobPrune deletes completed jobs older than the retention window.
func (d *Deps) handleJobPrune(ctx context.Context, _ jobs.MaintenanceArgs) error {
	cutoff := time.Now().Add(-d.Retention)
	removed, err := d.Queue.Storage().DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune completed jobs: %w", err)
	}
	if removed > 0 {
		d.Log.Info("pruned completed jobs",
			zap.Int64("count", removed), zap.Time("cutoff", cutoff))
	}
	return nil
}
