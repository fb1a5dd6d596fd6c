package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/edupipe/edupipe/internal/jobs"
	"github.com/edupipe/edupipe/internal/platform"
)

// handleDigestRun runs one digest pass for the given frequency.
func (d *Deps) handleDigestRun(ctx context.Context, args jobs.DigestRunArgs) error {
	frequency := args.Frequency
	if frequency == "" {
		frequency = platform.DigestDaily
	}

	sent, err := d.Hub.RunDigest(ctx, frequency, time.Now())
	if err != nil {
		return err
	}

	d.Log.Info("digest run complete",
		zap.String("frequency", frequency),
		zap.Int("emails_enqueued", sent))
	return nil
}
