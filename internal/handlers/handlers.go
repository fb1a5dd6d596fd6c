// Package handlers wires the job handler set to the queue: transcoding
// submit/poll, notification email delivery, digests, and the scheduled
// maintenance jobs.
package handlers

import (
	"time"

	"go.uber.org/zap"

	"github.com/edupipe/edupipe/internal/jobs"
	"github.com/edupipe/edupipe/internal/notify"
	"github.com/edupipe/edupipe/internal/platform"
	"github.com/edupipe/edupipe/internal/provider/email"
	"github.com/edupipe/edupipe/internal/provider/transcode"
	"github.com/edupipe/edupipe/internal/queue"
	"github.com/edupipe/edupipe/internal/reconcile"
	"github.com/edupipe/edupipe/internal/schedule"
)

// Deps carries the explicitly constructed dependencies every handler
// closes over. Providers arrive already breaker-wrapped where required;
// nothing here reaches for process-global state.
type Deps struct {
	Queue      *queue.Queue
	Store      *platform.Store
	Reconciler *reconcile.Reconciler
	Transcoder transcode.Transcoder
	Mailer     email.Mailer
	Hub        *notify.Hub
	Log        *zap.Logger

	// Polling bound for the transcode status chain. A provider stuck on
	// "processing" is escalated to a terminal error after MaxPolls
	// checks rather than polled forever.
	MaxPolls  int
	PollDelay time.Duration

	// Retention window for completed jobs.
	Retention time.Duration
}

func (d *Deps) withDefaults() {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.MaxPolls <= 0 {
		d.MaxPolls = 40
	}
	if d.PollDelay <= 0 {
		d.PollDelay = 30 * time.Second
	}
	if d.Retention <= 0 {
		d.Retention = 14 * 24 * time.Hour
	}
}

// RegisterAll registers every job handler. Both the worker and the HTTP
// process call this: the HTTP process never starts a worker but needs
// the registrations so its enqueues pass handler validation.
func RegisterAll(d *Deps) {
	d.withDefaults()

	d.Queue.Register(jobs.TypeTranscodeSubmit, d.handleTranscodeSubmit)
	d.Queue.Register(jobs.TypeTranscodeCheck, d.handleTranscodeCheck)
	d.Queue.Register(jobs.TypeEmailSend, d.handleEmailSend)
	d.Queue.Register(jobs.TypeDigestRun, d.handleDigestRun)
	d.Queue.Register(jobs.TypeLicenseExpire, d.handleLicenseExpire)
	d.Queue.Register(jobs.TypeStreakReset, d.handleStreakReset)
	d.Queue.Register(jobs.TypeJobPrune, d.handleJobPrune)
}

// RegisterSchedules registers the recurring jobs. Only worker processes
// with the scheduler enabled will fire them.
func RegisterSchedules(d *Deps, digestHour, weeklyDigestDay int) {
	d.withDefaults()

	d.Queue.Schedule("digest-daily", jobs.TypeDigestRun,
		schedule.Daily(digestHour, 0),
		jobs.DigestRunArgs{Frequency: platform.DigestDaily},
		queue.OnQueue(jobs.QueueDigests),
	)
	d.Queue.Schedule("digest-weekly", jobs.TypeDigestRun,
		schedule.Weekly(time.Weekday(weeklyDigestDay), digestHour, 30),
		jobs.DigestRunArgs{Frequency: platform.DigestWeekly},
		queue.OnQueue(jobs.QueueDigests),
	)
	d.Queue.Schedule("license-expiry", jobs.TypeLicenseExpire,
		schedule.Daily(2, 0),
		jobs.MaintenanceArgs{},
		queue.OnQueue(jobs.QueueMaintenance),
	)
	d.Queue.Schedule("streak-reset", jobs.TypeStreakReset,
		schedule.Daily(3, 0),
		jobs.MaintenanceArgs{},
		queue.OnQueue(jobs.QueueMaintenance),
	)
	d.Queue.Schedule("job-prune", jobs.TypeJobPrune,
		schedule.Daily(4, 0),
		jobs.MaintenanceArgs{},
		queue.OnQueue(jobs.QueueMaintenance),
	)
}
