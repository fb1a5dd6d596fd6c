package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/edupipe/edupipe/internal/app"
	"github.com/edupipe/edupipe/internal/config"
	"github.com/edupipe/edupipe/internal/core"
	"github.com/edupipe/edupipe/internal/handlers"
	"github.com/edupipe/edupipe/internal/jobs"
	"github.com/edupipe/edupipe/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := app.NewLogger(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}

	handlers.RegisterSchedules(a.Deps, cfg.DigestHour, cfg.WeeklyDigestDay)

	events := a.Queue.Events()
	defer a.Queue.Unsubscribe(events)
	go logEvents(ctx, log, events)

	w := worker.NewWorker(a.Queue, log,
		worker.WorkerQueue(jobs.QueueTranscoding, cfg.TranscodingConcurrency),
		worker.WorkerQueue(jobs.QueueNotifications, cfg.NotificationsConcurrency),
		worker.WorkerQueue(jobs.QueueDigests, cfg.DigestsConcurrency),
		worker.WorkerQueue(jobs.QueueMaintenance, cfg.MaintenanceConcurrency),
		worker.WithScheduler(true),
		worker.WithReaper(5*time.Minute),
		worker.ShutdownGrace(cfg.ShutdownGrace),
	)

	log.Info("worker starting",
		zap.String("db", cfg.DBPath),
		zap.String("transcoder", a.Transcoder.Name()),
		zap.String("mailer", a.Mailer.Name()))

	if err := w.Start(ctx); err != nil && err != context.Canceled {
		log.Fatal("worker stopped", zap.Error(err))
	}
	log.Info("worker stopped")
}

// logEvents mirrors the queue event stream into the process log.
func logEvents(ctx context.Context, log *zap.Logger, events <-chan core.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch e := ev.(type) {
			case *core.JobCompleted:
				log.Info("job completed",
					zap.String("job_id", e.Job.ID),
					zap.String("type", e.Job.Type),
					zap.Duration("duration", e.Duration))
			case *core.JobRetrying:
				log.Warn("job retrying",
					zap.String("job_id", e.Job.ID),
					zap.String("type", e.Job.Type),
					zap.Int("attempt", e.Attempt),
					zap.Error(e.Error))
			case *core.JobFailed:
				log.Error("job failed",
					zap.String("job_id", e.Job.ID),
					zap.String("type", e.Job.Type),
					zap.Error(e.Error))
			}
		}
	}
}
