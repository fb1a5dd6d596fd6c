package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edupipe/edupipe/internal/core"
	"github.com/edupipe/edupipe/internal/queue"
)

// Worker consumes jobs from one or more named queues. Each queue gets its
// own poll loop and consumer pool, so one queue's concurrency never
// starves another's.
type Worker struct {
	queue  *queue.Queue
	config WorkerConfig
	logger *zap.Logger

	// drainCtx outlives the Start context by ShutdownGrace so in-flight
	// handlers and their bookkeeping can finish during shutdown.
	drainCtx    context.Context
	cancelDrain context.CancelFunc
}

// NewWorker creates a new worker for the given queue.
func NewWorker(q *queue.Queue, logger *zap.Logger, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		PollInterval:  250 * time.Millisecond,
		WorkerID:      uuid.New().String(),
		ShutdownGrace: 30 * time.Second,
	}

	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	if config.Queues == nil {
		config.Queues = map[string]int{"default": DefaultConcurrency}
	}
	if config.StorageRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.StorageRetry = &defaultCfg
	}
	if config.DequeueRetry == nil {
		// Longer backoff for dequeue to avoid hammering the DB during outages
		dequeueCfg := RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
			JitterFraction:    0.2,
		}
		config.DequeueRetry = &dequeueCfg
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		queue:  q,
		config: config,
		logger: logger,
	}
}

// Start begins processing jobs. It blocks until the context is cancelled,
// then lets in-flight jobs finish within ShutdownGrace before returning.
func (w *Worker) Start(ctx context.Context) error {
	w.drainCtx, w.cancelDrain = context.WithCancel(context.Background())
	defer w.cancelDrain()

	if w.config.EnableScheduler {
		go w.runScheduler(ctx)
	}
	if w.config.ReapInterval > 0 {
		go w.runReaper(ctx)
	}

	var wg sync.WaitGroup
	for name, concurrency := range w.config.Queues {
		wg.Add(1)
		go func(name string, concurrency int) {
			defer wg.Done()
			w.runQueue(ctx, name, concurrency)
		}(name, concurrency)
	}

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
	}

	// Grace period: force-cancel in-flight handlers if they outlive it.
	select {
	case <-drained:
	case <-time.After(w.config.ShutdownGrace):
		w.logger.Warn("shutdown grace elapsed, cancelling in-flight jobs",
			zap.Duration("grace", w.config.ShutdownGrace))
		w.cancelDrain()
		<-drained
	}
	return ctx.Err()
}

// runQueue polls one queue and feeds a pool of consumers sized to the
// queue's configured concurrency.
func (w *Worker) runQueue(ctx context.Context, name string, concurrency int) {
	jobsChan := make(chan *core.Job)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobsChan {
				w.processJob(w.drainCtx, job)
			}
		}()
	}

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(jobsChan)
			wg.Wait()
			return
		case <-ticker.C:
			job, err := w.dequeueWithRetry(ctx, name)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					w.logger.Error("failed to dequeue after retries",
						zap.String("queue", name), zap.Error(err))
				}
				continue
			}
			if job != nil {
				select {
				case jobsChan <- job:
				case <-ctx.Done():
				}
			}
		}
	}
}

// dequeueWithRetry attempts to dequeue a job with exponential backoff on failure.
func (w *Worker) dequeueWithRetry(ctx context.Context, queueName string) (*core.Job, error) {
	var job *core.Job
	err := retryWithBackoff(ctx, *w.config.DequeueRetry, func() error {
		var dequeueErr error
		job, dequeueErr = w.queue.Storage().Dequeue(ctx, []string{queueName}, w.config.WorkerID)
		return dequeueErr
	})
	return job, err
}

func (w *Worker) processJob(ctx context.Context, job *core.Job) {
	startTime := time.Now()

	h, ok := w.queue.GetHandler(job.Type)
	if !ok {
		w.logger.Error("no handler for job", zap.String("type", job.Type))
		w.failWithRetry(ctx, job.ID, fmt.Sprintf("no handler for %s", job.Type), nil)
		return
	}

	w.queue.CallStartHooks(ctx, job)
	w.queue.Emit(&core.JobStarted{Job: job, Timestamp: startTime})

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx, job)

	err := w.executeHandler(ctx, job, h)

	cancelHeartbeat()

	if err != nil {
		w.handleError(ctx, job, err)
		return
	}

	if completeErr := w.completeWithRetry(ctx, job.ID); completeErr != nil {
		w.logger.Error("failed to complete job after retries",
			zap.String("job_id", job.ID), zap.Error(completeErr))
		return
	}
	w.queue.CallCompleteHooks(ctx, job)
	w.queue.Emit(&core.JobCompleted{Job: job, Duration: time.Since(startTime), Timestamp: time.Now()})
}

// executeHandler runs the handler, converting panics into failed attempts
// so a misbehaving handler never corrupts queue bookkeeping.
func (w *Worker) executeHandler(ctx context.Context, job *core.Job, h *queue.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Execute(ctx, job.Args)
}

func (w *Worker) handleError(ctx context.Context, job *core.Job, err error) {
	var noRetry *core.NoRetryError
	if errors.As(err, &noRetry) {
		w.failWithRetry(ctx, job.ID, err.Error(), nil)
		w.queue.CallFailHooks(ctx, job, err)
		w.queue.Emit(&core.JobFailed{Job: job, Error: err, Timestamp: time.Now()})
		return
	}

	var retryAfter *core.RetryAfterError
	if errors.As(err, &retryAfter) && job.Attempt < job.MaxAttempts {
		retryAt := time.Now().Add(retryAfter.Delay)
		w.failWithRetry(ctx, job.ID, err.Error(), &retryAt)
		w.queue.CallRetryHooks(ctx, job, job.Attempt, err)
		w.queue.Emit(&core.JobRetrying{Job: job, Attempt: job.Attempt, Error: err, NextRunAt: retryAt, Timestamp: time.Now()})
		return
	}

	if job.Attempt < job.MaxAttempts {
		retryAt := time.Now().Add(backoffDelay(job))
		w.failWithRetry(ctx, job.ID, err.Error(), &retryAt)
		w.queue.CallRetryHooks(ctx, job, job.Attempt, err)
		w.queue.Emit(&core.JobRetrying{Job: job, Attempt: job.Attempt, Error: err, NextRunAt: retryAt, Timestamp: time.Now()})
		return
	}

	w.failWithRetry(ctx, job.ID, err.Error(), nil)
	w.queue.CallFailHooks(ctx, job, err)
	w.queue.Emit(&core.JobFailed{Job: job, Error: err, Timestamp: time.Now()})
}

// maxBackoff caps exponential retry delays.
const maxBackoff = 10 * time.Minute

// backoffDelay computes the delay before the next attempt from the job's
// backoff policy. Attempt has already been incremented by Dequeue, so
// attempt 1 gets the base delay.
func backoffDelay(job *core.Job) time.Duration {
	base := job.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	if job.Backoff == core.BackoffFixed {
		return base
	}
	delay := base * (1 << (job.Attempt - 1))
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	return delay
}

// completeWithRetry marks a job complete with retry on transient failures.
func (w *Worker) completeWithRetry(ctx context.Context, jobID string) error {
	return retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		return w.queue.Storage().Complete(ctx, jobID, w.config.WorkerID)
	})
}

// failWithRetry marks a job as failed with retry on transient storage failures.
func (w *Worker) failWithRetry(ctx context.Context, jobID string, errMsg string, retryAt *time.Time) {
	err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		return w.queue.Storage().Fail(ctx, jobID, w.config.WorkerID, errMsg, retryAt)
	})
	if err != nil {
		w.logger.Error("failed to mark job as failed after retries",
			zap.String("job_id", jobID), zap.Error(err))
	}
}

// runHeartbeat periodically extends the job lock during execution so
// long-running jobs are not reclaimed as stale.
func (w *Worker) runHeartbeat(ctx context.Context, job *core.Job) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
				return w.queue.Storage().Heartbeat(ctx, job.ID, w.config.WorkerID)
			})
			if err != nil {
				w.logger.Warn("heartbeat failed after retries",
					zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}
}

// runReaper periodically returns jobs with expired leases to pending.
func (w *Worker) runReaper(ctx context.Context) {
	ticker := time.NewTicker(w.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			released, err := w.queue.Storage().ReleaseStaleLocks(ctx, w.config.ReapInterval)
			if err != nil {
				w.logger.Error("failed to release stale locks", zap.Error(err))
				continue
			}
			if released > 0 {
				w.logger.Warn("released stale job locks", zap.Int64("count", released))
			}
		}
	}
}

// runScheduler fires recurring jobs when their schedule comes due. The
// enqueue uses a unique key per (name, tick) so overlapping worker
// processes do not double-fire the same tick.
func (w *Worker) runScheduler(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastRun := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scheduled := w.queue.GetScheduledJobs()
			if scheduled == nil {
				continue
			}

			now := time.Now()
			for name, sj := range scheduled {
				last, ok := lastRun[name]
				if !ok {
					last = now
					lastRun[name] = now
					continue
				}
				nextRun := sj.Schedule.Next(last)
				if now.Before(nextRun) {
					continue
				}
				tickKey := fmt.Sprintf("sched:%s:%d", name, nextRun.Unix())
				_, err := w.queue.Enqueue(ctx, sj.Type, sj.Args,
					queue.OnQueue(sj.Options.Queue),
					queue.Priority(sj.Options.Priority),
					queue.MaxAttempts(sj.Options.MaxAttempts),
					queue.Unique(tickKey),
				)
				switch {
				case errors.Is(err, core.ErrDuplicateJob):
					// Another worker process already fired this tick.
					lastRun[name] = now
				case err != nil:
					w.logger.Error("failed to enqueue scheduled job",
						zap.String("name", name), zap.Error(err))
				default:
					lastRun[name] = now
				}
			}
		}
	}
}
