// Package worker provides the job processor: per-queue consumer pools,
// retry handling, the recurring-job scheduler, and the stale-lock reaper.
package worker

import (
	"time"

	"github.com/edupipe/edupipe/internal/security"
)

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	Queues          map[string]int // queue name -> concurrency
	PollInterval    time.Duration
	WorkerID        string
	EnableScheduler bool
	ReapInterval    time.Duration // 0 disables the stale-lock reaper
	ShutdownGrace   time.Duration // how long in-flight jobs get to finish

	StorageRetry *RetryConfig
	DequeueRetry *RetryConfig
}

// DefaultConcurrency is the per-queue concurrency when none is given.
const DefaultConcurrency = 4

// WorkerQueue adds a queue to process at the given concurrency.
// Concurrency is clamped to [1, security.MaxConcurrency]; zero or
// negative means DefaultConcurrency.
func WorkerQueue(name string, concurrency int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if c.Queues == nil {
			c.Queues = make(map[string]int)
		}
		if concurrency <= 0 {
			concurrency = DefaultConcurrency
		}
		c.Queues[name] = security.ClampConcurrency(concurrency)
	})
}

// WithScheduler enables the recurring-job scheduler in this worker.
func WithScheduler(enabled bool) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.EnableScheduler = enabled
	})
}

// WithReaper enables the stale-lock reaper at the given interval.
func WithReaper(interval time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.ReapInterval = interval
	})
}

// ShutdownGrace sets how long in-flight jobs may keep running after the
// worker context is cancelled before they are force-cancelled.
func ShutdownGrace(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.ShutdownGrace = d
	})
}

// PollInterval sets how often each queue loop polls for due jobs.
func PollInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.PollInterval = d
	})
}
