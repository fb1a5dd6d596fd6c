package core

import (
	"context"
	"time"
)

// Starter is anything the process runs until its context is cancelled.
type Starter interface {
	Start(ctx context.Context) error
}

// Storage is the durable persistence layer behind the queue. Dequeue
// hands out a lease; Complete and Fail verify lease ownership and return
// ErrJobNotOwned when another worker holds the job.
type Storage interface {
	Migrate(ctx context.Context) error

	Enqueue(ctx context.Context, job *Job) error
	EnqueueUnique(ctx context.Context, job *Job, uniqueKey string) error
	Dequeue(ctx context.Context, queues []string, workerID string) (*Job, error)
	Complete(ctx context.Context, jobID string, workerID string) error
	Fail(ctx context.Context, jobID string, workerID string, errMsg string, retryAt *time.Time) error

	Heartbeat(ctx context.Context, jobID string, workerID string) error
	ReleaseStaleLocks(ctx context.Context, staleDuration time.Duration) (int64, error)

	GetJob(ctx context.Context, jobID string) (*Job, error)
	GetJobsByStatus(ctx context.Context, status JobStatus, limit int) ([]*Job, error)

	// Inspection API.
	SearchJobs(ctx context.Context, filter JobFilter) ([]*Job, int64, error)
	GetQueueStats(ctx context.Context) ([]*QueueStats, error)
	RetryJob(ctx context.Context, jobID string) (*Job, error)

	// Retention maintenance. Failed jobs are kept for inspection.
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
