package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Metadata validation.
	ErrInvalidJobTypeName = errors.New("jobs: invalid job type name (must be alphanumeric, start with letter)")
	ErrJobTypeNameTooLong = errors.New("jobs: job type name too long")
	ErrInvalidQueueName   = errors.New("jobs: invalid queue name")
	ErrQueueNameTooLong   = errors.New("jobs: queue name too long")
	ErrJobArgsTooLarge    = errors.New("jobs: job arguments exceed size limit")
	ErrUniqueKeyTooLong   = errors.New("jobs: unique key exceeds maximum length")

	// Storage outcomes.
	ErrJobNotOwned     = errors.New("jobs: job not owned by this worker")
	ErrDuplicateJob    = errors.New("jobs: duplicate job with same unique key")
	ErrJobNotFound     = errors.New("jobs: job not found")
	ErrJobNotRetriable = errors.New("jobs: job is not in a failed state")
)

// NoRetryError marks a handler failure as permanent. The queue parks the
// job as failed without consuming further attempts.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string { return fmt.Sprintf("no retry: %v", e.Err) }

func (e *NoRetryError) Unwrap() error { return e.Err }

// NoRetry wraps err so the queue skips remaining attempts.
func NoRetry(err error) error { return &NoRetryError{Err: err} }

// RetryAfterError asks the queue to retry after an explicit delay instead
// of the configured backoff, e.g. when a provider returns Retry-After.
type RetryAfterError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %v: %v", e.Delay, e.Err)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// RetryAfter wraps err with an explicit retry delay.
func RetryAfter(d time.Duration, err error) error {
	return &RetryAfterError{Err: err, Delay: d}
}
