package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig governs retries of storage bookkeeping calls (dequeue,
// complete, fail). It is unrelated to the job retry policy: a handler
// that already ran must not rerun just because recording the result hit
// a transient database error.
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// JitterFraction randomizes each sleep by +/- this fraction.
	JitterFraction float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// retryWithBackoff runs operation until it succeeds, the attempts are
// exhausted, or ctx is done. Context errors from the operation itself are
// returned immediately rather than retried.
func retryWithBackoff(ctx context.Context, config RetryConfig, operation func() error) error {
	delay := config.InitialBackoff

	var err error
	for attempt := 1; ; attempt++ {
		if err = operation(); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt >= config.MaxAttempts {
			return err
		}

		sleep := delay + time.Duration(float64(delay)*config.JitterFraction*(rand.Float64()*2-1))
		if sleep < 0 {
			sleep = delay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * config.BackoffMultiplier)
		if delay > config.MaxBackoff {
			delay = config.MaxBackoff
		}
	}
}
