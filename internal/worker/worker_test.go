package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupipe/edupipe/internal/core"
	"github.com/edupipe/edupipe/internal/security"
)

func TestWorkerQueue_SetsConcurrency(t *testing.T) {
	config := WorkerConfig{}
	WorkerQueue("transcoding", 6).ApplyWorker(&config)
	WorkerQueue("digests", 0).ApplyWorker(&config)
	WorkerQueue("bulk", 10000).ApplyWorker(&config)

	assert.Equal(t, 6, config.Queues["transcoding"])
	assert.Equal(t, DefaultConcurrency, config.Queues["digests"])
	assert.Equal(t, security.MaxConcurrency, config.Queues["bulk"])
}

func TestWithScheduler(t *testing.T) {
	config := WorkerConfig{}
	WithScheduler(true).ApplyWorker(&config)
	assert.True(t, config.EnableScheduler)
}

func TestShutdownGrace(t *testing.T) {
	config := WorkerConfig{}
	ShutdownGrace(5 * time.Second).ApplyWorker(&config)
	assert.Equal(t, 5*time.Second, config.ShutdownGrace)
}

func TestBackoffDelay_Fixed(t *testing.T) {
	job := &core.Job{Backoff: core.BackoffFixed, BackoffBase: 3 * time.Second, Attempt: 4}
	assert.Equal(t, 3*time.Second, backoffDelay(job))
}

func TestBackoffDelay_Exponential(t *testing.T) {
	job := &core.Job{Backoff: core.BackoffExponential, BackoffBase: time.Second}

	job.Attempt = 1
	assert.Equal(t, time.Second, backoffDelay(job))
	job.Attempt = 2
	assert.Equal(t, 2*time.Second, backoffDelay(job))
	job.Attempt = 4
	assert.Equal(t, 8*time.Second, backoffDelay(job))
}

func TestBackoffDelay_CappedAtMax(t *testing.T) {
	job := &core.Job{Backoff: core.BackoffExponential, BackoffBase: time.Minute, Attempt: 30}
	assert.Equal(t, maxBackoff, backoffDelay(job))
}

func TestBackoffDelay_ZeroBaseDefaults(t *testing.T) {
	job := &core.Job{Backoff: core.BackoffFixed, Attempt: 1}
	assert.Equal(t, time.Second, backoffDelay(job))
}

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	calls := 0
	err := retryWithBackoff(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_ExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	wantErr := errors.New("persistent")
	calls := 0
	err := retryWithBackoff(context.Background(), cfg, func() error {
		calls++
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_StopsOnContextCancel(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       10,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := retryWithBackoff(ctx, cfg, func() error {
		calls++
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls, 10)
}

func TestRetryWithBackoff_DoesNotRetryContextErrors(t *testing.T) {
	cfg := DefaultRetryConfig()

	calls := 0
	err := retryWithBackoff(context.Background(), cfg, func() error {
		calls++
		return context.DeadlineExceeded
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}
