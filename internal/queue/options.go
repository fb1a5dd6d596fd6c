// Package queue provides job registration, enqueueing, and the queue event stream.
package queue

import (
	"time"

	"github.com/edupipe/edupipe/internal/core"
	"github.com/edupipe/edupipe/internal/security"
)

// Options holds configuration for job enqueueing.
type Options struct {
	Queue       string
	Priority    int
	MaxAttempts int
	Backoff     core.BackoffPolicy
	BackoffBase time.Duration
	Delay       time.Duration
	RunAt       *time.Time
	UniqueKey   string
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		Queue:       "default",
		Priority:    0,
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     core.BackoffExponential,
		BackoffBase: DefaultBackoffBase,
	}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// OnQueue sets the queue name.
func OnQueue(name string) Option {
	return optionFunc(func(o *Options) {
		o.Queue = name
	})
}

// Priority sets the job priority (higher = runs first).
func Priority(p int) Option {
	return optionFunc(func(o *Options) {
		o.Priority = p
	})
}

// MaxAttempts sets the total number of attempts before the job is parked
// as terminally failed. Values are clamped to [1, security.MaxAttempts].
func MaxAttempts(n int) Option {
	return optionFunc(func(o *Options) {
		o.MaxAttempts = security.ClampAttempts(n)
	})
}

// Backoff sets the retry backoff policy and its base delay.
func Backoff(policy core.BackoffPolicy, base time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.Backoff = policy
		if base > 0 {
			o.BackoffBase = base
		}
	})
}

// Delay schedules the job to run after a duration.
func Delay(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.Delay = d
	})
}

// At schedules the job to run at a specific time.
func At(t time.Time) Option {
	return optionFunc(func(o *Options) {
		o.RunAt = &t
	})
}

// Unique ensures only one pending or running job with this key exists.
func Unique(key string) Option {
	return optionFunc(func(o *Options) {
		o.UniqueKey = key
	})
}

// Default values.
var (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = time.Second
)
