// Package breaker provides a process-local circuit breaker for calls to
// external providers. State is an explicit enum updated synchronously on
// each call outcome; it is never persisted and resets on process restart.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the circuit state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when the circuit is open and the call is rejected
// without touching the underlying provider.
var ErrOpen = errors.New("breaker: circuit open")

// Settings configures a Breaker.
type Settings struct {
	// Timeout bounds each wrapped call; exceeding it counts as a failure.
	Timeout time.Duration

	// ErrorThresholdPercentage is the failure percentage at which the
	// circuit opens, once VolumeThreshold calls have been observed.
	ErrorThresholdPercentage int

	// VolumeThreshold is the minimum number of calls in the current
	// window before the circuit can trip.
	VolumeThreshold int

	// ResetTimeout is how long the circuit stays open before allowing a
	// half-open trial call.
	ResetTimeout time.Duration

	// WindowInterval is how long the rolling request/failure counts
	// accumulate before resetting.
	WindowInterval time.Duration

	// OnStateChange is called synchronously on every transition. It is
	// advisory only and must be cheap; it never blocks the call path on
	// anything slow.
	OnStateChange func(name string, from, to State)
}

func (s *Settings) withDefaults() {
	if s.Timeout <= 0 {
		s.Timeout = 12 * time.Second
	}
	if s.ErrorThresholdPercentage <= 0 {
		s.ErrorThresholdPercentage = 50
	}
	if s.VolumeThreshold <= 0 {
		s.VolumeThreshold = 5
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = 30 * time.Second
	}
	if s.WindowInterval <= 0 {
		s.WindowInterval = time.Minute
	}
}

// Counts is a snapshot of the current window.
type Counts struct {
	Requests int
	Failures int
}

// Breaker wraps calls to one external provider. It never retries: retry
// responsibility belongs to the queue layer, which works on whole jobs.
type Breaker struct {
	name     string
	settings Settings

	mu          sync.Mutex
	state       State
	requests    int
	failures    int
	windowStart time.Time
	openedAt    time.Time
	trialActive bool
}

// New creates a Breaker with the given settings.
func New(name string, settings Settings) *Breaker {
	settings.withDefaults()
	return &Breaker{
		name:        name,
		settings:    settings,
		state:       Closed,
		windowStart: time.Now(),
	}
}

// Name returns the breaker's name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current circuit state, applying the open → half-open
// timeout transition if it is due.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.openedAt) >= b.settings.ResetTimeout {
		return HalfOpen
	}
	return b.state
}

// Counts returns a snapshot of the current window.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{Requests: b.requests, Failures: b.failures}
}

// Do executes fn under the circuit. In Open state it returns ErrOpen
// immediately. In HalfOpen exactly one trial call is allowed through;
// its outcome decides the next state. The call is bounded by the
// configured timeout, and a timeout counts as a failure.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.settings.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-callCtx.Done():
		err = callCtx.Err()
	}

	b.afterCall(err)
	return err
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.settings.ResetTimeout {
			return ErrOpen
		}
		b.transition(HalfOpen)
		b.trialActive = true
		return nil
	case HalfOpen:
		if b.trialActive {
			return ErrOpen
		}
		b.trialActive = true
		return nil
	default:
		if time.Since(b.windowStart) >= b.settings.WindowInterval {
			b.requests = 0
			b.failures = 0
			b.windowStart = time.Now()
		}
		return nil
	}
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.trialActive = false
		if err != nil {
			b.openedAt = time.Now()
			b.transition(Open)
			return
		}
		b.requests = 0
		b.failures = 0
		b.windowStart = time.Now()
		b.transition(Closed)
		return
	}

	b.requests++
	if err != nil {
		b.failures++
	}
	if b.requests >= b.settings.VolumeThreshold &&
		b.failures*100/b.requests >= b.settings.ErrorThresholdPercentage {
		b.openedAt = time.Now()
		b.transition(Open)
	}
}

// transition changes state and notifies. Callers hold b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
