package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edupipe/edupipe/internal/core"
	"github.com/edupipe/edupipe/internal/schedule"
	"github.com/edupipe/edupipe/internal/security"
)

// Queue is the registration and enqueue surface shared by producers and
// workers. It holds the handler registry, the recurring-schedule registry,
// lifecycle hooks and the event stream; durability lives in the storage
// backend.
type Queue struct {
	storage       core.Storage
	handlers      map[string]*Handler
	scheduledJobs map[string]*ScheduledJob
	mu            sync.RWMutex

	onStart    []func(context.Context, *core.Job)
	onComplete []func(context.Context, *core.Job)
	onFail     []func(context.Context, *core.Job, error)
	onRetry    []func(context.Context, *core.Job, int, error)

	eventSubs []chan core.Event
}

// ScheduledJob holds configuration for a recurring job. Name is the
// schedule key (at most one active schedule per logical recurring task);
// Type is the job type enqueued when the schedule fires.
type ScheduledJob struct {
	Name     string
	Type     string
	Schedule schedule.Schedule
	Args     any
	Options  *Options
}

func New(s core.Storage) *Queue {
	return &Queue{
		storage:  s,
		handlers: make(map[string]*Handler),
	}
}

// Register binds a job type name to a handler function of shape
// func(ctx context.Context, args T) error. Invalid names or signatures
// panic: registration happens at startup and a bad handler is a
// programming error, not a runtime condition.
func (q *Queue) Register(name string, fn any) {
	if err := security.ValidateJobTypeName(name); err != nil {
		panic(fmt.Sprintf("jobs: invalid handler name %q: %v", name, err))
	}
	h, err := NewHandler(fn)
	if err != nil {
		panic(fmt.Sprintf("jobs: handler for %q: %v", name, err))
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = h
}

// HasHandler reports whether a handler is registered for name.
func (q *Queue) HasHandler(name string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.handlers[name]
	return ok
}

// GetHandler returns the handler registered for name.
func (q *Queue) GetHandler(name string) (*Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[name]
	return h, ok
}

// Enqueue persists a job of the given registered type. It returns only
// after the row is durable, so a successful return survives a process
// crash. Enqueueing an unregistered type is rejected to catch wiring
// mistakes at the producer rather than at execution time.
func (q *Queue) Enqueue(ctx context.Context, name string, args any, opts ...Option) (string, error) {
	if !q.HasHandler(name) {
		return "", fmt.Errorf("jobs: no handler registered for %q", name)
	}

	options := NewOptions()
	for _, opt := range opts {
		opt.Apply(options)
	}
	if err := security.ValidateQueueName(options.Queue); err != nil {
		return "", err
	}

	argsBytes, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("jobs: failed to marshal args: %w", err)
	}
	if len(argsBytes) > security.MaxJobArgsSize {
		return "", core.ErrJobArgsTooLarge
	}

	job := &core.Job{
		ID:          uuid.New().String(),
		Type:        name,
		Args:        argsBytes,
		Queue:       options.Queue,
		Priority:    options.Priority,
		MaxAttempts: security.ClampAttempts(options.MaxAttempts),
		Backoff:     options.Backoff,
		BackoffBase: options.BackoffBase,
		Status:      core.StatusPending,
	}
	switch {
	case options.RunAt != nil:
		job.RunAt = options.RunAt
	case options.Delay > 0:
		runAt := time.Now().Add(options.Delay)
		job.RunAt = &runAt
	}

	if options.UniqueKey != "" {
		if err := security.ValidateUniqueKey(options.UniqueKey); err != nil {
			return "", err
		}
		if err := q.storage.EnqueueUnique(ctx, job, options.UniqueKey); err != nil {
			if errors.Is(err, core.ErrDuplicateJob) {
				return "", err
			}
			return "", fmt.Errorf("jobs: failed to enqueue: %w", err)
		}
		return job.ID, nil
	}

	if err := q.storage.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("jobs: failed to enqueue: %w", err)
	}
	return job.ID, nil
}

// Schedule registers a recurring job under the given schedule key.
// Registering the same key again replaces the previous schedule, so each
// logical recurring task has at most one active schedule.
func (q *Queue) Schedule(name, jobType string, sched schedule.Schedule, args any, opts ...Option) {
	options := NewOptions()
	for _, opt := range opts {
		opt.Apply(options)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.scheduledJobs == nil {
		q.scheduledJobs = make(map[string]*ScheduledJob)
	}
	q.scheduledJobs[name] = &ScheduledJob{
		Name:     name,
		Type:     jobType,
		Schedule: sched,
		Args:     args,
		Options:  options,
	}
}

// GetScheduledJobs exposes the schedule registry to the worker scheduler.
func (q *Queue) GetScheduledJobs() map[string]*ScheduledJob {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.scheduledJobs
}

// Storage returns the underlying storage.
func (q *Queue) Storage() core.Storage {
	return q.storage
}

// OnJobStart registers a hook invoked before each job execution.
func (q *Queue) OnJobStart(fn func(context.Context, *core.Job)) {
	q.mu.Lock()
	q.onStart = append(q.onStart, fn)
	q.mu.Unlock()
}

// OnJobComplete registers a hook invoked after a successful execution.
func (q *Queue) OnJobComplete(fn func(context.Context, *core.Job)) {
	q.mu.Lock()
	q.onComplete = append(q.onComplete, fn)
	q.mu.Unlock()
}

// OnJobFail registers a hook invoked on permanent failure.
func (q *Queue) OnJobFail(fn func(context.Context, *core.Job, error)) {
	q.mu.Lock()
	q.onFail = append(q.onFail, fn)
	q.mu.Unlock()
}

// OnRetry registers a hook invoked when a retry is scheduled.
func (q *Queue) OnRetry(fn func(context.Context, *core.Job, int, error)) {
	q.mu.Lock()
	q.onRetry = append(q.onRetry, fn)
	q.mu.Unlock()
}

// Events returns a buffered channel of lifecycle events. Callers must
// Unsubscribe when done; the channel is never closed by the queue.
func (q *Queue) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	q.mu.Lock()
	q.eventSubs = append(q.eventSubs, ch)
	q.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events. After it
// returns, no further events are sent on the channel.
func (q *Queue) Unsubscribe(ch <-chan core.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, sub := range q.eventSubs {
		if sub == ch {
			q.eventSubs = append(q.eventSubs[:i], q.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit delivers e to all subscribers with non-blocking sends. A full
// subscriber buffer drops the event rather than stalling the worker.
func (q *Queue) Emit(e core.Event) {
	q.mu.RLock()
	subs := make([]chan core.Event, len(q.eventSubs))
	copy(subs, q.eventSubs)
	q.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Hooks are copied under the read lock and invoked without it, so a hook
// may itself register hooks or enqueue jobs.

func (q *Queue) CallStartHooks(ctx context.Context, job *core.Job) {
	q.mu.RLock()
	hooks := slices.Clone(q.onStart)
	q.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, job)
	}
}

func (q *Queue) CallCompleteHooks(ctx context.Context, job *core.Job) {
	q.mu.RLock()
	hooks := slices.Clone(q.onComplete)
	q.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, job)
	}
}

func (q *Queue) CallFailHooks(ctx context.Context, job *core.Job, err error) {
	q.mu.RLock()
	hooks := slices.Clone(q.onFail)
	q.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, job, err)
	}
}

func (q *Queue) CallRetryHooks(ctx context.Context, job *core.Job, attempt int, err error) {
	q.mu.RLock()
	hooks := slices.Clone(q.onRetry)
	q.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, job, attempt, err)
	}
}
