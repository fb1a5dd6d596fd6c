package core

import "time"

// Event is a job lifecycle notification delivered on the queue's event
// stream. Subscribers type-switch on the concrete types below.
type Event interface {
	eventMarker()
}

// JobStarted fires when a worker begins executing a job.
type JobStarted struct {
	Job       *Job
	Timestamp time.Time
}

// JobCompleted fires when a handler returns without error.
type JobCompleted struct {
	Job       *Job
	Duration  time.Duration
	Timestamp time.Time
}

// JobRetrying fires when an attempt fails but another is scheduled.
type JobRetrying struct {
	Job       *Job
	Attempt   int
	Error     error
	NextRunAt time.Time
	Timestamp time.Time
}

// JobFailed fires when a job exhausts its attempts or hits a
// non-retriable error.
type JobFailed struct {
	Job       *Job
	Error     error
	Timestamp time.Time
}

func (*JobStarted) eventMarker()   {}
func (*JobCompleted) eventMarker() {}
func (*JobRetrying) eventMarker()  {}
func (*JobFailed) eventMarker()    {}
