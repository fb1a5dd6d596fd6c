// Package core provides the domain models and interfaces for the job system.
package core

import (
	"time"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// BackoffPolicy controls how retry delays grow between attempts.
type BackoffPolicy string

const (
	// BackoffFixed waits the base delay between every attempt.
	BackoffFixed BackoffPolicy = "fixed"

	// BackoffExponential doubles the base delay after each attempt.
	BackoffExponential BackoffPolicy = "exponential"
)

// Job represents a durable unit of work submitted to a named queue.
// The payload shape is tied to the Type tag: the handler registry maps
// each type to exactly one args struct, so Args always unmarshals into
// the type the registered handler declared.
type Job struct {
	ID          string        `gorm:"primaryKey;size:36"`
	Type        string        `gorm:"index;size:255;not null"`
	Args        []byte        `gorm:"type:bytes"`
	Queue       string        `gorm:"index;size:255;default:'default'"`
	Priority    int           `gorm:"index;default:0"`
	Status      JobStatus     `gorm:"index;size:20;default:'pending'"`
	Attempt     int           `gorm:"default:0"`
	MaxAttempts int           `gorm:"default:3"`
	Backoff     BackoffPolicy `gorm:"size:20;default:'exponential'"`
	BackoffBase time.Duration `gorm:"default:1000000000"` // stored as nanoseconds
	LastError   string        `gorm:"type:text"`
	RunAt       *time.Time    `gorm:"index"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
	LockedBy    string     `gorm:"size:255"`
	LockedUntil *time.Time `gorm:"index"`
	UniqueKey   string     `gorm:"index;size:255"` // caller-enforced dedup
}

// JobFilter selects jobs for admin listing.
type JobFilter struct {
	Status JobStatus
	Queue  string
	Type   string
	Limit  int
	Offset int
}

// QueueStats holds per-queue job counts grouped by status.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int64  `json:"pending"`
	Running   int64  `json:"running"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
}
