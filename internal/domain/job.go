// Package domain holds the core types of the job processing engine: the Job
// entity, its status lifecycle, and the handler contract workers execute
// against. It has no dependency on Postgres, Redis, or HTTP.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is a Job's position in its lifecycle. Transitions are described in
// the status transition table; no path returns to StatusPending except via
// an explicit retry command.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusRetrying  Status = "retrying"
)

// Terminal reports whether s is a terminal state reachable only by an
// explicit retry command thereafter.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Eligible reports whether a job in status s may be claimed.
func (s Status) Eligible() bool {
	return s == StatusPending || s == StatusRetrying
}

const (
	MinPriority = -1000
	MaxPriority = 1000

	DefaultMaxRetries = 5
	MaxNameLength     = 200
	MaxPayloadBytes   = 256 * 1024
	DefaultBulkCap    = 100
	MaxErrorLength    = 1000
)

// Job is the central entity of the engine. See SPEC_FULL.md for the full
// field-by-field contract.
type Job struct {
	ID          uuid.UUID
	Name        string
	JobType     string
	Priority    int
	Payload     json.RawMessage
	Status      Status
	Attempts    int
	MaxRetries  int
	ScheduledAt time.Time
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      json.RawMessage
	Error       *string
	OwnerID     string
}

// NewJob builds a pending job, mirroring the shape of the submission
// request validated at the HTTP boundary. maxRetries is the per-job
// terminal-failure threshold; callers source it from the submission
// request or fall back to the engine's configured default.
func NewJob(name, jobType string, payload json.RawMessage, priority int, ownerID string, maxRetries int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New(),
		Name:        name,
		JobType:     jobType,
		Priority:    priority,
		Payload:     payload,
		Status:      StatusPending,
		Attempts:    0,
		MaxRetries:  maxRetries,
		ScheduledAt: now,
		CreatedAt:   now,
		OwnerID:     ownerID,
	}
}

// Outcome is the result of one execution attempt, produced by the Executor
// and consumed by the Store's complete operation.
type Outcome struct {
	Success     bool
	Result      json.RawMessage
	Error       string
	Terminal    bool      // only meaningful when Success is false
	ScheduledAt time.Time // next eligibility time, only meaningful on retry
}

// Filter narrows a List query by status and/or job type. A zero value
// selects every job.
type Filter struct {
	Status  Status
	JobType string
}
