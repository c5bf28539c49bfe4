package jobx

import (
	"encoding/json"
	"time"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is a unit of work handed to the store.
type Job struct {
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	MaxAttempts int             `json:"max_attempts"`
	Backoff     Backoff         `json:"backoff"`

	// RequestID ties the job to the request that produced it. Jobs run
	// outside that request's call stack, so it travels in the envelope.
	RequestID string `json:"request_id,omitempty"`
}

// JobInfo is the full representation of a job stored in the backend.
type JobInfo struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Payload      json.RawMessage `json:"payload"`
	Status       JobStatus       `json:"status"`
	Error        string          `json:"error,omitempty"`
	AttemptsMade int             `json:"attempts_made"`
	MaxAttempts  int             `json:"max_attempts"`
	Backoff      Backoff         `json:"backoff"`
	RequestID    string          `json:"request_id,omitempty"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsFinalAttempt reports whether the attempt currently running is the last
// one the job is allowed. Handlers of user-facing jobs use it to decide when
// a failure must be surfaced instead of left to the retry machinery.
func (j *JobInfo) IsFinalAttempt() bool {
	return j.AttemptsMade+1 >= j.MaxAttempts
}

// NewJobInfo builds the stored representation of a freshly enqueued job.
func NewJobInfo(id string, job Job, now time.Time) *JobInfo {
	return &JobInfo{
		ID:          id,
		Queue:       job.Queue,
		Payload:     job.Payload,
		Status:      JobStatusWaiting,
		MaxAttempts: job.MaxAttempts,
		Backoff:     job.Backoff,
		RequestID:   job.RequestID,
		EnqueuedAt:  now,
		UpdatedAt:   now,
	}
}
