package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a transcription job. Transitions are
// monotonic: pending -> processing -> completed|failed, with processing
// optional. Terminal states admit no further transitions.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether the status is one of the four known states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true for completed and failed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Active reports whether the job counts against the organization's
// concurrent-job quota.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case JobStatusProcessing:
		return s == JobStatusPending
	case JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Job is one unit of external transcription work, tied 1:1 to the storage
// record it was created from.
type Job struct {
	JobID  uuid.UUID // UUIDv7
	FileID uuid.UUID // FK to storage_records
	OrgID  uuid.UUID // FK to organizations

	Status      JobStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AnalysisResult is the outcome of a completed job. At most one exists per
// job; the webhook path guarantees this under duplicate deliveries.
type AnalysisResult struct {
	ResultID uuid.UUID // UUIDv7
	JobID    uuid.UUID // FK to jobs, unique

	Transcript string
	Sentiment  string
	Metadata   map[string]any // free-form, stored as JSONB

	CreatedAt time.Time
}

// JobOutcome is what the external transcription worker reports back for a
// job, already validated by the webhook handler.
type JobOutcome struct {
	Status     JobStatus // completed or failed
	Transcript string
	Sentiment  string
	Metadata   map[string]any
	Error      string // populated for failed outcomes
}
