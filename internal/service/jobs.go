package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/audiolens/scribed/internal/metrics"
	"github.com/audiolens/scribed/internal/models"
	"github.com/audiolens/scribed/internal/store"
)

// missingFieldsError is recorded on a job whose completed callback arrived
// without the required payload. The job still reaches a terminal state so an
// operator inspecting it later can see why it failed.
const missingFieldsError = "Missing transcript or sentiment in completed webhook payload"

// JobLifecycle is the only writer of job state. It owns creation (admission
// gated by the store transaction), terminal transitions driven by webhook
// outcomes, and result reads.
type JobLifecycle struct {
	jobs    store.JobStore
	records store.StorageStore
	logger  zerolog.Logger
}

// NewJobLifecycle creates a job lifecycle manager.
func NewJobLifecycle(jobs store.JobStore, records store.StorageStore, logger zerolog.Logger) *JobLifecycle {
	return &JobLifecycle{
		jobs:    jobs,
		records: records,
		logger:  logger.With().Str("component", "jobs").Logger(),
	}
}

// CreateJob admits and creates a pending job for an uploaded file. The file
// must exist and belong to the organization; the concurrent-job admission
// check and the insert are one atomic unit inside the store.
func (l *JobLifecycle) CreateJob(ctx context.Context, fileID, orgID uuid.UUID) (*models.Job, error) {
	scope := orgID
	if _, err := l.records.Get(ctx, fileID, &scope); err != nil {
		metrics.JobsRejected.WithLabelValues("not_found").Inc()
		return nil, err
	}

	now := time.Now()
	job := &models.Job{
		JobID:     uuid.Must(uuid.NewV7()),
		FileID:    fileID,
		OrgID:     orgID,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := l.jobs.Create(ctx, job); err != nil {
		switch {
		case errors.Is(err, store.ErrJobQuotaExceeded):
			metrics.JobsRejected.WithLabelValues("quota").Inc()
		case errors.Is(err, store.ErrOrganizationArchived):
			metrics.JobsRejected.WithLabelValues("archived").Inc()
		default:
			metrics.JobsRejected.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}

	metrics.JobsCreated.Inc()

	return job, nil
}

// MarkProcessing records that the external worker picked the job up.
// Optional: workers may never report it.
func (l *JobLifecycle) MarkProcessing(ctx context.Context, jobID uuid.UUID) error {
	return l.jobs.MarkProcessing(ctx, jobID)
}

// ApplyWebhookOutcome drives a job to a terminal state from an external
// callback. Terminal jobs absorb duplicate deliveries as no-op successes. A
// completed outcome missing its transcript or sentiment marks the job failed
// (recording why) and reports a validation error; the workflow must reach a
// terminal state even when the callback itself is malformed.
func (l *JobLifecycle) ApplyWebhookOutcome(ctx context.Context, jobID uuid.UUID, outcome *models.JobOutcome) (bool, error) {
	if !outcome.Status.IsTerminal() {
		return false, fmt.Errorf("%w: status must be completed or failed, got %q", ErrValidation, outcome.Status)
	}

	if outcome.Status == models.JobStatusCompleted && (outcome.Transcript == "" || outcome.Sentiment == "") {
		failed := &models.JobOutcome{
			Status: models.JobStatusFailed,
			Error:  missingFieldsError,
		}
		if _, err := l.applyOutcome(ctx, jobID, failed); err != nil {
			return false, err
		}
		return false, fmt.Errorf("%w: %s", ErrValidation, missingFieldsError)
	}

	if outcome.Status == models.JobStatusFailed && outcome.Error == "" {
		outcome.Error = "unspecified worker failure"
	}

	return l.applyOutcome(ctx, jobID, outcome)
}

// applyOutcome persists the terminal transition, retrying once on a
// persistence failure before surfacing it. A job must never be left stuck
// without an operator-visible error.
func (l *JobLifecycle) applyOutcome(ctx context.Context, jobID uuid.UUID, outcome *models.JobOutcome) (bool, error) {
	operation := func() (bool, error) {
		applied, err := l.jobs.ApplyOutcome(ctx, jobID, outcome)
		if err != nil {
			if errors.Is(err, store.ErrJobNotFound) {
				return false, backoff.Permanent(err)
			}
			return false, err
		}
		return applied, nil
	}

	applied, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(100*time.Millisecond)),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return false, err
		}
		l.logger.Error().
			Err(err).
			Str("job_id", jobID.String()).
			Str("status", string(outcome.Status)).
			Msg("Terminal transition failed after retry")
		return false, fmt.Errorf("%w: terminal transition for job %s: %v", ErrPersistence, jobID, err)
	}

	if applied {
		metrics.JobTransitions.WithLabelValues(string(outcome.Status)).Inc()
	} else {
		l.logger.Debug().
			Str("job_id", jobID.String()).
			Str("status", string(outcome.Status)).
			Msg("Duplicate outcome for terminal job ignored")
	}

	return applied, nil
}

// GetJobStatus returns the job, scoped to orgID unless the caller is
// privileged (orgID nil). Out-of-tenant jobs are indistinguishable from
// nonexistent ones.
func (l *JobLifecycle) GetJobStatus(ctx context.Context, jobID uuid.UUID, orgID *uuid.UUID) (*models.Job, error) {
	return l.jobs.Get(ctx, jobID, orgID)
}

// GetJobResult returns the analysis result for a completed job, with the
// same tenant scoping as GetJobStatus.
func (l *JobLifecycle) GetJobResult(ctx context.Context, jobID uuid.UUID, orgID *uuid.UUID) (*models.AnalysisResult, error) {
	return l.jobs.GetResult(ctx, jobID, orgID)
}
