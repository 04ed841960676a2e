package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/audiolens/scribed/internal/models"
	"github.com/audiolens/scribed/internal/store"
)

// JobStore implements store.JobStore using PostgreSQL. Admission control and
// terminal transitions both run inside explicit transactions: admission locks
// the organization row, terminal writes lock the job row, so concurrent
// callers serialize on exactly the row they contend for.
type JobStore struct {
	pool *pgxpool.Pool
}

var _ store.JobStore = (*JobStore)(nil)

// NewJobStore creates a new PostgreSQL-backed job store.
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{
		pool: pool,
	}
}

// Create inserts a job in pending state, gated on the organization's
// concurrent-job ceiling. The organization row is locked for the duration of
// the transaction so the count-then-insert cannot race another admission.
func (s *JobStore) Create(ctx context.Context, job *models.Job) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapPostgresError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	var maxJobs *int
	var archived bool
	err = tx.QueryRow(ctx, `
		SELECT max_concurrent_jobs, archived_at IS NOT NULL
		FROM organizations
		WHERE org_id = $1
		FOR UPDATE
	`, job.OrgID).Scan(&maxJobs, &archived)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrOrganizationNotFound
		}
		return mapPostgresError(err)
	}
	if archived {
		return store.ErrOrganizationArchived
	}

	limit := (&models.Organization{MaxConcurrentJobs: maxJobs}).EffectiveMaxConcurrentJobs()

	var active int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE org_id = $1
		  AND status IN ('pending', 'processing')
	`, job.OrgID).Scan(&active)
	if err != nil {
		return mapPostgresError(err)
	}

	if active >= limit {
		return store.ErrJobQuotaExceeded
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO jobs (
			job_id, file_id, org_id, status, started_at, completed_at, error,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`,
		job.JobID,
		job.FileID,
		job.OrgID,
		job.Status,
		job.StartedAt,
		job.CompletedAt,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPostgresError(err)
	}

	log.Info().
		Str("job_id", job.JobID.String()).
		Str("file_id", job.FileID.String()).
		Str("org_id", job.OrgID.String()).
		Msg("Created job")

	return nil
}

// Get retrieves a job. When orgID is set, jobs belonging to another
// organization are reported as not found.
func (s *JobStore) Get(ctx context.Context, jobID uuid.UUID, orgID *uuid.UUID) (*models.Job, error) {
	query := `
		SELECT job_id, file_id, org_id, status, started_at, completed_at, error,
		       created_at, updated_at
		FROM jobs
		WHERE job_id = $1
		  AND ($2::UUID IS NULL OR org_id = $2)
	`

	var job models.Job
	err := s.pool.QueryRow(ctx, query, jobID, orgID).Scan(
		&job.JobID,
		&job.FileID,
		&job.OrgID,
		&job.Status,
		&job.StartedAt,
		&job.CompletedAt,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, mapPostgresError(err)
	}

	return &job, nil
}

// ApplyOutcome writes a terminal transition for the job. Concurrent
// deliveries serialize on the job row; only the first performs the write and
// later ones observe the terminal state and return applied=false.
func (s *JobStore) ApplyOutcome(ctx context.Context, jobID uuid.UUID, outcome *models.JobOutcome) (bool, error) {
	if !outcome.Status.IsTerminal() {
		return false, fmt.Errorf("outcome status %q is not terminal", outcome.Status)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, mapPostgresError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	var current models.JobStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM jobs
		WHERE job_id = $1
		FOR UPDATE
	`, jobID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, store.ErrJobNotFound
		}
		return false, mapPostgresError(err)
	}

	if current.IsTerminal() {
		// Idempotent retry: no state change, no second result row.
		log.Debug().
			Str("job_id", jobID.String()).
			Str("status", string(current)).
			Msg("Job already terminal, outcome ignored")
		return false, nil
	}

	now := time.Now()

	var jobErr *string
	if outcome.Status == models.JobStatusFailed {
		jobErr = &outcome.Error
	}

	_, err = tx.Exec(ctx, `
		UPDATE jobs SET
			status = $2,
			completed_at = $3,
			error = $4,
			updated_at = $3
		WHERE job_id = $1
	`, jobID, outcome.Status, now, jobErr)
	if err != nil {
		return false, mapPostgresError(err)
	}

	if outcome.Status == models.JobStatusCompleted {
		var metadataJSON []byte
		if outcome.Metadata != nil {
			metadataJSON, err = json.Marshal(outcome.Metadata)
			if err != nil {
				return false, fmt.Errorf("failed to marshal result metadata: %w", err)
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO analysis_results (
				result_id, job_id, transcript, sentiment, metadata, created_at
			) VALUES (
				$1, $2, $3, $4, $5, $6
			)
		`,
			uuid.Must(uuid.NewV7()),
			jobID,
			outcome.Transcript,
			outcome.Sentiment,
			metadataJSON,
			now,
		)
		if err != nil {
			return false, mapPostgresError(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, mapPostgresError(err)
	}

	log.Info().
		Str("job_id", jobID.String()).
		Str("status", string(outcome.Status)).
		Msg("Applied job outcome")

	return true, nil
}

// MarkProcessing moves a pending job to processing. Jobs already processing
// or terminal are left untouched.
func (s *JobStore) MarkProcessing(ctx context.Context, jobID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			status = 'processing',
			started_at = NOW(),
			updated_at = NOW()
		WHERE job_id = $1
		  AND status = 'pending'
	`, jobID)
	if err != nil {
		return mapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		// Absent jobs are an error; non-pending jobs are a no-op.
		if _, err := s.Get(ctx, jobID, nil); err != nil {
			return err
		}
		return nil
	}

	log.Debug().
		Str("job_id", jobID.String()).
		Msg("Job marked processing")

	return nil
}

// GetResult retrieves the analysis result for a job, scoped to the job's
// organization when orgID is set.
func (s *JobStore) GetResult(ctx context.Context, jobID uuid.UUID, orgID *uuid.UUID) (*models.AnalysisResult, error) {
	query := `
		SELECT r.result_id, r.job_id, r.transcript, r.sentiment, r.metadata, r.created_at
		FROM analysis_results r
		JOIN jobs j ON j.job_id = r.job_id
		WHERE r.job_id = $1
		  AND ($2::UUID IS NULL OR j.org_id = $2)
	`

	var result models.AnalysisResult
	var metadataJSON []byte
	err := s.pool.QueryRow(ctx, query, jobID, orgID).Scan(
		&result.ResultID,
		&result.JobID,
		&result.Transcript,
		&result.Sentiment,
		&metadataJSON,
		&result.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrResultNotFound
		}
		return nil, mapPostgresError(err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &result.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result metadata: %w", err)
		}
	}

	return &result, nil
}

// CountActive returns the number of pending/processing jobs for the
// organization.
func (s *JobStore) CountActive(ctx context.Context, orgID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE org_id = $1
		  AND status IN ('pending', 'processing')
	`, orgID).Scan(&count)
	if err != nil {
		return 0, mapPostgresError(err)
	}
	return count, nil
}
