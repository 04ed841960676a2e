package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/audiolens/scribed/internal/models"
)

// Sentinel errors for common error conditions. Callers dispatch with
// errors.Is; the admission and not-found sentinels are part of the public
// contract of the service layer.
var (
	ErrOrganizationNotFound  = errors.New("organization not found")
	ErrOrganizationArchived  = errors.New("organization is archived")
	ErrUserNotFound          = errors.New("user not found")
	ErrStorageRecordNotFound = errors.New("storage record not found")
	ErrJobNotFound           = errors.New("job not found")
	ErrResultNotFound        = errors.New("analysis result not found")
	ErrEmailTaken            = errors.New("email already in use")
	ErrUserQuotaExceeded     = errors.New("organization user limit reached")
	ErrJobQuotaExceeded      = errors.New("organization concurrent job limit reached")
	ErrDuplicateResult       = errors.New("job already has an analysis result")
)

// OrganizationStore persists tenants.
type OrganizationStore interface {
	Create(ctx context.Context, org *models.Organization) error
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)
	Update(ctx context.Context, org *models.Organization) error

	// Archive soft-deletes the organization, starting the retention clock.
	Archive(ctx context.Context, orgID uuid.UUID, at time.Time) error

	// ListExpired returns organizations archived at or before cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]*models.Organization, error)

	// Purge permanently deletes the organization and everything it owns
	// (analysis results, jobs, storage records, users) in dependency order
	// inside a single transaction, and returns per-table deletion counts.
	Purge(ctx context.Context, orgID uuid.UUID) (PurgeCounts, error)
}

// PurgeCounts reports how many rows a Purge removed from each table.
type PurgeCounts struct {
	Results        int64
	Jobs           int64
	StorageRecords int64
	Users          int64
}

// Total returns the number of deleted rows across all tables, including the
// organization row itself.
func (c PurgeCounts) Total() int64 {
	return c.Results + c.Jobs + c.StorageRecords + c.Users + 1
}

// UserStore persists organization members. Create is admission-gated: the
// check against the organization's user ceiling, the insert, and the
// total_member_count increment happen in one atomic unit so concurrent
// creations cannot oversubscribe the quota.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID) (*models.User, error)
	Delete(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID) error
	CountByOrganization(ctx context.Context, orgID uuid.UUID) (int, error)
}

// StorageStore persists upload metadata rows. It holds no blob-store logic;
// the service layer sequences blob writes against these rows.
type StorageStore interface {
	Create(ctx context.Context, rec *models.StorageRecord) error
	Get(ctx context.Context, fileID uuid.UUID, orgID *uuid.UUID) (*models.StorageRecord, error)

	// Update persists filename/mimetype changes only; all other fields of a
	// storage record are immutable.
	Update(ctx context.Context, rec *models.StorageRecord) error
	Delete(ctx context.Context, fileID uuid.UUID, orgID *uuid.UUID) error
}

// JobStore persists jobs and their analysis results.
type JobStore interface {
	// Create inserts a job in pending state. The admission check against
	// the organization's concurrent-job ceiling and the insert form one
	// atomic unit: the organization row is locked, active jobs are counted,
	// and ErrJobQuotaExceeded is returned when no slot remains.
	Create(ctx context.Context, job *models.Job) error

	Get(ctx context.Context, jobID uuid.UUID, orgID *uuid.UUID) (*models.Job, error)

	// ApplyOutcome writes a terminal transition. Deliveries for the same
	// job serialize on the job row; if the job is already terminal the call
	// is an idempotent no-op and returns applied=false with no error. A
	// completed outcome writes the status change and the analysis result
	// row in the same transaction.
	ApplyOutcome(ctx context.Context, jobID uuid.UUID, outcome *models.JobOutcome) (applied bool, err error)

	// MarkProcessing moves a pending job to processing. A no-op for jobs
	// already processing or terminal.
	MarkProcessing(ctx context.Context, jobID uuid.UUID) error

	GetResult(ctx context.Context, jobID uuid.UUID, orgID *uuid.UUID) (*models.AnalysisResult, error)

	// CountActive returns the number of pending/processing jobs for the
	// organization. Read-only; used for quota pre-checks and reporting.
	CountActive(ctx context.Context, orgID uuid.UUID) (int, error)
}
