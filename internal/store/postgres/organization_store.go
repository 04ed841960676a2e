package postgres

import (
	"context"
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

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

var _ store.OrganizationStore = (*OrganizationStore)(nil)

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
// It shares the connection pool with the other stores.
func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{
		pool: pool,
	}
}

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (
			org_id, name, email, contact, max_users, max_concurrent_jobs,
			total_member_count, archived_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := s.pool.Exec(ctx, query,
		org.OrgID,
		org.Name,
		org.Email,
		org.Contact,
		org.MaxUsers,
		org.MaxConcurrentJobs,
		org.TotalMemberCount,
		org.ArchivedAt,
		org.CreatedAt,
		org.UpdatedAt,
	)

	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("name", org.Name).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	query := `
		SELECT org_id, name, email, contact, max_users, max_concurrent_jobs,
		       total_member_count, archived_at, created_at, updated_at
		FROM organizations
		WHERE org_id = $1
	`

	var org models.Organization
	err := s.pool.QueryRow(ctx, query, orgID).Scan(
		&org.OrgID,
		&org.Name,
		&org.Email,
		&org.Contact,
		&org.MaxUsers,
		&org.MaxConcurrentJobs,
		&org.TotalMemberCount,
		&org.ArchivedAt,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, mapPostgresError(err)
	}

	return &org, nil
}

// Update updates the mutable fields of an organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	org.UpdatedAt = time.Now()

	query := `
		UPDATE organizations SET
			name = $2,
			email = $3,
			contact = $4,
			max_users = $5,
			max_concurrent_jobs = $6,
			updated_at = $7
		WHERE org_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		org.OrgID,
		org.Name,
		org.Email,
		org.Contact,
		org.MaxUsers,
		org.MaxConcurrentJobs,
		org.UpdatedAt,
	)

	if err != nil {
		return mapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Msg("Updated organization")

	return nil
}

// Archive soft-deletes an organization, starting the retention clock. A
// no-op on an already-archived organization keeps the original archive time.
func (s *OrganizationStore) Archive(ctx context.Context, orgID uuid.UUID, at time.Time) error {
	query := `
		UPDATE organizations SET
			archived_at = $2,
			updated_at = $2
		WHERE org_id = $1
		  AND archived_at IS NULL
	`

	result, err := s.pool.Exec(ctx, query, orgID, at)
	if err != nil {
		return mapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		// Either absent or already archived; distinguish for the caller.
		if _, err := s.Get(ctx, orgID); err != nil {
			return err
		}
		return nil
	}

	log.Info().
		Str("org_id", orgID.String()).
		Time("archived_at", at).
		Msg("Archived organization")

	return nil
}

// ListExpired returns organizations archived at or before cutoff.
func (s *OrganizationStore) ListExpired(ctx context.Context, cutoff time.Time) ([]*models.Organization, error) {
	query := `
		SELECT org_id, name, email, contact, max_users, max_concurrent_jobs,
		       total_member_count, archived_at, created_at, updated_at
		FROM organizations
		WHERE archived_at IS NOT NULL
		  AND archived_at <= $1
		ORDER BY archived_at ASC
	`

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		var org models.Organization
		err := rows.Scan(
			&org.OrgID,
			&org.Name,
			&org.Email,
			&org.Contact,
			&org.MaxUsers,
			&org.MaxConcurrentJobs,
			&org.TotalMemberCount,
			&org.ArchivedAt,
			&org.CreatedAt,
			&org.UpdatedAt,
		)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		orgs = append(orgs, &org)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return orgs, nil
}

// Purge permanently deletes an organization and everything it owns inside a
// single transaction, children before parents to satisfy the FK constraints.
func (s *OrganizationStore) Purge(ctx context.Context, orgID uuid.UUID) (store.PurgeCounts, error) {
	var counts store.PurgeCounts

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return counts, mapPostgresError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	result, err := tx.Exec(ctx, `
		DELETE FROM analysis_results
		WHERE job_id IN (SELECT job_id FROM jobs WHERE org_id = $1)
	`, orgID)
	if err != nil {
		return counts, fmt.Errorf("failed to delete analysis results: %w", mapPostgresError(err))
	}
	counts.Results = result.RowsAffected()

	result, err = tx.Exec(ctx, `DELETE FROM jobs WHERE org_id = $1`, orgID)
	if err != nil {
		return counts, fmt.Errorf("failed to delete jobs: %w", mapPostgresError(err))
	}
	counts.Jobs = result.RowsAffected()

	result, err = tx.Exec(ctx, `DELETE FROM storage_records WHERE org_id = $1`, orgID)
	if err != nil {
		return counts, fmt.Errorf("failed to delete storage records: %w", mapPostgresError(err))
	}
	counts.StorageRecords = result.RowsAffected()

	result, err = tx.Exec(ctx, `DELETE FROM users WHERE org_id = $1`, orgID)
	if err != nil {
		return counts, fmt.Errorf("failed to delete users: %w", mapPostgresError(err))
	}
	counts.Users = result.RowsAffected()

	result, err = tx.Exec(ctx, `DELETE FROM organizations WHERE org_id = $1`, orgID)
	if err != nil {
		return counts, fmt.Errorf("failed to delete organization: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.PurgeCounts{}, store.ErrOrganizationNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return store.PurgeCounts{}, mapPostgresError(err)
	}

	log.Info().
		Str("org_id", orgID.String()).
		Int64("results", counts.Results).
		Int64("jobs", counts.Jobs).
		Int64("storage_records", counts.StorageRecords).
		Int64("users", counts.Users).
		Msg("Purged organization")

	return counts, nil
}
