package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/audiolens/scribed/internal/models"
	"github.com/audiolens/scribed/internal/store"
)

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

var _ store.UserStore = (*UserStore)(nil)

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{
		pool: pool,
	}
}

// Create inserts a user, gated on the organization's user ceiling. The
// organization row is locked for the duration of the transaction so two
// concurrent creations cannot both pass the check against one remaining
// slot; total_member_count is incremented in the same transaction.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapPostgresError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	var maxUsers *int
	var archived bool
	err = tx.QueryRow(ctx, `
		SELECT max_users, archived_at IS NOT NULL
		FROM organizations
		WHERE org_id = $1
		FOR UPDATE
	`, user.OrgID).Scan(&maxUsers, &archived)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrOrganizationNotFound
		}
		return mapPostgresError(err)
	}
	if archived {
		return store.ErrOrganizationArchived
	}

	limit := (&models.Organization{MaxUsers: maxUsers}).EffectiveMaxUsers()

	var count int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM users WHERE org_id = $1
	`, user.OrgID).Scan(&count)
	if err != nil {
		return mapPostgresError(err)
	}

	if count >= limit {
		return store.ErrUserQuotaExceeded
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO users (user_id, org_id, name, email, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		user.UserID,
		user.OrgID,
		user.Name,
		user.Email,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE organizations
		SET total_member_count = total_member_count + 1, updated_at = NOW()
		WHERE org_id = $1
	`, user.OrgID)
	if err != nil {
		return mapPostgresError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPostgresError(err)
	}

	log.Debug().
		Str("user_id", user.UserID.String()).
		Str("org_id", user.OrgID.String()).
		Msg("Created user")

	return nil
}

// Get retrieves a user by ID. When orgID is set, a user belonging to another
// organization is reported as not found.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID) (*models.User, error) {
	query := `
		SELECT user_id, org_id, name, email, role, created_at, updated_at
		FROM users
		WHERE user_id = $1
		  AND ($2::UUID IS NULL OR org_id = $2)
	`

	var user models.User
	err := s.pool.QueryRow(ctx, query, userID, orgID).Scan(
		&user.UserID,
		&user.OrgID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, mapPostgresError(err)
	}

	return &user, nil
}

// Delete removes a user and decrements the organization's member count in
// the same transaction.
func (s *UserStore) Delete(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapPostgresError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	var owner uuid.UUID
	err = tx.QueryRow(ctx, `
		DELETE FROM users
		WHERE user_id = $1
		  AND ($2::UUID IS NULL OR org_id = $2)
		RETURNING org_id
	`, userID, orgID).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrUserNotFound
		}
		return mapPostgresError(err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE organizations
		SET total_member_count = GREATEST(total_member_count - 1, 0), updated_at = NOW()
		WHERE org_id = $1
	`, owner)
	if err != nil {
		return mapPostgresError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPostgresError(err)
	}

	log.Debug().
		Str("user_id", userID.String()).
		Str("org_id", owner.String()).
		Msg("Deleted user")

	return nil
}

// CountByOrganization returns the live count of users for an organization.
func (s *UserStore) CountByOrganization(ctx context.Context, orgID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM users WHERE org_id = $1
	`, orgID).Scan(&count)
	if err != nil {
		return 0, mapPostgresError(err)
	}
	return count, nil
}
