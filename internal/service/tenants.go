package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/audiolens/scribed/internal/models"
	"github.com/audiolens/scribed/internal/quota"
	"github.com/audiolens/scribed/internal/store"
)

// Tenants owns organization lifecycle and quota-aware user creation.
type Tenants struct {
	orgs   store.OrganizationStore
	users  store.UserStore
	quota  *quota.Evaluator
	logger zerolog.Logger
}

// NewTenants creates the tenant manager.
func NewTenants(orgs store.OrganizationStore, users store.UserStore, evaluator *quota.Evaluator, logger zerolog.Logger) *Tenants {
	return &Tenants{
		orgs:   orgs,
		users:  users,
		quota:  evaluator,
		logger: logger.With().Str("component", "tenants").Logger(),
	}
}

// CreateOrganization registers a new tenant.
func (t *Tenants) CreateOrganization(ctx context.Context, name, email, contact string, maxUsers, maxConcurrentJobs *int) (*models.Organization, error) {
	if name == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: organization name and a valid email are required", ErrValidation)
	}

	now := time.Now()
	org := &models.Organization{
		OrgID:             uuid.Must(uuid.NewV7()),
		Name:              name,
		Email:             email,
		Contact:           contact,
		MaxUsers:          maxUsers,
		MaxConcurrentJobs: maxConcurrentJobs,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := t.orgs.Create(ctx, org); err != nil {
		return nil, err
	}

	t.logger.Info().
		Str("org_id", org.OrgID.String()).
		Str("name", name).
		Msg("Created organization")

	return org, nil
}

// GetOrganization returns a tenant by id.
func (t *Tenants) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	return t.orgs.Get(ctx, orgID)
}

// UpdateOrganization persists changes to a tenant's mutable fields.
func (t *Tenants) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	return t.orgs.Update(ctx, org)
}

// ArchiveOrganization soft-deletes a tenant, starting the 90-day retention
// clock. The cleanup sweep performs the permanent delete.
func (t *Tenants) ArchiveOrganization(ctx context.Context, orgID uuid.UUID) error {
	return t.orgs.Archive(ctx, orgID, time.Now())
}

// QuotaUsage reports the organization's standing against both resource
// ceilings. The snapshot is advisory: admission itself is decided inside the
// store transactions.
func (t *Tenants) QuotaUsage(ctx context.Context, orgID uuid.UUID) (users, jobs quota.Usage, err error) {
	if _, users, err = t.quota.CanAdmitUser(ctx, orgID); err != nil {
		return quota.Usage{}, quota.Usage{}, err
	}
	if _, jobs, err = t.quota.CanAdmitJob(ctx, orgID); err != nil {
		return quota.Usage{}, quota.Usage{}, err
	}
	return users, jobs, nil
}

// CreateUser adds a member to an organization, gated on its user ceiling.
// The store performs the check and the insert atomically; the quota
// evaluator supplies the actionable message when admission is denied.
func (t *Tenants) CreateUser(ctx context.Context, orgID uuid.UUID, name, email, role string) (*models.User, error) {
	if name == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: user name and a valid email are required", ErrValidation)
	}
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	now := time.Now()
	user := &models.User{
		UserID:    uuid.Must(uuid.NewV7()),
		OrgID:     orgID,
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := t.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrUserQuotaExceeded) {
			if _, usage, qerr := t.quota.CanAdmitUser(ctx, orgID); qerr == nil {
				return nil, fmt.Errorf("%w: you have reached your user limit (%d of %d)",
					store.ErrUserQuotaExceeded, usage.Used, usage.Limit)
			}
		}
		return nil, err
	}

	t.logger.Info().
		Str("user_id", user.UserID.String()).
		Str("org_id", orgID.String()).
		Msg("Created user")

	return user, nil
}

// DeleteUser removes a member, scoped to orgID unless privileged.
func (t *Tenants) DeleteUser(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID) error {
	return t.users.Delete(ctx, userID, orgID)
}
