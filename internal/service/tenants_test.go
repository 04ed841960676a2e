package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/audiolens/scribed/internal/models"
	"github.com/audiolens/scribed/internal/quota"
	"github.com/audiolens/scribed/internal/store"
	"github.com/audiolens/scribed/internal/store/memory"
)

func newTenants(s *memory.Store) *Tenants {
	evaluator := quota.NewEvaluator(s.Organizations(), s.Users(), s.Jobs())
	return NewTenants(s.Organizations(), s.Users(), evaluator, zerolog.Nop())
}

func TestCreateOrganization(t *testing.T) {
	ctx := context.Background()

	t.Run("creates with explicit limits", func(t *testing.T) {
		s := memory.NewStore()
		tenants := newTenants(s)

		org, err := tenants.CreateOrganization(ctx, "Acme", "ops@acme.test", "Jo Smith", intPtr(25), intPtr(3))
		require.NoError(t, err)
		require.Equal(t, 25, org.EffectiveMaxUsers())
		require.Equal(t, 3, org.EffectiveMaxConcurrentJobs())

		got, err := tenants.GetOrganization(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, "Acme", got.Name)
	})

	t.Run("rejects missing name or bad email", func(t *testing.T) {
		s := memory.NewStore()
		tenants := newTenants(s)

		_, err := tenants.CreateOrganization(ctx, "", "ops@acme.test", "", nil, nil)
		require.ErrorIs(t, err, ErrValidation)

		_, err = tenants.CreateOrganization(ctx, "Acme", "not-an-email", "", nil, nil)
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		s := memory.NewStore()
		tenants := newTenants(s)

		_, err := tenants.CreateOrganization(ctx, "Acme", "ops@acme.test", "", nil, nil)
		require.NoError(t, err)

		_, err = tenants.CreateOrganization(ctx, "Acme Two", "ops@acme.test", "", nil, nil)
		require.ErrorIs(t, err, store.ErrEmailTaken)
	})
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults the role", func(t *testing.T) {
		s := memory.NewStore()
		tenants := newTenants(s)
		org, err := tenants.CreateOrganization(ctx, "Acme", "ops@acme.test", "", nil, nil)
		require.NoError(t, err)

		user, err := tenants.CreateUser(ctx, org.OrgID, "Jo", "jo@acme.test", "")
		require.NoError(t, err)
		require.Equal(t, models.RoleUser, user.Role)
		require.False(t, user.IsAdmin())
	})

	t.Run("rejects unknown roles", func(t *testing.T) {
		s := memory.NewStore()
		tenants := newTenants(s)
		org, err := tenants.CreateOrganization(ctx, "Acme", "ops@acme.test", "", nil, nil)
		require.NoError(t, err)

		_, err = tenants.CreateUser(ctx, org.OrgID, "Jo", "jo@acme.test", "owner")
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("quota denial carries an actionable message", func(t *testing.T) {
		s := memory.NewStore()
		tenants := newTenants(s)
		org, err := tenants.CreateOrganization(ctx, "Acme", "ops@acme.test", "", intPtr(1), nil)
		require.NoError(t, err)

		_, err = tenants.CreateUser(ctx, org.OrgID, "Jo", "jo@acme.test", models.RoleAdmin)
		require.NoError(t, err)

		_, err = tenants.CreateUser(ctx, org.OrgID, "Sam", "sam@acme.test", models.RoleUser)
		require.ErrorIs(t, err, store.ErrUserQuotaExceeded)
		require.Contains(t, err.Error(), "user limit (1 of 1)")
	})

	t.Run("delete frees the quota slot", func(t *testing.T) {
		s := memory.NewStore()
		tenants := newTenants(s)
		org, err := tenants.CreateOrganization(ctx, "Acme", "ops@acme.test", "", intPtr(1), nil)
		require.NoError(t, err)

		user, err := tenants.CreateUser(ctx, org.OrgID, "Jo", "jo@acme.test", "")
		require.NoError(t, err)

		require.NoError(t, tenants.DeleteUser(ctx, user.UserID, &org.OrgID))

		_, err = tenants.CreateUser(ctx, org.OrgID, "Sam", "sam@acme.test", "")
		require.NoError(t, err)
	})

	t.Run("unknown organization", func(t *testing.T) {
		s := memory.NewStore()
		tenants := newTenants(s)

		_, err := tenants.CreateUser(ctx, uuid.Must(uuid.NewV7()), "Jo", "jo@acme.test", "")
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	})
}

func TestArchiveOrganization(t *testing.T) {
	ctx := context.Background()

	s := memory.NewStore()
	tenants := newTenants(s)
	org, err := tenants.CreateOrganization(ctx, "Acme", "ops@acme.test", "", nil, nil)
	require.NoError(t, err)

	require.NoError(t, tenants.ArchiveOrganization(ctx, org.OrgID))

	got, err := tenants.GetOrganization(ctx, org.OrgID)
	require.NoError(t, err)
	require.True(t, got.IsArchived())

	// Archived tenants admit no new members.
	_, err = tenants.CreateUser(ctx, org.OrgID, "Jo", "jo@acme.test", "")
	require.ErrorIs(t, err, store.ErrOrganizationArchived)
}
