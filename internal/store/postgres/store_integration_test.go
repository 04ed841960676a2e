//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/audiolens/scribed/internal/models"
	"github.com/audiolens/scribed/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	// Start postgres container
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := NewPool(ctx, &PoolConfig{
		ConnString:  connString,
		AutoMigrate: true, // Enable migrations for tests
	})
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

func createTestOrg(t *testing.T, ctx context.Context, orgs *OrganizationStore, maxUsers, maxJobs *int) *models.Organization {
	t.Helper()
	now := time.Now()
	org := &models.Organization{
		OrgID:             uuid.Must(uuid.NewV7()),
		Name:              "Acme",
		Email:             uuid.NewString() + "@acme.test",
		MaxUsers:          maxUsers,
		MaxConcurrentJobs: maxJobs,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, orgs.Create(ctx, org))
	return org
}

func createTestRecord(t *testing.T, ctx context.Context, records *StorageStore, orgID uuid.UUID) *models.StorageRecord {
	t.Helper()
	now := time.Now()
	rec := &models.StorageRecord{
		FileID:     uuid.Must(uuid.NewV7()),
		OrgID:      orgID,
		URL:        "s3://test-bucket/" + orgID.String() + "/audio.mp3",
		Filename:   "audio.mp3",
		Mimetype:   "audio/mpeg",
		SizeBytes:  2048,
		UploadedAt: now,
		UpdatedAt:  now,
	}
	require.NoError(t, records.Create(ctx, rec))
	return rec
}

func intPtr(n int) *int { return &n }

func TestIntegration_OrganizationLifecycle(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	orgs := NewOrganizationStore(pool)

	t.Run("create and get", func(t *testing.T) {
		org := createTestOrg(t, ctx, orgs, intPtr(25), nil)

		got, err := orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, org.Name, got.Name)
		require.Equal(t, 25, got.EffectiveMaxUsers())
		require.Equal(t, models.DefaultMaxConcurrentJobs, got.EffectiveMaxConcurrentJobs())
	})

	t.Run("duplicate email", func(t *testing.T) {
		org := createTestOrg(t, ctx, orgs, nil, nil)

		err := orgs.Create(ctx, &models.Organization{
			OrgID: uuid.Must(uuid.NewV7()),
			Name:  "Other",
			Email: org.Email,
		})
		require.ErrorIs(t, err, store.ErrEmailTaken)
	})

	t.Run("archive is idempotent", func(t *testing.T) {
		org := createTestOrg(t, ctx, orgs, nil, nil)

		first := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
		require.NoError(t, orgs.Archive(ctx, org.OrgID, first))
		require.NoError(t, orgs.Archive(ctx, org.OrgID, time.Now()))

		got, err := orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.NotNil(t, got.ArchivedAt)
		require.WithinDuration(t, first, *got.ArchivedAt, time.Second)
	})

	t.Run("archive unknown org", func(t *testing.T) {
		err := orgs.Archive(ctx, uuid.Must(uuid.NewV7()), time.Now())
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	})
}

func TestIntegration_UserQuota(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	orgs := NewOrganizationStore(pool)
	users := NewUserStore(pool)

	t.Run("admission stops at the ceiling", func(t *testing.T) {
		org := createTestOrg(t, ctx, orgs, intPtr(2), nil)

		for i := 0; i < 2; i++ {
			err := users.Create(ctx, &models.User{
				UserID: uuid.Must(uuid.NewV7()),
				OrgID:  org.OrgID,
				Name:   "u",
				Email:  uuid.NewString() + "@acme.test",
				Role:   models.RoleUser,
			})
			require.NoError(t, err)
		}

		err := users.Create(ctx, &models.User{
			UserID: uuid.Must(uuid.NewV7()),
			OrgID:  org.OrgID,
			Name:   "u",
			Email:  uuid.NewString() + "@acme.test",
			Role:   models.RoleUser,
		})
		require.ErrorIs(t, err, store.ErrUserQuotaExceeded)

		got, err := orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, 2, got.TotalMemberCount)
	})

	t.Run("delete frees the slot and the counter", func(t *testing.T) {
		org := createTestOrg(t, ctx, orgs, intPtr(1), nil)

		user := &models.User{
			UserID: uuid.Must(uuid.NewV7()),
			OrgID:  org.OrgID,
			Name:   "u",
			Email:  uuid.NewString() + "@acme.test",
			Role:   models.RoleUser,
		}
		require.NoError(t, users.Create(ctx, user))
		require.NoError(t, users.Delete(ctx, user.UserID, nil))

		got, err := orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, 0, got.TotalMemberCount)

		require.NoError(t, users.Create(ctx, &models.User{
			UserID: uuid.Must(uuid.NewV7()),
			OrgID:  org.OrgID,
			Name:   "u2",
			Email:  uuid.NewString() + "@acme.test",
			Role:   models.RoleUser,
		}))
	})
}

func TestIntegration_JobLifecycle(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	orgs := NewOrganizationStore(pool)
	records := NewStorageStore(pool)
	jobs := NewJobStore(pool)

	newPendingJob := func(orgID, fileID uuid.UUID) *models.Job {
		now := time.Now()
		return &models.Job{
			JobID:     uuid.Must(uuid.NewV7()),
			FileID:    fileID,
			OrgID:     orgID,
			Status:    models.JobStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	t.Run("admission stops at the concurrent ceiling", func(t *testing.T) {
		org := createTestOrg(t, ctx, orgs, nil, intPtr(1))
		rec := createTestRecord(t, ctx, records, org.OrgID)

		require.NoError(t, jobs.Create(ctx, newPendingJob(org.OrgID, rec.FileID)))

		err := jobs.Create(ctx, newPendingJob(org.OrgID, rec.FileID))
		require.ErrorIs(t, err, store.ErrJobQuotaExceeded)
	})

	t.Run("apply outcome is idempotent", func(t *testing.T) {
		org := createTestOrg(t, ctx, orgs, nil, nil)
		rec := createTestRecord(t, ctx, records, org.OrgID)

		job := newPendingJob(org.OrgID, rec.FileID)
		require.NoError(t, jobs.Create(ctx, job))

		applied, err := jobs.ApplyOutcome(ctx, job.JobID, &models.JobOutcome{
			Status:     models.JobStatusCompleted,
			Transcript: "first",
			Sentiment:  "neutral",
			Metadata:   map[string]any{"confidence": 0.9},
		})
		require.NoError(t, err)
		require.True(t, applied)

		// Duplicate delivery.
		applied, err = jobs.ApplyOutcome(ctx, job.JobID, &models.JobOutcome{
			Status:     models.JobStatusCompleted,
			Transcript: "second",
			Sentiment:  "negative",
		})
		require.NoError(t, err)
		require.False(t, applied)

		result, err := jobs.GetResult(ctx, job.JobID, &org.OrgID)
		require.NoError(t, err)
		require.Equal(t, "first", result.Transcript)

		// Completing freed the admission slot.
		active, err := jobs.CountActive(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, 0, active)
	})

	t.Run("cross-tenant reads are not found", func(t *testing.T) {
		orgA := createTestOrg(t, ctx, orgs, nil, nil)
		orgB := createTestOrg(t, ctx, orgs, nil, nil)
		rec := createTestRecord(t, ctx, records, orgA.OrgID)

		job := newPendingJob(orgA.OrgID, rec.FileID)
		require.NoError(t, jobs.Create(ctx, job))

		_, err := jobs.Get(ctx, job.JobID, &orgB.OrgID)
		require.ErrorIs(t, err, store.ErrJobNotFound)
	})
}

func TestIntegration_PurgeCascade(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	orgs := NewOrganizationStore(pool)
	users := NewUserStore(pool)
	records := NewStorageStore(pool)
	jobs := NewJobStore(pool)

	org := createTestOrg(t, ctx, orgs, nil, nil)
	rec := createTestRecord(t, ctx, records, org.OrgID)

	require.NoError(t, users.Create(ctx, &models.User{
		UserID: uuid.Must(uuid.NewV7()),
		OrgID:  org.OrgID,
		Name:   "u",
		Email:  uuid.NewString() + "@acme.test",
		Role:   models.RoleAdmin,
	}))

	now := time.Now()
	job := &models.Job{
		JobID:     uuid.Must(uuid.NewV7()),
		FileID:    rec.FileID,
		OrgID:     org.OrgID,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, jobs.Create(ctx, job))
	_, err := jobs.ApplyOutcome(ctx, job.JobID, &models.JobOutcome{
		Status:     models.JobStatusCompleted,
		Transcript: "t",
		Sentiment:  "s",
	})
	require.NoError(t, err)

	require.NoError(t, orgs.Archive(ctx, org.OrgID, time.Now().Add(-91*24*time.Hour)))

	expired, err := orgs.ListExpired(ctx, time.Now().Add(-models.RetentionWindow))
	require.NoError(t, err)
	require.Len(t, expired, 1)

	counts, err := orgs.Purge(ctx, org.OrgID)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts.Results)
	require.Equal(t, int64(1), counts.Jobs)
	require.Equal(t, int64(1), counts.StorageRecords)
	require.Equal(t, int64(1), counts.Users)

	_, err = orgs.Get(ctx, org.OrgID)
	require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	_, err = jobs.Get(ctx, job.JobID, nil)
	require.ErrorIs(t, err, store.ErrJobNotFound)
	_, err = records.Get(ctx, rec.FileID, nil)
	require.ErrorIs(t, err, store.ErrStorageRecordNotFound)
}
