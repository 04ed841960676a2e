package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/audiolens/scribed/internal/models"
	"github.com/audiolens/scribed/internal/store"
	"github.com/audiolens/scribed/internal/store/memory"
)

func intPtr(n int) *int { return &n }

func seedOrg(t *testing.T, s *memory.Store, maxUsers, maxJobs *int) *models.Organization {
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
	require.NoError(t, s.Organizations().Create(context.Background(), org))
	return org
}

func seedRecord(t *testing.T, s *memory.Store, orgID uuid.UUID) *models.StorageRecord {
	t.Helper()
	now := time.Now()
	rec := &models.StorageRecord{
		FileID:     uuid.Must(uuid.NewV7()),
		OrgID:      orgID,
		URL:        "mem://" + orgID.String() + "/audio.mp3",
		Filename:   "audio.mp3",
		Mimetype:   "audio/mpeg",
		SizeBytes:  1024,
		UploadedAt: now,
		UpdatedAt:  now,
	}
	require.NoError(t, s.Records().Create(context.Background(), rec))
	return rec
}

// flakyJobs fails the first N ApplyOutcome calls before delegating, standing
// in for a database that drops the terminal write.
type flakyJobs struct {
	store.JobStore
	failures int
	calls    int
}

func (f *flakyJobs) ApplyOutcome(ctx context.Context, jobID uuid.UUID, outcome *models.JobOutcome) (bool, error) {
	f.calls++
	if f.calls <= f.failures {
		return false, errors.New("connection reset by peer")
	}
	return f.JobStore.ApplyOutcome(ctx, jobID, outcome)
}

func TestCreateJob(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pending job for an owned file", func(t *testing.T) {
		s := memory.NewStore()
		org := seedOrg(t, s, nil, nil)
		rec := seedRecord(t, s, org.OrgID)

		lifecycle := NewJobLifecycle(s.Jobs(), s.Records(), zerolog.Nop())

		job, err := lifecycle.CreateJob(ctx, rec.FileID, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, models.JobStatusPending, job.Status)
		require.Equal(t, rec.FileID, job.FileID)
		require.Equal(t, org.OrgID, job.OrgID)
	})

	t.Run("rejects a file owned by another tenant", func(t *testing.T) {
		s := memory.NewStore()
		orgA := seedOrg(t, s, nil, nil)
		orgB := seedOrg(t, s, nil, nil)
		rec := seedRecord(t, s, orgA.OrgID)

		lifecycle := NewJobLifecycle(s.Jobs(), s.Records(), zerolog.Nop())

		_, err := lifecycle.CreateJob(ctx, rec.FileID, orgB.OrgID)
		require.ErrorIs(t, err, store.ErrStorageRecordNotFound)
	})

	t.Run("quota slot is released by a terminal webhook", func(t *testing.T) {
		s := memory.NewStore()
		org := seedOrg(t, s, nil, intPtr(1))
		rec := seedRecord(t, s, org.OrgID)

		lifecycle := NewJobLifecycle(s.Jobs(), s.Records(), zerolog.Nop())

		first, err := lifecycle.CreateJob(ctx, rec.FileID, org.OrgID)
		require.NoError(t, err)

		// Ceiling is one: the second create is denied.
		_, err = lifecycle.CreateJob(ctx, rec.FileID, org.OrgID)
		require.ErrorIs(t, err, store.ErrJobQuotaExceeded)

		applied, err := lifecycle.ApplyWebhookOutcome(ctx, first.JobID, &models.JobOutcome{
			Status:     models.JobStatusCompleted,
			Transcript: "hello",
			Sentiment:  "neutral",
		})
		require.NoError(t, err)
		require.True(t, applied)

		// Terminal job freed the slot.
		_, err = lifecycle.CreateJob(ctx, rec.FileID, org.OrgID)
		require.NoError(t, err)
	})
}

func TestApplyWebhookOutcome(t *testing.T) {
	ctx := context.Background()

	t.Run("completed outcome stores the result", func(t *testing.T) {
		s := memory.NewStore()
		org := seedOrg(t, s, nil, nil)
		rec := seedRecord(t, s, org.OrgID)
		lifecycle := NewJobLifecycle(s.Jobs(), s.Records(), zerolog.Nop())

		job, err := lifecycle.CreateJob(ctx, rec.FileID, org.OrgID)
		require.NoError(t, err)

		applied, err := lifecycle.ApplyWebhookOutcome(ctx, job.JobID, &models.JobOutcome{
			Status:     models.JobStatusCompleted,
			Transcript: "the quick brown fox",
			Sentiment:  "positive",
			Metadata:   map[string]any{"confidence": 0.97},
		})
		require.NoError(t, err)
		require.True(t, applied)

		result, err := lifecycle.GetJobResult(ctx, job.JobID, &org.OrgID)
		require.NoError(t, err)
		require.Equal(t, "the quick brown fox", result.Transcript)
	})

	t.Run("duplicate delivery is acknowledged without effect", func(t *testing.T) {
		s := memory.NewStore()
		org := seedOrg(t, s, nil, nil)
		rec := seedRecord(t, s, org.OrgID)
		lifecycle := NewJobLifecycle(s.Jobs(), s.Records(), zerolog.Nop())

		job, err := lifecycle.CreateJob(ctx, rec.FileID, org.OrgID)
		require.NoError(t, err)

		outcome := &models.JobOutcome{
			Status:     models.JobStatusCompleted,
			Transcript: "once",
			Sentiment:  "neutral",
		}
		applied, err := lifecycle.ApplyWebhookOutcome(ctx, job.JobID, outcome)
		require.NoError(t, err)
		require.True(t, applied)

		applied, err = lifecycle.ApplyWebhookOutcome(ctx, job.JobID, outcome)
		require.NoError(t, err)
		require.False(t, applied)

		result, err := lifecycle.GetJobResult(ctx, job.JobID, nil)
		require.NoError(t, err)
		require.Equal(t, "once", result.Transcript)
	})

	t.Run("completed without transcript fails the job", func(t *testing.T) {
		s := memory.NewStore()
		org := seedOrg(t, s, nil, nil)
		rec := seedRecord(t, s, org.OrgID)
		lifecycle := NewJobLifecycle(s.Jobs(), s.Records(), zerolog.Nop())

		job, err := lifecycle.CreateJob(ctx, rec.FileID, org.OrgID)
		require.NoError(t, err)

		_, err = lifecycle.ApplyWebhookOutcome(ctx, job.JobID, &models.JobOutcome{
			Status:    models.JobStatusCompleted,
			Sentiment: "positive", // transcript missing
		})
		require.ErrorIs(t, err, ErrValidation)

		// The job still reached a terminal state with a recorded reason.
		got, err := lifecycle.GetJobStatus(ctx, job.JobID, &org.OrgID)
		require.NoError(t, err)
		require.Equal(t, models.JobStatusFailed, got.Status)
		require.NotNil(t, got.Error)
		require.Contains(t, *got.Error, "Missing transcript or sentiment")

		_, err = lifecycle.GetJobResult(ctx, job.JobID, &org.OrgID)
		require.ErrorIs(t, err, store.ErrResultNotFound)
	})

	t.Run("failed outcome without a reason gets a default", func(t *testing.T) {
		s := memory.NewStore()
		org := seedOrg(t, s, nil, nil)
		rec := seedRecord(t, s, org.OrgID)
		lifecycle := NewJobLifecycle(s.Jobs(), s.Records(), zerolog.Nop())

		job, err := lifecycle.CreateJob(ctx, rec.FileID, org.OrgID)
		require.NoError(t, err)

		applied, err := lifecycle.ApplyWebhookOutcome(ctx, job.JobID, &models.JobOutcome{
			Status: models.JobStatusFailed,
		})
		require.NoError(t, err)
		require.True(t, applied)

		got, err := lifecycle.GetJobStatus(ctx, job.JobID, nil)
		require.NoError(t, err)
		require.NotNil(t, got.Error)
		require.Equal(t, "unspecified worker failure", *got.Error)
	})

	t.Run("transient store failure succeeds on the retry", func(t *testing.T) {
		s := memory.NewStore()
		org := seedOrg(t, s, nil, nil)
		rec := seedRecord(t, s, org.OrgID)
		jobs := &flakyJobs{JobStore: s.Jobs(), failures: 1}
		lifecycle := NewJobLifecycle(jobs, s.Records(), zerolog.Nop())

		job, err := lifecycle.CreateJob(ctx, rec.FileID, org.OrgID)
		require.NoError(t, err)

		applied, err := lifecycle.ApplyWebhookOutcome(ctx, job.JobID, &models.JobOutcome{
			Status: models.JobStatusFailed,
			Error:  "worker crashed",
		})
		require.NoError(t, err)
		require.True(t, applied)
		require.Equal(t, 2, jobs.calls)

		got, err := s.Jobs().Get(ctx, job.JobID, nil)
		require.NoError(t, err)
		require.Equal(t, models.JobStatusFailed, got.Status)
	})

	t.Run("persistent store failure surfaces after two attempts", func(t *testing.T) {
		s := memory.NewStore()
		org := seedOrg(t, s, nil, nil)
		rec := seedRecord(t, s, org.OrgID)
		jobs := &flakyJobs{JobStore: s.Jobs(), failures: 5}
		lifecycle := NewJobLifecycle(jobs, s.Records(), zerolog.Nop())

		job, err := lifecycle.CreateJob(ctx, rec.FileID, org.OrgID)
		require.NoError(t, err)

		_, err = lifecycle.ApplyWebhookOutcome(ctx, job.JobID, &models.JobOutcome{
			Status:     models.JobStatusCompleted,
			Transcript: "t",
			Sentiment:  "s",
		})
		require.ErrorIs(t, err, ErrPersistence)
		require.Equal(t, 2, jobs.calls)

		// The job is untouched; a later redelivery can still land it.
		got, err := s.Jobs().Get(ctx, job.JobID, nil)
		require.NoError(t, err)
		require.Equal(t, models.JobStatusPending, got.Status)
	})

	t.Run("non-terminal status is rejected", func(t *testing.T) {
		s := memory.NewStore()
		lifecycle := NewJobLifecycle(s.Jobs(), s.Records(), zerolog.Nop())

		_, err := lifecycle.ApplyWebhookOutcome(ctx, uuid.Must(uuid.NewV7()), &models.JobOutcome{
			Status: models.JobStatusProcessing,
		})
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown job surfaces not found", func(t *testing.T) {
		s := memory.NewStore()
		lifecycle := NewJobLifecycle(s.Jobs(), s.Records(), zerolog.Nop())

		_, err := lifecycle.ApplyWebhookOutcome(ctx, uuid.Must(uuid.NewV7()), &models.JobOutcome{
			Status: models.JobStatusFailed,
			Error:  "x",
		})
		require.ErrorIs(t, err, store.ErrJobNotFound)
	})
}

func TestGetJobScoping(t *testing.T) {
	ctx := context.Background()

	s := memory.NewStore()
	orgA := seedOrg(t, s, nil, nil)
	orgB := seedOrg(t, s, nil, nil)
	rec := seedRecord(t, s, orgA.OrgID)
	lifecycle := NewJobLifecycle(s.Jobs(), s.Records(), zerolog.Nop())

	job, err := lifecycle.CreateJob(ctx, rec.FileID, orgA.OrgID)
	require.NoError(t, err)

	// Another tenant's job reads the same as a nonexistent one.
	_, err = lifecycle.GetJobStatus(ctx, job.JobID, &orgB.OrgID)
	require.ErrorIs(t, err, store.ErrJobNotFound)

	_, errMissing := lifecycle.GetJobStatus(ctx, uuid.Must(uuid.NewV7()), &orgB.OrgID)
	require.Equal(t, errMissing, err)

	_, err = lifecycle.GetJobResult(ctx, job.JobID, &orgB.OrgID)
	require.ErrorIs(t, err, store.ErrResultNotFound)
}
