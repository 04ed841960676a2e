package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/audiolens/scribed/internal/models"
	"github.com/audiolens/scribed/internal/store"
	"github.com/audiolens/scribed/internal/store/memory"
)

func TestCleanupRunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("purges organizations past the retention window", func(t *testing.T) {
		s := memory.NewStore()
		org := seedOrg(t, s, nil, nil)
		rec := seedRecord(t, s, org.OrgID)

		for i := 0; i < 3; i++ {
			require.NoError(t, s.Users().Create(ctx, &models.User{
				UserID: uuid.Must(uuid.NewV7()),
				OrgID:  org.OrgID,
				Name:   "u",
				Email:  uuid.NewString() + "@acme.test",
				Role:   models.RoleUser,
			}))
		}

		lifecycle := NewJobLifecycle(s.Jobs(), s.Records(), zerolog.Nop())
		done, err := lifecycle.CreateJob(ctx, rec.FileID, org.OrgID)
		require.NoError(t, err)
		_, err = lifecycle.ApplyWebhookOutcome(ctx, done.JobID, &models.JobOutcome{
			Status:     models.JobStatusCompleted,
			Transcript: "t",
			Sentiment:  "s",
		})
		require.NoError(t, err)
		_, err = lifecycle.CreateJob(ctx, rec.FileID, org.OrgID)
		require.NoError(t, err)

		require.NoError(t, s.Organizations().Archive(ctx, org.OrgID, time.Now().Add(-91*24*time.Hour)))

		cleanup := NewCleanup(s.Organizations(), time.Hour, zerolog.Nop())
		report := cleanup.RunOnce(ctx)

		require.Equal(t, 1, report.Processed)
		require.Zero(t, report.Errors)
		// 2 jobs + 1 result + 1 record + 3 users + the organization row.
		require.Equal(t, int64(8), report.Deleted)

		_, err = s.Organizations().Get(ctx, org.OrgID)
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
		_, err = s.Jobs().Get(ctx, done.JobID, nil)
		require.ErrorIs(t, err, store.ErrJobNotFound)
		_, err = s.Records().Get(ctx, rec.FileID, nil)
		require.ErrorIs(t, err, store.ErrStorageRecordNotFound)
	})

	t.Run("leaves active organizations alone", func(t *testing.T) {
		s := memory.NewStore()
		seedOrg(t, s, nil, nil)

		cleanup := NewCleanup(s.Organizations(), time.Hour, zerolog.Nop())
		report := cleanup.RunOnce(ctx)

		require.Zero(t, report.Processed)
		require.Zero(t, report.Deleted)
	})

	t.Run("leaves recently archived organizations alone", func(t *testing.T) {
		s := memory.NewStore()
		org := seedOrg(t, s, nil, nil)
		require.NoError(t, s.Organizations().Archive(ctx, org.OrgID, time.Now().Add(-24*time.Hour)))

		cleanup := NewCleanup(s.Organizations(), time.Hour, zerolog.Nop())
		report := cleanup.RunOnce(ctx)

		require.Zero(t, report.Processed)

		_, err := s.Organizations().Get(ctx, org.OrgID)
		require.NoError(t, err)
	})

	t.Run("eligibility flips exactly at the window boundary", func(t *testing.T) {
		s := memory.NewStore()
		org := seedOrg(t, s, nil, nil)

		now := time.Now()
		archivedAt := now.Add(-models.RetentionWindow + time.Minute)
		require.NoError(t, s.Organizations().Archive(ctx, org.OrgID, archivedAt))

		cleanup := NewCleanup(s.Organizations(), time.Hour, zerolog.Nop())
		cleanup.now = func() time.Time { return now }

		report := cleanup.RunOnce(ctx)
		require.Zero(t, report.Processed)

		// Two minutes later the same organization crosses the boundary.
		cleanup.now = func() time.Time { return now.Add(2 * time.Minute) }
		report = cleanup.RunOnce(ctx)
		require.Equal(t, 1, report.Processed)
	})
}

func TestCleanupRun(t *testing.T) {
	s := memory.NewStore()
	org := seedOrg(t, s, nil, nil)
	require.NoError(t, s.Organizations().Archive(context.Background(), org.OrgID, time.Now().Add(-91*24*time.Hour)))

	cleanup := NewCleanup(s.Organizations(), 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cleanup.Run(ctx)
		close(done)
	}()

	// The sweep fires on the ticker and the purge lands.
	require.Eventually(t, func() bool {
		_, err := s.Organizations().Get(context.Background(), org.OrgID)
		return err != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
