package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJobStatusTransitions(t *testing.T) {
	t.Run("pending moves anywhere forward", func(t *testing.T) {
		require.True(t, JobStatusPending.CanTransitionTo(JobStatusProcessing))
		require.True(t, JobStatusPending.CanTransitionTo(JobStatusCompleted))
		require.True(t, JobStatusPending.CanTransitionTo(JobStatusFailed))
	})

	t.Run("processing only moves to terminal", func(t *testing.T) {
		require.False(t, JobStatusProcessing.CanTransitionTo(JobStatusProcessing))
		require.False(t, JobStatusProcessing.CanTransitionTo(JobStatusPending))
		require.True(t, JobStatusProcessing.CanTransitionTo(JobStatusCompleted))
		require.True(t, JobStatusProcessing.CanTransitionTo(JobStatusFailed))
	})

	t.Run("terminal states admit nothing", func(t *testing.T) {
		for _, s := range []JobStatus{JobStatusCompleted, JobStatusFailed} {
			require.False(t, s.CanTransitionTo(JobStatusPending))
			require.False(t, s.CanTransitionTo(JobStatusProcessing))
			require.False(t, s.CanTransitionTo(JobStatusCompleted))
			require.False(t, s.CanTransitionTo(JobStatusFailed))
		}
	})
}

func TestJobStatusClassification(t *testing.T) {
	require.True(t, JobStatusPending.Active())
	require.True(t, JobStatusProcessing.Active())
	require.False(t, JobStatusCompleted.Active())
	require.False(t, JobStatusFailed.Active())

	require.False(t, JobStatusPending.IsTerminal())
	require.False(t, JobStatusProcessing.IsTerminal())
	require.True(t, JobStatusCompleted.IsTerminal())
	require.True(t, JobStatusFailed.IsTerminal())

	require.True(t, JobStatusPending.Valid())
	require.False(t, JobStatus("queued").Valid())
	require.False(t, JobStatus("").Valid())
}
