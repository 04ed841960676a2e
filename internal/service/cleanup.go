package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/audiolens/scribed/internal/metrics"
	"github.com/audiolens/scribed/internal/models"
	"github.com/audiolens/scribed/internal/store"
)

// DefaultSweepInterval is how often the background sweep runs.
const DefaultSweepInterval = 24 * time.Hour

// Cleanup permanently deletes organizations whose retention window has
// elapsed since archival. Each organization is purged in its own
// transaction: one failure never rolls back or blocks another tenant's
// deletion.
type Cleanup struct {
	orgs     store.OrganizationStore
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewCleanup creates the cleanup sweeper. A non-positive interval falls back
// to the default daily schedule.
func NewCleanup(orgs store.OrganizationStore, interval time.Duration, logger zerolog.Logger) *Cleanup {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Cleanup{
		orgs:     orgs,
		interval: interval,
		logger:   logger.With().Str("component", "cleanup").Logger(),
		now:      time.Now,
	}
}

// SweepReport summarizes one sweep for observability and the administrative
// invocation path.
type SweepReport struct {
	Processed int   `json:"processed"`
	Deleted   int64 `json:"deleted"`
	Errors    int   `json:"errors"`
}

// Run executes the sweep on a ticker until the context is canceled.
func (c *Cleanup) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info().Dur("interval", c.interval).Msg("Cleanup scheduler started")

	for {
		select {
		case <-ticker.C:
			report := c.RunOnce(ctx)
			if report.Processed > 0 || report.Errors > 0 {
				c.logger.Info().
					Int("processed", report.Processed).
					Int64("deleted", report.Deleted).
					Int("errors", report.Errors).
					Msg("Cleanup sweep finished")
			}
		case <-ctx.Done():
			c.logger.Info().Msg("Cleanup scheduler stopped")
			return
		}
	}
}

// RunOnce performs a single sweep synchronously and reports counts. Also the
// entry point for the manual administrative invocation.
func (c *Cleanup) RunOnce(ctx context.Context) SweepReport {
	var report SweepReport

	cutoff := c.now().Add(-models.RetentionWindow)

	expired, err := c.orgs.ListExpired(ctx, cutoff)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to list expired organizations")
		report.Errors++
		return report
	}

	for _, org := range expired {
		report.Processed++

		counts, err := c.orgs.Purge(ctx, org.OrgID)
		if err != nil {
			// Isolated per organization: log and keep sweeping.
			c.logger.Error().
				Err(err).
				Str("org_id", org.OrgID.String()).
				Msg("Failed to purge organization")
			metrics.CleanupErrors.Inc()
			report.Errors++
			continue
		}

		metrics.CleanupPurged.Inc()
		report.Deleted += counts.Total()
	}

	return report
}
