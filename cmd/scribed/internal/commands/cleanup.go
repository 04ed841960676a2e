package commands

import (
	"context"
	"errors"
	"time"

	"github.com/audiolens/scribed/internal/logger"
	"github.com/audiolens/scribed/internal/service"
	postgresstore "github.com/audiolens/scribed/internal/store/postgres"
)

// CleanupCmd runs a single retention sweep against the postgres store and
// exits. Intended for cron or one-off operational use; the server command
// runs the same sweep on a timer.
type CleanupCmd struct {
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (c *CleanupCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := context.Background()

	pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString:      c.PostgresStore.ConnString,
		MaxConns:        c.PostgresStore.MaxConns,
		MinConns:        c.PostgresStore.MinConns,
		MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
		MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
		AutoMigrate:     c.PostgresStore.AutoMigrate,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	orgs := postgresstore.NewOrganizationStore(pool)
	cleanup := service.NewCleanup(orgs, time.Hour, log)

	report := cleanup.RunOnce(ctx)
	log.Info().
		Int("processed", report.Processed).
		Int64("deleted", report.Deleted).
		Int("errors", report.Errors).
		Msg("Cleanup sweep complete")

	if report.Errors > 0 {
		return errors.New("cleanup sweep completed with errors")
	}
	return nil
}
