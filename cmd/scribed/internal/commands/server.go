package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/audiolens/scribed/internal/blob"
	blobmemory "github.com/audiolens/scribed/internal/blob/memory"
	blobs3 "github.com/audiolens/scribed/internal/blob/s3"
	scribehttp "github.com/audiolens/scribed/internal/http"
	"github.com/audiolens/scribed/internal/logger"
	"github.com/audiolens/scribed/internal/quota"
	"github.com/audiolens/scribed/internal/server"
	"github.com/audiolens/scribed/internal/service"
	"github.com/audiolens/scribed/internal/store"
	memorystore "github.com/audiolens/scribed/internal/store/memory"
	postgresstore "github.com/audiolens/scribed/internal/store/postgres"
)

type ServerCmd struct {
	// Server configuration
	Listen        string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"SCRIBED_LISTEN"`
	WebhookSecret string `help:"shared secret expected on webhook deliveries" env:"SCRIBED_WEBHOOK_SECRET"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"*" env:"SCRIBED_CORS_ORIGINS"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"SCRIBED_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`

	// Blob store configuration
	BlobType string `help:"blob store type (memory or s3)" default:"memory" env:"SCRIBED_BLOB_TYPE" enum:"memory,s3"`
	S3Bucket string `help:"S3 bucket for uploaded audio" env:"SCRIBED_S3_BUCKET"`
	S3Region string `help:"AWS region for the S3 bucket" default:"us-east-1" env:"AWS_REGION"`

	// Cleanup scheduler configuration
	CleanupInterval time.Duration `help:"interval between retention cleanup sweeps" default:"24h" env:"SCRIBED_CLEANUP_INTERVAL"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"SCRIBED_POSTGRES_AUTO_MIGRATE"`
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := context.Background()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.WebhookSecret == "" {
		return errors.New("webhook secret is required (--webhook-secret or SCRIBED_WEBHOOK_SECRET)")
	}

	stores, err := c.buildStores(ctx)
	if err != nil {
		return err
	}

	blobs, err := c.buildBlobStore(ctx)
	if err != nil {
		return err
	}

	evaluator := quota.NewEvaluator(stores.orgs, stores.users, stores.jobs)
	tenants := service.NewTenants(stores.orgs, stores.users, evaluator, log)
	storage := service.NewStorageManager(stores.records, stores.orgs, blobs, log)
	jobs := service.NewJobLifecycle(stores.jobs, stores.records, log)
	cleanup := service.NewCleanup(stores.orgs, c.CleanupInterval, log)

	srv := server.New(server.Config{
		Tenants:       tenants,
		Storage:       storage,
		Jobs:          jobs,
		Cleanup:       cleanup,
		WebhookSecret: c.WebhookSecret,
	})

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: c.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type", server.WebhookSecretHeader},
	})

	handler := scribehttp.ClientIPMiddleware()(logger.Requests(log)(corsMiddleware.Handler(srv.Routes())))

	httpServer := configureHTTPServer(c.Listen, handler)

	// Background cleanup sweep, stopped with the server.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go cleanup.Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", c.Listen).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		stopSweep()
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

type storeSet struct {
	orgs    store.OrganizationStore
	users   store.UserStore
	records store.StorageStore
	jobs    store.JobStore
}

func (c *ServerCmd) buildStores(ctx context.Context) (*storeSet, error) {
	switch c.StoreType {
	case "postgres":
		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
			AutoMigrate:     c.PostgresStore.AutoMigrate,
		})
		if err != nil {
			return nil, err
		}
		return &storeSet{
			orgs:    postgresstore.NewOrganizationStore(pool),
			users:   postgresstore.NewUserStore(pool),
			records: postgresstore.NewStorageStore(pool),
			jobs:    postgresstore.NewJobStore(pool),
		}, nil
	default:
		mem := memorystore.NewStore()
		return &storeSet{
			orgs:    mem.Organizations(),
			users:   mem.Users(),
			records: mem.Records(),
			jobs:    mem.Jobs(),
		}, nil
	}
}

func (c *ServerCmd) buildBlobStore(ctx context.Context) (blob.Store, error) {
	switch c.BlobType {
	case "s3":
		if c.S3Bucket == "" {
			return nil, errors.New("S3 bucket is required (--s3-bucket or SCRIBED_S3_BUCKET)")
		}
		return blobs3.New(ctx, c.S3Bucket, c.S3Region)
	default:
		return blobmemory.NewStore(), nil
	}
}
