package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/audiolens/scribed/internal/models"
	"github.com/audiolens/scribed/internal/store"
)

// StorageStore implements store.StorageStore using PostgreSQL. It persists
// only upload metadata; the blob itself lives in the blob store and the
// service layer keeps the two consistent.
type StorageStore struct {
	pool *pgxpool.Pool
}

var _ store.StorageStore = (*StorageStore)(nil)

// NewStorageStore creates a new PostgreSQL-backed storage record store.
func NewStorageStore(pool *pgxpool.Pool) *StorageStore {
	return &StorageStore{
		pool: pool,
	}
}

// Create inserts a storage record.
func (s *StorageStore) Create(ctx context.Context, rec *models.StorageRecord) error {
	query := `
		INSERT INTO storage_records (
			file_id, org_id, url, filename, mimetype, size_bytes, uploaded_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.FileID,
		rec.OrgID,
		rec.URL,
		rec.Filename,
		rec.Mimetype,
		rec.SizeBytes,
		rec.UploadedAt,
		rec.UpdatedAt,
	)

	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().
		Str("file_id", rec.FileID.String()).
		Str("org_id", rec.OrgID.String()).
		Int64("size_bytes", rec.SizeBytes).
		Msg("Created storage record")

	return nil
}

// Get retrieves a storage record. When orgID is set, records belonging to
// another organization are reported as not found.
func (s *StorageStore) Get(ctx context.Context, fileID uuid.UUID, orgID *uuid.UUID) (*models.StorageRecord, error) {
	query := `
		SELECT file_id, org_id, url, filename, mimetype, size_bytes, uploaded_at, updated_at
		FROM storage_records
		WHERE file_id = $1
		  AND ($2::UUID IS NULL OR org_id = $2)
	`

	var rec models.StorageRecord
	err := s.pool.QueryRow(ctx, query, fileID, orgID).Scan(
		&rec.FileID,
		&rec.OrgID,
		&rec.URL,
		&rec.Filename,
		&rec.Mimetype,
		&rec.SizeBytes,
		&rec.UploadedAt,
		&rec.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrStorageRecordNotFound
		}
		return nil, mapPostgresError(err)
	}

	return &rec, nil
}

// Update persists filename/mimetype changes; all other columns are immutable.
func (s *StorageStore) Update(ctx context.Context, rec *models.StorageRecord) error {
	rec.UpdatedAt = time.Now()

	query := `
		UPDATE storage_records SET
			filename = $2,
			mimetype = $3,
			updated_at = $4
		WHERE file_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		rec.FileID,
		rec.Filename,
		rec.Mimetype,
		rec.UpdatedAt,
	)

	if err != nil {
		return mapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrStorageRecordNotFound
	}

	return nil
}

// Delete removes a storage record. The caller must have deleted the blob
// first; this store only removes the metadata row.
func (s *StorageStore) Delete(ctx context.Context, fileID uuid.UUID, orgID *uuid.UUID) error {
	query := `
		DELETE FROM storage_records
		WHERE file_id = $1
		  AND ($2::UUID IS NULL OR org_id = $2)
	`

	result, err := s.pool.Exec(ctx, query, fileID, orgID)
	if err != nil {
		return mapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrStorageRecordNotFound
	}

	log.Debug().
		Str("file_id", fileID.String()).
		Msg("Deleted storage record")

	return nil
}
