package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/audiolens/scribed/internal/blob"
	"github.com/audiolens/scribed/internal/metrics"
	"github.com/audiolens/scribed/internal/models"
	"github.com/audiolens/scribed/internal/store"
)

// StorageManager owns the blob-plus-metadata write and delete sequences.
// The invariant it protects: a storage record exists if and only if its blob
// exists. Writes go blob-first with a compensating blob delete when the row
// insert fails; deletes go blob-first so a crash between the two steps can
// only leave an orphaned row pointing at a missing blob, which is detected,
// not a live row silently pointing at reclaimed data.
type StorageManager struct {
	records store.StorageStore
	orgs    store.OrganizationStore
	blobs   blob.Store
	logger  zerolog.Logger
}

// NewStorageManager creates a storage manager.
func NewStorageManager(records store.StorageStore, orgs store.OrganizationStore, blobs blob.Store, logger zerolog.Logger) *StorageManager {
	return &StorageManager{
		records: records,
		orgs:    orgs,
		blobs:   blobs,
		logger:  logger.With().Str("component", "storage").Logger(),
	}
}

// Upload writes the audio blob and its metadata row.
func (m *StorageManager) Upload(ctx context.Context, body io.Reader, filename, mimetype string, size int64, orgID uuid.UUID) (*models.StorageRecord, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrValidation)
	}
	if size > models.MaxUploadBytes {
		return nil, fmt.Errorf("%w: file size %d exceeds limit of %d bytes", ErrValidation, size, models.MaxUploadBytes)
	}
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrValidation)
	}

	org, err := m.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.IsArchived() {
		return nil, store.ErrOrganizationArchived
	}

	now := time.Now()
	key := blobKey(orgID, filename, now)

	url, err := m.blobs.Put(ctx, key, body, mimetype, size)
	if err != nil {
		// No metadata row exists yet, nothing to compensate.
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	rec := &models.StorageRecord{
		FileID:     uuid.Must(uuid.NewV7()),
		OrgID:      orgID,
		URL:        url,
		Filename:   filename,
		Mimetype:   mimetype,
		SizeBytes:  size,
		UploadedAt: now,
		UpdatedAt:  now,
	}

	if err := m.records.Create(ctx, rec); err != nil {
		// Compensating delete of the just-written blob. Best effort: an
		// orphaned blob is tolerable, an orphaned metadata row is not.
		if delErr := m.blobs.Delete(ctx, key); delErr != nil {
			m.logger.Error().
				Err(delErr).
				Str("key", key).
				Str("org_id", orgID.String()).
				Msg("Compensating blob delete failed, blob orphaned")
		}
		metrics.UploadCompensations.Inc()
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	m.logger.Info().
		Str("file_id", rec.FileID.String()).
		Str("org_id", orgID.String()).
		Str("filename", filename).
		Int64("size_bytes", size).
		Msg("Uploaded file")

	return rec, nil
}

// Get returns the metadata row, scoped to orgID unless the caller is
// privileged (orgID nil).
func (m *StorageManager) Get(ctx context.Context, fileID uuid.UUID, orgID *uuid.UUID) (*models.StorageRecord, error) {
	return m.records.Get(ctx, fileID, orgID)
}

// Open returns a reader over the stored blob together with its metadata row,
// scoped to orgID unless the caller is privileged.
func (m *StorageManager) Open(ctx context.Context, fileID uuid.UUID, orgID *uuid.UUID) (io.ReadCloser, *models.StorageRecord, error) {
	rec, err := m.records.Get(ctx, fileID, orgID)
	if err != nil {
		return nil, nil, err
	}

	key, err := m.blobs.KeyFromURL(rec.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrConsistency, err)
	}

	body, err := m.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			// The row outlived its blob: the invariant is broken and the
			// caller must know.
			m.logger.Error().
				Str("file_id", fileID.String()).
				Str("key", key).
				Msg("Metadata row references a missing blob")
			return nil, nil, fmt.Errorf("%w: blob for %s is missing", ErrConsistency, fileID)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return body, rec, nil
}

// UpdateMetadata changes the filename/mimetype of a record.
func (m *StorageManager) UpdateMetadata(ctx context.Context, fileID uuid.UUID, orgID *uuid.UUID, filename, mimetype string) (*models.StorageRecord, error) {
	rec, err := m.records.Get(ctx, fileID, orgID)
	if err != nil {
		return nil, err
	}

	if filename != "" {
		rec.Filename = filename
	}
	if mimetype != "" {
		rec.Mimetype = mimetype
	}

	if err := m.records.Update(ctx, rec); err != nil {
		return nil, err
	}

	return rec, nil
}

// Delete removes the blob first, then the metadata row. If the blob delete
// fails the row is left in place so the blob remains reachable for a retry.
// If the row delete fails after the blob is gone, the dangling row is a
// consistency error needing operator attention.
func (m *StorageManager) Delete(ctx context.Context, fileID uuid.UUID, orgID *uuid.UUID) error {
	rec, err := m.records.Get(ctx, fileID, orgID)
	if err != nil {
		return err
	}

	key, err := m.blobs.KeyFromURL(rec.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConsistency, err)
	}

	if err := m.blobs.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := m.records.Delete(ctx, fileID, orgID); err != nil {
		m.logger.Error().
			Err(err).
			Str("file_id", fileID.String()).
			Str("key", key).
			Msg("Metadata delete failed after blob delete, record is dangling")
		return fmt.Errorf("%w: metadata row for %s references a deleted blob: %v", ErrConsistency, fileID, err)
	}

	m.logger.Info().
		Str("file_id", fileID.String()).
		Msg("Deleted file")

	return nil
}

// PresignedURL returns a short-lived read URL for the record's blob.
func (m *StorageManager) PresignedURL(ctx context.Context, fileID uuid.UUID, orgID *uuid.UUID, ttl time.Duration) (string, error) {
	rec, err := m.records.Get(ctx, fileID, orgID)
	if err != nil {
		return "", err
	}

	key, err := m.blobs.KeyFromURL(rec.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConsistency, err)
	}

	url, err := m.blobs.Presign(ctx, key, ttl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return url, nil
}

// blobKey builds a collision-resistant storage key: org-scoped and
// time-prefixed, keeping only the base of the client-supplied filename.
func blobKey(orgID uuid.UUID, filename string, now time.Time) string {
	return fmt.Sprintf("%s/%d-%s", orgID, now.UnixNano(), path.Base(filename))
}
