package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxUploadBytes is the ceiling enforced on uploaded audio files.
const MaxUploadBytes = 50 * 1024 * 1024 // 50MB

// StorageRecord is the metadata row for one uploaded blob. A record exists
// if and only if the referenced blob exists in the blob store; the upload and
// delete paths enforce this with compensating actions.
type StorageRecord struct {
	FileID uuid.UUID // UUIDv7
	OrgID  uuid.UUID // FK to organizations

	URL       string // blob store URL, embeds the storage key
	Filename  string
	Mimetype  string
	SizeBytes int64

	UploadedAt time.Time
	UpdatedAt  time.Time
}
