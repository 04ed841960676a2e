package models

import (
	"time"

	"github.com/google/uuid"
)

// Default resource ceilings applied when an organization has no explicit
// configuration stored.
const (
	DefaultMaxUsers          = 10
	DefaultMaxConcurrentJobs = 5
)

// RetentionWindow is how long an archived organization is kept before the
// cleanup sweep permanently deletes it and everything it owns.
const RetentionWindow = 90 * 24 * time.Hour

// Organization represents a tenant in the system. Every user, upload, job,
// and analysis result belongs to exactly one organization.
type Organization struct {
	OrgID   uuid.UUID // UUIDv7
	Name    string
	Email   string // unique
	Contact string

	// Resource ceilings. Nil means "use the default".
	MaxUsers          *int
	MaxConcurrentJobs *int

	// TotalMemberCount is a denormalized count of users belonging to this
	// organization, maintained in the same transaction as every user
	// insert/delete.
	TotalMemberCount int

	// ArchivedAt marks the organization as soft-deleted. Archived
	// organizations are purged by the cleanup sweep once the retention
	// window has elapsed.
	ArchivedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveMaxUsers returns the user ceiling, substituting the default when
// unset. Zero or negative stored values are invalid configuration and are
// clamped to 1.
func (o *Organization) EffectiveMaxUsers() int {
	return effectiveLimit(o.MaxUsers, DefaultMaxUsers)
}

// EffectiveMaxConcurrentJobs returns the concurrent-job ceiling, substituting
// the default when unset. Zero or negative stored values are clamped to 1.
func (o *Organization) EffectiveMaxConcurrentJobs() int {
	return effectiveLimit(o.MaxConcurrentJobs, DefaultMaxConcurrentJobs)
}

// IsArchived returns true once the organization has been soft-deleted.
func (o *Organization) IsArchived() bool {
	return o.ArchivedAt != nil
}

// PurgeEligible reports whether the organization was archived long enough ago
// to be permanently deleted.
func (o *Organization) PurgeEligible(now time.Time) bool {
	return o.ArchivedAt != nil && !o.ArchivedAt.After(now.Add(-RetentionWindow))
}

func effectiveLimit(configured *int, def int) int {
	if configured == nil {
		return def
	}
	if *configured < 1 {
		return 1
	}
	return *configured
}
