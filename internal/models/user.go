package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles for authorization. Admin users may act across tenants; ordinary
// users are scoped to their own organization.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User represents a member of an organization.
type User struct {
	UserID uuid.UUID // UUIDv7
	OrgID  uuid.UUID // FK to organizations
	Name   string
	Email  string // unique
	Role   string // "admin" or "user"

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin returns true for privileged cross-tenant users.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
