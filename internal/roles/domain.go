package roles

import "time"

// Role is a named node in the single-parent hierarchy. Permissions granted to
// a role are inherited by every descendant.
type Role struct {
	ID          int64
	Name        string
	Description string
	ParentID    *int64
	CreatedBy   *int64
	UpdatedBy   *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateRoleParams carries the fields needed to insert a role.
type CreateRoleParams struct {
	Name        string
	Description string
	ParentID    *int64
	ActorID     int64
}
