package users

import "time"

// User is an account managed by the external identity layer. Warden only
// cares about the single role link; a roleless user has the empty effective
// permission set.
type User struct {
	ID          int64
	Email       string
	RoleID      *int64
	IsActive    bool
	LastLoginIP string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
