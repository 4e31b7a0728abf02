package audit

import "time"

// Action enumerates auditable permission changes.
type Action string

const (
	ActionGrant  Action = "GRANT"
	ActionRevoke Action = "REVOKE"
	// ActionReparent records a structural move. The upstream system audited
	// only grants and revokes; hierarchy moves change effective sets just the
	// same, so they are recorded here too.
	ActionReparent Action = "REPARENT"
)

// Valid reports whether the action is a known value.
func (a Action) Valid() bool {
	switch a {
	case ActionGrant, ActionRevoke, ActionReparent:
		return true
	}
	return false
}

// Entry is one immutable change record. PermissionID is nil for REPARENT
// entries; Meta carries structured context such as old/new parent.
type Entry struct {
	RoleID       int64
	PermissionID *int64
	Action       Action
	ActorID      int64
	Meta         map[string]any
}

// ChangeRecord is the read model returned to reporting surfaces.
type ChangeRecord struct {
	ID                 int64          `json:"id"`
	RoleID             int64          `json:"role_id"`
	RoleName           string         `json:"role_name"`
	PermissionID       *int64         `json:"permission_id,omitempty"`
	PermissionCodename string         `json:"permission_codename,omitempty"`
	Action             Action         `json:"action"`
	ActorID            int64          `json:"actor_id"`
	ActorEmail         string         `json:"actor_email,omitempty"`
	Meta               map[string]any `json:"meta,omitempty"`
	ChangedAt          time.Time      `json:"changed_at"`
}

// Filters narrows the audit listing. Zero values mean "no filter".
type Filters struct {
	RoleID   int64
	ActorID  int64
	Action   Action
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}
