package rbac

import (
	"context"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/roles"
)

// Permission represents an atomic capability. Codename is the stable machine
// name ("resource.action"); permissions are seeded from the catalog, never
// created by end users.
type Permission struct {
	ID        int64  `json:"-"`
	Codename  string `json:"codename"`
	Name      string `json:"name"`
	Subsystem string `json:"subsystem"`
}

// BulkResult summarizes one ApplyBulk call. NoOps lists codenames that were
// already in the requested state; they produce no audit entries.
type BulkResult struct {
	Granted []string `json:"granted"`
	Revoked []string `json:"revoked"`
	NoOps   []string `json:"no_ops"`
}

// TxStore is the storage surface the mutation coordinator and resolver work
// against. Implementations must be usable both inside and outside a
// transaction.
type TxStore interface {
	RoleExists(ctx context.Context, roleID int64) (bool, error)
	GetRole(ctx context.Context, roleID int64) (roles.Role, error)
	AncestorIDs(ctx context.Context, roleID int64) ([]int64, error)
	DescendantIDs(ctx context.Context, roleID int64) ([]int64, error)
	AllRoleIDs(ctx context.Context) ([]int64, error)
	SetParent(ctx context.Context, roleID int64, parentID *int64, actorID int64) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	PermissionsByCodenames(ctx context.Context, codenames []string) ([]Permission, error)
	UpsertPermission(ctx context.Context, def Definition) error

	DirectPermissions(ctx context.Context, roleID int64) ([]Permission, error)
	Grant(ctx context.Context, roleID, permissionID int64) (bool, error)
	Revoke(ctx context.Context, roleID, permissionID int64) (bool, error)

	RecordChange(ctx context.Context, e audit.Entry) error
}

// Store adds transactional execution on top of TxStore. Mutations run their
// validate-mutate-audit sequence inside WithTx so a failure at any step
// discards the whole batch.
type Store interface {
	TxStore
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
}
