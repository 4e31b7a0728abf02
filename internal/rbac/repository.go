package rbac

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/platform/db"
	"github.com/wardenhq/warden/internal/roles"
)

// PGStore is the PostgreSQL implementation of Store. Hierarchy queries are
// delegated to the roles repository, which owns that table; audit writes go
// through the recorder, which owns the change log. This store only touches
// permissions and role_permissions directly.
type PGStore struct {
	pool      *pgxpool.Pool
	db        db.DBTX
	hierarchy *roles.Repository
	recorder  *audit.Recorder
}

// NewStore constructs a store over the pool.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{
		pool:      pool,
		db:        pool,
		hierarchy: roles.NewRepository(pool),
		recorder:  audit.NewRecorder(pool),
	}
}

// WithTx runs fn with a store bound to a single RepeatableRead transaction.
func (s *PGStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		bound := &PGStore{
			pool:      s.pool,
			db:        tx,
			hierarchy: s.hierarchy.WithTx(tx),
			recorder:  s.recorder.WithTx(tx),
		}
		return fn(ctx, bound)
	})
}

func (s *PGStore) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	return s.hierarchy.RoleExists(ctx, roleID)
}

func (s *PGStore) GetRole(ctx context.Context, roleID int64) (roles.Role, error) {
	return s.hierarchy.GetRole(ctx, roleID)
}

func (s *PGStore) AncestorIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return s.hierarchy.AncestorIDs(ctx, roleID)
}

func (s *PGStore) DescendantIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return s.hierarchy.DescendantIDs(ctx, roleID)
}

func (s *PGStore) AllRoleIDs(ctx context.Context) ([]int64, error) {
	return s.hierarchy.AllRoleIDs(ctx)
}

func (s *PGStore) SetParent(ctx context.Context, roleID int64, parentID *int64, actorID int64) error {
	return s.hierarchy.SetParent(ctx, roleID, parentID, actorID)
}

func (s *PGStore) RecordChange(ctx context.Context, e audit.Entry) error {
	return s.recorder.Record(ctx, e)
}

const permissionColumns = `id, codename, name, subsystem`

// ListPermissions returns the whole catalog ordered by subsystem then codename.
func (s *PGStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY subsystem, codename`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// PermissionsByCodenames resolves codenames against the catalog. Missing
// codenames are simply absent from the result; callers decide whether that is
// an error.
func (s *PGStore) PermissionsByCodenames(ctx context.Context, codenames []string) ([]Permission, error) {
	rows, err := s.db.Query(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE codename = ANY($1)`, codenames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// UpsertPermission seeds or refreshes one catalog entry. The codename is the
// identity; descriptive fields follow the catalog definition.
func (s *PGStore) UpsertPermission(ctx context.Context, def Definition) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO permissions (codename, name, subsystem)
		VALUES ($1, $2, $3)
		ON CONFLICT (codename) DO UPDATE SET name = EXCLUDED.name, subsystem = EXCLUDED.subsystem`,
		def.Codename, def.Name, def.Subsystem)
	return err
}

// DirectPermissions returns the role's non-inherited grants.
func (s *PGStore) DirectPermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := s.db.Query(ctx, `
		SELECT p.id, p.codename, p.name, p.subsystem
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// Grant adds a direct permission. Returns false when the pair already existed;
// granting twice is a no-op, not an error.
func (s *PGStore) Grant(ctx context.Context, roleID, permissionID int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT (role_id, permission_id) DO NOTHING`,
		roleID, permissionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Revoke removes a direct permission. Returns false when nothing was granted.
func (s *PGStore) Revoke(ctx context.Context, roleID, permissionID int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	var result []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Codename, &p.Name, &p.Subsystem); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
