package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardenhq/warden/internal/platform/db"
	"github.com/wardenhq/warden/internal/shared"
)

// maxDepth caps hierarchy traversal. The acyclic invariant makes chains
// finite; anything this deep is a misconfigured deployment, not valid data.
const maxDepth = 64

// Repository provides PostgreSQL backed persistence for the role hierarchy.
// It owns the roles table and the parent links.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

const roleColumns = `id, name, description, parent_id, created_by, updated_by, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.ParentID, &role.CreatedBy, &role.UpdatedBy, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("role: %w", shared.ErrNotFound)
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, p CreateRoleParams) (Role, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO roles (name, description, parent_id, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING `+roleColumns,
		p.Name, p.Description, p.ParentID, p.ActorID)
	role, err := scanRole(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return Role{}, fmt.Errorf("role %q: %w", p.Name, shared.ErrDuplicateName)
			case "23503":
				return Role{}, fmt.Errorf("parent role: %w", shared.ErrNotFound)
			}
		}
		return Role{}, err
	}
	return role, nil
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.db.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.ParentID, &role.CreatedBy, &role.UpdatedBy, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	return result, rows.Err()
}

// UpdateRole updates name and description.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name, description string, actorID int64) (Role, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_by = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+roleColumns,
		id, name, description, actorID)
	role, err := scanRole(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Role{}, fmt.Errorf("role %q: %w", name, shared.ErrDuplicateName)
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role. Restrict policy: foreign keys from users and
// child roles block the delete.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("role %d: %w", id, shared.ErrRoleReferenced)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("role %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// HasReferences reports whether any user or child role points at the role.
func (r *Repository) HasReferences(ctx context.Context, id int64) (bool, error) {
	var referenced bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM roles WHERE parent_id = $1)
		    OR EXISTS (SELECT 1 FROM users WHERE role_id = $1)`, id).Scan(&referenced)
	return referenced, err
}

// RoleExists reports whether the role is present.
func (r *Repository) RoleExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// SetParent rewrites the parent link. Cycle validation is the caller's job and
// must run in the same transaction as this write.
func (r *Repository) SetParent(ctx context.Context, roleID int64, parentID *int64, actorID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE roles SET parent_id = $2, updated_by = $3, updated_at = NOW()
		WHERE id = $1`,
		roleID, parentID, actorID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("parent role: %w", shared.ErrNotFound)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("role %d: %w", roleID, shared.ErrNotFound)
	}
	return nil
}

// AncestorIDs walks the parent chain upward, nearest parent first.
func (r *Repository) AncestorIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		WITH RECURSIVE chain AS (
			SELECT r.id, r.parent_id, 0 AS depth FROM roles r WHERE r.id = $1
			UNION ALL
			SELECT p.id, p.parent_id, c.depth + 1
			FROM roles p JOIN chain c ON p.id = c.parent_id
			WHERE c.depth < $2
		)
		SELECT id FROM chain WHERE depth > 0 ORDER BY depth`,
		roleID, maxDepth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// Ancestors returns the full ancestor records, nearest parent first.
func (r *Repository) Ancestors(ctx context.Context, roleID int64) ([]Role, error) {
	rows, err := r.db.Query(ctx, `
		WITH RECURSIVE chain AS (
			SELECT r.*, 0 AS depth FROM roles r WHERE r.id = $1
			UNION ALL
			SELECT p.*, c.depth + 1
			FROM roles p JOIN chain c ON p.id = c.parent_id
			WHERE c.depth < $2
		)
		SELECT `+roleColumns+` FROM chain WHERE depth > 0 ORDER BY depth`,
		roleID, maxDepth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.ParentID, &role.CreatedBy, &role.UpdatedBy, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	return result, rows.Err()
}

// DescendantIDs returns every role reachable by following child links, the
// role itself excluded. There is no stored closure table; the subtree is
// recomputed on demand so the hierarchy stays the single source of truth.
func (r *Repository) DescendantIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		WITH RECURSIVE subtree AS (
			SELECT id, 0 AS depth FROM roles WHERE id = $1
			UNION ALL
			SELECT r.id, s.depth + 1
			FROM roles r JOIN subtree s ON r.parent_id = s.id
			WHERE s.depth < $2
		)
		SELECT id FROM subtree WHERE depth > 0`,
		roleID, maxDepth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// AllRoleIDs lists every role ID, used by the cache warmup job.
func (r *Repository) AllRoleIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

func collectIDs(rows pgx.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
