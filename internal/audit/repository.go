package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardenhq/warden/internal/platform/db"
)

// Repository reads the change log for reporting. Writes go through Recorder
// only.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a read-only repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// ListChanges returns change records matching the filters, newest first,
// capped at limit with the given offset.
func (r *Repository) ListChanges(ctx context.Context, f Filters, limit, offset int) ([]ChangeRecord, error) {
	query := `
		SELECT l.id, l.role_id, ro.name, l.permission_id, COALESCE(p.codename, ''),
		       l.action, l.actor_id, COALESCE(u.email, ''), l.meta, l.changed_at
		FROM permission_change_log l
		JOIN roles ro ON ro.id = l.role_id
		LEFT JOIN permissions p ON p.id = l.permission_id
		LEFT JOIN users u ON u.id = l.actor_id
		WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.RoleID != 0 {
		query += ` AND l.role_id = ` + arg(f.RoleID)
	}
	if f.ActorID != 0 {
		query += ` AND l.actor_id = ` + arg(f.ActorID)
	}
	if f.Action != "" {
		query += ` AND l.action = ` + arg(string(f.Action))
	}
	if !f.From.IsZero() {
		query += ` AND l.changed_at >= ` + arg(f.From)
	}
	if !f.To.IsZero() {
		query += ` AND l.changed_at < ` + arg(f.To)
	}
	query += ` ORDER BY l.changed_at DESC, l.id DESC LIMIT ` + arg(limit) + ` OFFSET ` + arg(offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ChangeRecord
	for rows.Next() {
		var rec ChangeRecord
		var meta []byte
		if err := rows.Scan(&rec.ID, &rec.RoleID, &rec.RoleName, &rec.PermissionID, &rec.PermissionCodename,
			&rec.Action, &rec.ActorID, &rec.ActorEmail, &meta, &rec.ChangedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &rec.Meta)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
