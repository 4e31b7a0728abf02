package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardenhq/warden/internal/platform/db"
	"github.com/wardenhq/warden/internal/shared"
)

// Recorder appends immutable rows to permission_change_log. Rows are never
// updated or deleted. A failed write must abort the enclosing mutation, which
// is why Record wraps every failure in ErrAuditWriteFailed and why the
// recorder is bound into the mutation's transaction via WithTx.
type Recorder struct {
	db db.DBTX
}

// NewRecorder constructs a recorder writing through the pool.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{db: pool}
}

// WithTx returns a copy of the recorder bound to the given transaction.
func (r *Recorder) WithTx(tx pgx.Tx) *Recorder {
	return &Recorder{db: tx}
}

// Record persists one change entry.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if !e.Action.Valid() {
		return fmt.Errorf("audit: unknown action %q: %w", e.Action, shared.ErrAuditWriteFailed)
	}
	var meta []byte
	if e.Meta != nil {
		var err error
		meta, err = json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("audit: marshal meta: %w", shared.ErrAuditWriteFailed)
		}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO permission_change_log (role_id, permission_id, action, actor_id, meta)
		VALUES ($1, $2, $3, $4, $5)`,
		e.RoleID, e.PermissionID, string(e.Action), e.ActorID, meta)
	if err != nil {
		return fmt.Errorf("audit: insert change log: %v: %w", err, shared.ErrAuditWriteFailed)
	}
	return nil
}
