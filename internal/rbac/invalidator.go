package rbac

import (
	"context"
	"fmt"
	"log/slog"
)

// HierarchyReader answers descendant closure queries.
type HierarchyReader interface {
	DescendantIDs(ctx context.Context, roleID int64) ([]int64, error)
}

// Invalidator is the only component allowed to evict effective-set cache
// entries. Inheritance flows downward, so a change to a role's direct
// permissions or parent link affects exactly that role and its descendants;
// ancestors and unrelated roles keep their entries.
type Invalidator struct {
	store  HierarchyReader
	cache  *EffectiveCache
	logger *slog.Logger
}

// NewInvalidator builds an invalidator.
func NewInvalidator(store HierarchyReader, cache *EffectiveCache, logger *slog.Logger) *Invalidator {
	return &Invalidator{store: store, cache: cache, logger: logger}
}

// Invalidate evicts the role's entry together with its whole descendant
// closure and bumps each evicted role's generation counter, so an in-flight
// resolution computed from pre-mutation state cannot repopulate the entries.
// Mutating callers must not report success until this returns nil.
func (inv *Invalidator) Invalidate(ctx context.Context, roleID int64) error {
	descendants, err := inv.store.DescendantIDs(ctx, roleID)
	if err != nil {
		return fmt.Errorf("rbac: descendant closure of role %d: %w", roleID, err)
	}
	ids := append([]int64{roleID}, descendants...)
	if err := inv.cache.Delete(ctx, ids...); err != nil {
		return err
	}
	if inv.logger != nil {
		inv.logger.Debug("evicted effective permission cache",
			slog.Int64("role_id", roleID),
			slog.Int("evicted", len(ids)))
	}
	return nil
}
