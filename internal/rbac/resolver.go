package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/wardenhq/warden/internal/shared"
)

// ReadStore is the committed-state surface the resolver reads from. It is
// never handed a transaction: resolution must observe committed rows only.
type ReadStore interface {
	RoleExists(ctx context.Context, roleID int64) (bool, error)
	AncestorIDs(ctx context.Context, roleID int64) ([]int64, error)
	DirectPermissions(ctx context.Context, roleID int64) ([]Permission, error)
}

// Resolver computes effective permission sets: a role's direct permissions
// unioned with every ancestor's. Results are served from the EffectiveCache;
// a miss recomputes the chain and warms the cache for every role visited.
type Resolver struct {
	store  ReadStore
	cache  *EffectiveCache
	group  singleflight.Group
	logger *slog.Logger
}

// NewResolver builds a resolver.
func NewResolver(store ReadStore, cache *EffectiveCache, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, cache: cache, logger: logger}
}

// EffectivePermissions returns the role's effective set, sorted by codename.
// Concurrent misses for the same role collapse into one recomputation.
func (r *Resolver) EffectivePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if perms, ok, err := r.cache.Get(ctx, roleID); err != nil {
		return nil, err
	} else if ok {
		return perms, nil
	}

	v, err, _ := r.group.Do(strconv.FormatInt(roleID, 10), func() (any, error) {
		// Re-check under singleflight: a concurrent caller may have already
		// populated the entry.
		if perms, ok, err := r.cache.Get(ctx, roleID); err != nil {
			return nil, err
		} else if ok {
			return perms, nil
		}
		return r.resolveAndWarm(ctx, roleID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Permission), nil
}

// resolveAndWarm recomputes the effective set for roleID and caches every role
// along the ancestor chain, so one resolution warms the whole path to the
// root.
func (r *Resolver) resolveAndWarm(ctx context.Context, roleID int64) ([]Permission, error) {
	exists, err := r.store.RoleExists(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("role %d: %w", roleID, shared.ErrNotFound)
	}

	ancestors, err := r.store.AncestorIDs(ctx, roleID)
	if err != nil {
		return nil, err
	}
	chain := append([]int64{roleID}, ancestors...)

	// Sample generation counters before any store read. An eviction landing
	// between the sample and the warm write bumps the counter, and the write
	// is discarded instead of resurrecting pre-mutation data. Any mutation
	// affecting a role's effective set evicts that role itself, so its own
	// counter is a sufficient fence.
	gens := make(map[int64]string, len(chain))
	for _, id := range chain {
		gen, err := r.cache.Generation(ctx, id)
		if err != nil {
			return nil, err
		}
		gens[id] = gen
	}

	// Find the nearest ancestor with a valid cached entry; its set already
	// unions everything above it, so computation restarts from there.
	set := make(map[string]Permission)
	start := len(chain)
	for i := 1; i < len(chain); i++ {
		cached, ok, err := r.cache.Get(ctx, chain[i])
		if err != nil {
			return nil, err
		}
		if ok {
			for _, p := range cached {
				set[p.Codename] = p
			}
			start = i
			break
		}
	}

	// Walk from the highest uncached role down to the requested one. At each
	// level the accumulated union is exactly that role's effective set.
	var result []Permission
	for i := start - 1; i >= 0; i-- {
		direct, err := r.store.DirectPermissions(ctx, chain[i])
		if err != nil {
			return nil, err
		}
		for _, p := range direct {
			set[p.Codename] = p
		}
		snapshot := sortedPermissions(set)
		stored, err := r.cache.Set(ctx, chain[i], snapshot, gens[chain[i]])
		if err != nil && r.logger != nil {
			r.logger.Warn("warm effective cache", slog.Int64("role_id", chain[i]), slog.Any("error", err))
		}
		if err == nil && !stored && r.logger != nil {
			r.logger.Debug("discarded stale cache warm", slog.Int64("role_id", chain[i]))
		}
		if i == 0 {
			result = snapshot
		}
	}
	return result, nil
}

// Recompute derives the effective set straight from the store, bypassing and
// never touching the cache. The coherence scan uses it as the reference value.
func (r *Resolver) Recompute(ctx context.Context, roleID int64) ([]Permission, error) {
	exists, err := r.store.RoleExists(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("role %d: %w", roleID, shared.ErrNotFound)
	}
	ancestors, err := r.store.AncestorIDs(ctx, roleID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]Permission)
	for _, id := range append([]int64{roleID}, ancestors...) {
		direct, err := r.store.DirectPermissions(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, p := range direct {
			set[p.Codename] = p
		}
	}
	return sortedPermissions(set), nil
}

func sortedPermissions(set map[string]Permission) []Permission {
	result := make([]Permission, 0, len(set))
	for _, p := range set {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Codename < result[j].Codename })
	return result
}
