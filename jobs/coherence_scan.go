package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wardenhq/warden/internal/rbac"
	"github.com/wardenhq/warden/internal/shared"
)

// EffectiveRecomputer derives a role's effective set straight from the store,
// bypassing the cache.
type EffectiveRecomputer interface {
	Recompute(ctx context.Context, roleID int64) ([]rbac.Permission, error)
}

// CacheProbe is the slice of the cache the scan needs: inspect and evict.
type CacheProbe interface {
	Get(ctx context.Context, roleID int64) ([]rbac.Permission, bool, error)
	Delete(ctx context.Context, roleIDs ...int64) error
}

// CoherenceScanJob compares every cached effective set against a fresh
// recomputation. Divergence means an invalidation was missed; each divergent
// role is logged and, when repair is requested, evicted.
type CoherenceScanJob struct {
	Roles    RoleSource
	Resolver EffectiveRecomputer
	Cache    CacheProbe
	Logger   *slog.Logger
	clock    func() time.Time
}

// NewCoherenceScanJob wires dependencies for the scan handler.
func NewCoherenceScanJob(roles RoleSource, resolver EffectiveRecomputer, cache CacheProbe, logger *slog.Logger) *CoherenceScanJob {
	return &CoherenceScanJob{
		Roles:    roles,
		Resolver: resolver,
		Cache:    cache,
		Logger:   logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes coherence scan tasks.
func (j *CoherenceScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Roles == nil || j.Resolver == nil || j.Cache == nil {
		return errors.New("coherence scan: handler not configured")
	}
	var payload CoherenceScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger()
	started := j.now()
	logger.Info("starting coherence scan", slog.Bool("repair", payload.Repair))

	ids, err := j.Roles.AllRoleIDs(ctx)
	if err != nil {
		logger.Error("load role ids", slog.Any("error", err))
		return err
	}

	scanned, divergent := 0, 0
	for _, id := range ids {
		cached, ok, err := j.Cache.Get(ctx, id)
		if err != nil {
			logger.Error("read cached set", slog.Int64("role_id", id), slog.Any("error", err))
			return err
		}
		if !ok {
			continue
		}
		scanned++
		reference, err := j.Resolver.Recompute(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				// Role deleted between listing and recomputation.
				continue
			}
			logger.Error("recompute effective set", slog.Int64("role_id", id), slog.Any("error", err))
			return err
		}
		if sameCodenames(cached, reference) {
			continue
		}
		divergent++
		logger.Error("cached effective set diverges from store",
			slog.Int64("role_id", id),
			slog.Int("cached", len(cached)),
			slog.Int("recomputed", len(reference)),
			slog.Any("error", shared.ErrCacheInconsistent),
		)
		if payload.Repair {
			if err := j.Cache.Delete(ctx, id); err != nil {
				logger.Error("evict divergent entry", slog.Int64("role_id", id), slog.Any("error", err))
				return err
			}
		}
	}

	logger.Info("completed coherence scan",
		slog.Int("scanned", scanned),
		slog.Int("divergent", divergent),
		slog.Duration("duration", time.Since(started)),
	)
	if divergent > 0 && !payload.Repair {
		return shared.ErrCacheInconsistent
	}
	return nil
}

func sameCodenames(a, b []rbac.Permission) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, p := range a {
		set[p.Codename] = struct{}{}
	}
	for _, p := range b {
		if _, ok := set[p.Codename]; !ok {
			return false
		}
	}
	return true
}

func (j *CoherenceScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCoherenceScan))
	}
	return slog.Default().With(slog.String("job", TaskCoherenceScan))
}

func (j *CoherenceScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
