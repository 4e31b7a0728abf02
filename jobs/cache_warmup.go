package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/wardenhq/warden/internal/rbac"
)

const defaultWarmupConcurrency = 8

// RoleSource enumerates the roles a maintenance job should visit.
type RoleSource interface {
	AllRoleIDs(ctx context.Context) ([]int64, error)
}

// EffectiveResolver is the resolution surface the warmup job drives. Resolving
// a role populates its cache entry as a side effect.
type EffectiveResolver interface {
	EffectivePermissions(ctx context.Context, roleID int64) ([]rbac.Permission, error)
}

// CacheWarmupJob resolves every role once so reads after a cold start or mass
// invalidation hit warm entries.
type CacheWarmupJob struct {
	Roles    RoleSource
	Resolver EffectiveResolver
	Logger   *slog.Logger
	clock    func() time.Time
}

// NewCacheWarmupJob wires dependencies for the warmup handler.
func NewCacheWarmupJob(roles RoleSource, resolver EffectiveResolver, logger *slog.Logger) *CacheWarmupJob {
	return &CacheWarmupJob{
		Roles:    roles,
		Resolver: resolver,
		Logger:   logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes cache warmup tasks.
func (j *CacheWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Roles == nil || j.Resolver == nil {
		return errors.New("cache warmup: handler not configured")
	}
	var payload CacheWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	concurrency := payload.Concurrency
	if concurrency <= 0 {
		concurrency = defaultWarmupConcurrency
	}

	logger := j.logger()
	started := j.now()
	logger.Info("starting cache warmup", slog.Int("concurrency", concurrency))

	ids, err := j.Roles.AllRoleIDs(ctx)
	if err != nil {
		logger.Error("load role ids", slog.Any("error", err))
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if _, err := j.Resolver.EffectivePermissions(gctx, id); err != nil {
				logger.Error("warm role", slog.Int64("role_id", id), slog.Any("error", err))
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("completed cache warmup", slog.Int("roles", len(ids)), slog.Duration("duration", time.Since(started)))
	return nil
}

func (j *CacheWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCacheWarmup))
	}
	return slog.Default().With(slog.String("job", TaskCacheWarmup))
}

func (j *CacheWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
