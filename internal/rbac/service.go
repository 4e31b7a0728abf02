package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/shared"
)

// Locker serializes writers. See shared.MutationLocker.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
}

// CacheInvalidator evicts a role's descendant closure from the cache.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, roleID int64) error
}

// Service is the mutation coordinator: it wraps bulk grant/revoke and parent
// reassignment in lock → validate → mutate → audit → commit → invalidate.
// Any failure before commit discards the whole batch; invalidation failure
// after commit is still reported as an error so no caller observes success
// while stale entries remain.
type Service struct {
	store       Store
	locker      Locker
	invalidator CacheInvalidator
	logger      *slog.Logger
}

// NewService builds the mutation coordinator.
func NewService(store Store, locker Locker, invalidator CacheInvalidator, logger *slog.Logger) *Service {
	return &Service{store: store, locker: locker, invalidator: invalidator, logger: logger}
}

// ApplyBulk grants and revokes direct permissions on one role as a single
// atomic unit. Already-granted grants and not-granted revokes are reported as
// no-ops and produce no audit entries. One invalid codename fails the whole
// batch with nothing applied.
func (s *Service) ApplyBulk(ctx context.Context, roleID int64, grants, revokes []string, actorID int64) (BulkResult, error) {
	grants = normalizeCodenames(grants)
	revokes = normalizeCodenames(revokes)
	if len(grants) == 0 && len(revokes) == 0 {
		return BulkResult{}, fmt.Errorf("empty grant and revoke sets: %w", shared.ErrValidation)
	}
	for _, c := range grants {
		for _, rc := range revokes {
			if c == rc {
				return BulkResult{}, fmt.Errorf("permission %q both granted and revoked: %w", c, shared.ErrValidation)
			}
		}
	}

	release, err := s.locker.Acquire(ctx, shared.RoleLockKey(roleID))
	if err != nil {
		return BulkResult{}, err
	}
	defer s.release(ctx, release)

	result := BulkResult{Granted: []string{}, Revoked: []string{}, NoOps: []string{}}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		exists, err := tx.RoleExists(ctx, roleID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("role %d: %w", roleID, shared.ErrNotFound)
		}

		byCodename, err := resolveCodenames(ctx, tx, append(append([]string{}, grants...), revokes...))
		if err != nil {
			return err
		}

		for _, codename := range grants {
			perm := byCodename[codename]
			applied, err := tx.Grant(ctx, roleID, perm.ID)
			if err != nil {
				return err
			}
			if !applied {
				result.NoOps = append(result.NoOps, codename)
				continue
			}
			permID := perm.ID
			if err := tx.RecordChange(ctx, audit.Entry{
				RoleID:       roleID,
				PermissionID: &permID,
				Action:       audit.ActionGrant,
				ActorID:      actorID,
			}); err != nil {
				return err
			}
			result.Granted = append(result.Granted, codename)
		}

		for _, codename := range revokes {
			perm := byCodename[codename]
			applied, err := tx.Revoke(ctx, roleID, perm.ID)
			if err != nil {
				return err
			}
			if !applied {
				result.NoOps = append(result.NoOps, codename)
				continue
			}
			permID := perm.ID
			if err := tx.RecordChange(ctx, audit.Entry{
				RoleID:       roleID,
				PermissionID: &permID,
				Action:       audit.ActionRevoke,
				ActorID:      actorID,
			}); err != nil {
				return err
			}
			result.Revoked = append(result.Revoked, codename)
		}
		return nil
	})
	if err != nil {
		return BulkResult{}, err
	}

	if len(result.Granted)+len(result.Revoked) > 0 {
		if err := s.invalidator.Invalidate(ctx, roleID); err != nil {
			return BulkResult{}, fmt.Errorf("rbac: invalidate after bulk apply on role %d: %w", roleID, err)
		}
	}
	if s.logger != nil {
		s.logger.Info("applied permission batch",
			slog.Int64("role_id", roleID),
			slog.Int64("actor_id", actorID),
			slog.Int("granted", len(result.Granted)),
			slog.Int("revoked", len(result.Revoked)),
			slog.Int("no_ops", len(result.NoOps)))
	}
	return result, nil
}

// SetParent reassigns a role's parent link. The cycle check walks upward from
// the proposed parent inside the same transaction as the write, and the
// hierarchy-wide lock keeps two concurrent reassignments from jointly forming
// a cycle. The moved role's descendant closure is evicted afterwards: its
// direct permissions did not change, but the chain composing its effective
// set did.
func (s *Service) SetParent(ctx context.Context, roleID int64, newParentID *int64, actorID int64) error {
	if newParentID != nil && *newParentID == roleID {
		return fmt.Errorf("role %d: %w", roleID, shared.ErrSelfParent)
	}

	release, err := s.locker.Acquire(ctx, shared.HierarchyLockKey())
	if err != nil {
		return err
	}
	defer s.release(ctx, release)

	changed := false
	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		role, err := tx.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if sameParent(role.ParentID, newParentID) {
			return nil
		}

		if newParentID != nil {
			exists, err := tx.RoleExists(ctx, *newParentID)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("parent role %d: %w", *newParentID, shared.ErrNotFound)
			}
			ancestors, err := tx.AncestorIDs(ctx, *newParentID)
			if err != nil {
				return err
			}
			for _, id := range ancestors {
				if id == roleID {
					return fmt.Errorf("role %d is an ancestor of proposed parent %d: %w", roleID, *newParentID, shared.ErrCycleDetected)
				}
			}
		}

		if err := tx.SetParent(ctx, roleID, newParentID, actorID); err != nil {
			return err
		}

		meta := map[string]any{"old_parent_id": role.ParentID, "new_parent_id": newParentID}
		if err := tx.RecordChange(ctx, audit.Entry{
			RoleID:  roleID,
			Action:  audit.ActionReparent,
			ActorID: actorID,
			Meta:    meta,
		}); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if err := s.invalidator.Invalidate(ctx, roleID); err != nil {
		return fmt.Errorf("rbac: invalidate after reparent of role %d: %w", roleID, err)
	}
	if s.logger != nil {
		s.logger.Info("reassigned role parent",
			slog.Int64("role_id", roleID),
			slog.Int64("actor_id", actorID))
	}
	return nil
}

// DirectPermissions lists a role's non-inherited grants.
func (s *Service) DirectPermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	exists, err := s.store.RoleExists(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("role %d: %w", roleID, shared.ErrNotFound)
	}
	return s.store.DirectPermissions(ctx, roleID)
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

func (s *Service) release(ctx context.Context, release func(context.Context) error) {
	if err := release(context.WithoutCancel(ctx)); err != nil && s.logger != nil {
		s.logger.Warn("release mutation lock", slog.Any("error", err))
	}
}

func resolveCodenames(ctx context.Context, tx TxStore, codenames []string) (map[string]Permission, error) {
	perms, err := tx.PermissionsByCodenames(ctx, codenames)
	if err != nil {
		return nil, err
	}
	byCodename := make(map[string]Permission, len(perms))
	for _, p := range perms {
		byCodename[p.Codename] = p
	}
	for _, c := range codenames {
		if _, ok := byCodename[c]; !ok {
			return nil, fmt.Errorf("permission %q: %w", c, shared.ErrNotFound)
		}
	}
	return byCodename, nil
}

func normalizeCodenames(codenames []string) []string {
	seen := make(map[string]struct{}, len(codenames))
	result := make([]string, 0, len(codenames))
	for _, c := range codenames {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		result = append(result, c)
	}
	return result
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
