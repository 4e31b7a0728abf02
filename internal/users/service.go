package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wardenhq/warden/internal/rbac"
	"github.com/wardenhq/warden/internal/shared"
)

// RepositoryPort abstracts user persistence.
type RepositoryPort interface {
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	AssignRole(ctx context.Context, userID int64, roleID *int64) error
}

// RoleChecker verifies a role exists before linking users to it.
type RoleChecker interface {
	RoleExists(ctx context.Context, roleID int64) (bool, error)
}

// PermissionResolver resolves a role's effective permission set.
type PermissionResolver interface {
	EffectivePermissions(ctx context.Context, roleID int64) ([]rbac.Permission, error)
}

// Service implements user queries and the role assignment operation. It is
// also the bridge between accounts and authorization: middleware asks it for
// an actor's effective permissions.
type Service struct {
	repo     RepositoryPort
	roles    RoleChecker
	resolver PermissionResolver
	logger   *slog.Logger
}

// NewService constructs the user service.
func NewService(repo RepositoryPort, roles RoleChecker, resolver PermissionResolver, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: roles, resolver: resolver, logger: logger}
}

// Get returns a single user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// GetByEmail returns a single user by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.GetUserByEmail(ctx, email)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// AssignRole links a user to a role, or clears the link when roleID is nil.
// The user's permissions change immediately because resolution always starts
// from the role link.
func (s *Service) AssignRole(ctx context.Context, userID int64, roleID *int64) error {
	if roleID != nil {
		exists, err := s.roles.RoleExists(ctx, *roleID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("role %d: %w", *roleID, shared.ErrNotFound)
		}
	}
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Info("assigned user role", slog.Int64("user_id", userID), slog.Any("role_id", roleID))
	}
	return nil
}

// EffectivePermissionsForUser resolves a user's effective permission set via
// their role. A roleless user has no permissions. Satisfies the authorization
// middleware's source interface.
func (s *Service) EffectivePermissionsForUser(ctx context.Context, userID int64) ([]rbac.Permission, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.RoleID == nil {
		return []rbac.Permission{}, nil
	}
	return s.resolver.EffectivePermissions(ctx, *user.RoleID)
}

// HasPermission reports whether the user's effective set contains codename.
func (s *Service) HasPermission(ctx context.Context, userID int64, codename string) (bool, error) {
	perms, err := s.EffectivePermissionsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	codename = strings.ToLower(strings.TrimSpace(codename))
	for _, p := range perms {
		if strings.ToLower(p.Codename) == codename {
			return true, nil
		}
	}
	return false, nil
}
