package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/wardenhq/warden/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	CreateRole(ctx context.Context, p CreateRoleParams) (Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string, actorID int64) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	HasReferences(ctx context.Context, id int64) (bool, error)
	RoleExists(ctx context.Context, id int64) (bool, error)
	Ancestors(ctx context.Context, roleID int64) ([]Role, error)
}

// Invalidator evicts cached effective permission sets.
type Invalidator interface {
	Invalidate(ctx context.Context, roleID int64) error
}

// Service handles role lifecycle. Parent reassignment is deliberately absent
// here: it mutates the inheritance chain and belongs to the rbac mutation
// coordinator.
type Service struct {
	repo        RepositoryPort
	invalidator Invalidator
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, invalidator Invalidator) *Service {
	return &Service{repo: repo, invalidator: invalidator}
}

// Create inserts a new role after validating the parent reference.
func (s *Service) Create(ctx context.Context, name, description string, parentID *int64, actorID int64) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("role name required: %w", shared.ErrValidation)
	}
	if parentID != nil {
		exists, err := s.repo.RoleExists(ctx, *parentID)
		if err != nil {
			return Role{}, err
		}
		if !exists {
			return Role{}, fmt.Errorf("parent role %d: %w", *parentID, shared.ErrNotFound)
		}
	}
	return s.repo.CreateRole(ctx, CreateRoleParams{
		Name:        name,
		Description: strings.TrimSpace(description),
		ParentID:    parentID,
		ActorID:     actorID,
	})
}

// Get fetches a role by ID.
func (s *Service) Get(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// Ancestors returns the role's ancestor chain, nearest parent first.
func (s *Service) Ancestors(ctx context.Context, id int64) ([]Role, error) {
	if _, err := s.repo.GetRole(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Ancestors(ctx, id)
}

// Update rewrites name and description. Neither affects effective permission
// sets, so no cache eviction happens here.
func (s *Service) Update(ctx context.Context, id int64, name, description string, actorID int64) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("role name required: %w", shared.ErrValidation)
	}
	return s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description), actorID)
}

// Delete removes a role under the restrict policy: any referencing user or
// child role blocks the delete. The cached entry of the removed role is
// evicted; descendants cannot exist at this point.
func (s *Service) Delete(ctx context.Context, id int64) error {
	referenced, err := s.repo.HasReferences(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("role %d: %w", id, shared.ErrRoleReferenced)
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	return s.invalidator.Invalidate(ctx, id)
}
