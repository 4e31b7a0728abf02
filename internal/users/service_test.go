package users

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/wardenhq/warden/internal/rbac"
	"github.com/wardenhq/warden/internal/shared"
)

type stubRepo struct {
	users    map[int64]User
	assigned map[int64]*int64
}

func (s *stubRepo) GetUser(ctx context.Context, id int64) (User, error) {
	u, ok := s.users[id]
	if !ok {
		return User{}, fmt.Errorf("user: %w", shared.ErrNotFound)
	}
	return u, nil
}

func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("user: %w", shared.ErrNotFound)
}

func (s *stubRepo) ListUsers(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *stubRepo) AssignRole(ctx context.Context, userID int64, roleID *int64) error {
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("user %d: %w", userID, shared.ErrNotFound)
	}
	if s.assigned == nil {
		s.assigned = map[int64]*int64{}
	}
	s.assigned[userID] = roleID
	u := s.users[userID]
	u.RoleID = roleID
	s.users[userID] = u
	return nil
}

type stubRoles struct {
	existing map[int64]bool
}

func (s stubRoles) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	return s.existing[roleID], nil
}

type stubResolver struct {
	perms map[int64][]rbac.Permission
	calls int
}

func (s *stubResolver) EffectivePermissions(ctx context.Context, roleID int64) ([]rbac.Permission, error) {
	s.calls++
	return s.perms[roleID], nil
}

func newTestService() (*Service, *stubRepo, *stubResolver) {
	editor := int64(2)
	repo := &stubRepo{users: map[int64]User{
		1: {ID: 1, Email: "admin@warden.local", RoleID: &editor, IsActive: true},
		2: {ID: 2, Email: "drifter@warden.local", IsActive: true},
	}}
	resolver := &stubResolver{perms: map[int64][]rbac.Permission{
		2: {{Codename: "post.edit"}, {Codename: "post.view"}},
	}}
	svc := NewService(repo, stubRoles{existing: map[int64]bool{1: true, 2: true}}, resolver, nil)
	return svc, repo, resolver
}

func TestEffectivePermissionsViaRole(t *testing.T) {
	svc, _, resolver := newTestService()

	perms, err := svc.EffectivePermissionsForUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(perms) != 2 {
		t.Fatalf("expected 2 permissions, got %d", len(perms))
	}
	if resolver.calls != 1 {
		t.Fatalf("expected one resolver call, got %d", resolver.calls)
	}
}

func TestRolelessUserHasEmptySet(t *testing.T) {
	svc, _, resolver := newTestService()

	perms, err := svc.EffectivePermissionsForUser(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perms == nil || len(perms) != 0 {
		t.Fatalf("expected empty non-nil set, got %v", perms)
	}
	if resolver.calls != 0 {
		t.Fatal("roleless user must not reach the resolver")
	}
}

func TestEffectivePermissionsUnknownUser(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.EffectivePermissionsForUser(context.Background(), 99); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHasPermission(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	ok, err := svc.HasPermission(ctx, 1, "post.edit")
	if err != nil || !ok {
		t.Fatalf("expected granted, got ok=%v err=%v", ok, err)
	}
	ok, err = svc.HasPermission(ctx, 1, "user.delete")
	if err != nil || ok {
		t.Fatalf("expected denied, got ok=%v err=%v", ok, err)
	}
	ok, err = svc.HasPermission(ctx, 2, "post.view")
	if err != nil || ok {
		t.Fatalf("roleless user must be denied, got ok=%v err=%v", ok, err)
	}
}

func TestAssignRoleValidatesTarget(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	missing := int64(99)
	if err := svc.AssignRole(ctx, 2, &missing); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	viewer := int64(1)
	if err := svc.AssignRole(ctx, 2, &viewer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := repo.assigned[2]; got == nil || *got != 1 {
		t.Fatalf("expected assignment to role 1, got %v", got)
	}

	if err := svc.AssignRole(ctx, 2, nil); err != nil {
		t.Fatalf("clearing the role link: %v", err)
	}
	if repo.assigned[2] != nil {
		t.Fatal("expected cleared role link")
	}
}
