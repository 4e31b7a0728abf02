package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wardenhq/warden/internal/shared"
)

type fakeSource struct {
	perms map[int64][]Permission
	err   error
}

func (f fakeSource) EffectivePermissionsForUser(ctx context.Context, userID int64) ([]Permission, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.perms[userID], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, mw func(http.Handler) http.Handler, actorID *int64) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if actorID != nil {
		req = req.WithContext(shared.ContextWithActor(req.Context(), *actorID))
	}
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)
	return rec
}

func TestRequireAnyAllowsMatchingActor(t *testing.T) {
	mw := Middleware{Source: fakeSource{perms: map[int64][]Permission{
		7: {{Codename: "role.view"}},
	}}}
	actor := int64(7)
	rec := doRequest(t, mw.RequireAny("role.view", "permission.manage"), &actor)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequireAnyDeniesActorWithoutPermission(t *testing.T) {
	mw := Middleware{Source: fakeSource{perms: map[int64][]Permission{
		7: {{Codename: "post.view"}},
	}}}
	actor := int64(7)
	rec := doRequest(t, mw.RequireAny("role.edit"), &actor)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireAnyDeniesMissingActor(t *testing.T) {
	mw := Middleware{Source: fakeSource{}}
	rec := doRequest(t, mw.RequireAny("role.view"), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	mw := Middleware{Source: fakeSource{perms: map[int64][]Permission{
		7: {{Codename: "role.view"}, {Codename: "role.edit"}},
		8: {{Codename: "role.view"}},
	}}}

	admin := int64(7)
	if rec := doRequest(t, mw.RequireAll("role.view", "role.edit"), &admin); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for full set, got %d", rec.Code)
	}
	partial := int64(8)
	if rec := doRequest(t, mw.RequireAll("role.view", "role.edit"), &partial); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for partial set, got %d", rec.Code)
	}
}

func TestResolutionFailureIsServerError(t *testing.T) {
	mw := Middleware{Source: fakeSource{err: errors.New("redis down")}}
	actor := int64(7)
	rec := doRequest(t, mw.RequireAny("role.view"), &actor)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestPermissionMatchIsCaseInsensitive(t *testing.T) {
	mw := Middleware{Source: fakeSource{perms: map[int64][]Permission{
		7: {{Codename: "Role.View"}},
	}}}
	actor := int64(7)
	rec := doRequest(t, mw.RequireAny("role.view"), &actor)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
