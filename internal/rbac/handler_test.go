package rbac

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wardenhq/warden/internal/shared"
)

type allowAllSource struct{}

func (allowAllSource) EffectivePermissionsForUser(ctx context.Context, userID int64) ([]Permission, error) {
	return []Permission{
		{Codename: "role.view"},
		{Codename: "role.edit"},
		{Codename: "permission.manage"},
	}, nil
}

func newTestRouter(t *testing.T) (chi.Router, *memStore, *fakeInvalidator) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newMemStore()
	locker := &fakeLocker{}
	inv := &fakeInvalidator{}
	service := NewService(store, locker, inv, logger)

	cache, _ := newTestCache(t)
	resolver := NewResolver(store, cache, logger)

	mw := Middleware{Source: allowAllSource{}, Logger: logger}
	handler := NewHandler(logger, service, resolver, mw)

	r := chi.NewRouter()
	r.Route("/roles", handler.MountRoleRoutes)
	r.Route("/permissions", handler.MountCatalogRoutes)
	return r, store, inv
}

func doJSON(t *testing.T, router chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req = req.WithContext(shared.ContextWithActor(req.Context(), 42))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestApplyBulkEndpoint(t *testing.T) {
	router, store, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/roles/3/permissions", `{"grant":["post.edit"],"revoke":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result BulkResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Granted) != 1 || result.Granted[0] != "post.edit" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !store.granted[3][11] {
		t.Fatal("expected grant to be persisted")
	}
}

func TestApplyBulkEndpointRejectsMalformedBody(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/roles/3/permissions", `{"grant": not-json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestApplyBulkEndpointUnknownRole(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/roles/99/permissions", `{"grant":["post.edit"]}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestEffectivePermissionsEndpoint(t *testing.T) {
	router, store, _ := newTestRouter(t)
	store.granted[1] = map[int64]bool{10: true}
	store.granted[3] = map[int64]bool{12: true}

	rec := doJSON(t, router, http.MethodGet, "/roles/3/permissions/effective", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		RoleID      int64        `json:"role_id"`
		Permissions []Permission `json:"permissions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.RoleID != 3 || len(payload.Permissions) != 2 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestSetParentEndpointRejectsCycle(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPut, "/roles/1/parent", `{"parent_id":3}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSetParentEndpointSuccess(t *testing.T) {
	router, store, inv := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPut, "/roles/3/parent", `{"parent_id":1}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := store.roles[3].ParentID; got == nil || *got != 1 {
		t.Fatalf("expected parent 1, got %v", got)
	}
	if len(inv.roleIDs) != 1 {
		t.Fatal("expected cache eviction after reparent")
	}
}

func TestCatalogEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/permissions/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "post.view") {
		t.Fatalf("expected catalog entries, got %s", rec.Body.String())
	}
}
