package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/wardenhq/warden/internal/shared"
)

// fakeReadStore models a hierarchy as id -> parent with per-role direct
// grants. Viewer(1) <- Editor(2) <- Admin(3) is the shape most tests use.
type fakeReadStore struct {
	parents     map[int64]*int64
	direct      map[int64][]Permission
	directCalls map[int64]int
	onDirect    func(roleID int64)
}

func newFakeReadStore() *fakeReadStore {
	viewer := int64(1)
	editor := int64(2)
	return &fakeReadStore{
		parents: map[int64]*int64{1: nil, 2: &viewer, 3: &editor},
		direct: map[int64][]Permission{
			1: {{ID: 10, Codename: "post.view", Name: "View posts", Subsystem: "content"}},
			2: {{ID: 11, Codename: "post.edit", Name: "Edit posts", Subsystem: "content"}},
			3: {{ID: 12, Codename: "post.delete", Name: "Delete posts", Subsystem: "content"}},
		},
		directCalls: map[int64]int{},
	}
}

func (f *fakeReadStore) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	_, ok := f.parents[roleID]
	return ok, nil
}

func (f *fakeReadStore) AncestorIDs(ctx context.Context, roleID int64) ([]int64, error) {
	var chain []int64
	for p := f.parents[roleID]; p != nil; p = f.parents[*p] {
		chain = append(chain, *p)
	}
	return chain, nil
}

func (f *fakeReadStore) DirectPermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	f.directCalls[roleID]++
	perms := f.direct[roleID]
	if f.onDirect != nil {
		f.onDirect(roleID)
	}
	return perms, nil
}

func codenames(perms []Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.Codename)
	}
	return out
}

func TestEffectivePermissionsUnionsAncestorChain(t *testing.T) {
	store := newFakeReadStore()
	cache, _ := newTestCache(t)
	resolver := NewResolver(store, cache, nil)
	ctx := context.Background()

	perms, err := resolver.EffectivePermissions(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := codenames(perms)
	want := []string{"post.delete", "post.edit", "post.view"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestEffectivePermissionsLeafHasOnlyItsOwn(t *testing.T) {
	store := newFakeReadStore()
	cache, _ := newTestCache(t)
	resolver := NewResolver(store, cache, nil)

	perms, err := resolver.EffectivePermissions(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(perms) != 1 || perms[0].Codename != "post.view" {
		t.Fatalf("unexpected root set: %v", codenames(perms))
	}
}

func TestResolutionWarmsWholeChain(t *testing.T) {
	store := newFakeReadStore()
	cache, _ := newTestCache(t)
	resolver := NewResolver(store, cache, nil)
	ctx := context.Background()

	if _, err := resolver.EffectivePermissions(ctx, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Every role along the chain now has its own exact entry.
	mid, ok, err := cache.Get(ctx, 2)
	if err != nil || !ok {
		t.Fatalf("expected warmed entry for role 2, ok=%v err=%v", ok, err)
	}
	got := codenames(mid)
	if len(got) != 2 || got[0] != "post.edit" || got[1] != "post.view" {
		t.Fatalf("unexpected warmed set for role 2: %v", got)
	}
	if _, ok, _ := cache.Get(ctx, 1); !ok {
		t.Fatal("expected warmed entry for role 1")
	}
}

func TestCacheHitSkipsStore(t *testing.T) {
	store := newFakeReadStore()
	cache, _ := newTestCache(t)
	resolver := NewResolver(store, cache, nil)
	ctx := context.Background()

	if _, err := resolver.EffectivePermissions(ctx, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := store.directCalls[3]
	if _, err := resolver.EffectivePermissions(ctx, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.directCalls[3] != calls {
		t.Fatalf("expected cached read, store was queried again (%d -> %d)", calls, store.directCalls[3])
	}
}

func TestResolutionResumesFromCachedAncestor(t *testing.T) {
	store := newFakeReadStore()
	cache, _ := newTestCache(t)
	resolver := NewResolver(store, cache, nil)
	ctx := context.Background()

	// Warm the middle of the chain first.
	if _, err := resolver.EffectivePermissions(ctx, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rootCalls := store.directCalls[1]

	if _, err := resolver.EffectivePermissions(ctx, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.directCalls[1] != rootCalls {
		t.Fatal("expected resolution to resume from cached ancestor without revisiting the root")
	}
}

func TestDuplicateGrantsAcrossChainAppearOnce(t *testing.T) {
	store := newFakeReadStore()
	// post.view granted both at the root and directly on Admin.
	store.direct[3] = append(store.direct[3], Permission{ID: 10, Codename: "post.view", Name: "View posts", Subsystem: "content"})
	cache, _ := newTestCache(t)
	resolver := NewResolver(store, cache, nil)

	perms, err := resolver.EffectivePermissions(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := 0
	for _, p := range perms {
		if p.Codename == "post.view" {
			seen++
		}
	}
	if seen != 1 {
		t.Fatalf("expected post.view once, saw it %d times", seen)
	}
}

func TestEffectivePermissionsUnknownRole(t *testing.T) {
	store := newFakeReadStore()
	cache, _ := newTestCache(t)
	resolver := NewResolver(store, cache, nil)

	if _, err := resolver.EffectivePermissions(context.Background(), 99); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEvictionFencesInFlightResolution(t *testing.T) {
	store := newFakeReadStore()
	cache, _ := newTestCache(t)
	resolver := NewResolver(store, cache, nil)
	inv := NewInvalidator(fakeHierarchy{descendants: map[int64][]int64{}}, cache, nil)
	ctx := context.Background()

	// A revoke commits and invalidates after an in-flight resolution for the
	// same role has sampled the pre-mutation direct set but before it writes
	// the cache entry.
	fired := false
	store.onDirect = func(roleID int64) {
		if roleID != 2 || fired {
			return
		}
		fired = true
		store.direct[2] = nil
		if err := inv.Invalidate(ctx, 2); err != nil {
			t.Fatalf("invalidate: %v", err)
		}
	}

	stale, err := resolver.EffectivePermissions(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("in-flight read should still see the pre-mutation set, got %v", codenames(stale))
	}
	if _, ok, _ := cache.Get(ctx, 2); ok {
		t.Fatal("in-flight resolution must not repopulate an evicted entry")
	}

	perms, err := resolver.EffectivePermissions(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range perms {
		if p.Codename == "post.edit" {
			t.Fatal("revoked permission served after the mutation completed")
		}
	}
}

func TestRecomputeBypassesCache(t *testing.T) {
	store := newFakeReadStore()
	cache, _ := newTestCache(t)
	resolver := NewResolver(store, cache, nil)
	ctx := context.Background()

	// Poison the cache; Recompute must not read it or rewrite it.
	seedEntry(t, cache, 3, []Permission{{Codename: "user.delete"}})

	perms, err := resolver.Recompute(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range perms {
		if p.Codename == "user.delete" {
			t.Fatal("recompute consulted the cache")
		}
	}
	cached, ok, _ := cache.Get(ctx, 3)
	if !ok || len(cached) != 1 || cached[0].Codename != "user.delete" {
		t.Fatal("recompute must leave the cache untouched")
	}
}
