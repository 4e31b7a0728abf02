package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T, maxWait time.Duration) (*MutationLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewMutationLocker(client, time.Minute, maxWait), mr
}

func TestAcquireAndRelease(t *testing.T) {
	locker, mr := newTestLocker(t, 100*time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, RoleLockKey(7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mr.Exists(RoleLockKey(7)) {
		t.Fatal("expected lock key to exist after acquire")
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists(RoleLockKey(7)) {
		t.Fatal("expected lock key to be deleted after release")
	}
}

func TestAcquireContention(t *testing.T) {
	locker, _ := newTestLocker(t, 80*time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, HierarchyLockKey())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = release(ctx) }()

	if _, err := locker.Acquire(ctx, HierarchyLockKey()); !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}

func TestReleaseOnlyDeletesOwnToken(t *testing.T) {
	locker, mr := newTestLocker(t, 50*time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, RoleLockKey(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Simulate another writer taking over after the TTL expired.
	mr.Set(RoleLockKey(1), "someone-else")
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, err := mr.Get(RoleLockKey(1))
	if err != nil || got != "someone-else" {
		t.Fatalf("expected foreign token to survive release, got %q err %v", got, err)
	}
}

func TestAcquireAfterRelease(t *testing.T) {
	locker, _ := newTestLocker(t, 50*time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, RoleLockKey(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	release2, err := locker.Acquire(ctx, RoleLockKey(2))
	if err != nil {
		t.Fatalf("expected re-acquire to succeed, got %v", err)
	}
	_ = release2(ctx)
}
