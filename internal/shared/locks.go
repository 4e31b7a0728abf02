package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RoleLockKey builds the redis key serializing mutations of a single role's
// direct permission set.
func RoleLockKey(roleID int64) string {
	return fmt.Sprintf("warden:lock:role:%d", roleID)
}

// HierarchyLockKey builds the redis key serializing parent-link mutations.
// Re-parenting takes this single key: two concurrent re-parents of different
// roles can jointly form a cycle, so per-role locking is not enough.
func HierarchyLockKey() string {
	return "warden:lock:hierarchy"
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// MutationLocker provides exclusive redis-backed locks for writers. Readers
// never take these locks; the resolver read path stays lock-free.
type MutationLocker struct {
	client  *redis.Client
	ttl     time.Duration
	maxWait time.Duration
}

// NewMutationLocker constructs a locker. ttl bounds how long a crashed holder
// can block other writers; maxWait bounds how long an acquirer spins before
// giving up with ErrConcurrentModification.
func NewMutationLocker(client *redis.Client, ttl, maxWait time.Duration) *MutationLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}
	return &MutationLocker{client: client, ttl: ttl, maxWait: maxWait}
}

// Acquire takes the lock for key, returning a release func. The release func
// only deletes the key if this holder still owns it.
func (l *MutationLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.maxWait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("shared: acquire lock %s: %w", key, err)
		}
		if ok {
			release := func(ctx context.Context) error {
				return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
			}
			return release, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s held by another writer: %w", key, ErrConcurrentModification)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}
