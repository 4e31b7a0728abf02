package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// genTTL bounds how long a generation counter outlives its last bump. It must
// exceed the entry TTL by a wide margin so an in-flight warm never compares
// against an expired counter.
const genTTL = 24 * time.Hour

// setIfGenScript stores an entry only while the role's generation counter
// still matches the value the writer sampled before reading the store. A
// counter bumped by an eviction in between means the data may predate a
// committed mutation, so the write is discarded.
var setIfGenScript = redis.NewScript(`
local cur = redis.call("get", KEYS[1])
if cur == false then
	cur = "0"
end
if cur ~= ARGV[1] then
	return 0
end
redis.call("set", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// evictScript deletes each entry and bumps its generation counter in one
// atomic step, so a concurrent conditional write cannot slip between the two.
var evictScript = redis.NewScript(`
for i = 1, #KEYS, 2 do
	redis.call("incr", KEYS[i])
	redis.call("expire", KEYS[i], ARGV[1])
	redis.call("del", KEYS[i+1])
end
return 1
`)

// EffectiveCache stores computed effective permission sets in Redis, one JSON
// entry per role. It is populated by the resolver on misses and evicted
// exclusively by the Invalidator; nothing else writes these keys. Each role
// also carries a generation counter bumped on eviction, which fences off
// in-flight resolutions computed from pre-mutation state. The TTL is a safety
// net, not the coherence mechanism.
type EffectiveCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewEffectiveCache instantiates the cache helper.
func NewEffectiveCache(client *redis.Client, ttl time.Duration) *EffectiveCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &EffectiveCache{client: client, ttl: ttl}
}

func effectiveKey(roleID int64) string {
	return fmt.Sprintf("warden:rbac:effective:%d", roleID)
}

func genKey(roleID int64) string {
	return fmt.Sprintf("warden:rbac:gen:%d", roleID)
}

// Get loads the cached effective set for a role. The second return reports
// whether a valid entry existed.
func (c *EffectiveCache) Get(ctx context.Context, roleID int64) ([]Permission, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	payload, err := c.client.Get(ctx, effectiveKey(roleID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("rbac: cache get role %d: %w", roleID, err)
	}
	var perms []Permission
	if err := json.Unmarshal(payload, &perms); err != nil {
		// Undecodable entries are treated as misses so a bad write cannot
		// wedge resolution.
		return nil, false, nil
	}
	return perms, true, nil
}

// Generation returns the role's current generation counter. A role that has
// never been evicted reports "0".
func (c *EffectiveCache) Generation(ctx context.Context, roleID int64) (string, error) {
	if c == nil || c.client == nil {
		return "0", nil
	}
	gen, err := c.client.Get(ctx, genKey(roleID)).Result()
	if err == redis.Nil {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("rbac: cache generation role %d: %w", roleID, err)
	}
	return gen, nil
}

// Set stores the effective set for a role, provided no eviction bumped the
// role's generation since gen was sampled. The writer must sample gen via
// Generation before its first store read. Returns whether the entry was
// stored; a discarded write is not an error.
func (c *EffectiveCache) Set(ctx context.Context, roleID int64, perms []Permission, gen string) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	payload, err := json.Marshal(perms)
	if err != nil {
		return false, fmt.Errorf("rbac: cache marshal role %d: %w", roleID, err)
	}
	stored, err := setIfGenScript.Run(ctx, c.client,
		[]string{genKey(roleID), effectiveKey(roleID)},
		gen, payload, strconv.FormatInt(c.ttl.Milliseconds(), 10)).Int()
	if err != nil {
		return false, fmt.Errorf("rbac: cache set role %d: %w", roleID, err)
	}
	return stored == 1, nil
}

// Delete evicts the entries for the given roles and bumps each role's
// generation counter, fencing off in-flight warms computed from pre-eviction
// state.
func (c *EffectiveCache) Delete(ctx context.Context, roleIDs ...int64) error {
	if c == nil || c.client == nil || len(roleIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(roleIDs)*2)
	for _, id := range roleIDs {
		keys = append(keys, genKey(id), effectiveKey(id))
	}
	if err := evictScript.Run(ctx, c.client, keys, int64(genTTL/time.Second)).Err(); err != nil {
		return fmt.Errorf("rbac: cache delete: %w", err)
	}
	return nil
}
