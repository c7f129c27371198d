package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPermissionCache shares resolved permission sets across engine nodes
// via Redis (key: authgate:perms:{userID}, JSON string array, TTL-bounded).
// Any Redis error degrades to a cache miss; the resolver rebuilds from the
// primary store.
type RedisPermissionCache struct {
	client *redis.Client
	keyFmt string // format string, e.g. "authgate:perms:%s"
}

func NewRedisPermissionCache(client *redis.Client) *RedisPermissionCache {
	return &RedisPermissionCache{client: client, keyFmt: "authgate:perms:%s"}
}

func (r *RedisPermissionCache) key(userID string) string {
	return fmt.Sprintf(r.keyFmt, userID)
}

func (r *RedisPermissionCache) Get(userID string) ([]string, bool) {
	raw, err := r.client.Get(context.Background(), r.key(userID)).Result()
	if err != nil {
		return nil, false
	}
	var perms []string
	if err := json.Unmarshal([]byte(raw), &perms); err != nil {
		return nil, false
	}
	return perms, true
}

func (r *RedisPermissionCache) Set(userID string, permissions []string, ttl time.Duration) {
	data, err := json.Marshal(permissions)
	if err != nil {
		return
	}
	_ = r.client.Set(context.Background(), r.key(userID), string(data), ttl).Err()
}

func (r *RedisPermissionCache) Invalidate(userID string) {
	_ = r.client.Del(context.Background(), r.key(userID)).Err()
}
