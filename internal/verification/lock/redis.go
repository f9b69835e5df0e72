package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "attest:lock:"

// releaseScript deletes the key only if it still holds the caller's owner
// token, so an expired holder cannot free a lock taken over by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisBackend stores lock records as keys with a server-side expiry.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	return b.client.SetNX(ctx, redisKeyPrefix+name, owner, ttl).Result()
}

func (b *RedisBackend) Release(ctx context.Context, name, owner string) error {
	return releaseScript.Run(ctx, b.client, []string{redisKeyPrefix + name}, owner).Err()
}
