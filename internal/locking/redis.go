package locking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// redisClient is the subset of go-redis used for locking
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker implements Locker with SET NX PX and a compare-and-delete release
type RedisLocker struct {
	client redisClient
	prefix string
}

// NewRedisLocker creates a locker whose keys start with prefix
func NewRedisLocker(client redisClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "lock:"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

// Acquire sets the lock key if absent
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	token := uuid.NewString()
	fullKey := l.prefix + key

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", fullKey, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	return &redisLock{client: l.client, key: fullKey, token: token}, nil
}

type redisLock struct {
	client redisClient
	key    string
	token  string
}

func (k *redisLock) Release(ctx context.Context) error {
	n, err := k.client.Eval(ctx, releaseScript, []string{k.key}, k.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", k.key, err)
	}
	if n == 0 {
		slog.Warn("lock expired before release", "key", k.key)
	}
	return nil
}
