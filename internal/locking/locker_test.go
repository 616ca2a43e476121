package locking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExcludesSecondHolder(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	lock, err := l.Acquire(ctx, "challenge:1", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "challenge:1", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	_, err = l.Acquire(ctx, "challenge:2", time.Minute)
	assert.NoError(t, err)

	require.NoError(t, lock.Release(ctx))
	_, err = l.Acquire(ctx, "challenge:1", time.Minute)
	assert.NoError(t, err)
}

func TestLocalLockerExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.now = func() time.Time { return now }

	stale, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	fresh, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	// releasing the expired lock must not free the new holder's key
	require.NoError(t, stale.Release(ctx))
	_, err = l.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, fresh.Release(ctx))
}

type fakeRedis struct {
	values    map[string]interface{}
	setErr    error
	evalCalls int
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.evalCalls++
	if f.values[keys[0]] == args[0] {
		delete(f.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestRedisLockerAcquireRelease(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{values: map[string]interface{}{}}
	l := NewRedisLocker(fake, "settle:")

	lock, err := l.Acquire(ctx, "c1", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, fake.values, "settle:c1")

	_, err = l.Acquire(ctx, "c1", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, lock.Release(ctx))
	assert.NotContains(t, fake.values, "settle:c1")
	assert.Equal(t, 1, fake.evalCalls)

	// a second release finds someone else's token or nothing and is harmless
	require.NoError(t, lock.Release(ctx))
}

func TestRedisLockerSurfacesErrors(t *testing.T) {
	fake := &fakeRedis{values: map[string]interface{}{}, setErr: errors.New("connection refused")}
	_, err := NewRedisLocker(fake, "").Acquire(context.Background(), "c1", time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAcquired)
}
