package locking

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when another holder owns the lock
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out named, expiring locks
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Lock is a held lock. Release is safe to call after expiry.
type Lock interface {
	Release(ctx context.Context) error
}

// LocalLocker is a Locker for a single process
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localEntry
	now   func() time.Time
	nextT uint64
}

type localEntry struct {
	token   uint64
	expires time.Time
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localEntry), now: time.Now}
}

// Acquire takes key unless a live holder has it
func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, ErrNotAcquired
	}

	l.nextT++
	l.held[key] = localEntry{token: l.nextT, expires: now.Add(ttl)}
	return &localLock{locker: l, key: key, token: l.nextT}, nil
}

type localLock struct {
	locker *LocalLocker
	key    string
	token  uint64
}

func (k *localLock) Release(ctx context.Context) error {
	k.locker.mu.Lock()
	defer k.locker.mu.Unlock()

	if e, ok := k.locker.held[k.key]; ok && e.token == k.token {
		delete(k.locker.held, k.key)
	}
	return nil
}
