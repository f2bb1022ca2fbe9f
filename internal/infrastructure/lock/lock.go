// Package lock provides short-lived named locks used to keep one emission per
// sale in flight: a Redis implementation for multi-instance deployments and an
// in-process one for single-instance runs and tests.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"comanda/pkg/logger"
)

// RedisClient is the subset of go-redis used by RedisLocker.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by someone else is never released by us.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// releaseTimeout bounds the unlock round-trip.
const releaseTimeout = 2 * time.Second

// RedisLocker takes locks with SET NX PX.
type RedisLocker struct {
	client RedisClient
	prefix string
}

// NewRedisLocker creates a locker; every key is prefixed with prefix.
func NewRedisLocker(client RedisClient, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

// TryLock acquires name for at most ttl without waiting.
// acquired is false when someone else holds the lock.
func (l *RedisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(), acquired bool, err error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	unlock = func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			if err := l.client.Eval(rctx, releaseScript, []string{key}, token).Err(); err != nil {
				logger.Warn(ctx, "release lock failed; it will expire", "key", key, "error", err)
			}
		})
	}
	return unlock, true, nil
}

// MemoryLocker keeps locks in a map. Expired entries are reclaimed on access.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryLock
	now   func() time.Time
	seqNo uint64
}

type memoryLock struct {
	owner uint64
	until time.Time
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryLock), now: time.Now}
}

// TryLock implements the same contract as RedisLocker.TryLock.
func (l *MemoryLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(), acquired bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[name]; ok && now.Before(cur.until) {
		return nil, false, nil
	}

	l.seqNo++
	owner := l.seqNo
	l.held[name] = memoryLock{owner: owner, until: now.Add(ttl)}

	var once sync.Once
	unlock = func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.held[name]; ok && cur.owner == owner {
				delete(l.held, name)
			}
		})
	}
	return unlock, true, nil
}
