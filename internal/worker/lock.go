package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker guards a refresh so that only one batch runs at a time. TryLock
// returns ok=false when the lock is held elsewhere.
type Locker interface {
	TryLock(ctx context.Context, ttl time.Duration) (release func(), ok bool, err error)
}

// LocalLocker is an in-process lock for single-instance deployments.
type LocalLocker struct {
	mu sync.Mutex
}

func NewLocalLocker() *LocalLocker { return &LocalLocker{} }

func (l *LocalLocker) TryLock(context.Context, time.Duration) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is shared by every instance pointing at the same redis.
type RedisLocker struct {
	Rdb *redis.Client
	Key string
}

func NewRedisLocker(rdb *redis.Client, key string) *RedisLocker {
	if key == "" {
		key = "landlord:refresh:lock"
	}
	return &RedisLocker{Rdb: rdb, Key: key}
}

func (l *RedisLocker) TryLock(ctx context.Context, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.Rdb.SetNX(ctx, l.Key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.Rdb, []string{l.Key}, token).Err()
	}
	return release, true, nil
}
