package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("slot lock not acquired")

const slotLockPrefix = "lock:slot:"

// Locker guards the check-then-write section of a booking for one
// doctor slot. A held lock is reported as ErrLockNotAcquired, never waited on.
type Locker interface {
	WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// SlotKey names the lock for a doctor on a date at a slot label.
func SlotKey(doctorID int64, date, slot string) string {
	return fmt.Sprintf("%d:%s:%s", doctorID, date, slot)
}

// releaseIfOwner deletes the key only while it still carries our token, so
// an expired lock re-taken by another request is left alone.
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSlotLocker shares slot locks between every api-server instance
// pointed at the same Redis. fn gets at most ttl to finish.
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) Locker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &redisSlotLocker{client: client, ttl: ttl}
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	redisKey := slotLockPrefix + key
	token := uuid.NewString()

	err := l.client.SetArgs(ctx, redisKey, token, redis.SetArgs{Mode: "NX", TTL: l.ttl}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrLockNotAcquired
	case err != nil:
		return fmt.Errorf("acquire slot lock %s: %w", key, err)
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = releaseIfOwner.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
	}()

	lockedCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	return fn(lockedCtx)
}
