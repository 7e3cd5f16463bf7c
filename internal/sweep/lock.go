package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLockKey is the redis key guarding the lapse sweep.
const DefaultLockKey = "grantkit:sweep:lock"

// ErrLockHeld is returned by Acquire when another replica owns the lock.
var ErrLockHeld = errors.New("sweep: lock held by another runner")

// releaseScript deletes the key only if it still carries our token, so a
// runner whose TTL elapsed cannot drop a lock re-acquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a single-holder lease stored in redis.
type Lock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewLock creates a lock on key that expires after ttl if never released.
func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	if key == "" {
		key = DefaultLockKey
	}
	return &Lock{client: client, key: key, ttl: ttl}
}

// Acquire takes the lock. The returned func releases it.
func (l *Lock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}, nil
}
