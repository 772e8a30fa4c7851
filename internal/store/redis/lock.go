package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another holder owns the lock.
var ErrLocked = errors.New("redis: lock held")

// releaseScript deletes the key only when it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AnalysisLockKey is the lock guarding analysis generation for one form.
func AnalysisLockKey(formID int64) string {
	return "lock:analysis:" + strconv.FormatInt(formID, 10)
}

// Acquire takes key for ttl and returns a release func. ErrLocked means the
// key is taken.
func (ps *PubSub) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()

	ok, err := ps.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis.PubSub.Acquire: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("redis.PubSub.Acquire %s: %w", key, ErrLocked)
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, ps.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("redis.PubSub.Release %s: %w", key, err)
		}
		return nil
	}
	return release, nil
}
