package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SystemCache holds cluster-wide maintenance state: the current period
// marker and the reset lock.
type SystemCache interface {
	// CurrentPeriod returns "" when no marker has been written yet.
	CurrentPeriod(ctx context.Context) (string, error)
	SetPeriod(ctx context.Context, period string) error
	// AcquireResetLock returns the lock token and true when the lock was
	// free. The lock expires on its own after ttl.
	AcquireResetLock(ctx context.Context, ttl time.Duration) (string, bool, error)
	// ReleaseResetLock deletes the lock only while token still owns it.
	ReleaseResetLock(ctx context.Context, token string) error
	// Wipe deletes every key matching the given patterns.
	Wipe(ctx context.Context, patterns ...string) (int64, error)
}

type systemCache struct {
	client redis.UniversalClient
}

// NewSystemCache creates a new system cache
func NewSystemCache(client redis.UniversalClient) SystemCache {
	return &systemCache{client: client}
}

var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

func (c *systemCache) CurrentPeriod(ctx context.Context) (string, error) {
	val, err := c.client.Get(ctx, periodKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *systemCache) SetPeriod(ctx context.Context, period string) error {
	return c.client.Set(ctx, periodKey, period, 0).Err()
}

func (c *systemCache) AcquireResetLock(ctx context.Context, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, resetLockKey, token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

func (c *systemCache) ReleaseResetLock(ctx context.Context, token string) error {
	return releaseLockScript.Run(ctx, c.client, []string{resetLockKey}, token).Err()
}

func (c *systemCache) Wipe(ctx context.Context, patterns ...string) (int64, error) {
	var deleted int64
	for _, pattern := range patterns {
		keys, err := scanKeys(ctx, c.client, pattern)
		if err != nil {
			return deleted, err
		}
		for start := 0; start < len(keys); start += 500 {
			end := start + 500
			if end > len(keys) {
				end = len(keys)
			}
			n, err := c.client.Del(ctx, keys[start:end]...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
	}
	return deleted, nil
}
