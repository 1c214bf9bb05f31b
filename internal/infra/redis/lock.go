// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"fmt"
	"time"

	"ai-reply-assistant/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Locker guards a job attempt so two workers never run side effects for the
// same job at once, even if a lease expires mid-attempt.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

var _ Locker = (*RedisLocker)(nil)

type RedisLocker struct {
	cli *redis.Client
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.cli}
}

// JobLockKey is the lock key for one generation job.
func JobLockKey(jobID string) string {
	return fmt.Sprintf("job-lock:%s", jobID)
}

// TryLock makes a single attempt; a held lock returns domain.ErrLocked.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", domain.Transient("redis.setnx", err)
	}
	if !ok {
		return "", domain.ErrLocked
	}
	return token, nil
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Unlock releases key only if token still owns it.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}
