// Package lock guards against overlapping sync runs across process
// instances. The Redis implementation holds a single expiring key; the
// TTL bounds how long a crashed instance can block the next run.
package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"certsync/internal/masterlist"
	"certsync/pkg/result"
)

const (
	defaultKey = "certsync:run-lock"
	defaultTTL = 10 * time.Minute
)

// releaseScript deletes the key only when it still holds our token, so an
// instance whose lease expired cannot release a lock now owned by another.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// RedisLock is a lease-based run lock on a single Redis key.
type RedisLock struct {
	client *redis.Client
	logger *slog.Logger
	key    string
	ttl    time.Duration
}

// RedisOption configures a RedisLock.
type RedisOption func(*RedisLock)

// WithKey overrides the lock key.
func WithKey(key string) RedisOption {
	return func(l *RedisLock) {
		if key != "" {
			l.key = key
		}
	}
}

// WithTTL overrides the lease duration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLock) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLogger sets the lock logger.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(l *RedisLock) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedis constructs a Redis-backed run lock.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisLock {
	l := &RedisLock{
		client: client,
		logger: slog.Default(),
		key:    defaultKey,
		ttl:    defaultTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// TryAcquire takes the lease. A lock held elsewhere is a business-rule
// failure, not an error; Redis being unreachable is an external-service
// failure.
func (l *RedisLock) TryAcquire(ctx context.Context) result.Result[masterlist.UnlockFunc] {
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return result.FailCause[masterlist.UnlockFunc](
			result.CodeExternalService, "run lock unavailable", err)
	}
	if !acquired {
		return result.Fail[masterlist.UnlockFunc](
			result.CodeBusinessRule, "sync already running on another instance")
	}

	l.logger.Debug("run lock acquired", "key", l.key, "ttl", l.ttl)
	return result.Ok(masterlist.UnlockFunc(func(ctx context.Context) {
		released, err := l.client.Eval(ctx, releaseScript, []string{l.key}, token).Int()
		if err != nil {
			l.logger.Error("run lock release failed", "key", l.key, "error", err)
			return
		}
		if released == 0 {
			l.logger.Warn("run lock lease expired before release", "key", l.key)
		}
	}))
}

// Noop is the run lock used when Redis is not configured. It always
// grants; single-instance deployments rely on the in-process status guard
// instead.
type Noop struct{}

// TryAcquire always succeeds with a no-op release.
func (Noop) TryAcquire(context.Context) result.Result[masterlist.UnlockFunc] {
	return result.Ok(masterlist.UnlockFunc(func(context.Context) {}))
}
