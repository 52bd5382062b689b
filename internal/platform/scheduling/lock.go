package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock held elsewhere")

// Locker grants short-lived exclusive leases on a key.
type Locker interface {
	// Acquire returns a release func, or ErrLockHeld.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// NopLocker always grants the lock. Used with a single replica.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

// releaseScript deletes the key only if it still carries our token, so an
// expired lease cannot remove a lock taken over by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	full := l.prefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", full, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{full}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release %s: %w", full, err)
		}
		return nil
	}, nil
}

// NewRedisClient parses a redis:// URL and checks the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Exclusive wraps job so that it only runs where the lock on key is won.
// Losing the race is logged and skipped; the lease expires after ttl.
func Exclusive(locker Locker, key string, ttl time.Duration, logger zerolog.Logger, job Job) Job {
	return func(ctx context.Context) {
		release, err := locker.Acquire(ctx, key, ttl)
		if errors.Is(err, ErrLockHeld) {
			logger.Info().Str("lock", key).Msg("job already running elsewhere, skipping")
			return
		}
		if err != nil {
			logger.Error().Err(err).Str("lock", key).Msg("could not acquire job lock, skipping")
			return
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				logger.Warn().Err(err).Str("lock", key).Msg("release job lock")
			}
		}()
		job(ctx)
	}
}
