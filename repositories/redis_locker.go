package repositories

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	lockKeyPrefix    = "import-lock:"
	lockPollInterval = 200 * time.Millisecond
)

// releaseScript deletes the lock only while it is still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lock only while it is still held by the caller.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker serializes imports into one document across workers with SET NX.
type RedisLocker struct {
	client     redis.Cmdable
	owner      string
	ttl        time.Duration
	interval   time.Duration
	renewEvery time.Duration
	logger     *zap.Logger
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func NewRedisLocker(client redis.Cmdable, owner string, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	renewEvery := ttl / 3
	if renewEvery <= 0 {
		renewEvery = lockPollInterval
	}
	return &RedisLocker{
		client:     client,
		owner:      owner,
		ttl:        ttl,
		interval:   lockPollInterval,
		renewEvery: renewEvery,
		logger:     logger,
	}
}

// Lock blocks until the lock is acquired or ctx is done. The TTL is renewed while the lock
// is held, so imports longer than the TTL keep it.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockKeyPrefix + key
	for {
		ok, err := l.client.SetNX(ctx, redisKey, l.owner, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock failure: %w", err)
		}
		if ok {
			stop := make(chan struct{})
			done := make(chan struct{})
			go l.keepAlive(redisKey, stop, done)

			var once sync.Once
			return func() {
				once.Do(func() {
					close(stop)
					<-done
					l.release(redisKey)
				})
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock %s: %w", key, ctx.Err())
		case <-time.After(l.interval):
		}
	}
}

func (l *RedisLocker) keepAlive(redisKey string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.renewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := l.renew(redisKey); err != nil {
				l.logger.Warn("failed to renew import lock", zap.String("key", redisKey), zap.Error(err))
			}
		}
	}
}

func (l *RedisLocker) renew(redisKey string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := renewScript.Run(ctx, l.client, []string{redisKey}, l.owner, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("redis lock renew failure: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("lock %s is no longer held", redisKey)
	}
	return nil
}

func (l *RedisLocker) release(redisKey string) {
	// the import context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := releaseScript.Run(ctx, l.client, []string{redisKey}, l.owner).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Warn("failed to release import lock", zap.String("key", redisKey), zap.Error(err))
	}
}
