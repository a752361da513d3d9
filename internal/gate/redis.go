package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisGate serializes conversations across replicas with a redis lock per
// conversation. The lock TTL bounds how long a crashed holder blocks others.
type RedisGate struct {
	locker  *redislock.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
	log     zerolog.Logger
}

func NewRedisGate(client redis.UniversalClient, ttl time.Duration, log zerolog.Logger) *RedisGate {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisGate{
		locker:  redislock.New(client),
		ttl:     ttl,
		retries: 50,
		backoff: 200 * time.Millisecond,
		log:     log,
	}
}

func (g *RedisGate) Acquire(ctx context.Context, conversationID string) (func(), error) {
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(g.backoff), g.retries),
	}
	lock, err := g.locker.Obtain(ctx, lockKey(conversationID), g.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, fmt.Errorf("obtain conversation lock: %w", err)
	}

	return func() {
		// the request context may already be done; release on a fresh one
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			g.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("release conversation lock")
		}
	}, nil
}

func lockKey(conversationID string) string {
	return "lock:conversation:" + conversationID
}
