package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"fiado/backend/internal/domain"
)

const keyPrefix = "pending:"

// RedisStore shares pending operations between replicas. Keys outlive
// ExpiresAt by a retention window so that the first read after expiry can
// still report ErrExpired; after that redis drops the key on its own.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
	now       func() time.Time
}

func NewRedisStore(addr string, password string, db int, retention time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreWithClient(client, retention)
}

func NewRedisStoreWithClient(client *redis.Client, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = time.Hour
	}
	return &RedisStore{client: client, retention: retention, now: time.Now}
}

func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// redisKey length-prefixes the account id so that no account/conversation
// pair can collide with another one containing a colon.
func redisKey(accountID string, conversationID string) string {
	return fmt.Sprintf("%s%d:%s:%s", keyPrefix, len(accountID), accountID, conversationID)
}

func (s *RedisStore) Get(ctx context.Context, accountID string, conversationID string) (*domain.PendingOperation, error) {
	val, err := s.client.Get(ctx, redisKey(accountID, conversationID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var op domain.PendingOperation
	if err := json.Unmarshal([]byte(val), &op); err != nil {
		return nil, err
	}
	if op.Expired(s.now()) {
		if err := s.Delete(ctx, accountID, conversationID); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}
	return &op, nil
}

func (s *RedisStore) Set(ctx context.Context, op domain.PendingOperation) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return err
	}
	ttl := op.ExpiresAt.Sub(s.now()) + s.retention
	if ttl <= 0 {
		ttl = s.retention
	}
	return s.client.Set(ctx, redisKey(op.AccountID, op.ConversationID), payload, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, accountID string, conversationID string) error {
	return s.client.Del(ctx, redisKey(accountID, conversationID)).Err()
}
