package codestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps code hashes in Redis under "<prefix>:<principal>" with a native TTL,
// so several portal processes can share one delivery/verification state.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore. An empty prefix defaults to "otp".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(principalID string) string {
	return s.prefix + ":" + principalID
}

func (s *RedisStore) Put(ctx context.Context, principalID, hash string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(principalID), hash, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, principalID string) (string, bool, error) {
	hash, err := s.redis.Get(ctx, s.key(principalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return hash, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, principalID string) error {
	if err := s.redis.Del(ctx, s.key(principalID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}
