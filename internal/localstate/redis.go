package localstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// OperatorHash is the hash that holds operator's state. Operators sharing one Redis never
// see each other's tokens or flags.
func OperatorHash(operator string) string {
	return "portal:state:" + operator
}

// RedisStore keeps values in a Redis hash so several hosts of the same operator share one state.
type RedisStore struct {
	redis redis.UniversalClient
	hash  string
}

// NewRedisStore returns a RedisStore using the given hash key. An empty hash defaults to "portal:state".
func NewRedisStore(client redis.UniversalClient, hash string) *RedisStore {
	if hash == "" {
		hash = "portal:state"
	}
	return &RedisStore{redis: client, hash: hash}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.redis.HGet(ctx, s.hash, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.redis.HSet(ctx, s.hash, key, value).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.HDel(ctx, s.hash, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
