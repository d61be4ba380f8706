package descriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces the description keys.
const DefaultPrefix = "mediarelay:desc:"

// RedisStore shares tokens between processes. Take uses GETDEL so a token is
// redeemed at most once.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, prefix: DefaultPrefix, ttl: ttl}
}

func (s *RedisStore) Put(ctx context.Context, text string) (string, error) {
	token := uuid.NewString()
	if err := s.rdb.Set(ctx, s.prefix+token, text, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisStore) Take(ctx context.Context, token string) (string, error) {
	text, err := s.rdb.GetDel(ctx, s.prefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrExpired
	}
	if err != nil {
		return "", err
	}
	return text, nil
}
