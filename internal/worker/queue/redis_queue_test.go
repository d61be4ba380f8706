package queue

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisQueueClosed(t *testing.T) {
	// Unreachable on purpose: a closed queue must not touch Redis.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	q := NewRedisQueue(rdb, "mediarelay:test")

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	_, err := q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, q.Push(context.Background(), slot("r1")), ErrClosed)
}
