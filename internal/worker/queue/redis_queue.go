package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"mediarelay/internal/media"
)

// DefaultBlock is how long one BRPOP waits before Pop re-checks its context.
const DefaultBlock = 5 * time.Second

// RedisQueue keeps JSON slots in a Redis list: LPUSH to enqueue, BRPOP to
// dequeue, so the oldest slot is served first.
type RedisQueue struct {
	rdb       *redis.Client
	queueName string
	block     time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

func NewRedisQueue(rdb *redis.Client, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName, block: DefaultBlock, closed: make(chan struct{})}
}

func (q *RedisQueue) isClosed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

func (q *RedisQueue) Push(ctx context.Context, slot media.Slot) error {
	if q.isClosed() {
		return ErrClosed
	}
	data, err := json.Marshal(slot)
	if err != nil {
		return fmt.Errorf("encode slot: %w", err)
	}
	return q.rdb.LPush(ctx, q.queueName, data).Err()
}

// Pop blocks until a slot arrives (BRPOP in DefaultBlock rounds). After Close
// it returns ErrClosed, at the latest when the current round ends; slots left
// in the list stay there for the next process.
func (q *RedisQueue) Pop(ctx context.Context) (media.Slot, error) {
	for {
		if q.isClosed() {
			return media.Slot{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return media.Slot{}, err
		}
		res, err := q.rdb.BRPop(ctx, q.block, q.queueName).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if q.isClosed() {
				return media.Slot{}, ErrClosed
			}
			if ctx.Err() != nil {
				return media.Slot{}, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return media.Slot{}, ErrClosed
			}
			return media.Slot{}, err
		}
		if len(res) < 2 {
			continue
		}
		var slot media.Slot
		if err := json.Unmarshal([]byte(res[1]), &slot); err != nil {
			return media.Slot{}, fmt.Errorf("decode slot: %w", err)
		}
		return slot, nil
	}
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queueName).Result()
}

// Close stops Push and Pop. The Redis client is owned by the caller and stays open.
func (q *RedisQueue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	return nil
}
