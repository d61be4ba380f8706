package queue

import (
	"context"
	"sync"

	"mediarelay/internal/media"
)

// MemoryQueue is an unbounded FIFO.
type MemoryQueue struct {
	mu     sync.Mutex
	items  []media.Slot
	notify chan struct{}
	closed chan struct{}
	once   sync.Once
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (q *MemoryQueue) Push(_ context.Context, slot media.Slot) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	q.mu.Lock()
	q.items = append(q.items, slot)
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) Pop(ctx context.Context) (media.Slot, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			slot := q.items[0]
			q.items[0] = media.Slot{}
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				// Wake the next waiter.
				q.signal()
			}
			return slot, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return media.Slot{}, ctx.Err()
		case <-q.closed:
			return media.Slot{}, ErrClosed
		case <-q.notify:
		}
	}
}

func (q *MemoryQueue) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

// Close wakes every blocked Pop. Queued slots are dropped.
func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}
