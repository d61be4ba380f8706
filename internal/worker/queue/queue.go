// Package queue holds the admission queue backends. Pop blocks until a slot
// arrives or the context ends.
package queue

import (
	"context"
	"errors"

	"mediarelay/internal/media"
)

// ErrClosed is returned by Push and Pop after Close.
var ErrClosed = errors.New("queue closed")

type Queue interface {
	Push(ctx context.Context, slot media.Slot) error
	Pop(ctx context.Context) (media.Slot, error)
	Len(ctx context.Context) (int64, error)
	Close() error
}
