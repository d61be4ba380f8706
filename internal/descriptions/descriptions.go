// Package descriptions keeps the long media descriptions offered behind a
// "get description" button. A token can be taken once, until it expires.
package descriptions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTTL is how long a token stays redeemable.
	DefaultTTL = 5 * time.Minute
	// CallbackPrefix marks callback data carrying a description token.
	CallbackPrefix = "desc:"
)

// ErrExpired is returned by Take for an unknown, used or expired token.
var ErrExpired = errors.New("description expired")

// Store issues and redeems description tokens.
type Store interface {
	Put(ctx context.Context, text string) (string, error)
	Take(ctx context.Context, token string) (string, error)
}

type item struct {
	text    string
	expires time.Time
}

// MemoryStore is the in-process Store. Expired entries are swept on Put.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]item
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore returns an empty store. A nil now uses time.Now.
func NewMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{items: make(map[string]item), ttl: ttl, now: now}
}

func (s *MemoryStore) Put(_ context.Context, text string) (string, error) {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, it := range s.items {
		if !now.Before(it.expires) {
			delete(s.items, k)
		}
	}
	s.items[token] = item{text: text, expires: now.Add(s.ttl)}
	return token, nil
}

// Take returns the text once and forgets the token.
func (s *MemoryStore) Take(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[token]
	if !ok {
		return "", ErrExpired
	}
	delete(s.items, token)
	if !s.now().Before(it.expires) {
		return "", ErrExpired
	}
	return it.text, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
