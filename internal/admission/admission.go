// Package admission keeps the per-principal in-flight table: a principal may
// have one request between submit and terminal outcome.
package admission

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL bounds how long a crashed holder can block its principal.
const DefaultTTL = 30 * time.Minute

// Table tracks in-flight requests. holder identifies the request so a late
// Release cannot free somebody else's entry.
type Table interface {
	Acquire(ctx context.Context, principal, holder string) (bool, error)
	Release(ctx context.Context, principal, holder string) error
}

type entry struct {
	holder  string
	expires time.Time
}

// MemoryTable is a mutex-guarded map. Entries older than ttl count as free.
type MemoryTable struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryTable returns an empty table. A nil now uses time.Now.
func NewMemoryTable(ttl time.Duration, now func() time.Time) *MemoryTable {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryTable{entries: make(map[string]entry), ttl: ttl, now: now}
}

func (m *MemoryTable) Acquire(_ context.Context, principal, holder string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.entries[principal]; ok && now.Before(e.expires) {
		return false, nil
	}
	m.entries[principal] = entry{holder: holder, expires: now.Add(m.ttl)}
	return true, nil
}

func (m *MemoryTable) Release(_ context.Context, principal, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[principal]; ok && e.holder == holder {
		delete(m.entries, principal)
	}
	return nil
}

// InFlight returns the number of live entries.
func (m *MemoryTable) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for _, e := range m.entries {
		if now.Before(e.expires) {
			n++
		}
	}
	return n
}
