// Package overlay holds the short-lived optimistic completion markers the
// presentation layer sets before the authoritative completion write is
// confirmed. Entries expire on a fixed TTL regardless of confirmation, which
// bounds how long a silently failed write can show a false "completed".
package overlay

import (
	"sync"
	"time"
)

// DefaultTTL bounds how long an unconfirmed completion stays visible.
const DefaultTTL = 5 * time.Second

type Overlay struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]time.Time // key -> insertedAt
	now     func() time.Time
}

func New(ttl time.Duration) *Overlay {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Overlay{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// NewWithClock is for tests that need a deterministic clock.
func NewWithClock(ttl time.Duration, now func() time.Time) *Overlay {
	ov := New(ttl)
	ov.now = now
	return ov
}

// Mark inserts (or refreshes) a key. Expired entries are pruned here so the
// map stays bounded without a background janitor.
func (o *Overlay) Mark(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	for k, at := range o.entries {
		if now.Sub(at) >= o.ttl {
			delete(o.entries, k)
		}
	}
	o.entries[key] = now
}

// Contains reports whether the key was marked within the TTL.
func (o *Overlay) Contains(key string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	at, ok := o.entries[key]
	return ok && o.now().Sub(at) < o.ttl
}
