package reminder

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Key identifies one occurrence of an event for one user. Rescheduling an
// event changes At and so earns a fresh reminder.
type Key struct {
	UserID  string
	EventID uuid.UUID
	At      int64 // unix milliseconds
}

// Dedup remembers which reminders went out. Entries expire after ttl, which
// must exceed the span of a calendar day so a key outlives its event.
type Dedup struct {
	mu   sync.Mutex
	ttl  time.Duration
	sent *expirable.LRU[Key, struct{}]
}

func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{ttl: ttl, sent: expirable.NewLRU[Key, struct{}](0, nil, ttl)}
}

func (d *Dedup) TTL() time.Duration {
	return d.ttl
}

// Claim records k and reports whether it was new.
func (d *Dedup) Claim(k Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sent.Contains(k) {
		return false
	}
	d.sent.Add(k, struct{}{})
	return true
}

// Release forgets k so a later tick may try again.
func (d *Dedup) Release(k Key) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent.Remove(k)
}

func (d *Dedup) Len() int {
	return d.sent.Len()
}
