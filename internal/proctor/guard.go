package proctor

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Cooldown is a lock that releases itself a fixed hold after it was taken.
// Callers that find it held are dropped, not queued.
type Cooldown struct {
	mu    sync.Mutex
	clock clockwork.Clock
	hold  time.Duration
	until time.Time
}

// NewCooldown creates a released Cooldown.
func NewCooldown(clock clockwork.Clock, hold time.Duration) *Cooldown {
	return &Cooldown{clock: clock, hold: hold}
}

// TryAcquire takes the lock if it is free and reports whether it did.
func (c *Cooldown) TryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if now.Before(c.until) {
		return false
	}
	c.until = now.Add(c.hold)
	return true
}

// Held reports whether the lock is currently taken.
func (c *Cooldown) Held() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock.Now().Before(c.until)
}
