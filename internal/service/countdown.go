package service

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown decrements a second counter once per tick and fires onExpire on
// the tick that reaches zero. It never fires twice.
type Countdown struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	remaining int
	running   bool
	expired   bool
	cancel    context.CancelFunc

	onTick   func(remaining int)
	onExpire func()
}

// NewCountdown creates a stopped countdown of seconds.
func NewCountdown(clock clockwork.Clock, seconds int, onTick func(remaining int), onExpire func()) *Countdown {
	return &Countdown{
		clock:     clock,
		remaining: seconds,
		onTick:    onTick,
		onExpire:  onExpire,
	}
}

// Start begins ticking every second. It is a no-op once started or expired.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.expired {
		return
	}
	c.running = true

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	ticker := c.clock.NewTicker(time.Second)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if !c.Tick() {
					return
				}
			}
		}
	}()
}

// Tick advances the countdown by one second. It reports false when the
// countdown is not running.
func (c *Countdown) Tick() bool {
	c.mu.Lock()
	if !c.running || c.expired {
		c.mu.Unlock()
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	remaining := c.remaining
	fire := remaining == 0
	if fire {
		c.expired = true
		c.stopLocked()
	}
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(remaining)
	}
	if fire && c.onExpire != nil {
		c.onExpire()
	}
	return true
}

// Stop halts ticking immediately. Safe to call repeatedly.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Countdown) stopLocked() {
	c.running = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Running reports whether the countdown is ticking.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}
