package proctor

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestCooldown_DropsWhileHeld(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCooldown(clock, 500*time.Millisecond)

	assert.False(t, c.Held())
	assert.True(t, c.TryAcquire())
	assert.True(t, c.Held())
	assert.False(t, c.TryAcquire())

	clock.Advance(499 * time.Millisecond)
	assert.False(t, c.TryAcquire(), "still inside the hold")

	clock.Advance(time.Millisecond)
	assert.False(t, c.Held())
	assert.True(t, c.TryAcquire())
}
