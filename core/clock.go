package core

import (
	"sync"
	"time"
)

// Clock supplies unix-second timestamps to the protocol components.
type Clock interface {
	Now() uint64
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() uint64

// Now implements Clock.
func (f ClockFunc) Now() uint64 { return f() }

// SystemClock reads wall-clock time but never reports a value lower than one
// it already returned.
type SystemClock struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

// NewSystemClock returns a monotonic clock over time.Now.
func NewSystemClock() *SystemClock {
	return &SystemClock{now: time.Now}
}

// Now implements Clock.
func (c *SystemClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	source := c.now
	if source == nil {
		source = time.Now
	}
	ts := source().Unix()
	if ts < 0 {
		ts = 0
	}
	if current := uint64(ts); current > c.last {
		c.last = current
	}
	return c.last
}
