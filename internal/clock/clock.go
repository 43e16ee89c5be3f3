// Package clock implements the Lamport logical clock used to order every
// mutation in the system. Wall-clock time is never consulted for ordering.
package clock

import "sync"

// Lamport is a monotonically advancing logical counter. It is safe for
// concurrent use.
type Lamport struct {
	mu  sync.Mutex
	now int64
}

// New creates a clock starting at the given value.
func New(start int64) *Lamport {
	return &Lamport{now: start}
}

// Observe advances the clock past a timestamp seen on an incoming event.
// After Observe the clock is strictly greater than ts. The clock never
// decreases.
func (c *Lamport) Observe(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts >= c.now {
		c.now = ts + 1
	}
}

// Tick increments the clock and returns the new value. Used by peers that
// author events: the returned value stamps the outgoing event.
func (c *Lamport) Tick() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	return c.now
}

// Now returns the current clock value without advancing it.
func (c *Lamport) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
