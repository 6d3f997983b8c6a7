package counter

import (
	"math"
	"sync"
)

// Counter accumulates motion pulses delivered from the GPIO event
// goroutine until the poll loop drains them. It deliberately exposes only
// Increment and TakeAndReset; the read-and-zero must be indivisible with
// respect to concurrent increments so no pulse is lost or counted twice.
type Counter struct {
	mutex sync.Mutex
	count uint32
}

func New() *Counter {
	return &Counter{}
}

// Increment adds one pulse. Saturates at the maximum representable value
// rather than wrapping; a poll interval long enough to overflow 32 bits
// of pulses is not a realistic operating condition, but a wrapped counter
// would silently report garbage.
func (c *Counter) Increment() {
	c.mutex.Lock()
	if c.count < math.MaxUint32 {
		c.count++
	}
	c.mutex.Unlock()
}

// TakeAndReset returns the accumulated pulse count and zeroes it as a
// single operation.
func (c *Counter) TakeAndReset() uint32 {
	c.mutex.Lock()
	count := c.count
	c.count = 0
	c.mutex.Unlock()
	return count
}

// Peek returns the current count without draining it. Used only for
// status reporting; the poll loop must use TakeAndReset.
func (c *Counter) Peek() uint32 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.count
}
