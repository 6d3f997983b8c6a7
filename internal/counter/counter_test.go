package counter

import (
	"sync"
	"testing"
)

func TestTakeAndResetReturnsExactCount(t *testing.T) {
	c := New()

	for i := 0; i < 3; i++ {
		c.Increment()
	}

	if got := c.TakeAndReset(); got != 3 {
		t.Errorf("Expected drain of 3, got %d", got)
	}
	if got := c.TakeAndReset(); got != 0 {
		t.Errorf("Expected counter to be zero after drain, got %d", got)
	}
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	c := New()

	const writers = 8
	const perWriter = 10000

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				c.Increment()
			}
		}()
	}
	wg.Wait()

	if got := c.TakeAndReset(); got != writers*perWriter {
		t.Errorf("Expected %d pulses, got %d", writers*perWriter, got)
	}
}

func TestConcurrentDrainsNeverDoubleCount(t *testing.T) {
	c := New()

	const total = 50000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			c.Increment()
		}
	}()

	var drained uint64
	var dg sync.WaitGroup
	dg.Add(1)
	go func() {
		defer dg.Done()
		for i := 0; i < 1000; i++ {
			drained += uint64(c.TakeAndReset())
		}
	}()

	wg.Wait()
	dg.Wait()
	drained += uint64(c.TakeAndReset())

	if drained != total {
		t.Errorf("Expected %d pulses across all drains, got %d", total, drained)
	}
}

func TestIncrementSaturatesAtMax(t *testing.T) {
	c := New()
	c.count = 0xFFFFFFFF

	c.Increment()

	if got := c.Peek(); got != 0xFFFFFFFF {
		t.Errorf("Expected counter to saturate at max, got %d", got)
	}
}
