package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_StartsAtZero(t *testing.T) {
	assert.Equal(t, int64(0), NewClock().Current())
}

func TestClock_FirstCycleIsOne(t *testing.T) {
	c := NewClock()

	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current(), "Current does not advance")
}

func TestClock_ConcurrentReaders(t *testing.T) {
	c := NewClock()
	const cycles = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		last := int64(0)
		for last < cycles {
			now := c.Current()
			assert.GreaterOrEqual(t, now, last, "cycle numbers never go backwards")
			last = now
		}
	}()

	for i := 0; i < cycles; i++ {
		c.Next()
	}
	wg.Wait()
}
