package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_NextIncrements(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(1), c.Next(), "new clock should start at 0")
	assert.Equal(t, int64(2), c.Next())

	c.Reset()
	assert.Equal(t, int64(1), c.Next())
}

func TestClock_ConcurrentNextUnique(t *testing.T) {
	c := NewClock()
	const goroutines, per = 8, 100

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				seq := c.Next()
				mu.Lock()
				seen[seq] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*per)
	assert.Equal(t, int64(goroutines*per+1), c.Next())
}
