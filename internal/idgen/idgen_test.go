package idgen

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextIsMonotonicAndNeverZero(t *testing.T) {
	g := New()
	seen := make(map[int32]bool)
	var prev int32
	for i := 0; i < 100; i++ {
		id := g.Next()
		assert.NotZero(t, id)
		assert.Greater(t, id, prev)
		assert.False(t, seen[id])
		seen[id] = true
		prev = id
	}
}

func TestNextConcurrentIsUnique(t *testing.T) {
	g := New()
	const n = 500
	ids := make([]int32, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = g.Next()
		}(i)
	}
	wg.Wait()

	seen := make(map[int32]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
}
