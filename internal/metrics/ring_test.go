package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingWrapsAround(t *testing.T) {
	r := newRing[int](3)
	_, ok := r.Last()
	assert.False(t, ok)

	for i := 1; i <= 5; i++ {
		r.Add(i)
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{3, 4, 5}, r.Filter(all[int]))

	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, 5, last)

	assert.Equal(t, []int{4}, r.Filter(func(v int) bool { return v%2 == 0 }))
}

func TestRingZeroCapacity(t *testing.T) {
	r := newRing[int](0)
	r.Add(1)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Filter(all[int]))
}

func all[T any](T) bool { return true }
