package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingSnapshotBeforeWrap(t *testing.T) {
	r := newRing[int](4)
	assert.Empty(t, r.snapshot())

	r.add(1)
	r.add(2)
	assert.Equal(t, []int{1, 2}, r.snapshot())
}

func TestRingEvictsOldestOnWrap(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 5; i++ {
		r.add(i)
	}
	assert.Equal(t, []int{3, 4, 5}, r.snapshot())
}

func TestRingLast(t *testing.T) {
	r := newRing[string](2)

	_, ok := r.last()
	assert.False(t, ok)

	r.add("a")
	r.add("b")
	r.add("c") // wraps, evicting "a"

	v, ok := r.last()
	require.True(t, ok)
	assert.Equal(t, "c", v)
	assert.Equal(t, []string{"b", "c"}, r.snapshot())
}

func TestRingMinimumCapacity(t *testing.T) {
	r := newRing[int](0)
	r.add(7)
	r.add(8)
	assert.Equal(t, []int{8}, r.snapshot())
}
