package forkjoin

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEach_VisitsEveryIndexOnce(t *testing.T) {
	s := startPool(t, 4)

	const n = 10_000
	visits := make([]atomic.Int32, n)
	require.NoError(t, ForEach(s, n, 0, func(i int) {
		visits[i].Add(1)
	}))

	for i := range visits {
		if visits[i].Load() != 1 {
			t.Fatalf("index %d visited %d times, want 1", i, visits[i].Load())
		}
	}
}

func TestForEach_EmptyRange(t *testing.T) {
	s := startPool(t, 2)
	require.NoError(t, ForEach(s, 0, 0, func(i int) {
		t.Errorf("fn called for empty range: %d", i)
	}))
}

func TestForEach_PropagatesPanic(t *testing.T) {
	s := startPool(t, 4)

	err := ForEach(s, 1000, 1, func(i int) {
		if i == 617 {
			panic(errBoom)
		}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
}

func TestReduce_MatchesSerialFold(t *testing.T) {
	s := startPool(t, 4)

	const n = 100_000
	got, err := Reduce(s, n, 0, int64(0),
		func(a, b int64) int64 { return a + b },
		func(i int) int64 { return int64(i) },
	)
	require.NoError(t, err)
	assert.Equal(t, int64(n)*(n-1)/2, got)
}

func TestReduce_EmptyRangeIsIdentity(t *testing.T) {
	s := startPool(t, 2)
	got, err := Reduce(s, 0, 0, int64(42),
		func(a, b int64) int64 { return a + b },
		func(i int) int64 { return 1 },
	)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestSum_Ints(t *testing.T) {
	s := startPool(t, 4)

	xs := make([]int64, 65_536)
	var want int64
	for i := range xs {
		xs[i] = int64(i % 257)
		want += xs[i]
	}

	got, err := Sum(s, xs, 0)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSum_TinySliceSingleGrain(t *testing.T) {
	s := startPool(t, 4)

	got, err := Sum(s, []int{1, 2, 3}, 1)
	require.NoError(t, err)
	assert.Equal(t, 6, got)
}
