package rng

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamReproducible(tst *testing.T) {
	a := NewStream(42, 3)
	b := NewStream(42, 3)
	for i := 0; i < 100; i++ {
		require.Equal(tst, a.Uint64(), b.Uint64())
	}
}

func TestStreamRanksDiffer(tst *testing.T) {
	seen := make(map[uint64]int)
	for rank := 0; rank < 64; rank++ {
		v := NewStream(42, rank).Uint64()
		prev, ok := seen[v]
		assert.False(tst, ok, "ranks %d and %d share the first draw", prev, rank)
		seen[v] = rank
	}
	assert.NotEqual(tst, NewStream(1, 0).Uint64(), NewStream(2, 0).Uint64())
}

func TestChooseDistinct(tst *testing.T) {
	s := NewStream(7, 0)
	for t := 1; t < 30; t++ {
		for k := 0; k <= t; k++ {
			sample := s.Choose(t, k)
			require.Len(tst, sample, k)
			set := make(map[int]bool, k)
			for _, v := range sample {
				require.True(tst, v >= 0 && v < t)
				require.False(tst, set[v], "duplicate value %d", v)
				set[v] = true
			}
		}
	}
}

func TestPermutation(tst *testing.T) {
	s := NewStream(11, 5)
	p := s.Permutation(20)
	sorted := append([]int(nil), p...)
	sort.Ints(sorted)
	for i, v := range sorted {
		require.Equal(tst, i, v)
	}
}

// Every one of the 6 orderings of 3 elements should appear with
// roughly equal frequency.
func TestPermutationUniform(tst *testing.T) {
	if testing.Short() {
		tst.Skip("skipping test in short mode.")
	}
	s := NewStream(2024, 0)
	counts := make(map[[3]int]int)
	n := 60000
	for i := 0; i < n; i++ {
		p := s.Permutation(3)
		counts[[3]int{p[0], p[1], p[2]}]++
	}
	require.Len(tst, counts, 6)
	for perm, c := range counts {
		assert.InDelta(tst, float64(n)/6, float64(c), 600, "ordering %v", perm)
	}
}

func TestRandomInteger(tst *testing.T) {
	s := NewStream(3, 1)
	for i := 0; i < 1000; i++ {
		v := s.RandomInteger(7)
		require.True(tst, v >= 0 && v < 7)
	}
	assert.Panics(tst, func() { s.RandomInteger(0) })
}
