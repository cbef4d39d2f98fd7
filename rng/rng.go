// Package rng provides reproducible pseudo-random streams for
// puzzling trials and workers.
//
// Every stream is a PCG generator (period 2^128). Streams for
// different ranks are seeded from the run seed and the rank through
// SplitMix64, so each worker or trial draws a distinct and
// reproducible substream.
package rng

import (
	"time"

	"golang.org/x/exp/rand"
)

// Stream is a pseudo-random number stream for one rank.
type Stream struct {
	*rand.Rand
	seed uint64
	rank int
}

// splitMix64 is the finalizer of the SplitMix64 generator.
func splitMix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// DeriveSeed returns the seed of the substream for rank.
func DeriveSeed(seed uint64, rank int) uint64 {
	return splitMix64(splitMix64(seed) ^ splitMix64(uint64(rank)+1))
}

// NewStream creates a stream for the given run seed and rank.
func NewStream(seed uint64, rank int) *Stream {
	return &Stream{
		Rand: rand.New(rand.NewSource(DeriveSeed(seed, rank))),
		seed: seed,
		rank: rank,
	}
}

// TimeSeed returns a seed derived from the wall clock.
func TimeSeed() uint64 {
	return splitMix64(uint64(time.Now().UnixNano()))
}

// Rank returns the stream rank.
func (s *Stream) Rank() int {
	return s.rank
}

// Seed returns the run seed the stream was derived from.
func (s *Stream) Seed() uint64 {
	return s.seed
}

// RandomInteger returns a uniform integer in [0, n).
func (s *Stream) RandomInteger(n int) int {
	if n <= 0 {
		panic("RandomInteger: n must be positive")
	}
	return s.Intn(n)
}

// Choose draws k distinct values from [0, t). All ordered samples are
// equally likely; Choose(n, n) is a random permutation.
func (s *Stream) Choose(t, k int) []int {
	if k < 0 || k > t {
		panic("Choose: sample size out of range")
	}
	pool := make([]int, t)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + s.Intn(t-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

// Permutation returns a random permutation of [0, n).
func (s *Stream) Permutation(n int) []int {
	return s.Choose(n, n)
}
