// Package sched splits a number of tasks into chunks handed out to
// workers. It knows nothing about how chunks are transported.
package sched

import (
	"fmt"
	"math"
	"strings"
)

// Policy is a chunk size strategy.
type Policy int

const (
	// Static gives every worker one equal chunk.
	Static Policy = iota
	// Self hands out one task at a time.
	Self
	// Guided hands out remaining/workers tasks.
	Guided
	// SmoothGuided hands out half of the guided chunk.
	SmoothGuided
	// Trapezoid shrinks the chunk linearly from total/(2·workers)
	// down to one.
	Trapezoid
)

var policyNames = [...]string{"static", "self", "guided", "sgss", "trapezoid"}

// PolicyNames returns the names of the policies.
func PolicyNames() []string {
	return policyNames[:]
}

func (p Policy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy converts a name to a policy.
func ParsePolicy(s string) (Policy, error) {
	for i, name := range policyNames {
		if strings.EqualFold(s, name) {
			return Policy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown scheduling policy: %q", s)
}

// Range is the half-open interval of tasks [Start, End).
type Range struct {
	Start int64
	End   int64
}

// Size returns the number of tasks.
func (r Range) Size() int64 {
	return r.End - r.Start
}

// Scheduler produces chunks until all tasks are handed out. Chunk
// sizes are multiples of the minimal chunk, except that the tasks
// which do not fill a minimal chunk are added to the last one. It is
// not safe for concurrent use.
type Scheduler struct {
	policy   Policy
	workers  int64
	minChunk int64
	total    int64
	// rest is total mod minChunk, given out with the last chunk
	rest int64
	// remaining are the tasks of the multiple part not handed out
	remaining int64
	next      int64

	// static
	delta, overhead int64
	// trapezoid
	k, dk float64
}

// New creates a scheduler. minChunk below one is treated as one.
func New(policy Policy, total int64, workers int, minChunk int64) *Scheduler {
	if total < 0 {
		panic("negative number of tasks")
	}
	if workers < 1 {
		workers = 1
	}
	if minChunk < 1 {
		minChunk = 1
	}
	s := &Scheduler{
		policy:   policy,
		workers:  int64(workers),
		minChunk: minChunk,
		total:    total,
		rest:     total % minChunk,
	}
	s.remaining = total - s.rest
	all := s.remaining

	switch policy {
	case Static:
		s.overhead = all % s.workers
		s.delta = all / s.workers
	case Trapezoid:
		f := math.Ceil(float64(all) / float64(2*s.workers))
		if f < 1 {
			f = 1
		}
		l := 1.0
		n := math.Ceil(2 * float64(all) / (f + l))
		if n > 1 {
			s.dk = (f - l) / (n - 1)
		}
		s.k = f
	}
	return s
}

// Total returns the number of tasks.
func (s *Scheduler) Total() int64 {
	return s.total
}

// Remaining returns the number of tasks not handed out yet.
func (s *Scheduler) Remaining() int64 {
	return s.total - s.next
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// size returns the chunk size of the policy before rounding.
func (s *Scheduler) size() int64 {
	var size int64
	switch s.policy {
	case Static:
		size = s.delta
		if s.overhead > 0 {
			size++
			s.overhead--
		}
	case Self:
		size = 1
	case Guided:
		size = ceilDiv(s.remaining, s.workers)
	case SmoothGuided:
		size = ceilDiv(s.remaining, 2*s.workers)
	case Trapezoid:
		size = int64(math.Ceil(s.k))
		s.k -= s.dk
		if s.k < 1 {
			s.k = 1
		}
	default:
		panic(fmt.Sprintf("unknown scheduling policy %d", int(s.policy)))
	}
	if size < 1 {
		size = 1
	}
	return size
}

// Next returns the next chunk. ok is false when all tasks are handed
// out.
func (s *Scheduler) Next() (r Range, ok bool) {
	if s.next == s.total {
		return Range{}, false
	}
	var size int64
	if s.remaining > 0 {
		size = s.size()
		if m := size % s.minChunk; m > 0 {
			size += s.minChunk - m
		}
		if size > s.remaining {
			size = s.remaining
		}
		s.remaining -= size
	}
	if s.remaining == 0 {
		size += s.rest
		s.rest = 0
	}
	r = Range{Start: s.next, End: s.next + size}
	s.next = r.End
	return r, true
}

// Chunks returns all the chunks.
func (s *Scheduler) Chunks() []Range {
	var res []Range
	for r, ok := s.Next(); ok; r, ok = s.Next() {
		res = append(res, r)
	}
	return res
}
