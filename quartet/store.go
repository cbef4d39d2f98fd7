package quartet

import (
	"fmt"
	"math/bits"

	"bitbucket.org/Davydov/qpuzzle/rng"
)

// Mask is a set of quartet topologies. For a quartet a<b<c<d bit 1 is
// (a,b)|(c,d), bit 2 is (a,c)|(b,d) and bit 4 is (a,d)|(b,c).
type Mask byte

const (
	// AB is the (a,b)|(c,d) topology.
	AB Mask = 1
	// AC is the (a,c)|(b,d) topology.
	AC Mask = 2
	// AD is the (a,d)|(b,c) topology.
	AD Mask = 4
	// Unresolved is a three way tie.
	Unresolved = AB | AC | AD
)

// Resolved is true if the mask is a single topology.
func (m Mask) Resolved() bool {
	return m == AB || m == AC || m == AD
}

func (m Mask) String() string {
	return fmt.Sprintf("%03b", byte(m))
}

// binom returns n choose k for small k.
func binom(n, k int) int64 {
	if n < k {
		return 0
	}
	r := int64(1)
	for i := 0; i < k; i++ {
		r = r * int64(n-i) / int64(i+1)
	}
	return r
}

// NumQuartets returns the number of quartets of n taxa.
func NumQuartets(n int) int64 {
	return binom(n, 4)
}

// Rank returns the index of the quartet a<b<c<d.
func Rank(a, b, c, d int) int64 {
	return int64(a) + binom(b, 2) + binom(c, 3) + binom(d, 4)
}

// Unrank is the inverse of Rank.
func Unrank(k int64) (a, b, c, d int) {
	d = 3
	for binom(d+1, 4) <= k {
		d++
	}
	k -= binom(d, 4)
	c = 2
	for binom(c+1, 3) <= k {
		c++
	}
	k -= binom(c, 3)
	b = 1
	for binom(b+1, 2) <= k {
		b++
	}
	k -= binom(b, 2)
	a = int(k)
	return
}

// next advances q to the quartet with the next rank.
func next(q *[4]int) {
	for i := 0; i < 3; i++ {
		if q[i]+1 < q[i+1] {
			q[i]++
			for j := 0; j < i; j++ {
				q[j] = j
			}
			return
		}
	}
	q[3]++
	for j := 0; j < 3; j++ {
		q[j] = j
	}
}

// Store keeps a mask for every quartet of n taxa, two masks per byte.
// Quartets with even rank use the low four bits.
type Store struct {
	n    int
	data []byte
}

// NewStore creates a store with all quartets unevaluated.
func NewStore(n int) *Store {
	if n < 4 {
		panic(fmt.Sprintf("quartet store needs at least 4 taxa, got %d", n))
	}
	return &Store{
		n:    n,
		data: make([]byte, (NumQuartets(n)+1)/2),
	}
}

// LoadStore creates a store from the packed representation returned
// by Bytes.
func LoadStore(n int, data []byte) (*Store, error) {
	if n < 4 {
		return nil, fmt.Errorf("quartet store needs at least 4 taxa, got %d", n)
	}
	need := (NumQuartets(n) + 1) / 2
	if int64(len(data)) != need {
		return nil, fmt.Errorf("quartet table for %d taxa has %d bytes, expected %d", n, len(data), need)
	}
	s := &Store{n: n, data: append([]byte(nil), data...)}
	for k := int64(0); k < NumQuartets(n); k++ {
		if m := s.get(k); m == 0 || m > Unresolved {
			a, b, c, d := Unrank(k)
			return nil, fmt.Errorf("quartet (%d,%d,%d,%d) has invalid mask %v", a, b, c, d, m)
		}
	}
	return s, nil
}

// NTaxa returns the number of taxa.
func (s *Store) NTaxa() int {
	return s.n
}

// Len returns the number of quartets.
func (s *Store) Len() int64 {
	return NumQuartets(s.n)
}

// Bytes returns the packed masks. The slice is shared with the store.
func (s *Store) Bytes() []byte {
	return s.data
}

func (s *Store) get(k int64) Mask {
	v := s.data[k/2]
	if k%2 == 1 {
		v >>= 4
	}
	return Mask(v & 0xf)
}

func (s *Store) set(k int64, m Mask) {
	i := k / 2
	if k%2 == 0 {
		s.data[i] = s.data[i]&0xf0 | byte(m)
	} else {
		s.data[i] = s.data[i]&0x0f | byte(m)<<4
	}
}

func (s *Store) check(a, b, c, d int) {
	if !(0 <= a && a < b && b < c && c < d && d < s.n) {
		panic(fmt.Sprintf("invalid quartet (%d,%d,%d,%d) for %d taxa", a, b, c, d, s.n))
	}
}

// Get returns the mask of the quartet a<b<c<d.
func (s *Store) Get(a, b, c, d int) Mask {
	s.check(a, b, c, d)
	return s.get(Rank(a, b, c, d))
}

// Set stores the mask of the quartet a<b<c<d.
func (s *Store) Set(a, b, c, d int, m Mask) {
	s.check(a, b, c, d)
	if m == 0 || m > Unresolved {
		panic(fmt.Sprintf("invalid quartet mask %v", m))
	}
	s.set(Rank(a, b, c, d), m)
}

// sort4 sorts four distinct taxa and returns the position of the
// first one.
func sort4(q *[4]int) (pos int) {
	first := q[0]
	for i := 1; i < 4; i++ {
		for j := i; j > 0 && q[j] < q[j-1]; j-- {
			q[j], q[j-1] = q[j-1], q[j]
		}
	}
	for i, v := range q {
		if v == first {
			return i
		}
	}
	panic("unreachable")
}

// Together returns the two of the taxa a, b, c which the quartet
// {a,b,c,i} groups together against i. If the quartet is a tie one of
// the tied topologies is chosen at random.
func (s *Store) Together(a, b, c, i int, st *rng.Stream) (x, y int) {
	q := [4]int{i, a, b, c}
	pos := sort4(&q)
	s.check(q[0], q[1], q[2], q[3])
	m := s.get(Rank(q[0], q[1], q[2], q[3]))
	if m == 0 {
		panic(fmt.Sprintf("quartet (%d,%d,%d,%d) is not evaluated", q[0], q[1], q[2], q[3]))
	}
	if !m.Resolved() {
		m = pick(m, st)
	}
	// pairs of positions for each topology
	var p [2][2]int
	switch m {
	case AB:
		p = [2][2]int{{0, 1}, {2, 3}}
	case AC:
		p = [2][2]int{{0, 2}, {1, 3}}
	case AD:
		p = [2][2]int{{0, 3}, {1, 2}}
	}
	if p[0][0] == pos || p[0][1] == pos {
		return q[p[1][0]], q[p[1][1]]
	}
	return q[p[0][0]], q[p[0][1]]
}

// pick chooses one of the topologies of the mask uniformly.
func pick(m Mask, st *rng.Stream) Mask {
	k := st.RandomInteger(bits.OnesCount8(uint8(m)))
	for bit := AB; bit <= AD; bit <<= 1 {
		if m&bit == 0 {
			continue
		}
		if k == 0 {
			return bit
		}
		k--
	}
	panic("unreachable")
}
