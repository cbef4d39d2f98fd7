package ptree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/Davydov/qpuzzle/rng"
)

// bfs returns the number of steps between two edges, edges being
// adjacent if they share a node.
func bfs(t *Tree, from, to int) int {
	dist := make([]int, t.nedges)
	for i := range dist {
		dist[i] = -1
	}
	dist[from] = 0
	queue := []int{from}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if e == to {
			return dist[e]
		}
		for f := 0; f < t.nedges; f++ {
			if dist[f] >= 0 {
				continue
			}
			if t.upper[e] == t.upper[f] || t.upper[e] == t.lower[f] ||
				t.lower[e] == t.upper[f] || t.lower[e] == t.lower[f] {
				dist[f] = dist[e] + 1
				queue = append(queue, f)
			}
		}
	}
	return -1
}

func checkRouting(tst *testing.T, t *Tree) {
	for from := 0; from < t.NEdges(); from++ {
		for to := 0; to < t.NEdges(); to++ {
			path := t.Path(from, to)
			require.Equal(tst, bfs(t, from, to), len(path)-1, "path %d -> %d", from, to)
			seen := map[int]bool{}
			for _, e := range path {
				require.False(tst, seen[e], "path %d -> %d is not simple: %v", from, to, path)
				seen[e] = true
			}
		}
	}
}

func TestRouting(tst *testing.T) {
	st := rng.NewStream(17, 0)
	for n := 3; n <= 12; n++ {
		for rep := 0; rep < 3; rep++ {
			perm := st.Permutation(n)
			t := New(n)
			t.Init(perm[0], perm[1], perm[2])
			checkRouting(tst, t)
			for _, taxon := range perm[3:] {
				t.Insert(taxon, st.RandomInteger(t.NEdges()))
				checkRouting(tst, t)
			}
			assert.True(tst, t.Full())
			assert.Equal(tst, 2*n-3, t.NEdges())
			assert.Equal(tst, n, t.NLeaves())
		}
	}
}

func TestInsertBelowSplitEdge(tst *testing.T) {
	t := New(5)
	t.Init(1, 2, 3)
	t.Insert(4, 1)
	t.Insert(0, 1)
	checkRouting(tst, t)

	// 0 hangs next to the subtree of 2 and 4
	p := t.LeafEdge(0)
	assert.Equal(tst, Sibling, t.PathDirection(p, t.LeafEdge(2)))
	assert.Equal(tst, Sibling, t.PathDirection(p, t.LeafEdge(4)))
	assert.Equal(tst, Up, t.PathDirection(p, t.LeafEdge(3)))
	assert.Equal(tst, []int{p, t.sibling[p], t.LeafEdge(2)}, t.Path(p, t.LeafEdge(2)))

	t.Vote(0, 2)
	assert.Equal(tst, 0, t.Votes(1))
	for _, e := range t.Path(p, t.LeafEdge(2)) {
		assert.Equal(tst, 1, t.Votes(e))
	}
}

func TestBipartitions(tst *testing.T) {
	st := rng.NewStream(5, 0)
	for n := 4; n <= 15; n++ {
		perm := st.Permutation(n)
		t := New(n)
		t.Init(perm[0], perm[1], perm[2])
		for _, taxon := range perm[3:] {
			t.Insert(taxon, st.RandomInteger(t.NEdges()))
		}
		outgroup := st.RandomInteger(n)
		bps := t.Bipartitions(outgroup)
		require.Len(tst, bps, n-3)
		for i, a := range bps {
			assert.False(tst, a.Test(uint(outgroup)))
			assert.True(tst, a.Count() >= 2 && int(a.Count()) <= n-2)
			for _, b := range bps[:i] {
				assert.False(tst, a.Equal(b))
			}
		}
	}
}

func TestCanonical(tst *testing.T) {
	t1 := New(5)
	t1.Init(0, 1, 2)
	t1.Insert(3, t1.LeafEdge(2))
	t1.Insert(4, t1.LeafEdge(0))

	t2 := New(5)
	t2.Init(3, 4, 0)
	t2.Insert(2, t2.LeafEdge(3))
	// the edge between the star center and the (2,3) cherry
	t2.Insert(1, 3)

	assert.Equal(tst, "(0,(1,(2,3)),4);", t1.String())
	assert.Equal(tst, t1.String(), t2.String())

	for _, t := range []*Tree{t1, t2} {
		bps := t.Bipartitions(0)
		require.Len(tst, bps, 2)
		var sets []string
		for _, bp := range bps {
			sets = append(sets, bp.String())
		}
		assert.ElementsMatch(tst, []string{"{1,2,3}", "{2,3}"}, sets)
	}

	names := []string{"a", "b", "c", "d", "e"}
	tr := t2.ToTree(names, 4)
	assert.Equal(tst, 5, tr.NLeaves())
	assert.True(tst, tr.IsBinaryUnrooted())
	children := tr.ChildNodes()
	require.Len(tst, children, 3)
	assert.Equal(tst, "e", children[0].Name)
	for _, leaf := range tr.Leaves() {
		assert.Equal(tst, names[leaf.LeafId], leaf.Name)
	}
}

func TestVotes(tst *testing.T) {
	t := New(5)
	t.Init(0, 1, 2)
	t.Insert(3, t.LeafEdge(2))
	t.Vote(0, 1)
	assert.Equal(tst, 1, t.Votes(t.LeafEdge(0)))
	assert.Equal(tst, 1, t.Votes(t.LeafEdge(1)))
	assert.Equal(tst, 0, t.Votes(t.LeafEdge(2)))

	t.Vote(2, 3)
	t.Vote(0, 3)
	// path 0 -> 3 crosses the edge to the cherry
	assert.Equal(tst, 2, t.Votes(t.LeafEdge(3)))
	assert.Equal(tst, 2, t.Votes(t.LeafEdge(0)))

	st := rng.NewStream(9, 0)
	t.ResetVotes()
	t.Vote(0, 1)
	seen := map[int]int{}
	for i := 0; i < 300; i++ {
		seen[t.MinVoteEdge(st)]++
	}
	assert.Len(tst, seen, 3)
	assert.Zero(tst, seen[t.LeafEdge(0)])
	assert.Zero(tst, seen[t.LeafEdge(1)])

	// only the edge to the cherry has no votes
	t.Vote(2, 3)
	for i := 0; i < 10; i++ {
		assert.Equal(tst, 2, t.MinVoteEdge(st))
	}
}

func TestInvalid(tst *testing.T) {
	t := New(4)
	assert.Panics(tst, func() { t.Insert(3, 0) })
	t.Init(0, 1, 2)
	assert.Panics(tst, func() { t.PathDirection(0, 3) })
	assert.Panics(tst, func() { t.Insert(1, 0) })
	assert.Panics(tst, func() { t.LeafEdge(3) })
	t.Insert(3, 0)
	assert.Panics(tst, func() { t.Insert(3, 0) })
	assert.Equal(tst, Self, t.PathDirection(2, 2))
	assert.Panics(tst, func() { New(2) })
}
