// Package ptree is the unrooted binary tree built by the puzzling
// step. Edges live in a preallocated arena and a routing table gives
// the first step of the path between any two edges in constant time.
//
// The tree is stored rooted at the leaf of its first taxon: edge 0 is
// the pendant edge of that leaf, every other edge has a parent edge
// and a sibling, internal edges have a left and a right child.
package ptree

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"

	"bitbucket.org/Davydov/qpuzzle/rng"
	"bitbucket.org/Davydov/qpuzzle/tree"
)

// Direction is the first step on the path from one edge to another.
type Direction byte

const (
	// Self means both edges are the same.
	Self Direction = iota
	// Up goes to the parent edge.
	Up
	// Sibling goes to the edge sharing the upper node.
	Sibling
	// Left goes to the left child.
	Left
	// Right goes to the right child.
	Right
)

func (d Direction) String() string {
	switch d {
	case Self:
		return "self"
	case Up:
		return "up"
	case Sibling:
		return "sibling"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

const none = -1

// Tree is a partially built tree over a fixed set of n taxa. It is
// not safe for concurrent use.
type Tree struct {
	n       int
	cap     int
	nedges  int
	nleaves int

	parent  []int
	sibling []int
	left    []int
	right   []int
	// leaf is the taxon of a pendant edge
	leaf []int
	// upper and lower are the end nodes. Leaves are nodes 0..n-1,
	// internal nodes are numbered from n.
	upper []int
	lower []int
	// leafEdge is the pendant edge of each taxon
	leafEdge []int
	ninner   int

	// dir[from*cap+to] is the first step from edge from to edge to.
	dir   []Direction
	votes []int
}

// New allocates a tree for n taxa.
func New(n int) *Tree {
	if n < 3 {
		panic(fmt.Sprintf("tree needs at least 3 taxa, got %d", n))
	}
	c := 2*n - 3
	t := &Tree{
		n:        n,
		cap:      c,
		parent:   make([]int, c),
		sibling:  make([]int, c),
		left:     make([]int, c),
		right:    make([]int, c),
		leaf:     make([]int, c),
		upper:    make([]int, c),
		lower:    make([]int, c),
		leafEdge: make([]int, n),
		dir:      make([]Direction, c*c),
		votes:    make([]int, c),
	}
	return t
}

// NTaxa returns the number of taxa.
func (t *Tree) NTaxa() int {
	return t.n
}

// NEdges returns the number of edges.
func (t *Tree) NEdges() int {
	return t.nedges
}

// NLeaves returns the number of inserted taxa.
func (t *Tree) NLeaves() int {
	return t.nleaves
}

// Full is true if all the taxa are inserted.
func (t *Tree) Full() bool {
	return t.nleaves == t.n
}

func (t *Tree) newEdge() int {
	if t.nedges == t.cap {
		panic("edge arena is exhausted")
	}
	e := t.nedges
	t.nedges++
	t.parent[e] = none
	t.sibling[e] = none
	t.left[e] = none
	t.right[e] = none
	t.leaf[e] = none
	t.votes[e] = 0
	return e
}

func (t *Tree) addLeaf(taxon int) {
	if taxon < 0 || taxon >= t.n {
		panic(fmt.Sprintf("taxon %d out of range", taxon))
	}
	if t.leafEdge[taxon] != none {
		panic(fmt.Sprintf("taxon %d is already in the tree", taxon))
	}
	t.nleaves++
}

func (t *Tree) setDir(from, to int, d Direction) {
	t.dir[from*t.cap+to] = d
}

// Init resets the tree to the star of three taxa. The first one
// becomes the root leaf.
func (t *Tree) Init(a, b, c int) {
	t.nedges = 0
	t.nleaves = 0
	t.ninner = 0
	for i := range t.leafEdge {
		t.leafEdge[i] = none
	}
	for _, taxon := range []int{a, b, c} {
		t.addLeaf(taxon)
	}
	center := t.n
	t.ninner = 1

	root := t.newEdge()
	l := t.newEdge()
	r := t.newEdge()
	t.upper[root], t.lower[root] = a, center
	t.upper[l], t.lower[l] = center, b
	t.upper[r], t.lower[r] = center, c
	t.leaf[root], t.leaf[l], t.leaf[r] = a, b, c
	t.leafEdge[a], t.leafEdge[b], t.leafEdge[c] = root, l, r
	t.left[root], t.right[root] = l, r
	t.parent[l], t.parent[r] = root, root
	t.sibling[l], t.sibling[r] = r, l

	t.setDir(root, root, Self)
	t.setDir(root, l, Left)
	t.setDir(root, r, Right)
	t.setDir(l, l, Self)
	t.setDir(l, root, Up)
	t.setDir(l, r, Sibling)
	t.setDir(r, r, Self)
	t.setDir(r, root, Up)
	t.setDir(r, l, Sibling)
}

// Insert subdivides edge e with a new internal node and attaches the
// taxon to it. The upper part keeps the index e.
func (t *Tree) Insert(taxon, e int) {
	if t.nleaves == 0 {
		panic("insertion into an empty tree")
	}
	if t.Full() {
		panic("insertion into a full tree")
	}
	t.checkEdge(e)
	t.addLeaf(taxon)
	old := t.nedges
	m := t.newEdge()
	p := t.newEdge()
	w := t.n + t.ninner
	t.ninner++

	// m takes the lower part and the children of e
	t.upper[m], t.lower[m] = w, t.lower[e]
	t.lower[e] = w
	t.upper[p], t.lower[p] = w, taxon
	t.left[m], t.right[m] = t.left[e], t.right[e]
	if t.left[m] != none {
		t.parent[t.left[m]] = m
		t.parent[t.right[m]] = m
	}
	t.left[e], t.right[e] = m, p
	t.parent[m], t.parent[p] = e, e
	t.sibling[m], t.sibling[p] = p, m
	if e != 0 && t.leaf[e] != none {
		t.leaf[m] = t.leaf[e]
		t.leafEdge[t.leaf[m]] = m
		t.leaf[e] = none
	}
	t.leaf[p] = taxon
	t.leafEdge[taxon] = p

	// the new edges are reached through e from everywhere else
	for x := 0; x < old; x++ {
		if x != e {
			d := t.dir[x*t.cap+e]
			t.setDir(x, m, d)
			t.setDir(x, p, d)
		}
	}
	for x := 0; x < old; x++ {
		d := t.dir[e*t.cap+x]
		if x != e && (d == Left || d == Right) {
			// x was below e and is now below m
			t.setDir(m, x, d)
			t.setDir(e, x, Left)
			t.setDir(p, x, Sibling)
		} else {
			t.setDir(m, x, Up)
			t.setDir(p, x, Up)
		}
	}
	t.setDir(e, m, Left)
	t.setDir(e, p, Right)
	t.setDir(m, m, Self)
	t.setDir(m, p, Sibling)
	t.setDir(p, p, Self)
	t.setDir(p, m, Sibling)
}

func (t *Tree) checkEdge(e int) {
	if e < 0 || e >= t.nedges {
		panic(fmt.Sprintf("edge %d does not exist (%d edges)", e, t.nedges))
	}
}

// PathDirection returns the first step on the path from one edge to
// another.
func (t *Tree) PathDirection(from, to int) Direction {
	t.checkEdge(from)
	t.checkEdge(to)
	return t.dir[from*t.cap+to]
}

// step returns the next edge on the path to the target.
func (t *Tree) step(e, target int) int {
	switch t.dir[e*t.cap+target] {
	case Up:
		return t.parent[e]
	case Sibling:
		return t.sibling[e]
	case Left:
		return t.left[e]
	case Right:
		return t.right[e]
	}
	panic("step from an edge to itself")
}

// Path returns the edges on the path between two edges, both
// included.
func (t *Tree) Path(from, to int) []int {
	t.checkEdge(from)
	t.checkEdge(to)
	path := []int{from}
	for e := from; e != to; {
		e = t.step(e, to)
		path = append(path, e)
	}
	return path
}

// LeafEdge returns the pendant edge of the taxon.
func (t *Tree) LeafEdge(taxon int) int {
	e := t.leafEdge[taxon]
	if e == none {
		panic(fmt.Sprintf("taxon %d is not in the tree", taxon))
	}
	return e
}

// ResetVotes sets all the vote counters to zero.
func (t *Tree) ResetVotes() {
	for e := 0; e < t.nedges; e++ {
		t.votes[e] = 0
	}
}

// Vote increments the counter of every edge on the path between the
// pendant edges of two taxa.
func (t *Tree) Vote(x, y int) {
	target := t.LeafEdge(y)
	e := t.LeafEdge(x)
	for {
		t.votes[e]++
		if e == target {
			return
		}
		e = t.step(e, target)
	}
}

// Votes returns the vote counter of the edge.
func (t *Tree) Votes(e int) int {
	t.checkEdge(e)
	return t.votes[e]
}

// MinVoteEdge returns an edge with the smallest number of votes. Ties
// are broken uniformly at random.
func (t *Tree) MinVoteEdge(st *rng.Stream) int {
	best := t.votes[0]
	nties := 0
	for e := 0; e < t.nedges; e++ {
		switch v := t.votes[e]; {
		case v < best:
			best = v
			nties = 1
		case v == best:
			nties++
		}
	}
	k := 0
	if nties > 1 {
		k = st.RandomInteger(nties)
	}
	for e := 0; e < t.nedges; e++ {
		if t.votes[e] == best {
			if k == 0 {
				return e
			}
			k--
		}
	}
	panic("unreachable")
}

// below returns the taxa below every edge.
func (t *Tree) below() []*bitset.BitSet {
	sets := make([]*bitset.BitSet, t.nedges)
	var visit func(e int) *bitset.BitSet
	visit = func(e int) *bitset.BitSet {
		bs := bitset.New(uint(t.n))
		if t.left[e] == none {
			bs.Set(uint(t.leaf[e]))
		} else {
			bs.InPlaceUnion(visit(t.left[e]))
			bs.InPlaceUnion(visit(t.right[e]))
		}
		sets[e] = bs
		return bs
	}
	visit(0)
	return sets
}

// Bipartitions returns the splits of the internal edges as the set of
// taxa on the side without the outgroup.
func (t *Tree) Bipartitions(outgroup int) []*bitset.BitSet {
	sets := t.below()
	res := make([]*bitset.BitSet, 0, t.nleaves-3)
	for e := 1; e < t.nedges; e++ {
		if t.left[e] == none {
			continue
		}
		bs := sets[e]
		if bs.Test(uint(outgroup)) {
			bs = bs.Complement()
			if t.nleaves < t.n {
				// taxa which are not inserted are on neither side
				for i := 0; i < t.n; i++ {
					if t.leafEdge[i] == none {
						bs.Clear(uint(i))
					}
				}
			}
		}
		res = append(res, bs)
	}
	return res
}

// adjacency returns the neighbours of every node.
func (t *Tree) adjacency() [][]int {
	adj := make([][]int, t.n+t.ninner)
	for e := 0; e < t.nedges; e++ {
		u, v := t.upper[e], t.lower[e]
		adj[u] = append(adj[u], v)
		adj[v] = append(adj[v], u)
	}
	return adj
}

// subtree is a part of the tree hanging from a node.
type subtree struct {
	node     int
	minTaxon int
	children []*subtree
}

// hang builds the subtree of node away from the node from. Children
// are sorted by their smallest taxon.
func (t *Tree) hang(adj [][]int, node, from int) *subtree {
	s := &subtree{node: node, minTaxon: node}
	if node < t.n {
		return s
	}
	s.minTaxon = t.n
	for _, v := range adj[node] {
		if v == from {
			continue
		}
		c := t.hang(adj, v, node)
		s.children = append(s.children, c)
		if c.minTaxon < s.minTaxon {
			s.minTaxon = c.minTaxon
		}
	}
	sort.Slice(s.children, func(i, j int) bool {
		return s.children[i].minTaxon < s.children[j].minTaxon
	})
	return s
}

// rootAt returns the tree hanging from the internal node next to the
// taxon. The taxon is the first child.
func (t *Tree) rootAt(taxon int) *subtree {
	edge := t.LeafEdge(taxon)
	inner := t.lower[edge]
	if inner == taxon {
		inner = t.upper[edge]
	}
	return t.hang(t.adjacency(), inner, none)
}

func (s *subtree) write(sb *strings.Builder) {
	if s.children == nil {
		sb.WriteString(strconv.Itoa(s.node))
		return
	}
	sb.WriteByte('(')
	for i, c := range s.children {
		if i > 0 {
			sb.WriteByte(',')
		}
		c.write(sb)
	}
	sb.WriteByte(')')
}

// String returns the canonical form of the topology: taxon indices in
// nested parentheses, rooted next to the smallest inserted taxon and
// with children sorted by their smallest taxon. Trees with the same
// topology have the same string.
func (t *Tree) String() string {
	first := 0
	for t.leafEdge[first] == none {
		first++
	}
	var sb strings.Builder
	t.rootAt(first).write(&sb)
	sb.WriteByte(';')
	return sb.String()
}

// ToTree converts the tree to a general tree rooted at the internal
// node next to the root taxon. Branch lengths are zero.
func (t *Tree) ToTree(names []string, root int) *tree.Tree {
	var convert func(s *subtree, parent *tree.Node) *tree.Node
	convert = func(s *subtree, parent *tree.Node) *tree.Node {
		node := tree.NewNode(parent, 0)
		if s.children == nil {
			node.LeafId = s.node
			node.Name = names[s.node]
			return node
		}
		for _, c := range s.children {
			convert(c, node)
		}
		return node
	}
	s := t.rootAt(root)
	// the root taxon goes first
	sort.SliceStable(s.children, func(i, j int) bool {
		return s.children[i].node == root && s.children[j].node != root
	})
	return tree.New(convert(s, nil))
}
