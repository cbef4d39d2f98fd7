// Package consensus counts bipartitions of puzzling step trees and
// builds the majority rule consensus tree.
package consensus

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/qpuzzle/diag"
	"bitbucket.org/Davydov/qpuzzle/tree"
)

var log = logging.MustGetLogger("consensus")

// Bipartition is a split with the number of trials it was found in.
// Taxa is the side without the outgroup.
type Bipartition struct {
	Taxa  *bitset.BitSet
	Count int
	size  uint
	key   string
}

// Size returns the number of taxa on the side without the outgroup.
func (b *Bipartition) Size() int {
	return int(b.size)
}

// Support returns the percentage of trials with the bipartition,
// rounded half up.
func (b *Bipartition) Support(trials int) int {
	return int(math.Floor(100*float64(b.Count)/float64(trials) + 0.5))
}

// Format writes the split as a string of '.' and '*', the outgroup
// side being dots.
func (b *Bipartition) Format(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 && i%10 == 0 {
			sb.WriteByte(' ')
		}
		if b.Taxa.Test(uint(i)) {
			sb.WriteByte('*')
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

func setKey(bs *bitset.BitSet) string {
	words := bs.Bytes()
	buf := make([]byte, 8*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[8*i:], w)
	}
	return string(buf)
}

// Table counts bipartitions over trials. It is not safe for
// concurrent use; workers keep their own tables which are merged.
type Table struct {
	n        int
	outgroup int
	trials   int
	entries  []*Bipartition
	// index maps the size and the packed set to the entry
	index map[uint]map[string]*Bipartition
}

// NewTable creates an empty table for n taxa. Bipartitions are
// stored as the side without the outgroup.
func NewTable(n, outgroup int) *Table {
	if outgroup < 0 || outgroup >= n {
		panic(fmt.Sprintf("outgroup %d out of range", outgroup))
	}
	return &Table{
		n:        n,
		outgroup: outgroup,
		index:    make(map[uint]map[string]*Bipartition),
	}
}

// NTaxa returns the number of taxa.
func (t *Table) NTaxa() int {
	return t.n
}

// Outgroup returns the outgroup taxon.
func (t *Table) Outgroup() int {
	return t.outgroup
}

// Trials returns the number of recorded trials.
func (t *Table) Trials() int {
	return t.trials
}

// Len returns the number of distinct bipartitions.
func (t *Table) Len() int {
	return len(t.entries)
}

func (t *Table) normalize(bs *bitset.BitSet) *bitset.BitSet {
	if bs.Len() != uint(t.n) {
		c := bitset.New(uint(t.n))
		c.InPlaceUnion(bs)
		bs = c
	}
	if bs.Test(uint(t.outgroup)) {
		bs = bs.Complement()
	}
	return bs
}

func (t *Table) add(bs *bitset.BitSet, count int) {
	bs = t.normalize(bs)
	size := bs.Count()
	key := setKey(bs)
	bucket := t.index[size]
	if bucket == nil {
		bucket = make(map[string]*Bipartition)
		t.index[size] = bucket
	}
	if b, ok := bucket[key]; ok {
		b.Count += count
		return
	}
	b := &Bipartition{Taxa: bs.Clone(), Count: count, size: size, key: key}
	bucket[key] = b
	t.entries = append(t.entries, b)
}

// RecordTrial counts the bipartitions of one tree.
func (t *Table) RecordTrial(bps []*bitset.BitSet) {
	t.trials++
	for _, bs := range bps {
		t.add(bs, 1)
	}
}

// Merge adds the counts of another table.
func (t *Table) Merge(other *Table) {
	if other.n != t.n || other.outgroup != t.outgroup {
		panic("merging incompatible bipartition tables")
	}
	t.trials += other.trials
	for _, b := range other.entries {
		t.add(b.Taxa, b.Count)
	}
}

// Sorted returns the bipartitions ordered by count, most frequent
// first.
func (t *Table) Sorted() []*Bipartition {
	res := append([]*Bipartition(nil), t.entries...)
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Count != res[j].Count {
			return res[i].Count > res[j].Count
		}
		if res[i].size != res[j].size {
			return res[i].size < res[j].size
		}
		return res[i].key < res[j].key
	})
	return res
}

// Entry is the serializable form of a bipartition.
type Entry struct {
	Taxa  []uint `json:"taxa"`
	Count int    `json:"count"`
}

// Snapshot is the serializable form of a table.
type Snapshot struct {
	NTaxa    int     `json:"ntaxa"`
	Outgroup int     `json:"outgroup"`
	Trials   int     `json:"trials"`
	Entries  []Entry `json:"entries"`
}

// Snapshot returns the contents of the table.
func (t *Table) Snapshot() *Snapshot {
	s := &Snapshot{NTaxa: t.n, Outgroup: t.outgroup, Trials: t.trials}
	for _, b := range t.Sorted() {
		var taxa []uint
		for i, ok := b.Taxa.NextSet(0); ok; i, ok = b.Taxa.NextSet(i + 1) {
			taxa = append(taxa, i)
		}
		s.Entries = append(s.Entries, Entry{Taxa: taxa, Count: b.Count})
	}
	return s
}

// Restore creates a table from a snapshot.
func Restore(s *Snapshot) (*Table, error) {
	if s.Outgroup < 0 || s.Outgroup >= s.NTaxa {
		return nil, fmt.Errorf("outgroup %d out of range for %d taxa", s.Outgroup, s.NTaxa)
	}
	t := NewTable(s.NTaxa, s.Outgroup)
	t.trials = s.Trials
	for _, e := range s.Entries {
		bs := bitset.New(uint(s.NTaxa))
		for _, i := range e.Taxa {
			if int(i) >= s.NTaxa {
				return nil, fmt.Errorf("taxon %d out of range for %d taxa", i, s.NTaxa)
			}
			bs.Set(i)
		}
		t.add(bs, e.Count)
	}
	return t, nil
}

// Split is a bipartition included in the consensus tree.
type Split struct {
	*Bipartition
	// SupportPct is the percentage of trials with the split.
	SupportPct int
}

// Consensus is the majority rule consensus of the recorded trials.
type Consensus struct {
	Trials int
	Splits []Split
	// Tree is rooted at the outgroup side; internal nodes carry
	// the support. Branch lengths are zero.
	Tree     *tree.Tree
	Warnings diag.Warnings
}

// Majority selects the bipartitions found in more than half of the
// trials and builds the tree. Splits are assigned to parents by
// strict containment, smaller splits first. Splits which overlap
// without nesting are reported as warnings and kept.
func (t *Table) Majority(names []string) *Consensus {
	if len(names) != t.n {
		panic(fmt.Sprintf("%d names for %d taxa", len(names), t.n))
	}
	c := &Consensus{Trials: t.trials}
	for _, b := range t.Sorted() {
		if 2*b.Count > t.trials {
			c.Splits = append(c.Splits, Split{Bipartition: b, SupportPct: b.Support(t.trials)})
		}
	}

	bySize := append([]Split(nil), c.Splits...)
	sort.SliceStable(bySize, func(i, j int) bool {
		return bySize[i].size < bySize[j].size
	})
	for i, a := range bySize {
		for _, b := range bySize[i+1:] {
			if a.Taxa.IntersectionCardinality(b.Taxa) > 0 && !b.Taxa.IsSuperSet(a.Taxa) {
				c.Warnings.Add("consensus", "majority splits %s and %s are not nested",
					a.Format(t.n), b.Format(t.n))
				log.Warningf("Majority splits %s and %s are not nested", a.Format(t.n), b.Format(t.n))
			}
		}
	}

	root := tree.NewNode(nil, 0)
	nodes := make([]*tree.Node, len(bySize))
	// parentOf returns the node of the smallest split strictly
	// containing the set, or the root.
	parentOf := func(set *bitset.BitSet, from int) *tree.Node {
		for j := from; j < len(bySize); j++ {
			if bySize[j].size > set.Count() && bySize[j].Taxa.IsSuperSet(set) {
				return nodes[j]
			}
		}
		return root
	}
	for i := range bySize {
		nodes[i] = tree.NewNode(nil, 0)
		nodes[i].Support = bySize[i].SupportPct
	}
	for i := range bySize {
		parentOf(bySize[i].Taxa, i+1).AddChild(nodes[i])
	}

	outgroup := tree.NewNode(nil, 0)
	outgroup.Name = names[t.outgroup]
	outgroup.LeafId = t.outgroup
	root.AddChild(outgroup)
	single := bitset.New(uint(t.n))
	for i := 0; i < t.n; i++ {
		if i == t.outgroup {
			continue
		}
		single.ClearAll()
		single.Set(uint(i))
		leaf := tree.NewNode(nil, 0)
		leaf.Name = names[i]
		leaf.LeafId = i
		parentOf(single, 0).AddChild(leaf)
	}
	sortChildren(root)
	children := root.ChildNodes()
	sort.SliceStable(children, func(i, j int) bool {
		return children[i] == outgroup && children[j] != outgroup
	})
	c.Tree = tree.New(root)
	log.Infof("Consensus tree has %d of %d possible internal branches", len(c.Splits), t.n-3)
	return c
}

// sortChildren orders children by their smallest leaf and returns
// the smallest leaf of the subtree.
func sortChildren(node *tree.Node) int {
	if node.IsTerminal() {
		return node.LeafId
	}
	children := node.ChildNodes()
	minLeaf := make(map[*tree.Node]int, len(children))
	for _, child := range children {
		minLeaf[child] = sortChildren(child)
	}
	sort.SliceStable(children, func(i, j int) bool {
		return minLeaf[children[i]] < minLeaf[children[j]]
	})
	m := minLeaf[children[0]]
	for _, v := range minLeaf {
		if v < m {
			m = v
		}
	}
	return m
}

// Newick returns the consensus topology with support values.
func (c *Consensus) Newick() string {
	return c.Tree.Topology()
}
