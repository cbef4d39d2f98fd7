// Package tree provides phylogenetic trees with branch lengths and
// support values, and the Newick format.
package tree

import (
	"errors"
	"fmt"
	"sort"
)

// Tree is a tree given by its root node. Node lists are cached; call
// ClearCache after changing the topology.
type Tree struct {
	*Node
	nNodes    int
	nodes     []*Node
	nodeOrder []*Node
}

// New creates a tree from the root node and numbers the nodes.
func New(root *Node) *Tree {
	t := &Tree{Node: root}
	t.Renumber()
	return t
}

// ClearCache drops cached node lists.
func (tree *Tree) ClearCache() {
	tree.nNodes = 0
	tree.nodes = nil
	tree.nodeOrder = nil
}

// NNodes returns the number of nodes.
func (tree *Tree) NNodes() int {
	if tree.nNodes == 0 {
		tree.nNodes = tree.NSubNodes()
	}
	return tree.nNodes
}

// Nodes returns nodes indexed by Id.
func (tree *Tree) Nodes() []*Node {
	if tree.nodes == nil {
		tree.nodes = make([]*Node, tree.NNodes())
		for node := range tree.Walker(nil) {
			tree.nodes[node.Id] = node
		}
	}
	return tree.nodes
}

// Terminals returns all the leaves.
func (tree *Tree) Terminals() <-chan *Node {
	return tree.Walker(func(n *Node) bool {
		return n.IsTerminal()
	})
}

// NonTerminals returns all the internal nodes.
func (tree *Tree) NonTerminals() <-chan *Node {
	return tree.Walker(func(node *Node) bool {
		return !node.IsTerminal()
	})
}

// NLeaves returns the number of leaves.
func (tree *Tree) NLeaves() (i int) {
	for range tree.Terminals() {
		i++
	}
	return
}

// Leaves returns leaves ordered by LeafId.
func (tree *Tree) Leaves() []*Node {
	var leaves []*Node
	for node := range tree.Terminals() {
		leaves = append(leaves, node)
	}
	sort.Slice(leaves, func(i, j int) bool {
		return leaves[i].LeafId < leaves[j].LeafId
	})
	return leaves
}

// Walker returns a channel with nodes (preorder) which pass the
// filter.
func (tree *Tree) Walker(filter func(*Node) bool) <-chan *Node {
	ch := make(chan *Node, tree.NNodes())
	tree.Walk(ch, filter)
	close(ch)
	return ch
}

// Renumber assigns node ids in preorder and clears the cache.
func (tree *Tree) Renumber() {
	tree.ClearCache()
	id := 0
	for node := range tree.Walker(nil) {
		node.Id = id
		id++
	}
	tree.ClearCache()
}

// numberLeaves assigns leaf ids in preorder.
func (tree *Tree) numberLeaves() {
	leafId := 0
	for node := range tree.Terminals() {
		node.LeafId = leafId
		leafId++
	}
}

// SetLeafIds sets LeafId of each leaf to the index of its name in
// names. Every name must appear exactly once.
func (tree *Tree) SetLeafIds(names []string) error {
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}
	seen := make([]bool, len(names))
	n := 0
	for node := range tree.Terminals() {
		i, ok := index[node.Name]
		if !ok {
			return fmt.Errorf("unknown taxon in tree: %q", node.Name)
		}
		if seen[i] {
			return fmt.Errorf("taxon %q appears twice in tree", node.Name)
		}
		seen[i] = true
		node.LeafId = i
		n++
	}
	if n != len(names) {
		return fmt.Errorf("tree has %d taxa, alignment has %d", n, len(names))
	}
	return nil
}

// Copy creates independent copy of the tree.
func (tree *Tree) Copy() (newTree *Tree) {
	nNodes := tree.NNodes()
	newTree = &Tree{
		nNodes: nNodes,
		nodes:  make([]*Node, nNodes),
	}

	// Create node list.
	for i, node := range tree.Nodes() {
		if i != node.Id {
			panic("node id mismatch")
		}
		newTree.nodes[i] = node.Copy()
	}

	// Rewire node/parent connections.
	for i, node := range tree.Nodes() {
		newNode := newTree.nodes[i]
		for _, child := range node.childNodes {
			newNode.AddChild(newTree.nodes[child.Id])
		}
	}

	newTree.Node = newTree.nodes[tree.Node.Id]
	return
}

// NodeOrder returns internal nodes in postorder, children before
// parents.
func (tree *Tree) NodeOrder() []*Node {
	if tree.nodeOrder == nil {
		tree.nodeOrder = make([]*Node, 0, tree.NNodes())
		var visit func(*Node)
		visit = func(node *Node) {
			for _, child := range node.childNodes {
				visit(child)
			}
			if !node.IsTerminal() {
				tree.nodeOrder = append(tree.nodeOrder, node)
			}
		}
		visit(tree.Node)
	}
	return tree.nodeOrder
}

// Unroot removes a bifurcation at the root. The two root branches
// are merged into one. Support of the removed branch is kept on the
// merged branch.
func (tree *Tree) Unroot() error {
	if tree.NLeaves() < 3 {
		return errors.New("cannot unroot a tree with less than three leaves")
	}
	root := tree.Node
	if len(root.childNodes) != 2 {
		return nil
	}
	// pick an internal child to dissolve
	a, b := root.childNodes[0], root.childNodes[1]
	if a.IsTerminal() {
		a, b = b, a
	}
	b.BranchLength += a.BranchLength
	if b.Support == NoSupport {
		b.Support = a.Support
	}
	root.RemoveChild(a)
	for _, child := range append([]*Node(nil), a.childNodes...) {
		a.RemoveChild(child)
		root.AddChild(child)
	}
	tree.Renumber()
	return nil
}

// IsBinaryUnrooted is true if the root has three children and all the
// other internal nodes have two.
func (tree *Tree) IsBinaryUnrooted() bool {
	if len(tree.Node.childNodes) != 3 {
		return false
	}
	for node := range tree.NonTerminals() {
		if node != tree.Node && len(node.childNodes) != 2 {
			return false
		}
	}
	return true
}
