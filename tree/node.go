package tree

import (
	"fmt"
	"strconv"
	"strings"
)

// NoSupport is the Support value of nodes without support.
const NoSupport = -1

// Node is a tree node. The branch of a node connects it to its
// parent.
type Node struct {
	Name string
	// BranchLength is in expected substitutions per site.
	BranchLength float64
	Parent       *Node
	childNodes   []*Node
	// Id is the index of the node in the tree.
	Id int
	// LeafId is the taxon index of a terminal node.
	LeafId int
	// Support is the support of the branch in percent, or
	// NoSupport.
	Support int
}

// NewNode creates a node.
func NewNode(parent *Node, nodeId int) (node *Node) {
	node = &Node{Id: nodeId, LeafId: -1, Support: NoSupport}
	if parent != nil {
		parent.AddChild(node)
	}
	return
}

// Copy creates copy of node with empty parent and children.
func (node *Node) Copy() *Node {
	return &Node{
		Name:         node.Name,
		BranchLength: node.BranchLength,
		childNodes:   make([]*Node, 0, len(node.childNodes)),
		Id:           node.Id,
		LeafId:       node.LeafId,
		Support:      node.Support,
	}
}

// AddChild attaches a subnode.
func (node *Node) AddChild(subNode *Node) {
	subNode.Parent = node
	node.childNodes = append(node.childNodes, subNode)
}

// RemoveChild detaches a subnode.
func (node *Node) RemoveChild(subNode *Node) bool {
	for i, child := range node.childNodes {
		if child == subNode {
			node.childNodes = append(node.childNodes[:i], node.childNodes[i+1:]...)
			subNode.Parent = nil
			return true
		}
	}
	return false
}

func formatLength(l float64) string {
	return strconv.FormatFloat(l, 'f', 6, 64)
}

func (node *Node) writeNewick(sb *strings.Builder, lengths bool) {
	if !node.IsTerminal() {
		sb.WriteByte('(')
		for i, child := range node.childNodes {
			if i > 0 {
				sb.WriteByte(',')
			}
			child.writeNewick(sb, lengths)
		}
		sb.WriteByte(')')
		if node.Support != NoSupport && !node.IsRoot() {
			sb.WriteString(strconv.Itoa(node.Support))
		}
	} else {
		sb.WriteString(node.Name)
	}
	if lengths && !node.IsRoot() {
		sb.WriteByte(':')
		sb.WriteString(formatLength(node.BranchLength))
	}
}

// String returns the subtree in Newick format with branch lengths
// and support values.
func (node *Node) String() string {
	var sb strings.Builder
	node.writeNewick(&sb, true)
	if node.IsRoot() {
		sb.WriteByte(';')
	}
	return sb.String()
}

// Topology returns the subtree in Newick format without branch
// lengths.
func (node *Node) Topology() string {
	var sb strings.Builder
	node.writeNewick(&sb, false)
	if node.IsRoot() {
		sb.WriteByte(';')
	}
	return sb.String()
}

// LongString describes the node.
func (node *Node) LongString() (s string) {
	s = "<"
	if node.Parent == nil {
		s += "root, "
	}
	if node.Name != "" {
		s += "name=" + node.Name + ", "
	}
	s += fmt.Sprintf("Id=%v, BranchLength=%v", node.Id, node.BranchLength)
	if node.IsTerminal() {
		s += fmt.Sprintf(", LeafId=%v", node.LeafId)
	}
	if node.Support != NoSupport {
		s += fmt.Sprintf(", Support=%v", node.Support)
	}
	s += ">"
	return
}

// FullString returns an indented description of the subtree.
func (node *Node) FullString() string {
	return strings.TrimSpace(node.prefixString(""))
}

func (node *Node) prefixString(prefix string) (s string) {
	s = prefix + node.LongString() + "\n"
	for _, node := range node.childNodes {
		s += node.prefixString(prefix + "    ")
	}
	return
}

// ChildNodes returns the children.
func (node *Node) ChildNodes() []*Node {
	return node.childNodes
}

// Walk sends the nodes of the subtree (preorder) which pass the
// filter to the channel.
func (node *Node) Walk(ch chan *Node, filter func(*Node) bool) {
	if filter == nil || filter(node) {
		ch <- node
	}
	for _, node := range node.childNodes {
		node.Walk(ch, filter)
	}
}

// SubLeaves returns the leaves of the subtree.
func (node *Node) SubLeaves() (leaves []*Node) {
	if node.IsTerminal() {
		return []*Node{node}
	}
	for _, child := range node.childNodes {
		leaves = append(leaves, child.SubLeaves()...)
	}
	return
}

// NSubNodes returns the size of the subtree.
func (node *Node) NSubNodes() (size int) {
	for _, node := range node.childNodes {
		size += node.NSubNodes()
	}
	return size + 1
}

// IsRoot is true for the root node.
func (node *Node) IsRoot() bool {
	return node.Parent == nil
}

// IsTerminal is true for leaves.
func (node *Node) IsTerminal() bool {
	return len(node.childNodes) == 0
}
