package ml

import (
	"bitbucket.org/Davydov/qpuzzle/tree"
)

// NeighborJoining builds an unrooted tree from distances (PAM) with
// the neighbor-joining method. Leaves get the names and LeafId equal
// to the index in dist. Branch lengths are clamped to [MinArc,
// MaxArc].
func NeighborJoining(names []string, dist [][]float64) *tree.Tree {
	n := len(names)
	if n < 3 {
		panic("neighbor joining needs at least three taxa")
	}
	d := make([][]float64, n)
	for i := range d {
		d[i] = append([]float64(nil), dist[i]...)
	}
	otus := make([]*tree.Node, n)
	for i := range otus {
		otus[i] = tree.NewNode(nil, 0)
		otus[i].Name = names[i]
		otus[i].LeafId = i
	}
	setLength := func(node *tree.Node, arc float64) {
		node.BranchLength = FromPAM(clampArc(arc))
	}

	r := make([]float64, n)
	nsp2 := float64(n - 2)
	for rest := n; rest > 3; rest-- {
		for i := 0; i < n; i++ {
			if otus[i] == nil {
				continue
			}
			r[i] = 0
			for j := 0; j < n; j++ {
				if otus[j] != nil {
					r[i] += d[i][j]
				}
			}
		}

		oi, oj := 0, 0
		smax := -1.0
		for i := 0; i < n-1; i++ {
			if otus[i] == nil {
				continue
			}
			for j := i + 1; j < n; j++ {
				if otus[j] == nil {
					continue
				}
				if s := (r[i]+r[j])/nsp2 - d[i][j]; s > smax {
					smax = s
					oi, oj = i, j
				}
			}
		}

		dij := d[oi][oj]
		bi := (dij + r[oi]/nsp2 - r[oj]/nsp2) * 0.5
		bj := dij - bi
		node := tree.NewNode(nil, 0)
		node.AddChild(otus[oi])
		node.AddChild(otus[oj])
		setLength(otus[oi], bi)
		setLength(otus[oj], bj)

		for k := 0; k < n; k++ {
			if otus[k] != nil && k != oi && k != oj {
				dk := (d[oi][k] + d[oj][k] - d[oi][oj]) * 0.5
				d[oi][k] = dk
				d[k][oi] = dk
			}
		}
		d[oi][oi] = 0
		otus[oi] = node
		otus[oj] = nil
		nsp2--
	}

	var last []int
	for i, otu := range otus {
		if otu != nil {
			last = append(last, i)
		}
	}
	i, j, k := last[0], last[1], last[2]
	bi := (d[i][j] + d[i][k] - d[j][k]) * 0.5
	bj := d[i][j] - bi
	bk := d[i][k] - bi
	root := tree.NewNode(nil, 0)
	for _, c := range []struct {
		node *tree.Node
		l    float64
	}{{otus[i], bi}, {otus[j], bj}, {otus[k], bk}} {
		root.AddChild(c.node)
		setLength(c.node, c.l)
	}
	return tree.New(root)
}
