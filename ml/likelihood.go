package ml

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/qpuzzle/diag"
	"bitbucket.org/Davydov/qpuzzle/optimize"
	"bitbucket.org/Davydov/qpuzzle/tree"
)

// TreeLikelihood computes the likelihood of a tree by Felsenstein
// pruning and optimizes its branch lengths. The tree has to be
// unrooted (no bifurcation at the root) and its leaves must have
// LeafId set to the taxon index. It is not safe for concurrent use.
type TreeLikelihood struct {
	m    *Model
	tree *tree.Tree
	// block is the size of a partial vector: ncat*npat*nstates.
	block int
	// down[id] is the conditional likelihood of the subtree of an
	// internal node.
	down [][]float64
	// msg[id] is the message a node sends to its parent through
	// its branch.
	msg [][]float64
	// scratch vectors indexed by depth
	upper [][]float64
	above [][]float64
	tmp   []float64
	p     []*mat.Dense
	cdl   [][]float64
	// variance of branch lengths (PAM^2) by node id
	variance []float64

	// Sweeps is the number of sweeps done by the last Optimize.
	Sweeps int
	// Converged is false if the last Optimize hit MaxIt.
	Converged bool
}

// NewTreeLikelihood prepares likelihood computations for the tree.
// Call Reset if the topology of the tree changes.
func NewTreeLikelihood(m *Model, t *tree.Tree) *TreeLikelihood {
	tl := &TreeLikelihood{
		m:     m,
		block: m.NCat() * m.NPatterns() * m.NStates(),
		tmp:   make([]float64, m.NCat()*m.NPatterns()*m.NStates()),
		p:     m.newTPM(),
		cdl:   newCDL(m.NCat(), m.NPatterns()),
	}
	tl.Reset(t)
	return tl
}

// Reset attaches a new tree. Buffers are reused when possible.
func (tl *TreeLikelihood) Reset(t *tree.Tree) {
	if t.NLeaves() < 3 {
		panic("tree likelihood needs at least three leaves")
	}
	tl.tree = t
	n := t.NNodes()
	grow := func(v [][]float64) [][]float64 {
		for len(v) < n {
			v = append(v, nil)
		}
		return v[:n]
	}
	tl.down = grow(tl.down)
	tl.msg = grow(tl.msg)
	for _, node := range t.Nodes() {
		if tl.msg[node.Id] == nil {
			tl.msg[node.Id] = make([]float64, tl.block)
		}
		if !node.IsTerminal() && tl.down[node.Id] == nil {
			tl.down[node.Id] = make([]float64, tl.block)
		}
	}
	if len(tl.variance) < n {
		tl.variance = make([]float64, n)
	}
}

// Tree returns the tree.
func (tl *TreeLikelihood) Tree() *tree.Tree {
	return tl.tree
}

func (tl *TreeLikelihood) scratch(v *[][]float64, depth int) []float64 {
	for len(*v) <= depth {
		*v = append(*v, make([]float64, tl.block))
	}
	return (*v)[depth]
}

// propagate computes dst[r,k,i] = Σ_j P_r[i][j]·src[r,k,j] with the
// matrices in tl.p.
func (tl *TreeLikelihood) propagate(dst, src []float64) {
	n := tl.m.NStates()
	npat := tl.m.NPatterns()
	for r, pr := range tl.p {
		raw := pr.RawMatrix()
		for k := 0; k < npat; k++ {
			off := (r*npat + k) * n
			s := src[off : off+n]
			for i := 0; i < n; i++ {
				row := raw.Data[i*raw.Stride : i*raw.Stride+n]
				sum := 0.0
				for j, v := range s {
					sum += row[j] * v
				}
				dst[off+i] = sum
			}
		}
	}
}

// computeMsg computes the message of the node to its parent with the
// current branch length.
func (tl *TreeLikelihood) computeMsg(node *tree.Node) {
	tl.m.transition(ToPAM(node.BranchLength), tl.p)
	dst := tl.msg[node.Id]
	if !node.IsTerminal() {
		tl.propagate(dst, tl.down[node.Id])
		return
	}
	n := tl.m.NStates()
	npat := tl.m.NPatterns()
	seq := tl.m.Pat.Data[node.LeafId]
	for r, pr := range tl.p {
		raw := pr.RawMatrix()
		for k := 0; k < npat; k++ {
			off := (r*npat + k) * n
			s := int(seq[k])
			for i := 0; i < n; i++ {
				if s == n {
					dst[off+i] = 1
				} else {
					dst[off+i] = raw.Data[i*raw.Stride+s]
				}
			}
		}
	}
}

// computeDown multiplies the messages of the children.
func (tl *TreeLikelihood) computeDown(node *tree.Node) {
	dst := tl.down[node.Id]
	for i := range dst {
		dst[i] = 1
	}
	for _, child := range node.ChildNodes() {
		for i, v := range tl.msg[child.Id] {
			dst[i] *= v
		}
	}
}

// update recomputes all the messages and conditional likelihoods of
// the subtree.
func (tl *TreeLikelihood) update(node *tree.Node) {
	for _, child := range node.ChildNodes() {
		if !child.IsTerminal() {
			tl.update(child)
		}
		tl.computeMsg(child)
	}
	tl.computeDown(node)
}

// finish computes per-category pattern likelihoods at the root of
// the vector v and returns the log-likelihood.
func (tl *TreeLikelihood) finish(v []float64) float64 {
	n := tl.m.NStates()
	npat := tl.m.NPatterns()
	freq := tl.m.Q.Freq
	for r := range tl.cdl {
		for k := 0; k < npat; k++ {
			off := (r*npat + k) * n
			sum := 0.0
			for i, f := range freq {
				sum += f * v[off+i]
			}
			tl.cdl[r][k] = sum
		}
	}
	return tl.m.logLikelihood(tl.cdl)
}

// LogLikelihood computes the log-likelihood with the current branch
// lengths.
func (tl *TreeLikelihood) LogLikelihood() float64 {
	tl.update(tl.tree.Node)
	return tl.finish(tl.down[tl.tree.Node.Id])
}

// SiteLogLikelihoods returns the log-likelihood of every site
// pattern with the current branch lengths.
func (tl *TreeLikelihood) SiteLogLikelihoods() []float64 {
	tl.LogLikelihood()
	return tl.m.siteLogLikelihoods(tl.cdl)
}

// branchLogLikelihood computes the log-likelihood given the upper
// vector u at the parent of the node and the current message of the
// node.
func (tl *TreeLikelihood) branchLogLikelihood(node *tree.Node, u []float64) float64 {
	v := tl.tmp
	for i, x := range tl.msg[node.Id] {
		v[i] = x * u[i]
	}
	return tl.finish(v)
}

// optimizeBranch optimizes the length of the branch above node given
// the upper vector. It returns the absolute change (PAM).
func (tl *TreeLikelihood) optimizeBranch(node *tree.Node, u []float64) float64 {
	old := ToPAM(node.BranchLength)
	arc := old
	if arc <= MinArc {
		arc = MinArc + 1
	}
	if arc >= MaxArc {
		arc = MaxArc - 1
	}
	f := func(x float64) float64 {
		node.BranchLength = FromPAM(x)
		tl.computeMsg(node)
		return -tl.branchLogLikelihood(node, u)
	}
	res := optimize.Minimize1D(MinArc, arc, MaxArc, f, Epsilon)
	node.BranchLength = FromPAM(res.X)
	tl.computeMsg(node)
	tl.variance[node.Id] = res.Variance(MaxArc)
	return math.Abs(res.X - old)
}

// sweep optimizes every branch below node once. above is the message
// reaching node from the rest of the tree, nil at the root. It
// returns the number of branches which changed by less than Epsilon.
func (tl *TreeLikelihood) sweep(node *tree.Node, above []float64, depth int) (nconv int) {
	children := node.ChildNodes()
	for c, child := range children {
		u := tl.scratch(&tl.upper, depth)
		if above != nil {
			copy(u, above)
		} else {
			for i := range u {
				u[i] = 1
			}
		}
		for s, sib := range children {
			if s == c {
				continue
			}
			for i, v := range tl.msg[sib.Id] {
				u[i] *= v
			}
		}
		if tl.optimizeBranch(child, u) < Epsilon {
			nconv++
		}
		if !child.IsTerminal() {
			a := tl.scratch(&tl.above, depth)
			tl.m.transition(ToPAM(child.BranchLength), tl.p)
			tl.propagate(a, u)
			nconv += tl.sweep(child, a, depth+1)
			tl.computeDown(child)
			tl.computeMsg(child)
		}
	}
	return
}

// Optimize maximizes the likelihood over branch lengths. Branches are
// optimized one at a time until no branch length changes by more
// than Epsilon or MaxIt sweeps are done.
func (tl *TreeLikelihood) Optimize() (float64, diag.Warnings) {
	var ws diag.Warnings
	root := tl.tree.Node
	nbranches := tl.tree.NNodes() - 1
	tl.update(root)
	tl.Converged = false
	for tl.Sweeps = 1; tl.Sweeps <= MaxIt; tl.Sweeps++ {
		if tl.sweep(root, nil, 0) >= nbranches {
			tl.Converged = true
			break
		}
	}
	if !tl.Converged {
		tl.Sweeps = MaxIt
		ws.Add("ml", "branch length optimization did not converge after %d sweeps", MaxIt)
		log.Debugf("Branch lengths did not converge after %d sweeps", MaxIt)
	}
	tl.computeDown(root)
	return tl.finish(tl.down[root.Id]), ws
}

// StdErr returns the standard error of the branch length above the
// node (substitutions per site) estimated by the last Optimize.
func (tl *TreeLikelihood) StdErr(node *tree.Node) float64 {
	return FromPAM(math.Sqrt(tl.variance[node.Id]))
}
