package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/qpuzzle/tree"
)

// LeastSquaresLengths sets the branch lengths of the tree to the
// unweighted least squares fit to the distances (PAM, indexed by
// LeafId). Lengths are clamped to [MinArc, MaxArc]. The square root of
// the residual sum of squares is returned. The tree has to be
// unrooted, otherwise the system is singular; a singular system
// panics.
func LeastSquaresLengths(t *tree.Tree, dist [][]float64) float64 {
	leaves := t.Leaves()
	nleaves := len(leaves)
	pos := make(map[*tree.Node]int, nleaves)
	for i, leaf := range leaves {
		pos[leaf] = i
	}

	var branches []*tree.Node
	for node := range t.Walker(nil) {
		if !node.IsRoot() {
			branches = append(branches, node)
		}
	}
	nbr := len(branches)

	// below[b][i] is true if leaf i is below branch b
	below := make([][]bool, nbr)
	for b, node := range branches {
		below[b] = make([]bool, nleaves)
		for _, leaf := range node.SubLeaves() {
			below[b][pos[leaf]] = true
		}
	}

	npairs := nleaves * (nleaves - 1) / 2
	a := mat.NewDense(npairs, nbr, nil)
	y := mat.NewVecDense(npairs, nil)
	k := 0
	for i := 1; i < nleaves; i++ {
		for j := 0; j < i; j++ {
			for b := range branches {
				if below[b][i] != below[b][j] {
					a.Set(k, b, 1)
				}
			}
			y.SetVec(k, dist[leaves[i].LeafId][leaves[j].LeafId])
			k++
		}
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)
	var aty mat.VecDense
	aty.MulVec(a.T(), y)

	var lu mat.LU
	lu.Factorize(&ata)
	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, &aty); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			panic(fmt.Sprintf("least squares system is singular: %v", err))
		}
		log.Debugf("Least squares system is ill-conditioned: %v", err)
	}

	rss := 0.0
	for k := 0; k < npairs; k++ {
		sum := y.AtVec(k)
		for b := range branches {
			if a.At(k, b) == 1 && x.AtVec(b) > 0 {
				sum -= x.AtVec(b)
			}
		}
		rss += sum * sum
	}

	for b, node := range branches {
		node.BranchLength = FromPAM(clampArc(x.AtVec(b)))
	}
	return math.Sqrt(rss)
}
