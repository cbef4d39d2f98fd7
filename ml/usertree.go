package ml

import (
	"fmt"

	"bitbucket.org/Davydov/qpuzzle/diag"
	"bitbucket.org/Davydov/qpuzzle/tree"
)

// TreeResult is the evaluation of one tree.
type TreeResult struct {
	// Tree is the tree with estimated branch lengths.
	Tree *tree.Tree `json:"-"`
	// Newick is the tree in Newick format.
	Newick string `json:"tree"`
	// LnL is the log-likelihood.
	LnL float64 `json:"lnL"`
	// RSS is the root of the least squares residual sum of squares.
	RSS float64 `json:"rss"`
	// DeltaLnL is the difference to the best tree.
	DeltaLnL float64       `json:"deltaLnL"`
	Warnings diag.Warnings `json:"warnings,omitempty"`
}

// EvaluateTree estimates branch lengths of the tree and computes its
// log-likelihood. The tree is unrooted if needed and its leaves are
// matched to taxa by name. With approximate set, least squares
// lengths are used without further optimization.
func EvaluateTree(m *Model, t *tree.Tree, names []string, dist [][]float64, approximate bool) (*TreeResult, error) {
	if err := t.SetLeafIds(names); err != nil {
		return nil, err
	}
	if err := t.Unroot(); err != nil {
		return nil, err
	}
	for node := range t.NonTerminals() {
		if !node.IsRoot() && len(node.ChildNodes()) < 2 {
			return nil, fmt.Errorf("tree has an internal node of degree two")
		}
	}
	res := &TreeResult{Tree: t}
	res.RSS = LeastSquaresLengths(t, dist)
	tl := NewTreeLikelihood(m, t)
	if approximate {
		res.LnL = tl.LogLikelihood()
	} else {
		res.LnL, res.Warnings = tl.Optimize()
	}
	res.Newick = t.String()
	return res, nil
}

// EvaluateTrees evaluates several trees and fills DeltaLnL.
func EvaluateTrees(m *Model, trees []*tree.Tree, names []string, dist [][]float64, approximate bool) ([]*TreeResult, error) {
	res := make([]*TreeResult, len(trees))
	best := 0
	for i, t := range trees {
		r, err := EvaluateTree(m, t, names, dist, approximate)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %v", i+1, err)
		}
		res[i] = r
		if r.LnL > res[best].LnL {
			best = i
		}
		log.Infof("Tree %d: lnL=%f", i+1, r.LnL)
	}
	for _, r := range res {
		r.DeltaLnL = res[best].LnL - r.LnL
	}
	return res, nil
}
