package ml

import (
	"strings"

	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/qpuzzle/bio"
	"bitbucket.org/Davydov/qpuzzle/rng"
	"bitbucket.org/Davydov/qpuzzle/smodel"
	"bitbucket.org/Davydov/qpuzzle/tree"
)

// sample draws a state from the distribution p.
func sample(p []float64, s *rng.Stream) int {
	u := s.Float64()
	for i, v := range p {
		u -= v
		if u < 0 {
			return i
		}
	}
	return len(p) - 1
}

// Simulate generates an alignment along the tree under the model.
// The rate matrix must be up to date. Sequences are named after the
// leaves; branch lengths are in substitutions per site.
func Simulate(q *smodel.RateMatrix, rates *smodel.Rates, t *tree.Tree, nsites int, s *rng.Stream) bio.Sequences {
	n := q.NStates()
	dt := q.Kind.DataType()
	leaves := t.Leaves()
	states := make([][]byte, t.NNodes())
	for i := range states {
		states[i] = make([]byte, nsites)
	}

	// per site rate, zero for invariable sites
	rate := make([]float64, nsites)
	for k := range rate {
		if s.Float64() < rates.FracInv {
			continue
		}
		rate[k] = rates.Rate[s.Intn(rates.NCat())]
	}

	root := t.Node
	for k := 0; k < nsites; k++ {
		states[root.Id][k] = byte(sample(q.Freq, s))
	}
	p := mat.NewDense(n, n, nil)
	row := make([]float64, n)
	var visit func(*tree.Node)
	visit = func(node *tree.Node) {
		for _, child := range node.ChildNodes() {
			for k := 0; k < nsites; k++ {
				parent := int(states[node.Id][k])
				if rate[k] == 0 {
					states[child.Id][k] = byte(parent)
					continue
				}
				q.Exp(p, ToPAM(child.BranchLength)*rate[k])
				mat.Row(row, parent, p)
				states[child.Id][k] = byte(sample(row, s))
			}
			visit(child)
		}
	}
	visit(root)

	seqs := make(bio.Sequences, len(leaves))
	for i, leaf := range leaves {
		var sb strings.Builder
		for _, st := range states[leaf.Id] {
			sb.WriteString(dt.StateString(st))
		}
		seqs[i] = bio.Sequence{Name: leaf.Name, Sequence: sb.String()}
	}
	return seqs
}
