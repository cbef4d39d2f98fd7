// Package quartet evaluates maximum likelihood quartet trees and keeps
// the resulting topology masks in a packed table.
package quartet

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/exascience/pargo/parallel"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/qpuzzle/diag"
	"bitbucket.org/Davydov/qpuzzle/ml"
	"bitbucket.org/Davydov/qpuzzle/tree"
)

var log = logging.MustGetLogger("quartet")

// Evaluator computes the log-likelihoods of the three topologies of
// quartets. It is safe for concurrent use; each goroutine evaluates
// on its own quartet tree.
type Evaluator struct {
	Model *ml.Model
	// Dist are the pairwise ML distances (PAM) used for least
	// squares branch lengths.
	Dist [][]float64
	// Approximate skips branch length optimization.
	Approximate bool
	Mode        TieMode
}

// NewEvaluator creates an evaluator.
func NewEvaluator(m *ml.Model, dist [][]float64, approximate bool, mode TieMode) *Evaluator {
	return &Evaluator{
		Model:       m,
		Dist:        dist,
		Approximate: approximate,
		Mode:        mode,
	}
}

// NTaxa returns the number of taxa.
func (e *Evaluator) NTaxa() int {
	return len(e.Dist)
}

// quartetTree is a four leaf tree reused for every quartet. The root
// joins leaves 0 and 1 with the inner node, which holds leaves 2 and 3.
type quartetTree struct {
	e      *Evaluator
	t      *tree.Tree
	leaves [4]*tree.Node
	tl     *ml.TreeLikelihood
	// nonConverged counts optimizations which hit the iteration
	// limit.
	nonConverged int64
}

func (e *Evaluator) newQuartetTree() *quartetTree {
	root := tree.NewNode(nil, 0)
	qt := &quartetTree{e: e}
	qt.leaves[0] = tree.NewNode(root, 0)
	qt.leaves[1] = tree.NewNode(root, 0)
	inner := tree.NewNode(root, 0)
	qt.leaves[2] = tree.NewNode(inner, 0)
	qt.leaves[3] = tree.NewNode(inner, 0)
	for i, leaf := range qt.leaves {
		leaf.LeafId = i
	}
	qt.t = tree.New(root)
	qt.tl = ml.NewTreeLikelihood(e.Model, qt.t)
	return qt
}

// logLikelihood evaluates (p,q)|(r,s).
func (qt *quartetTree) logLikelihood(p, q, r, s int) float64 {
	for i, id := range [4]int{p, q, r, s} {
		qt.leaves[i].LeafId = id
	}
	ml.LeastSquaresLengths(qt.t, qt.e.Dist)
	if qt.e.Approximate {
		return qt.tl.LogLikelihood()
	}
	lnL, _ := qt.tl.Optimize()
	if !qt.tl.Converged {
		qt.nonConverged++
	}
	return lnL
}

// evaluate returns the log-likelihoods of (a,b)|(c,d), (a,c)|(b,d)
// and (a,d)|(b,c).
func (qt *quartetTree) evaluate(a, b, c, d int) [3]float64 {
	return [3]float64{
		qt.logLikelihood(a, b, c, d),
		qt.logLikelihood(a, c, b, d),
		qt.logLikelihood(a, d, b, c),
	}
}

// LogLikelihoods returns the log-likelihoods of the topologies
// (a,b)|(c,d), (a,c)|(b,d) and (a,d)|(b,c).
func (e *Evaluator) LogLikelihoods(a, b, c, d int) ([3]float64, diag.Warnings) {
	var ws diag.Warnings
	qt := e.newQuartetTree()
	lnl := qt.evaluate(a, b, c, d)
	if qt.nonConverged > 0 {
		ws.Add("quartet", "branch lengths of quartet (%d,%d,%d,%d) did not converge", a, b, c, d)
	}
	return lnl, ws
}

// Result is the outcome of evaluating all the quartets.
type Result struct {
	Store *Store `json:"-"`
	// BadQuartets is the number of fully unresolved quartets.
	BadQuartets int64 `json:"bad_quartets"`
	// BadTaxon is the number of unresolved quartets each taxon is
	// part of.
	BadTaxon []int64 `json:"bad_taxon"`
	// NonConverged is the number of quartet trees with branch
	// lengths which did not converge.
	NonConverged int64         `json:"non_converged"`
	Warnings     diag.Warnings `json:"warnings,omitempty"`
}

// partial is the result of a range of quartets.
type partial struct {
	bad          int64
	badTaxon     []int64
	nonConverged int64
}

func (e *Evaluator) newPartial() *partial {
	return &partial{badTaxon: make([]int64, e.NTaxa())}
}

func joinPartials(x, y interface{}) interface{} {
	p, q := x.(*partial), y.(*partial)
	p.bad += q.bad
	p.nonConverged += q.nonConverged
	for i, v := range q.badTaxon {
		p.badTaxon[i] += v
	}
	return p
}

// ComputeAll evaluates every quartet in parallel and stores its
// mask.
func (e *Evaluator) ComputeAll() *Result {
	n := e.NTaxa()
	store := NewStore(n)
	total := store.Len()
	nbytes := len(store.data)
	log.Noticef("Computing %d quartet maximum likelihood trees", total)
	start := time.Now()
	var done int64
	step := total/10 + 1

	// ranges cover whole bytes so that no two goroutines share one
	res := parallel.RangeReduce(0, nbytes, 0, func(low, high int) interface{} {
		p := e.newPartial()
		qt := e.newQuartetTree()
		first := int64(low) * 2
		last := int64(high) * 2
		if last > total {
			last = total
		}
		var q [4]int
		q[0], q[1], q[2], q[3] = Unrank(first)
		for k := first; k < last; k++ {
			lnl := qt.evaluate(q[0], q[1], q[2], q[3])
			m := Classify(lnl, e.Mode)
			store.set(k, m)
			if m == Unresolved {
				p.bad++
				for _, t := range q {
					p.badTaxon[t]++
				}
			}
			if d := atomic.AddInt64(&done, 1); d%step == 0 {
				log.Infof("%d%% of quartets done (%v)", d*100/total, time.Since(start).Round(time.Second))
			}
			next(&q)
		}
		p.nonConverged = qt.nonConverged
		return p
	}, joinPartials).(*partial)

	r := &Result{
		Store:        store,
		BadQuartets:  res.bad,
		BadTaxon:     res.badTaxon,
		NonConverged: res.nonConverged,
	}
	r.checkConvergence()
	log.Noticef("Quartets computed in %v, %d (%.2f%%) fully unresolved",
		time.Since(start).Round(time.Millisecond), r.BadQuartets, 100*float64(r.BadQuartets)/float64(total))
	return r
}

func (r *Result) checkConvergence() {
	if r.NonConverged > 0 {
		r.Warnings.Add("quartet", "branch lengths of %d quartet trees did not converge", r.NonConverged)
		log.Warningf("Branch lengths of %d quartet trees did not converge", r.NonConverged)
	}
}

// Summarize recomputes the bad quartet counts of a loaded store.
// nonConverged is the number of quartet trees which did not converge
// when the store was computed.
func Summarize(s *Store, nonConverged int64) *Result {
	r := &Result{Store: s, BadTaxon: make([]int64, s.NTaxa()), NonConverged: nonConverged}
	r.checkConvergence()
	q := [4]int{0, 1, 2, 3}
	for k := int64(0); k < s.Len(); k++ {
		if s.get(k) == Unresolved {
			r.BadQuartets++
			for _, t := range q {
				r.BadTaxon[t]++
			}
		}
		next(&q)
	}
	return r
}

// BadTaxa returns the names of the taxa which are part of unresolved
// quartets, with the counts.
func (r *Result) BadTaxa(names []string) []string {
	var res []string
	for i, c := range r.BadTaxon {
		if c > 0 {
			res = append(res, fmt.Sprintf("%s (%d)", names[i], c))
		}
	}
	return res
}
