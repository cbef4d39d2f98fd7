// Package ml computes likelihoods of trees and pairwise distances
// under a substitution model with among-site rate variation.
//
// Branch lengths are kept in substitutions per site in tree.Node and
// converted to PAM units (expected substitutions per 100 sites)
// internally.
package ml

import (
	"math"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/qpuzzle/align"
	"bitbucket.org/Davydov/qpuzzle/diag"
	"bitbucket.org/Davydov/qpuzzle/smodel"
)

var log = logging.MustGetLogger("ml")

const (
	// MinArc is the lower limit on branch lengths (PAM).
	MinArc = 0.001
	// MaxArc is the upper limit on branch lengths (PAM).
	MaxArc = 900.0
	// Epsilon is the tolerance of branch length estimates (PAM).
	Epsilon = 0.0001
	// MaxIt is the maximum number of branch length sweeps.
	MaxIt = 100
)

// ToPAM converts substitutions per site to PAM units.
func ToPAM(l float64) float64 {
	return l * 100
}

// FromPAM converts PAM units to substitutions per site.
func FromPAM(pam float64) float64 {
	return pam / 100
}

func clampArc(arc float64) float64 {
	return math.Max(MinArc, math.Min(MaxArc, arc))
}

// Model combines site patterns with a substitution model and rate
// categories. It is read-only during likelihood computations, so one
// Model can be shared by many goroutines; the scratch space lives in
// TreeLikelihood.
type Model struct {
	Pat   *align.Patterns
	Q     *smodel.RateMatrix
	Rates *smodel.Rates
}

// NewModel creates a model and computes the eigensystem.
func NewModel(pat *align.Patterns, q *smodel.RateMatrix, rates *smodel.Rates) (*Model, diag.Warnings, error) {
	m := &Model{Pat: pat, Q: q, Rates: rates}
	ws, err := m.Update()
	return m, ws, err
}

// Update recomputes the eigensystem after parameter changes.
func (m *Model) Update() (diag.Warnings, error) {
	return m.Q.Update()
}

// NStates returns the number of states.
func (m *Model) NStates() int {
	return m.Q.NStates()
}

// NCat returns the number of variable rate categories.
func (m *Model) NCat() int {
	return m.Rates.NCat()
}

// NPatterns returns the number of site patterns.
func (m *Model) NPatterns() int {
	return m.Pat.NPatterns()
}

// newTPM allocates transition probability matrices, one per rate
// category.
func (m *Model) newTPM() []*mat.Dense {
	n := m.NStates()
	p := make([]*mat.Dense, m.NCat())
	for r := range p {
		p[r] = mat.NewDense(n, n, nil)
	}
	return p
}

// transition fills p with P(arc·rate) for every category. arc is in
// PAM.
func (m *Model) transition(arc float64, p []*mat.Dense) {
	for r, rate := range m.Rates.Rate {
		m.Q.Exp(p[r], arc*rate)
	}
}

// constLikelihood is the likelihood contribution of the invariable
// category to pattern k.
func (m *Model) constLikelihood(k int) float64 {
	if !m.Pat.Constant[k] {
		return 0
	}
	return m.Rates.FracInv * m.Q.Freq[m.Pat.Data[0][k]]
}

// siteLikelihood combines per-category likelihoods of pattern k.
func (m *Model) siteLikelihood(cdl [][]float64, k int) float64 {
	l := 0.0
	for r := range cdl {
		l += cdl[r][k]
	}
	return l*m.Rates.CatProb() + m.constLikelihood(k)
}

// logLikelihood sums the weighted log-likelihoods of the patterns.
// cdl[r][k] is the likelihood of pattern k in category r.
func (m *Model) logLikelihood(cdl [][]float64) float64 {
	lnL := 0.0
	for k, w := range m.Pat.Weight {
		lnL += math.Log(m.siteLikelihood(cdl, k)) * float64(w)
	}
	return lnL
}

// siteLogLikelihoods returns the log-likelihood of every pattern.
func (m *Model) siteLogLikelihoods(cdl [][]float64) []float64 {
	res := make([]float64, m.NPatterns())
	for k := range res {
		res[k] = math.Log(m.siteLikelihood(cdl, k))
	}
	return res
}

func newCDL(ncat, npat int) [][]float64 {
	cdl := make([][]float64, ncat)
	for r := range cdl {
		cdl[r] = make([]float64, npat)
	}
	return cdl
}
