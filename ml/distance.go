package ml

import (
	"math"

	"github.com/exascience/pargo/parallel"
	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/qpuzzle/optimize"
	"bitbucket.org/Davydov/qpuzzle/smodel"
)

// InitialDistances returns first distance estimates (PAM) from the
// observed proportion of differences with the generalized
// Jukes-Cantor correction. The observed distance is used for the
// doublet model or when the correction is undefined.
func (m *Model) InitialDistances() [][]float64 {
	pat := m.Pat
	n := pat.NTaxa()
	nstates := float64(m.NStates())
	unknown := byte(m.NStates())
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			diff := 0
			for k, w := range pat.Weight {
				x, y := pat.Data[i][k], pat.Data[j][k]
				if x != y && x != unknown && y != unknown {
					diff += w
				}
			}
			if diff > 0 {
				obs := float64(diff) / float64(pat.NSites)
				tmp := 1 - obs*nstates/(nstates-1)
				var dist float64
				if tmp > 0 && m.Q.Kind != smodel.SH {
					dist = -100 * (nstates - 1) / nstates * math.Log(tmp)
				} else {
					dist = obs * 100
				}
				d[i][j] = clampArc(dist)
			}
			d[j][i] = d[i][j]
		}
	}
	return d
}

// pairLogLikelihood is the log-likelihood of the distance arc (PAM)
// between taxa i and j.
func (m *Model) pairLogLikelihood(i, j int, arc float64, p []*mat.Dense) float64 {
	m.transition(arc, p)
	pat := m.Pat
	unknown := byte(m.NStates())
	fv := 1 - m.Rates.FracInv
	ncat := float64(m.NCat())
	lnL := 0.0
	for k, w := range pat.Weight {
		ci, cj := pat.Data[i][k], pat.Data[j][k]
		var l float64
		if ci != unknown && cj != unknown {
			for r := range p {
				l += p[r].At(int(ci), int(cj))
			}
			l = fv * l / ncat
		} else {
			l = fv
		}
		if ci == cj && ci != unknown {
			l += m.Rates.FracInv * m.Q.Freq[ci]
		}
		lnL += math.Log(l) * float64(w)
	}
	return lnL
}

// PairDistance estimates the maximum likelihood distance (PAM)
// between taxa i and j starting from start.
func (m *Model) PairDistance(i, j int, start float64) float64 {
	return m.pairDistance(i, j, start, m.newTPM())
}

func (m *Model) pairDistance(i, j int, start float64, p []*mat.Dense) float64 {
	if i == j || start == 0 {
		return 0
	}
	if start <= MinArc {
		start = MinArc + 1
	}
	if start >= MaxArc {
		start = MaxArc - 1
	}
	f := func(arc float64) float64 {
		return -m.pairLogLikelihood(i, j, arc, p)
	}
	res := optimize.Minimize1D(MinArc, start, MaxArc, f, Epsilon)
	return res.X
}

// Distances refines the start distances (PAM) to maximum likelihood
// distances. Pairs are distributed over goroutines.
func (m *Model) Distances(start [][]float64) [][]float64 {
	n := len(start)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	parallel.Range(0, n, 0, func(low, high int) {
		p := m.newTPM()
		for i := low; i < high; i++ {
			for j := i + 1; j < n; j++ {
				d[i][j] = m.pairDistance(i, j, start[i][j], p)
			}
		}
	})
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			d[i][j] = d[j][i]
		}
	}
	return d
}

// MLDistances computes maximum likelihood distances (PAM) starting
// from the corrected observed distances.
func (m *Model) MLDistances() [][]float64 {
	return m.Distances(m.InitialDistances())
}
