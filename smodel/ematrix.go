package smodel

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/qpuzzle/diag"
)

const (
	// eigenTol is the tolerance of the eigensystem self-checks.
	eigenTol = 1e-5
	// negativeTol is the magnitude of negative transition
	// probabilities which is not considered numerical noise.
	negativeTol = 1e-8
	// pamRate is the expected number of substitutions per unit
	// branch length.
	pamRate = 0.01
)

// RateMatrix is a substitution model with the 1 PAM scaled rate
// matrix and its eigensystem. P(t) is computed as V·diag(e^{λt})·V⁻¹.
// After Update, Exp is safe for concurrent use.
type RateMatrix struct {
	Kind Kind
	// TS is the transition/transversion parameter.
	TS float64
	// YR is the Y/R transition parameter.
	YR float64
	// Freq are the equilibrium frequencies.
	Freq []float64
	emp  *EmpiricalModel

	// Q is the 1 PAM scaled rate matrix.
	Q  *mat.Dense
	v  *mat.Dense
	iv *mat.Dense
	d  []float64

	warnings diag.Warnings
	negative int64
}

// NewRateMatrix creates a model. emp is only used by the Empirical
// kind. Frequencies are copied.
func NewRateMatrix(kind Kind, freq []float64, emp *EmpiricalModel) (*RateMatrix, error) {
	n := kind.DataType().NStates()
	if len(freq) != n {
		return nil, fmt.Errorf("model %s needs %d frequencies, got %d", kind, n, len(freq))
	}
	if kind == Empirical && emp == nil {
		return nil, errors.New("empirical model requires exchangeability matrix")
	}
	return &RateMatrix{
		Kind: kind,
		TS:   2,
		YR:   1,
		Freq: append([]float64(nil), freq...),
		emp:  emp,
	}, nil
}

// NStates returns the number of states.
func (m *RateMatrix) NStates() int {
	return len(m.Freq)
}

// Copy returns a model with the same parameters which shares the
// eigensystem until it is changed.
func (m *RateMatrix) Copy() *RateMatrix {
	return &RateMatrix{
		Kind: m.Kind,
		TS:   m.TS,
		YR:   m.YR,
		Freq: m.Freq,
		emp:  m.emp,
		Q:    m.Q,
		v:    m.v,
		iv:   m.iv,
		d:    m.d,
	}
}

// SetTS sets the transition/transversion parameter and invalidates
// the eigensystem.
func (m *RateMatrix) SetTS(ts float64) {
	if m.TS != ts {
		m.TS = ts
		m.v = nil
	}
}

// SetYR sets the Y/R parameter and invalidates the eigensystem.
func (m *RateMatrix) SetYR(yr float64) {
	if m.YR != yr {
		m.YR = yr
		m.v = nil
	}
}

// Ready is true if the eigensystem is up to date.
func (m *RateMatrix) Ready() bool {
	return m.v != nil
}

// onePAM builds the rate matrix scaled to 0.01 expected substitutions
// per unit time.
func (m *RateMatrix) onePAM() *mat.Dense {
	n := m.NStates()
	r := relativeRates(m.Kind, m.TS, m.YR, m.emp)
	q := mat.NewDense(n, n, nil)
	rowSum := make([]float64, n)
	sum := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				q.Set(i, j, m.Freq[j]*r[i][j])
				rowSum[i] += q.At(i, j)
			}
		}
		sum += rowSum[i] * m.Freq[i]
	}
	delta := pamRate / sum
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				q.Set(i, j, delta*q.At(i, j))
			} else {
				q.Set(i, i, -delta*rowSum[i])
			}
		}
	}
	return q
}

// Update recomputes the rate matrix and its eigensystem if the
// parameters have changed. All the models are reversible, so the
// symmetric matrix S = Π^{1/2}·Q·Π^{-1/2} = U·Λ·Uᵀ is decomposed and
// V = Π^{-1/2}·U, V⁻¹ = Uᵀ·Π^{1/2}. Failures of the self-checks are
// returned as warnings; an error means the decomposition failed.
func (m *RateMatrix) Update() (diag.Warnings, error) {
	if m.v != nil {
		return nil, nil
	}
	var ws diag.Warnings
	n := m.NStates()
	sq := make([]float64, n)
	for i, f := range m.Freq {
		if !(f > 0) {
			return nil, fmt.Errorf("%s model: frequency of state %d is %v, should be positive", m.Kind, i, f)
		}
		sq[i] = math.Sqrt(f)
	}
	q := m.onePAM()

	sym := mat.NewSymDense(n, nil)
	maxAsym := 0.0
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			a := q.At(i, j) * sq[i] / sq[j]
			b := q.At(j, i) * sq[j] / sq[i]
			maxAsym = math.Max(maxAsym, math.Abs(a-b))
			sym.SetSym(i, j, (a+b)/2)
		}
	}
	if maxAsym > eigenTol {
		ws.Add("smodel", "%s rate matrix is not reversible (error %.2e)", m.Kind, maxAsym)
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, fmt.Errorf("eigendecomposition of %s rate matrix failed", m.Kind)
	}
	d := eig.Values(nil)
	var u mat.Dense
	eig.VectorsTo(&u)

	v := mat.NewDense(n, n, nil)
	iv := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v.Set(i, j, u.At(i, j)/sq[i])
			iv.Set(i, j, u.At(j, i)*sq[j])
		}
	}

	// check the eigenvalue equation Q·V = V·Λ
	qv := mat.NewDense(n, n, nil)
	qv.Mul(q, v)
	maxErr := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			maxErr = math.Max(maxErr, math.Abs(qv.At(i, j)-v.At(i, j)*d[j]))
		}
	}
	if maxErr > eigenTol {
		ws.Add("smodel", "eigensystem doesn't satisfy eigenvalue equation (error %.2e)", maxErr)
	}

	// check V·V⁻¹ = I
	id := mat.NewDense(n, n, nil)
	id.Mul(v, iv)
	maxErr = 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			e := id.At(i, j)
			if i == j {
				e -= 1
			}
			maxErr = math.Max(maxErr, math.Abs(e))
		}
	}
	if maxErr > eigenTol {
		ws.Add("smodel", "inversion of eigenvector matrix not perfect (error %.2e)", maxErr)
	}

	for _, w := range ws {
		log.Warning(w.String())
	}

	m.Q = q
	m.v = v
	m.iv = iv
	m.d = d
	m.warnings.Merge(ws)
	return ws, nil
}

// Eigenvalues returns the eigenvalues of the scaled rate matrix.
func (m *RateMatrix) Eigenvalues() []float64 {
	if m.v == nil {
		panic("eigensystem is not computed")
	}
	return append([]float64(nil), m.d...)
}

// Exp computes the transition probability matrix for branch length t
// (in PAM units, already multiplied by the rate of the category) and
// writes it to dst, which is allocated if nil. Negative entries are
// replaced by their absolute values; entries more negative than
// numerical noise are counted and reported by Warnings.
func (m *RateMatrix) Exp(dst *mat.Dense, t float64) *mat.Dense {
	if m.v == nil {
		panic("eigensystem is not computed")
	}
	n := m.NStates()
	if dst == nil {
		dst = mat.NewDense(n, n, nil)
	}
	e := make([]float64, n)
	for k := range e {
		e[k] = math.Exp(m.d[k] * t)
	}
	negative := false
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			s := 0.0
			for k := 0; k < n; k++ {
				s += m.v.At(i, k) * e[k] * m.iv.At(k, j)
			}
			if s < -negativeTol {
				negative = true
			}
			dst.Set(i, j, math.Abs(s))
		}
	}
	if negative {
		if atomic.AddInt64(&m.negative, 1) == 1 {
			log.Warningf("Negative transition probabilities for t=%g", t)
		}
	}
	return dst
}

// Warnings returns the warnings collected by Update and Exp.
func (m *RateMatrix) Warnings() diag.Warnings {
	ws := append(diag.Warnings(nil), m.warnings...)
	if n := atomic.LoadInt64(&m.negative); n > 0 {
		ws.Add("smodel", "%d transition probability matrices had significant negative entries", n)
	}
	return ws
}

// ResetWarnings forgets the collected warnings.
func (m *RateMatrix) ResetWarnings() {
	m.warnings = nil
	atomic.StoreInt64(&m.negative, 0)
}

// Expectations returns the expected transition/transversion ratio
// and the Y/R transition ratio of a nucleotide model.
func (m *RateMatrix) Expectations() (tstv, yrts float64) {
	if m.Kind != HKY && m.Kind != TN {
		return math.NaN(), math.NaN()
	}
	f := m.Freq
	yr := m.YR
	if m.Kind == HKY {
		yr = 1
	}
	piR := f[0] + f[2]
	piY := f[1] + f[3]
	alphaR := 4 * m.TS / (1 + yr)
	alphaY := alphaR * yr
	tstv = (alphaR*f[0]*f[2] + alphaY*f[1]*f[3]) / (piR * piY)
	yrts = (alphaY * f[1] * f[3]) / (alphaR * f[0] * f[2])
	return
}
