package smodel

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/qpuzzle/align"
)

func init() {
	logging.SetLevel(logging.ERROR, "smodel")
}

func newModel(tst *testing.T, k Kind, freq []float64) *RateMatrix {
	m, err := NewRateMatrix(k, freq, nil)
	require.NoError(tst, err)
	ws, err := m.Update()
	require.NoError(tst, err)
	require.Empty(tst, ws)
	return m
}

func sum(v []float64) (s float64) {
	for _, x := range v {
		s += x
	}
	return
}

func checkQ(tst *testing.T, m *RateMatrix) {
	n := m.NStates()
	rate := 0.0
	for i := 0; i < n; i++ {
		row := 0.0
		for j := 0; j < n; j++ {
			row += m.Q.At(i, j)
		}
		assert.InDelta(tst, 0, row, 1e-12)
		rate -= m.Freq[i] * m.Q.At(i, i)
	}
	assert.InDelta(tst, 0.01, rate, 1e-12)
}

func TestOnePAMScaling(tst *testing.T) {
	m := newModel(tst, TN, []float64{0.1, 0.2, 0.3, 0.4})
	m.SetTS(5)
	m.SetYR(2)
	_, err := m.Update()
	require.NoError(tst, err)
	checkQ(tst, m)

	sh := newModel(tst, SH, ModelFrequencies(SH, nil))
	checkQ(tst, sh)
	// AA -> CC needs two changes
	assert.Equal(tst, 0.0, sh.Q.At(0, 5))
	// AA -> AG is a transition, AA -> AC is not
	assert.InDelta(tst, 4*sh.Q.At(0, 1), sh.Q.At(0, 2), 1e-12)
}

func TestJukesCantor(tst *testing.T) {
	m, err := NewRateMatrix(HKY, []float64{0.25, 0.25, 0.25, 0.25}, nil)
	require.NoError(tst, err)
	// alpha = 2*TS = 1 gives equal rates
	m.SetTS(0.5)
	_, err = m.Update()
	require.NoError(tst, err)

	t := 10.0
	p := m.Exp(nil, t)
	same := 0.25 + 0.75*math.Exp(-4.0/3.0*0.01*t)
	diff := 0.25 - 0.25*math.Exp(-4.0/3.0*0.01*t)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if i == j {
				assert.InDelta(tst, same, p.At(i, j), 1e-9)
			} else {
				assert.InDelta(tst, diff, p.At(i, j), 1e-9)
			}
		}
	}
}

func TestTransitionProbabilities(tst *testing.T) {
	m := newModel(tst, TN, []float64{0.1, 0.2, 0.3, 0.4})
	n := m.NStates()

	p0 := m.Exp(nil, 0)
	p1 := m.Exp(nil, 7)
	p2 := m.Exp(nil, 13)
	p12 := m.Exp(nil, 20)
	pInf := m.Exp(nil, 1e6)
	var prod mat.Dense
	prod.Mul(p1, p2)

	for i := 0; i < n; i++ {
		row := 0.0
		for j := 0; j < n; j++ {
			row += p1.At(i, j)
			if i == j {
				assert.InDelta(tst, 1, p0.At(i, j), 1e-9)
			} else {
				assert.InDelta(tst, 0, p0.At(i, j), 1e-9)
			}
			assert.InDelta(tst, p12.At(i, j), prod.At(i, j), 1e-9)
			assert.InDelta(tst, m.Freq[j], pInf.At(i, j), 1e-6)
		}
		assert.InDelta(tst, 1, row, 1e-9)
	}
	assert.Empty(tst, m.Warnings())
}

// Poisson and flat empirical models have one eigenvalue repeated 19
// times.
func TestRepeatedEigenvalues(tst *testing.T) {
	near := make([]float64, 20)
	for i := range near {
		near[i] = 0.05 + float64(i-10)*2e-5
	}
	near[10] += 1 - sum(near)
	for _, freq := range [][]float64{ModelFrequencies(Poisson, nil), near} {
		m := newModel(tst, Poisson, freq)
		p1 := m.Exp(nil, 10)
		p2 := m.Exp(nil, 25)
		p12 := m.Exp(nil, 35)
		var prod mat.Dense
		prod.Mul(p1, p2)
		for i := 0; i < 20; i++ {
			row := 0.0
			for j := 0; j < 20; j++ {
				row += p1.At(i, j)
				assert.InDelta(tst, p12.At(i, j), prod.At(i, j), 1e-9)
			}
			assert.InDelta(tst, 1, row, 1e-9)
		}
		same := 0.05 + 0.95*math.Exp(-20.0/19.0*0.01*10)
		assert.InDelta(tst, same, p1.At(3, 3), 1e-3)
		assert.Empty(tst, m.Warnings())
	}

	m, err := NewRateMatrix(HKY, []float64{0.5, 0.5, 0, 0}, nil)
	require.NoError(tst, err)
	_, err = m.Update()
	assert.Error(tst, err)
}

func TestNegativeProbabilities(tst *testing.T) {
	m := newModel(tst, HKY, []float64{0.1, 0.2, 0.3, 0.4})
	m.Exp(nil, 10)
	assert.Empty(tst, m.Warnings())
	// going back in time gives negative probabilities
	m.Exp(nil, -100)
	m.Exp(nil, -50)
	ws := m.Warnings()
	require.Len(tst, ws, 1)
	assert.Contains(tst, ws[0].Message, "2 transition probability matrices")
	m.ResetWarnings()
	assert.Empty(tst, m.Warnings())
}

func TestEigenIdempotent(tst *testing.T) {
	m := newModel(tst, TN, []float64{0.15, 0.35, 0.3, 0.2})
	ev1 := m.Eigenvalues()
	m.v = nil
	_, err := m.Update()
	require.NoError(tst, err)
	ev2 := m.Eigenvalues()
	require.Len(tst, ev2, len(ev1))
	for i := range ev1 {
		assert.InDelta(tst, ev1[i], ev2[i], 1e-5)
	}
	// one zero eigenvalue, the others negative
	zero := 0
	for _, ev := range ev1 {
		if math.Abs(ev) < 1e-10 {
			zero++
		} else {
			assert.True(tst, ev < 0)
		}
	}
	assert.Equal(tst, 1, zero)
}

func TestInvalidate(tst *testing.T) {
	m := newModel(tst, HKY, []float64{0.25, 0.25, 0.25, 0.25})
	assert.True(tst, m.Ready())
	m.SetTS(2)
	assert.True(tst, m.Ready())
	m.SetTS(3)
	assert.False(tst, m.Ready())
	assert.Panics(tst, func() { m.Exp(nil, 1) })
}

func TestNewRateMatrixErrors(tst *testing.T) {
	_, err := NewRateMatrix(HKY, []float64{0.5, 0.5}, nil)
	assert.Error(tst, err)
	_, err = NewRateMatrix(Empirical, ModelFrequencies(Poisson, nil), nil)
	assert.Error(tst, err)
}

func TestKinds(tst *testing.T) {
	k, err := ParseKind("tn")
	require.NoError(tst, err)
	assert.Equal(tst, TN, k)
	_, err = ParseKind("JTT2")
	assert.True(tst, errors.Is(err, ErrUnknownModel))

	assert.Equal(tst, align.Doublet, SH.DataType())
	assert.Equal(tst, align.AminoAcid, Empirical.DataType())
	assert.Equal(tst, Poisson, DefaultKind(align.AminoAcid))
	assert.True(tst, TN.HasYR())
	assert.False(tst, HKY.HasYR())
	assert.False(tst, Binary.HasTS())
}

func TestReadPAML(tst *testing.T) {
	var sb strings.Builder
	for i := 1; i < 20; i++ {
		for j := 0; j < i; j++ {
			sb.WriteString("2.0 ")
		}
		sb.WriteString("\n")
	}
	for i := 0; i < 20; i++ {
		sb.WriteString("1 ")
	}
	sb.WriteString("\n\nsome comment text\n")

	emp, err := ReadPAML(strings.NewReader(sb.String()), "flat")
	require.NoError(tst, err)
	assert.InDelta(tst, 0.05, emp.Freq[7], 1e-12)
	assert.Equal(tst, 2.0, emp.R[3][17])
	assert.Equal(tst, 0.0, emp.R[5][5])

	m, err := NewRateMatrix(Empirical, emp.Freq, emp)
	require.NoError(tst, err)
	_, err = m.Update()
	require.NoError(tst, err)
	p := newModel(tst, Poisson, ModelFrequencies(Poisson, nil))
	// equal exchangeabilities give the Poisson model after scaling
	for i := 0; i < 20; i++ {
		for j := 0; j < 20; j++ {
			assert.InDelta(tst, p.Q.At(i, j), m.Q.At(i, j), 1e-12)
		}
	}

	_, err = ReadPAML(strings.NewReader("1 2 3"), "short")
	assert.Error(tst, err)
	_, err = ReadPAML(strings.NewReader("1 x 3"), "bad")
	assert.Error(tst, err)
}

func TestExpectations(tst *testing.T) {
	m := newModel(tst, HKY, []float64{0.25, 0.25, 0.25, 0.25})
	tstv, yrts := m.Expectations()
	assert.InDelta(tst, 2, tstv, 1e-12)
	assert.InDelta(tst, 1, yrts, 1e-12)

	b := newModel(tst, Binary, []float64{0.5, 0.5})
	tstv, _ = b.Expectations()
	assert.True(tst, math.IsNaN(tstv))
}

func TestRates(tst *testing.T) {
	r := NewRates(Uniform, 8, 0.5, 0.3)
	assert.Equal(tst, []float64{1}, r.Rate)
	assert.Equal(tst, 0.0, r.FracInv)
	assert.Equal(tst, 1.0, r.CatProb())

	r = NewRates(TwoRate, 8, 0.5, 0.3)
	require.Len(tst, r.Rate, 1)
	assert.InDelta(tst, 1/0.7, r.Rate[0], 1e-12)
	assert.InDelta(tst, 0.7, r.CatProb(), 1e-12)

	r = NewRates(Gamma, 4, 0.5, 0)
	require.Equal(tst, 4, r.NCat())
	mean := 0.0
	for i, v := range r.Rate {
		mean += v / 4
		if i > 0 {
			assert.True(tst, v > r.Rate[i-1])
		}
	}
	assert.InDelta(tst, 1, mean, 1e-6)

	r = NewRates(Mixed, 4, 0.5, 0.2)
	mean = 0.0
	for _, v := range r.Rate {
		mean += v / 4
	}
	assert.InDelta(tst, 1/0.8, mean, 1e-6)

	c := r.Copy()
	c.SetShape(2)
	assert.NotEqual(tst, r.Rate[0], c.Rate[0])
	c.SetFracInv(0)
	assert.Equal(tst, 0.0, c.FracInv)

	mode, err := ParseRateMode("Mixed")
	require.NoError(tst, err)
	assert.True(tst, mode.HasGamma() && mode.HasInvariant())
}
