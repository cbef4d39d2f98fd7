package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quadratic struct {
	a, b float64
	pars FloatParameters
}

func newQuadratic() *quadratic {
	q := &quadratic{a: 0.5, b: 0.5}
	q.pars.Append(NewBoundedParameter(&q.a, "a", 0, 5))
	q.pars.Append(NewBoundedParameter(&q.b, "b", 0, 5))
	return q
}

func (q *quadratic) GetFloatParameters() FloatParameters {
	return q.pars
}

// Likelihood is maximal at a=1, b=2.
func (q *quadratic) Likelihood() float64 {
	da := q.a - 1
	db := q.b - 2
	return -(da*da + db*db + 0.5*da*db)
}

func (q *quadratic) negLikelihood() float64 {
	return -q.Likelihood()
}

func TestMinimize2D(tst *testing.T) {
	q := newQuadratic()
	c1 := &Coordinate{Par: q.pars[0], Active: true}
	c2 := &Coordinate{Par: q.pars[1], Active: true}
	res := Minimize2D(q.negLikelihood, 1e-6, c1, c2)
	require.True(tst, res.Converged)
	assert.InDelta(tst, 1, q.a, 1e-3)
	assert.InDelta(tst, 2, q.b, 1e-3)
	assert.InDelta(tst, 0, res.F, 1e-5)
	// d2f/da2 = 2
	assert.InDelta(tst, 0.707, c1.StdErr, 0.05)
	assert.True(tst, res.Sweeps <= MaxIter2D)
}

func TestMinimize2DInactive(tst *testing.T) {
	q := newQuadratic()
	c1 := &Coordinate{Par: q.pars[0], Active: true}
	c2 := &Coordinate{Par: q.pars[1], Active: false}
	res := Minimize2D(q.negLikelihood, 1e-6, c1, c2)
	assert.Equal(tst, 1, res.Sweeps)
	assert.Equal(tst, 0.5, q.b)
	// optimum of a given b=0.5: 2(a-1) + 0.5(b-2) = 0
	assert.InDelta(tst, 1.375, q.a, 1e-3)
}

func TestMinimize2DNoneActive(tst *testing.T) {
	q := newQuadratic()
	res := Minimize2D(q.negLikelihood, 1e-6, &Coordinate{Par: q.pars[0]}, nil)
	assert.True(tst, res.Converged)
	assert.Equal(tst, 0, res.Sweeps)
	assert.Equal(tst, 0.5, q.a)
}

func TestLBFGSB(tst *testing.T) {
	q := newQuadratic()
	opt := NewLBFGSB()
	opt.SetOptimizable(q)
	opt.Run(100)
	assert.InDelta(tst, 1, q.a, 1e-3)
	assert.InDelta(tst, 2, q.b, 1e-3)
	s := opt.Summary()
	assert.Equal(tst, "lbfgsb", s.Method)
	assert.InDelta(tst, 0, s.MaxLnL, 1e-5)
	assert.Contains(tst, s.MaxLParameters, "a")
	assert.True(tst, s.LikelihoodCalls > 0)
}

func TestLBFGSBIterationLimit(tst *testing.T) {
	q := newQuadratic()
	start := q.Likelihood()
	opt := NewLBFGSB()
	opt.SetOptimizable(q)
	opt.Run(1)
	s := opt.Summary()
	assert.False(tst, s.Converged)
	assert.Contains(tst, opt.Status, "iteration limit")
	// the best point found is kept
	assert.Greater(tst, s.MaxLnL, start)
	assert.InDelta(tst, s.MaxLnL, q.Likelihood(), 1e-12)
}
