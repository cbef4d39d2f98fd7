package quartet

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/Davydov/qpuzzle/align"
	"bitbucket.org/Davydov/qpuzzle/ml"
	"bitbucket.org/Davydov/qpuzzle/rng"
	"bitbucket.org/Davydov/qpuzzle/smodel"
	"bitbucket.org/Davydov/qpuzzle/tree"
)

func init() {
	logging.SetLevel(logging.ERROR, "quartet")
	logging.SetLevel(logging.ERROR, "ml")
	logging.SetLevel(logging.ERROR, "smodel")
	logging.SetLevel(logging.ERROR, "align")
}

func TestRankBijection(tst *testing.T) {
	assert.Equal(tst, int64(1), NumQuartets(4))
	assert.Equal(tst, int64(210), NumQuartets(10))
	assert.Equal(tst, int64(0), NumQuartets(3))

	for n := 4; n <= 12; n++ {
		k := int64(0)
		for d := 3; d < n; d++ {
			for c := 2; c < d; c++ {
				for b := 1; b < c; b++ {
					for a := 0; a < b; a++ {
						require.Equal(tst, k, Rank(a, b, c, d))
						a1, b1, c1, d1 := Unrank(k)
						require.Equal(tst, [4]int{a, b, c, d}, [4]int{a1, b1, c1, d1})
						k++
					}
				}
			}
		}
		require.Equal(tst, NumQuartets(n), k)
	}
}

func TestNext(tst *testing.T) {
	q := [4]int{0, 1, 2, 3}
	for k := int64(0); k < NumQuartets(9); k++ {
		require.Equal(tst, k, Rank(q[0], q[1], q[2], q[3]))
		next(&q)
	}
}

func TestStore(tst *testing.T) {
	s := NewStore(6)
	require.Equal(tst, int64(15), s.Len())
	require.Len(tst, s.Bytes(), 8)
	s.Set(0, 1, 2, 3, AB)
	s.Set(0, 1, 2, 4, AD)
	s.Set(2, 3, 4, 5, Unresolved)
	assert.Equal(tst, AB, s.Get(0, 1, 2, 3))
	assert.Equal(tst, AD, s.Get(0, 1, 2, 4))
	assert.Equal(tst, Unresolved, s.Get(2, 3, 4, 5))
	assert.Equal(tst, Mask(0), s.Get(0, 1, 3, 4))

	s.Set(0, 1, 2, 3, AC|AD)
	assert.Equal(tst, AC|AD, s.Get(0, 1, 2, 3))
	assert.Equal(tst, AD, s.Get(0, 1, 2, 4))

	assert.Panics(tst, func() { s.Get(1, 0, 2, 3) })
	assert.Panics(tst, func() { s.Get(0, 1, 2, 6) })
	assert.Panics(tst, func() { s.Set(0, 1, 2, 3, 0) })
	assert.Panics(tst, func() { NewStore(3) })
}

func TestLoadStore(tst *testing.T) {
	s := NewStore(5)
	q := [4]int{0, 1, 2, 3}
	for k := int64(0); k < s.Len(); k++ {
		s.Set(q[0], q[1], q[2], q[3], topologyBit[k%3])
		next(&q)
	}
	l, err := LoadStore(5, s.Bytes())
	require.NoError(tst, err)
	assert.Equal(tst, s.Bytes(), l.Bytes())

	_, err = LoadStore(6, s.Bytes())
	assert.Error(tst, err)
	_, err = LoadStore(5, NewStore(5).Bytes())
	assert.Error(tst, err)
}

func TestTogether(tst *testing.T) {
	s := NewStore(5)
	q := [4]int{0, 1, 2, 3}
	for k := int64(0); k < s.Len(); k++ {
		s.Set(q[0], q[1], q[2], q[3], AB)
		next(&q)
	}
	st := rng.NewStream(1, 0)

	x, y := s.Together(0, 1, 2, 3, st)
	assert.Equal(tst, [2]int{0, 1}, [2]int{x, y})
	x, y = s.Together(3, 2, 0, 1, st)
	assert.Equal(tst, [2]int{2, 3}, [2]int{x, y})
	// (0,1,3,4) is (0,1)|(3,4)
	x, y = s.Together(4, 0, 1, 3, st)
	assert.Equal(tst, [2]int{0, 1}, [2]int{x, y})

	s.Set(0, 1, 2, 4, AD)
	// (0,4)|(1,2)
	x, y = s.Together(0, 1, 2, 4, st)
	assert.Equal(tst, [2]int{1, 2}, [2]int{x, y})
	x, y = s.Together(4, 2, 0, 1, st)
	assert.Equal(tst, [2]int{0, 4}, [2]int{x, y})

	// ties choose one of the tied topologies
	s.Set(0, 1, 2, 3, AB|AC)
	seen := map[[2]int]int{}
	for i := 0; i < 200; i++ {
		x, y := s.Together(1, 2, 3, 0, st)
		seen[[2]int{x, y}]++
	}
	assert.Len(tst, seen, 2)
	assert.Greater(tst, seen[[2]int{2, 3}], 0)
	assert.Greater(tst, seen[[2]int{1, 3}], 0)

	s.Set(0, 1, 2, 3, Unresolved)
	seen = map[[2]int]int{}
	for i := 0; i < 300; i++ {
		x, y := s.Together(1, 2, 3, 0, st)
		seen[[2]int{x, y}]++
	}
	assert.Len(tst, seen, 3)

	assert.Panics(tst, func() { NewStore(5).Together(0, 1, 2, 3, st) })
}

func TestWeights(tst *testing.T) {
	cases := [][3]float64{
		{-10, -20, -30},
		{-1000.5, -1000.4, -1003},
		{-5, -5, -5},
		{-3, -1e4, -2},
		{0, 0, -1},
	}
	for _, lnl := range cases {
		w, order := Weights(lnl)
		assert.InDelta(tst, 1, w[0]+w[1]+w[2], 1e-9)
		assert.True(tst, w[order[0]] >= w[order[1]] && w[order[1]] >= w[order[2]])

		shifted := [3]float64{lnl[0] + 123.25, lnl[1] + 123.25, lnl[2] + 123.25}
		ws, _ := Weights(shifted)
		for i := range w {
			assert.InDelta(tst, w[i], ws[i], 1e-9)
		}
		assert.Equal(tst, Classify(lnl, WeightTies), Classify(shifted, WeightTies))
	}
	w, _ := Weights([3]float64{-5, -5, -5})
	for _, v := range w {
		assert.InDelta(tst, 1.0/3, v, 1e-12)
	}
}

func TestSort3(tst *testing.T) {
	assert.Equal(tst, [3]int{0, 1, 2}, sort3([3]float64{3, 2, 1}))
	assert.Equal(tst, [3]int{2, 0, 1}, sort3([3]float64{2, 1, 3}))
	assert.Equal(tst, [3]int{1, 2, 0}, sort3([3]float64{1, 3, 2}))
	assert.Equal(tst, [3]int{1, 2, 0}, sort3([3]float64{1, 1, 1}))
}

func TestClassify(tst *testing.T) {
	assert.Equal(tst, AB, Classify([3]float64{-10, -20, -30}, WeightTies))
	assert.Equal(tst, AC, Classify([3]float64{-20, -10, -30}, WeightTies))
	assert.Equal(tst, AD, Classify([3]float64{-20, -30, -10}, WeightTies))
	assert.Equal(tst, AB|AC, Classify([3]float64{-10, -10, -100}, WeightTies))
	assert.Equal(tst, AB|AC, Classify([3]float64{-10, -10.0001, -100}, WeightTies))
	assert.Equal(tst, AC|AD, Classify([3]float64{-100, -10, -10.2}, WeightTies))
	assert.Equal(tst, Unresolved, Classify([3]float64{-5, -5, -5}, WeightTies))
	assert.Equal(tst, Unresolved, Classify([3]float64{-5, -5.01, -5.02}, WeightTies))

	assert.Equal(tst, AB, Classify([3]float64{-10, -10.0001, -100}, BestOnly))
	assert.Equal(tst, AB|AC, Classify([3]float64{-10, -10, -100}, BestOnly))
	assert.Equal(tst, Unresolved, Classify([3]float64{-5, -5, -5}, BestOnly))

	// classification itself has no randomness
	lnl := [3]float64{-7.1, -7.3, -9}
	m := Classify(lnl, WeightTies)
	for i := 0; i < 10; i++ {
		assert.Equal(tst, m, Classify(lnl, WeightTies))
	}
}

func TestParseTieMode(tst *testing.T) {
	m, err := ParseTieMode("Best")
	require.NoError(tst, err)
	assert.Equal(tst, BestOnly, m)
	_, err = ParseTieMode("none")
	assert.Error(tst, err)
	assert.Equal(tst, "weights", WeightTies.String())
}

// newEvaluator simulates data along a well resolved five taxa tree
// ((a,b),c,(d,e)).
func newEvaluator(tst *testing.T, approximate bool) *Evaluator {
	t, err := tree.ParseNewick(strings.NewReader("((a:0.1,b:0.1):0.2,c:0.1,(d:0.1,e:0.1):0.2);"))
	require.NoError(tst, err)
	freq := []float64{0.25, 0.25, 0.25, 0.25}
	q, err := smodel.NewRateMatrix(smodel.HKY, freq, nil)
	require.NoError(tst, err)
	_, err = q.Update()
	require.NoError(tst, err)
	rates := smodel.NewRates(smodel.Uniform, 1, 1, 0)
	seqs := ml.Simulate(q, rates, t, 1000, rng.NewStream(3, 0))

	a, err := align.New(seqs, align.Nucleotide)
	require.NoError(tst, err)
	q, err = smodel.NewRateMatrix(smodel.HKY, freq, nil)
	require.NoError(tst, err)
	m, _, err := ml.NewModel(a.Patterns(), q, smodel.NewRates(smodel.Uniform, 1, 1, 0))
	require.NoError(tst, err)
	return NewEvaluator(m, m.MLDistances(), approximate, WeightTies)
}

func TestComputeAll(tst *testing.T) {
	for _, approximate := range []bool{true, false} {
		ev := newEvaluator(tst, approximate)
		res := ev.ComputeAll()
		assert.Equal(tst, int64(0), res.BadQuartets)
		assert.Len(tst, res.BadTaxon, 5)
		assert.Empty(tst, res.BadTaxa([]string{"a", "b", "c", "d", "e"}))
		q := [4]int{0, 1, 2, 3}
		// every quartet of ((a,b),c,(d,e)) pairs its first two taxa
		for k := int64(0); k < res.Store.Len(); k++ {
			assert.Equal(tst, AB, res.Store.Get(q[0], q[1], q[2], q[3]), "quartet %v", q)
			next(&q)
		}

		lnl, ws := ev.LogLikelihoods(0, 1, 3, 4)
		assert.Empty(tst, ws)
		assert.Greater(tst, lnl[0], lnl[1])
		assert.Greater(tst, lnl[0], lnl[2])

		sum := Summarize(res.Store, res.NonConverged)
		assert.Equal(tst, res.BadQuartets, sum.BadQuartets)
	}
}

func TestExactNotWorse(tst *testing.T) {
	approx, _ := newEvaluator(tst, true).LogLikelihoods(0, 1, 2, 3)
	exact, _ := newEvaluator(tst, false).LogLikelihoods(0, 1, 2, 3)
	for i := range approx {
		assert.GreaterOrEqual(tst, exact[i], approx[i]-1e-6)
	}
}

func TestSummarize(tst *testing.T) {
	s := NewStore(5)
	q := [4]int{0, 1, 2, 3}
	for k := int64(0); k < s.Len(); k++ {
		s.Set(q[0], q[1], q[2], q[3], AB)
		next(&q)
	}
	s.Set(0, 1, 2, 4, Unresolved)
	s.Set(1, 2, 3, 4, Unresolved)
	r := Summarize(s, 0)
	assert.Equal(tst, int64(2), r.BadQuartets)
	assert.Equal(tst, []int64{1, 2, 2, 1, 2}, r.BadTaxon)
	assert.Equal(tst, []string{"a (1)", "b (2)", "c (2)", "d (1)", "e (2)"},
		r.BadTaxa([]string{"a", "b", "c", "d", "e"}))
	assert.Empty(tst, r.Warnings)

	r = Summarize(s, 3)
	assert.Equal(tst, int64(3), r.NonConverged)
	assert.Equal(tst, 1, r.Warnings.Count("quartet"))
}

func TestLikelihoodMapping(tst *testing.T) {
	ev := newEvaluator(tst, true)
	mp := ev.LikelihoodMapping(0, nil)
	assert.Equal(tst, int64(5), mp.Quartets)
	assert.Len(tst, mp.Points, 5)
	assert.Equal(tst, [3]int64{5, 0, 0}, mp.Areas)
	assert.InDelta(tst, 1, mp.Resolved(), 1e-12)
	assert.InDelta(tst, 0, mp.Unresolved(), 1e-12)

	sample := ev.LikelihoodMapping(3, rng.NewStream(5, 0))
	assert.Equal(tst, int64(3), sample.Quartets)

	assert.True(tst, math.IsNaN((&Mapping{}).Resolved()))

	fname := filepath.Join(tst.TempDir(), "lm.png")
	require.NoError(tst, PlotMapping(mp, "likelihood mapping", fname))
	fi, err := os.Stat(fname)
	require.NoError(tst, err)
	assert.Greater(tst, fi.Size(), int64(0))
}

func TestTrianglePoint(tst *testing.T) {
	p := trianglePoint([3]float64{1, 0, 0})
	assert.InDelta(tst, 0.5, p.X, 1e-12)
	assert.InDelta(tst, math.Sqrt(3)/2, p.Y, 1e-12)
	p = trianglePoint([3]float64{0, 0, 1})
	assert.InDelta(tst, 1, p.X, 1e-12)
	assert.InDelta(tst, 0, p.Y, 1e-12)
}
