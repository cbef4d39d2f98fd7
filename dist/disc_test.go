package dist

import (
	"math"
	"testing"
)

const smallDiff = 1e-6

type Settings struct {
	n      int
	a, b   float64
	median bool
}

/*** Tests if a and b are approximately equal ***/
func appreq(a, b float64) bool {
	return math.Abs(a-b) <= smallDiff
}

/*** Tests that arrays have approximately same values ***/
func cmp(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !appreq(a[i], b[i]) {
			return false
		}
	}
	return true
}

/*** Test discrete gamma ***/
func TestGamma(tst *testing.T) {
	settings := [...]Settings{
		Settings{4, 0.5, 10, false},
		Settings{4, 0.5, 10, true},
		Settings{8, 2, .1, false},
		Settings{7, 15, 1, true},
		Settings{4, 1.16, 3.54, false},
		Settings{4, 1.16, 3.54, true},
	}
	results := [...]([]float64){
		[]float64{0.001669, 0.012596, 0.041013, 0.144721},
		[]float64{0.001454, 0.014036, 0.046239, 0.138272},
		[]float64{3.848344, 7.882645, 11.320993, 14.879554, 18.906079, 23.893507, 31.028044, 48.240834},
		[]float64{9.793787, 11.891047, 13.362596, 14.722906, 16.172736, 17.973174, 21.083754},
		[]float64{0.054962, 0.170420, 0.334948, 0.750405},
		[]float64{0.059239, 0.182032, 0.355645, 0.713819},
	}
	for i, s := range settings {
		freq := make([]float64, s.n)
		r := DiscreteGamma(s.a, s.b, s.n, s.median, freq, nil)
		if !cmp(r, results[i]) {
			tst.Error("Results missmatch:", r, results[i])
		}
	}
}

// Test that median categories with alpha=beta have mean one, which is
// the rate discretization used for among-site rate variation.
func TestGammaMeanOne(tst *testing.T) {
	for _, alpha := range []float64{0.05, 0.3, 1, 2.5, 20} {
		for k := 1; k <= 16; k++ {
			r := DiscreteGamma(alpha, alpha, k, true, nil, nil)
			sum := 0.0
			for i, v := range r {
				if v < 0 {
					tst.Errorf("negative rate %v (alpha=%v, k=%d)", v, alpha, k)
				}
				if i > 0 && v < r[i-1] {
					tst.Errorf("rates are not ascending: %v", r)
				}
				sum += v
			}
			if !appreq(sum/float64(k), 1) {
				tst.Errorf("mean rate %v != 1 (alpha=%v, k=%d)", sum/float64(k), alpha, k)
			}
		}
	}
}
