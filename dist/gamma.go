package dist

import (
	"math"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("dist")

const (
	// gammaMaxIter is the iteration cap for both incomplete gamma
	// evaluation paths.
	gammaMaxIter = 100
	// gammaEps is the relative error at which the iterations stop.
	gammaEps = 1e-7
	// gammaTiny protects the continued fraction from division by
	// zero.
	gammaTiny = 1e-30
)

// LnGamma returns ln(Γ(x)) for x>0, accurate to about 10 decimal
// places. Stirling's formula is used for the central polynomial part
// (Pike & Hill 1966, Algorithm 291). For x<=0 NaN is returned.
func LnGamma(x float64) float64 {
	if x <= 0 || math.IsNaN(x) {
		return math.NaN()
	}
	f := 0.0
	if x < 7 {
		f = 1
		z := x - 1
		for z++; z < 7; z++ {
			f *= z
		}
		x = z
		f = -math.Log(f)
	}
	z := 1 / (x * x)
	return f + (x-0.5)*math.Log(x) - x + .918938533204673 +
		(((-.000595238095238*z+.000793650793651)*z-.002777777777778)*z+
			.083333333333333)/x
}

// gammaSeries evaluates the regularized lower incomplete gamma P(a,x)
// by its series expansion. It reports whether the series converged
// within gammaMaxIter terms.
func gammaSeries(a, x, lnGammaA float64) (p float64, converged bool) {
	if x <= 0 {
		return 0, true
	}
	ap := a
	del := 1 / a
	sum := del
	for n := 0; n < gammaMaxIter; n++ {
		ap++
		del *= x / ap
		sum += del
		if math.Abs(del) < math.Abs(sum)*gammaEps {
			converged = true
			break
		}
	}
	p = sum * math.Exp(-x+a*math.Log(x)-lnGammaA)
	return
}

// gammaContinuedFraction evaluates the regularized upper incomplete
// gamma Q(a,x) by its continued fraction (modified Lentz). It reports
// whether the fraction converged within gammaMaxIter terms.
func gammaContinuedFraction(a, x, lnGammaA float64) (q float64, converged bool) {
	b := x + 1 - a
	c := 1 / gammaTiny
	d := 1 / b
	h := d
	for i := 1; i <= gammaMaxIter; i++ {
		an := -float64(i) * (float64(i) - a)
		b += 2
		d = an*d + b
		if math.Abs(d) < gammaTiny {
			d = gammaTiny
		}
		c = b + an/c
		if math.Abs(c) < gammaTiny {
			c = gammaTiny
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < gammaEps {
			converged = true
			break
		}
	}
	q = math.Exp(-x+a*math.Log(x)-lnGammaA) * h
	return
}

// IncompleteGammaQ returns Q(a,x)=1-P(a,x), the regularized upper
// incomplete gamma function. The series expansion is used for
// x<=a+1, the continued fraction otherwise. Non-convergence is logged
// and the best value found is returned. Invalid arguments give NaN.
func IncompleteGammaQ(a, x float64) float64 {
	q, converged := incompleteGammaQ(a, x)
	if !converged {
		log.Warningf("incomplete gamma Q(%v, %v) did not converge in %d iterations", a, x, gammaMaxIter)
	}
	return q
}

// incompleteGammaQ is IncompleteGammaQ with an explicit convergence
// flag.
func incompleteGammaQ(a, x float64) (q float64, converged bool) {
	if x < 0 || a <= 0 || math.IsNaN(x) {
		return math.NaN(), true
	}
	if x == 0 {
		return 1, true
	}
	lg := LnGamma(a)
	if x <= a+1 {
		p, ok := gammaSeries(a, x, lg)
		return 1 - p, ok
	}
	return gammaContinuedFraction(a, x, lg)
}
