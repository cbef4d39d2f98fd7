// Package dist implements special functions and the discretization of
// the gamma distribution used for among-site rate variation.
package dist

/*
The percentage point routines are based on PAML (Yang), the discrete
gamma follows Yang (1994) J. Mol. Evol. 39:306-314.
*/

import (
	"math"

	"gonum.org/v1/gonum/mathext"
)

const (
	chi2Eps     = .5e-6
	chi2MaxIter = 100
	ln2         = .6931471805
)

/*

QuantileChi2 returns z so that Prob{x<z}=prob where x is Chi2
distributed with df=v.

returns -1 if in error. 0.000002<prob<0.999998

Best DJ & Roberts DE (1975) The percentage points of the Chi2
distribution. Applied Statistics 24: 385-388. (AS91)

*/
func QuantileChi2(prob, v float64) (ch float64) {
	p := prob
	if p < .000002 || p > .999998 || v <= 0 {
		return -1
	}

	g, _ := math.Lgamma(v / 2)
	xx := v / 2
	c := xx - 1

	switch {
	case v < -1.24*math.Log(p):
		ch = math.Pow(p*xx*math.Exp(g+xx*ln2), 1/xx)
		if ch-chi2Eps < 0 {
			return ch
		}
	case v <= .32:
		ch = 0.4
		a := math.Log(1 - p)
		for i := 0; i < chi2MaxIter; i++ {
			q := ch
			p1 := 1 + ch*(4.67+ch)
			p2 := ch * (6.73 + ch*(6.66+ch))
			t := -0.5 + (4.67+2*ch)/p1 - (6.73+ch*(13.32+3*ch))/p2
			ch -= (1 - math.Exp(a+g+.5*ch+c*ln2)*p2/p1) / t
			if math.Abs(q/ch-1)-.01 <= 0 {
				break
			}
		}
	default:
		x := QuantileNormal(p)
		p1 := 0.222222 / v
		ch = v * math.Pow(x*math.Sqrt(p1)+1-p1, 3.0)
		if ch > 2.2*v+6 {
			ch = -2 * (math.Log(1-p) - c*math.Log(.5*ch) + g)
		}
	}

	for i := 0; i < chi2MaxIter; i++ {
		q := ch
		p1 := .5 * ch
		t := IncompleteGamma(p1, xx)
		p2 := p - t
		t = p2 * math.Exp(xx*ln2+g+p1-c*math.Log(ch))
		b := t / ch
		a := 0.5*t - b*c

		s1 := (210 + a*(140+a*(105+a*(84+a*(70+60*a))))) / 420
		s2 := (420 + a*(735+a*(966+a*(1141+1278*a)))) / 2520
		s3 := (210 + a*(462+a*(707+932*a))) / 2520
		s4 := (252 + a*(672+1182*a) + c*(294+a*(889+1740*a))) / 5040
		s5 := (84 + 264*a + c*(175+606*a)) / 2520
		s6 := (120 + c*(346+127*c)) / 5040
		ch += t * (1 + 0.5*t*s1 - b*c*(s1-b*(s2-b*(s3-b*(s4-b*(s5-b*s6))))))
		if math.Abs(q/ch-1) <= chi2Eps {
			break
		}
	}

	return
}

// QuantileGamma returns quantile for gamma distribution.
func QuantileGamma(prob, alpha, beta float64) float64 {
	return QuantileChi2(prob, 2.0*alpha) / (2.0 * beta)
}

// QuantileNormal returns quantile for normal distribution.
func QuantileNormal(prob float64) float64 {
	return mathext.NormalQuantile(prob)
}

/*

IncompleteGamma returns the incomplete gamma ratio I(x,alpha) where x
is the upper limit of the integration and alpha is the shape
parameter.

*/
func IncompleteGamma(x, alpha float64) float64 {
	return mathext.GammaIncReg(alpha, x)
}

// DiscreteGamma returns discrete gamma distribution G(alpha, beta)
// with K equal-probability categories. With UseMedian the category
// medians are used and rescaled to the mean alpha/beta, otherwise the
// category means are computed. tmp and res are optional buffers of
// length K.
func DiscreteGamma(alpha, beta float64, K int, UseMedian bool, tmp, res []float64) []float64 {
	mean := alpha / beta
	fK := float64(K)

	if res == nil {
		res = make([]float64, K)
	}
	if tmp == nil {
		tmp = make([]float64, K)
	}
	if K == 1 {
		res[0] = mean
		return res
	}

	if UseMedian {
		t := 0.0
		for i := 0; i < K; i++ {
			res[i] = QuantileGamma((float64(i)*2+1)/(2*fK), alpha, beta)
			// percentage point routine signals errors by -1
			if res[i] < 0 {
				res[i] = 0
			}
			t += res[i]
		}
		for i := range res {
			res[i] *= mean * fK / t
		}
		return res
	}

	// cutting points, Eq. 9
	for i := 0; i < K-1; i++ {
		tmp[i] = QuantileGamma((float64(i)+1)/fK, alpha, beta)
	}
	// Eq. 10
	for i := 0; i < K-1; i++ {
		tmp[i] = IncompleteGamma(tmp[i]*beta, alpha+1)
	}
	res[0] = tmp[0] * mean * fK
	for i := 1; i < K-1; i++ {
		res[i] = (tmp[i] - tmp[i-1]) * mean * fK
	}
	res[K-1] = (1 - tmp[K-2]) * mean * fK

	return res
}
