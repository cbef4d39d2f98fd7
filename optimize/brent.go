package optimize

import "math"

const (
	// BrentMaxIter is the iteration cap for Brent's method.
	BrentMaxIter = 100
	cGold        = 0.3819660
	zEps         = 1.0e-10
)

// Func1D is a function of one variable to be minimized.
type Func1D func(x float64) float64

// Result1D is the outcome of a one-dimensional minimization.
type Result1D struct {
	// X is the best point found.
	X float64
	// F is the function value at X.
	F float64
	// F2 is an estimate of the second derivative at X, obtained
	// from the parabola through the last three points.
	F2 float64
	// Iter is the number of Brent iterations performed.
	Iter int
	// Converged is false if the iteration cap was hit.
	Converged bool
}

// StdErr converts the curvature of a negative log-likelihood into a
// standard error. max is the upper bound of the parameter, it is
// returned if the curvature is too flat.
func (r Result1D) StdErr(max float64) float64 {
	f2 := math.Abs(r.F2)
	if 1/(max*max) < f2 {
		return math.Sqrt(1 / f2)
	}
	return max
}

// Variance is like StdErr, but returns the variance.
func (r Result1D) Variance(max float64) float64 {
	f2 := math.Abs(r.F2)
	if 1/(max*max) < f2 {
		return 1 / f2
	}
	return max * max
}

func sign(a, b float64) float64 {
	if b >= 0 {
		return math.Abs(a)
	}
	return -math.Abs(a)
}

// curvature returns the second derivative of the parabola through
// (v,fv), (w,fw) and (x,fx), or zero if the points are degenerate.
func curvature(v, w, x, fv, fw, fx float64) float64 {
	xw := x - w
	wv := w - v
	vx := v - x
	den := v*v*xw + x*x*wv + w*w*vx
	if den == 0 {
		return 0
	}
	f2 := 2 * (fv*xw + fx*wv + fw*vx) / den
	if math.IsNaN(f2) || math.IsInf(f2, 0) {
		return 0
	}
	return f2
}

// Brent minimizes f inside the bracket (ax, bx, cx) with fractional
// tolerance tol. fa, fb and fc are f evaluated at the bracket points.
// The bracket always narrows; when the iteration cap is hit the best
// point found is returned with Converged unset.
func Brent(ax, bx, cx float64, f Func1D, tol, fa, fb, fc float64) (res Result1D) {
	var d, e float64

	a := math.Min(ax, cx)
	b := math.Max(ax, cx)
	x := bx
	fx := fb
	var w, fw, v, fv float64
	if fa < fc {
		w, fw = ax, fa
		v, fv = cx, fc
	} else {
		w, fw = cx, fc
		v, fv = ax, fa
	}

	for res.Iter = 1; res.Iter <= BrentMaxIter; res.Iter++ {
		xm := 0.5 * (a + b)
		tol1 := tol*math.Abs(x) + zEps
		tol2 := 2 * tol1
		if math.Abs(x-xm) <= tol2-0.5*(b-a) {
			res.Converged = true
			break
		}
		if math.Abs(e) > tol1 {
			// parabolic step
			r := (x - w) * (fx - fv)
			q := (x - v) * (fx - fw)
			p := (x-v)*q - (x-w)*r
			q = 2 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			etemp := e
			e = d
			if math.Abs(p) >= math.Abs(0.5*q*etemp) || p <= q*(a-x) || p >= q*(b-x) {
				if x >= xm {
					e = a - x
				} else {
					e = b - x
				}
				d = cGold * e
			} else {
				d = p / q
				u := x + d
				if u-a < tol2 || b-u < tol2 {
					d = sign(tol1, xm-x)
				}
			}
		} else {
			// golden section step
			if x >= xm {
				e = a - x
			} else {
				e = b - x
			}
			d = cGold * e
		}
		var u float64
		if math.Abs(d) >= tol1 {
			u = x + d
		} else {
			u = x + sign(tol1, d)
		}
		fu := f(u)
		if fu <= fx {
			if u >= x {
				a = x
			} else {
				b = x
			}
			v, w, x = w, x, u
			fv, fw, fx = fw, fx, fu
		} else {
			if u < x {
				a = u
			} else {
				b = u
			}
			if fu <= fw || w == x {
				v, fv = w, fw
				w, fw = u, fu
			} else if fu <= fv || v == x || v == w {
				v, fv = u, fu
			}
		}
	}
	if res.Iter > BrentMaxIter {
		res.Iter = BrentMaxIter
	}

	res.X = x
	res.F = fx
	res.F2 = curvature(v, w, x, fv, fw, fx)
	return
}

// Minimize1D minimizes f on [min, max] starting from guess. A narrow
// bracket around the guess is tried first; if it does not contain the
// minimum the whole interval is used.
func Minimize1D(min, guess, max float64, f Func1D, tol float64) Result1D {
	eps := guess * tol * 50
	ax := math.Max(guess-eps, min)
	bx := guess
	cx := math.Min(guess+eps, max)

	fa := f(ax)
	fb := f(bx)
	fc := f(cx)

	if fa < fb || fc < fb {
		if ax != min {
			fa = f(min)
		}
		if cx != max {
			fc = f(max)
		}
		return Brent(min, guess, max, f, tol, fa, fb, fc)
	}
	return Brent(ax, bx, cx, f, tol, fa, fb, fc)
}
