package optimize

import "math"

// MaxIter2D is the cap on coordinate descent sweeps.
const MaxIter2D = 10

// Coordinate is one axis of a coordinate descent.
type Coordinate struct {
	Par FloatParameter
	// Active coordinates are optimized, inactive ones are skipped.
	Active bool
	// StdErr is set after optimization from the curvature at the
	// optimum.
	StdErr float64
}

// Result2D is the outcome of a coordinate descent.
type Result2D struct {
	// F is the function value at the final point.
	F float64
	// Sweeps is the number of sweeps done.
	Sweeps int
	// Converged is false if the sweep cap was hit while parameters
	// were still changing.
	Converged bool
}

// minimizeCoordinate runs a one-dimensional minimization over c. It
// returns the function value and whether the parameter changed by more
// than 3.3*tol.
func minimizeCoordinate(c *Coordinate, f func() float64, tol float64) (fx float64, changed bool) {
	par := c.Par
	min, max := par.GetMin(), par.GetMax()
	x := par.Get()
	if x <= min {
		x = min + 0.2*(max-min)
	}
	if x >= max {
		x = max - 0.2*(max-min)
	}
	old := x
	g := func(v float64) float64 {
		par.Set(math.Max(min, math.Min(max, v)))
		return f()
	}
	res := Minimize1D(min, x, max, g, tol)
	x = math.Max(min, math.Min(max, res.X))
	par.Set(x)
	c.StdErr = res.StdErr(max)
	return res.F, math.Abs(x-old) > 3.3*tol
}

// Minimize2D minimizes f by alternating one-dimensional minimizations
// along c1 and c2 until neither parameter changes by more than
// 3.3*tol, or MaxIter2D sweeps are done. f reads the current values of
// the parameters. With only one active coordinate a single sweep is
// made.
func Minimize2D(f func() float64, tol float64, c1, c2 *Coordinate) (res Result2D) {
	nump := 0
	for _, c := range []*Coordinate{c1, c2} {
		if c != nil && c.Active {
			nump++
		}
	}
	if nump == 0 {
		res.F = f()
		res.Converged = true
		return
	}

	for res.Sweeps = 1; res.Sweeps <= MaxIter2D; res.Sweeps++ {
		change := false
		for _, c := range []*Coordinate{c1, c2} {
			if c == nil || !c.Active {
				continue
			}
			fx, ch := minimizeCoordinate(c, f, tol)
			res.F = fx
			change = change || ch
		}
		if nump == 1 || !change {
			res.Converged = true
			return
		}
	}
	res.Sweeps = MaxIter2D
	log.Warningf("Coordinate descent did not converge after %d sweeps", MaxIter2D)
	// final point may differ from the last evaluation
	res.F = f()
	return
}
