package ml

import (
	"fmt"
	"math"
	"strings"

	"bitbucket.org/Davydov/qpuzzle/diag"
	"bitbucket.org/Davydov/qpuzzle/optimize"
	"bitbucket.org/Davydov/qpuzzle/smodel"
	"bitbucket.org/Davydov/qpuzzle/tree"
)

const (
	// substEps is the tolerance of substitution parameters.
	substEps = 0.01
	// rateEps is the tolerance of rate heterogeneity parameters.
	rateEps = 0.01
)

// EstimateMode selects how parameters are estimated.
type EstimateMode int

const (
	// EstimateNone keeps the parameters fixed.
	EstimateNone EstimateMode = iota
	// EstimateApproximate uses least squares branch lengths.
	EstimateApproximate
	// EstimateExact uses maximum likelihood branch lengths.
	EstimateExact
)

var estimateModeNames = [...]string{"none", "approximate", "exact"}

// EstimateModeNames returns the names of the estimation modes.
func EstimateModeNames() []string {
	return estimateModeNames[:]
}

func (e EstimateMode) String() string {
	if int(e) < len(estimateModeNames) {
		return estimateModeNames[e]
	}
	return fmt.Sprintf("EstimateMode(%d)", int(e))
}

// ParseEstimateMode converts a name to an estimation mode.
func ParseEstimateMode(s string) (EstimateMode, error) {
	for i, name := range estimateModeNames {
		if strings.EqualFold(s, name) {
			return EstimateMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown estimation mode: %q", s)
}

// Optimization methods.
const (
	MethodBrent  = "brent"
	MethodLBFGSB = "lbfgsb"
)

// Estimates are the estimated model parameters. Standard errors are
// zero for parameters which were not estimated.
type Estimates struct {
	Method     string        `json:"method"`
	TS         float64       `json:"ts"`
	TSErr      float64       `json:"tsErr"`
	YR         float64       `json:"yr"`
	YRErr      float64       `json:"yrErr"`
	Shape      float64       `json:"shape"`
	ShapeErr   float64       `json:"shapeErr"`
	FracInv    float64       `json:"fracInv"`
	FracInvErr float64       `json:"fracInvErr"`
	LnL        float64       `json:"lnL"`
	Iterations int           `json:"iterations"`
	Converged  bool          `json:"converged"`
	Warnings   diag.Warnings `json:"warnings,omitempty"`
}

// Estimator estimates substitution and rate heterogeneity parameters
// on a fixed topology. Without a topology, a neighbor-joining tree is
// rebuilt from the current distances before each round. It
// implements optimize.Optimizable.
type Estimator struct {
	m     *Model
	names []string
	mode  EstimateMode
	// Topology is the fixed tree, or nil.
	Topology *tree.Tree

	ts, yr, shape, fracInv        float64
	tsPar, yrPar, shapePar, fiPar *optimize.BasicFloatParameter
	parameters                    optimize.FloatParameters

	dist     [][]float64
	tree     *tree.Tree
	tl       *TreeLikelihood
	warnings diag.Warnings
}

// NewEstimator creates an estimator for the free parameters of the
// model. names are the taxa names.
func NewEstimator(m *Model, names []string, mode EstimateMode) *Estimator {
	e := &Estimator{
		m:       m,
		names:   names,
		mode:    mode,
		ts:      m.Q.TS,
		yr:      m.Q.YR,
		shape:   m.Rates.Shape,
		fracInv: m.Rates.FracInv,
	}
	e.tsPar = optimize.NewBoundedParameter(&e.ts, "ts", smodel.MinTS, smodel.MaxTS)
	e.tsPar.SetOnChange(func() { m.Q.SetTS(e.ts) })
	e.yrPar = optimize.NewBoundedParameter(&e.yr, "yr", smodel.MinYR, smodel.MaxYR)
	e.yrPar.SetOnChange(func() { m.Q.SetYR(e.yr) })
	e.shapePar = optimize.NewBoundedParameter(&e.shape, "shape", smodel.MinShape, smodel.MaxShape)
	e.shapePar.SetOnChange(func() { m.Rates.SetShape(e.shape) })
	maxFI := math.Min(smodel.MaxFracInv, m.Pat.FracConstSites())
	e.fiPar = optimize.NewBoundedParameter(&e.fracInv, "fracinv", smodel.MinFracInv, maxFI)
	e.fiPar.SetOnChange(func() { m.Rates.SetFracInv(e.fracInv) })

	if mode == EstimateNone {
		return e
	}
	if m.Q.Kind.HasTS() {
		e.parameters.Append(e.tsPar)
	}
	if m.Q.Kind.HasYR() {
		e.parameters.Append(e.yrPar)
	}
	if m.Rates.Mode.HasGamma() {
		e.parameters.Append(e.shapePar)
	}
	if m.Rates.Mode.HasInvariant() {
		if maxFI > smodel.MinFracInv {
			e.parameters.Append(e.fiPar)
		} else {
			log.Notice("No constant sites, fraction of invariable sites is fixed to zero")
		}
	}
	return e
}

// GetFloatParameters returns the parameters being estimated.
func (e *Estimator) GetFloatParameters() optimize.FloatParameters {
	return e.parameters
}

func (e *Estimator) active(par optimize.FloatParameter) bool {
	for _, p := range e.parameters {
		if p == par {
			return true
		}
	}
	return false
}

// Distances returns the current maximum likelihood distances (PAM).
func (e *Estimator) Distances() [][]float64 {
	return e.dist
}

// Tree returns the tree with branch lengths of the last likelihood
// computation.
func (e *Estimator) Tree() *tree.Tree {
	return e.tree
}

// updateDistances recomputes maximum likelihood distances starting
// from the previous ones.
func (e *Estimator) updateDistances() {
	if e.dist == nil {
		e.dist = e.m.InitialDistances()
	}
	e.dist = e.m.Distances(e.dist)
}

// setTopology picks the tree for the following likelihood
// computations.
func (e *Estimator) setTopology() {
	if e.Topology != nil {
		e.tree = e.Topology
	} else {
		e.tree = NeighborJoining(e.names, e.dist)
	}
	if e.tl == nil {
		e.tl = NewTreeLikelihood(e.m, e.tree)
	} else {
		e.tl.Reset(e.tree)
	}
}

// Likelihood recomputes distances and the log-likelihood of the tree
// for the current parameter values.
func (e *Estimator) Likelihood() float64 {
	if _, err := e.m.Update(); err != nil {
		e.warnings.Add("ml", "rate matrix for %s: %v", e.parameters.ValuesString(), err)
		return math.Inf(-1)
	}
	e.updateDistances()
	if e.tree == nil {
		e.setTopology()
	}
	LeastSquaresLengths(e.tree, e.dist)
	if e.mode == EstimateApproximate {
		return e.tl.LogLikelihood()
	}
	lnL, ws := e.tl.Optimize()
	e.warnings.Merge(ws)
	return lnL
}

func (e *Estimator) negLikelihood() float64 {
	return -e.Likelihood()
}

// Estimate runs the estimation with the given method.
func (e *Estimator) Estimate(method string) (*Estimates, error) {
	if _, err := e.m.Update(); err != nil {
		return nil, err
	}
	e.updateDistances()
	e.setTopology()

	res := &Estimates{Method: method, Converged: true}
	if len(e.parameters) > 0 {
		log.Noticef("Estimating %s (%s)", e.parameters.NamesString(), method)
		switch method {
		case MethodBrent:
			e.coordinateDescent(res)
		case MethodLBFGSB:
			e.lbfgsb(res)
		default:
			return nil, fmt.Errorf("unknown optimization method: %q", method)
		}
	}

	if _, err := e.m.Update(); err != nil {
		return nil, err
	}
	e.updateDistances()
	if e.Topology == nil {
		e.setTopology()
	}
	res.LnL = e.Likelihood()
	res.TS, res.YR, res.Shape, res.FracInv = e.ts, e.yr, e.shape, e.fracInv
	if !e.m.Q.Kind.HasYR() {
		res.YR = math.NaN()
	}
	if !e.m.Q.Kind.HasTS() {
		res.TS = math.NaN()
	}
	e.warnings.Merge(e.m.Q.Warnings())
	res.Warnings = e.warnings
	if !res.Converged {
		res.Warnings.Add("ml", "parameter estimation did not converge after %d rounds", res.Iterations)
	}
	log.Infof("Estimated parameters: %s, lnL=%f", e.parameters.ValuesString(), res.LnL)
	return res, nil
}

// coordinateDescent alternates two-dimensional minimizations over the
// substitution parameters and the rate heterogeneity parameters.
func (e *Estimator) coordinateDescent(res *Estimates) {
	ts := &optimize.Coordinate{Par: e.tsPar, Active: e.active(e.tsPar)}
	yr := &optimize.Coordinate{Par: e.yrPar, Active: e.active(e.yrPar)}
	fi := &optimize.Coordinate{Par: e.fiPar, Active: e.active(e.fiPar)}
	shape := &optimize.Coordinate{Par: e.shapePar, Active: e.active(e.shapePar)}

	substActive := ts.Active || yr.Active
	rateActive := fi.Active || shape.Active
	nump := 0
	if substActive {
		nump++
	}
	if rateActive {
		nump++
	}

	res.Converged = false
	for res.Iterations = 1; res.Iterations <= optimize.MaxIter2D; res.Iterations++ {
		change := false
		if substActive {
			tsOld, yrOld := e.ts, e.yr
			log.Info("Optimizing substitution process parameters")
			r := optimize.Minimize2D(e.negLikelihood, substEps, ts, yr)
			if !r.Converged {
				e.warnings.Add("ml", "substitution parameters did not converge after %d sweeps", r.Sweeps)
			}
			e.updateDistances()
			if e.Topology == nil {
				e.setTopology()
			}
			if math.Abs(e.ts-tsOld) > 3.3*substEps || math.Abs(e.yr-yrOld) > 3.3*substEps {
				change = true
			}
		}
		if rateActive {
			fiOld, shapeOld := e.fracInv, e.shape
			log.Info("Optimizing rate heterogeneity parameters")
			r := optimize.Minimize2D(e.negLikelihood, rateEps, fi, shape)
			if !r.Converged {
				e.warnings.Add("ml", "rate heterogeneity parameters did not converge after %d sweeps", r.Sweeps)
			}
			e.updateDistances()
			if e.Topology == nil {
				e.setTopology()
			}
			if math.Abs(e.fracInv-fiOld) > 3.3*rateEps || math.Abs(e.shape-shapeOld) > 3.3*rateEps {
				change = true
			}
		}
		if nump == 1 || !change {
			res.Converged = true
			break
		}
	}
	if res.Iterations > optimize.MaxIter2D {
		res.Iterations = optimize.MaxIter2D
	}
	res.TSErr = ts.StdErr * b2f(ts.Active)
	res.YRErr = yr.StdErr * b2f(yr.Active)
	res.FracInvErr = fi.StdErr * b2f(fi.Active)
	res.ShapeErr = shape.StdErr * b2f(shape.Active)
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// lbfgsb optimizes all the parameters at once; standard errors are
// computed from numerical second derivatives at the optimum.
func (e *Estimator) lbfgsb(res *Estimates) {
	opt := optimize.NewLBFGSB()
	// distances and branch lengths are only optimized to Epsilon
	opt.SetGradientStep(1e-3)
	opt.SetOptimizable(e)
	opt.Run(optimize.MaxIterLBFGSB)
	s := opt.Summary()
	res.Iterations = s.Iterations
	res.Converged = s.Converged
	if !s.Converged {
		e.warnings.Add("ml", "L-BFGS-B stopped with status %s", opt.Status)
	}
	for _, par := range e.parameters {
		se := e.curvatureStdErr(par)
		switch par {
		case e.tsPar:
			res.TSErr = se
		case e.yrPar:
			res.YRErr = se
		case e.shapePar:
			res.ShapeErr = se
		case e.fiPar:
			res.FracInvErr = se
		}
	}
}

// curvatureStdErr estimates the standard error of a parameter from
// the second derivative of the log-likelihood by central differences.
func (e *Estimator) curvatureStdErr(par optimize.FloatParameter) float64 {
	min, max := par.GetMin(), par.GetMax()
	x := par.Get()
	h := 1e-3 * (max - min)
	c := math.Max(min+h, math.Min(max-h, x))
	par.Set(c - h)
	f1 := e.negLikelihood()
	par.Set(c)
	f0 := e.negLikelihood()
	par.Set(c + h)
	f2 := e.negLikelihood()
	par.Set(x)
	res := optimize.Result1D{X: x, F2: (f1 - 2*f0 + f2) / (h * h)}
	return res.StdErr(max)
}
