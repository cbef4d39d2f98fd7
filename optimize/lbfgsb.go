package optimize

import (
	"fmt"
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"
)

// MaxIterLBFGSB is the default cap on L-BFGS-B iterations.
const MaxIterLBFGSB = 200

// LBFGSB maximizes the likelihood with the bounded limited-memory
// BFGS method. The gradient is computed by central differences.
type LBFGSB struct {
	BaseOptimizer
	dH   float64
	grad []float64
	x    []float64
	// maxIter is the iteration cap of the current run, 0 for none.
	maxIter int
	// Status is the exit status message of the last run.
	Status string
}

// NewLBFGSB creates a new optimizer.
func NewLBFGSB() *LBFGSB {
	return &LBFGSB{dH: 1e-6}
}

// SetGradientStep changes the step of the numerical gradient. Noisy
// likelihood functions need a larger step.
func (l *LBFGSB) SetGradientStep(h float64) {
	l.dH = h
}

func (l *LBFGSB) logger(info *lbfgsb.OptimizationIterationInformation) {
	l.i = info.Iteration
	log.Debugf("%d\t%f\t%v", info.Iteration, -info.F, info.X)
}

// capped is true once the iteration cap is reached. The function is
// flat from then on, so that the minimizer stops.
func (l *LBFGSB) capped() bool {
	return l.maxIter > 0 && l.i >= l.maxIter
}

// EvaluateFunction returns the negative log-likelihood at x.
func (l *LBFGSB) EvaluateFunction(x []float64) float64 {
	if l.capped() {
		return -l.maxL
	}
	if !l.parameters.ValuesInRange(x) {
		return math.Inf(+1)
	}
	l.parameters.SetValues(x)
	return -l.likelihood()
}

// EvaluateGradient returns the gradient of the negative
// log-likelihood at x.
func (l *LBFGSB) EvaluateGradient(x []float64) []float64 {
	if l.grad == nil {
		l.grad = make([]float64, len(x))
		l.x = make([]float64, len(x))
	}
	if l.capped() {
		for i := range l.grad {
			l.grad[i] = 0
		}
		return l.grad
	}
	copy(l.x, x)
	for i := range x {
		l.x[i] = x[i] - l.dH
		l.parameters.SetValues(l.x)
		l1 := -l.Likelihood()

		l.x[i] = x[i] + l.dH
		l.parameters.SetValues(l.x)
		l2 := -l.Likelihood()
		l.calls += 2

		l.x[i] = x[i]
		l.grad[i] = (l2 - l1) / 2 / l.dH
	}
	l.parameters.SetValues(x)
	return l.grad
}

// Run starts the optimization. It stops after the given number of
// iterations, if it is positive.
func (l *LBFGSB) Run(iterations int) {
	l.maxL = math.Inf(-1)
	l.maxLPar = nil
	l.maxIter = iterations
	l.i = 0
	bounds := make([][2]float64, len(l.parameters))
	for i, par := range l.parameters {
		bounds[i][0] = par.GetMin() + 1e-5
		bounds[i][1] = par.GetMax() - 1e-5
	}

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(1e-9)
	opt.SetGTolerance(1e-9)
	opt.SetBounds(bounds)
	opt.SetLogger(l.logger)

	x0 := l.parameters.Values(nil)
	for i := range x0 {
		x0[i] = math.Max(bounds[i][0], math.Min(bounds[i][1], x0[i]))
	}

	_, exitStatus := opt.Minimize(l, x0)
	l.Status = exitStatus.String()
	l.converged = exitStatus.Code == lbfgsb.SUCCESS
	if l.capped() {
		l.converged = false
		l.Status = fmt.Sprintf("iteration limit (%d) reached", l.maxIter)
	}
	if !l.converged {
		log.Warningf("L-BFGS-B exit status: %v", l.Status)
	}
	l.restoreMax()

	log.Infof("Finished L-BFGS-B, lnL=%f, %d likelihood calls", l.maxL, l.calls)
	log.Debugf("Parameter  names: %v", l.parameters.NamesString())
	log.Debugf("Parameter values: %v", l.parameters.ValuesString())
}

// Summary returns the run summary.
func (l *LBFGSB) Summary() Summary {
	return l.summary("lbfgsb")
}
