// Package optimize implements the minimizers used for branch lengths
// and substitution model parameters: Brent's method, a bounded
// coordinate descent and an L-BFGS-B adapter.
package optimize

import (
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("optimize")

// Optimizable is a model which log-likelihood can be maximized by
// changing its parameters.
type Optimizable interface {
	GetFloatParameters() FloatParameters
	Likelihood() float64
}

// Optimizer maximizes the likelihood of an Optimizable.
type Optimizer interface {
	SetOptimizable(Optimizable)
	Run(iterations int)
	Summary() Summary
}

// Summary is a JSON friendly description of an optimization run.
type Summary struct {
	// Method is the name of the optimization method.
	Method string `json:"method"`
	// MaxLnL is the maximum log-likelihood found.
	MaxLnL float64 `json:"maxLnL"`
	// MaxLParameters are the parameter values at MaxLnL.
	MaxLParameters map[string]float64 `json:"maxLParameters"`
	// StdErr are the standard errors, if the method computes them.
	StdErr map[string]float64 `json:"stdErr,omitempty"`
	// Iterations is the number of iterations done.
	Iterations int `json:"iterations"`
	// LikelihoodCalls is the number of likelihood computations.
	LikelihoodCalls int `json:"likelihoodCalls"`
	// Converged is false if an iteration cap was hit.
	Converged bool `json:"converged"`
}

// BaseOptimizer stores bookkeeping common to all the optimizers.
type BaseOptimizer struct {
	Optimizable
	parameters FloatParameters
	i          int
	calls      int
	maxL       float64
	maxLPar    []float64
	converged  bool
}

// SetOptimizable sets the model to optimize.
func (o *BaseOptimizer) SetOptimizable(opt Optimizable) {
	o.Optimizable = opt
	o.parameters = opt.GetFloatParameters()
}

// likelihood computes the likelihood and remembers the maximum.
func (o *BaseOptimizer) likelihood() float64 {
	L := o.Likelihood()
	o.calls++
	if o.maxLPar == nil || L > o.maxL {
		o.maxL = L
		o.maxLPar = o.parameters.Values(o.maxLPar)
	}
	return L
}

// restoreMax sets the parameters to the best values seen.
func (o *BaseOptimizer) restoreMax() {
	if o.maxLPar != nil {
		o.parameters.SetValues(o.maxLPar)
	}
}

// GetMaxL returns the maximum likelihood found.
func (o *BaseOptimizer) GetMaxL() float64 {
	return o.maxL
}

func (o *BaseOptimizer) summary(method string) Summary {
	s := Summary{
		Method:          method,
		MaxLnL:          o.maxL,
		MaxLParameters:  make(map[string]float64, len(o.parameters)),
		Iterations:      o.i,
		LikelihoodCalls: o.calls,
		Converged:       o.converged,
	}
	for i, par := range o.parameters {
		if i < len(o.maxLPar) {
			s.MaxLParameters[par.Name()] = o.maxLPar[i]
		}
	}
	return s
}
