package puzzle

import (
	"errors"
	"fmt"
	"runtime"

	"bitbucket.org/Davydov/qpuzzle/align"
	"bitbucket.org/Davydov/qpuzzle/ml"
	"bitbucket.org/Davydov/qpuzzle/quartet"
	"bitbucket.org/Davydov/qpuzzle/sched"
	"bitbucket.org/Davydov/qpuzzle/smodel"
)

// ErrInvalidOptions is wrapped by all the option validation errors.
var ErrInvalidOptions = errors.New("invalid options")

// Options configure an analysis.
type Options struct {
	Model smodel.Kind `json:"model"`
	// Empirical is the amino acid model for smodel.Empirical.
	Empirical *smodel.EmpiricalModel `json:"empirical,omitempty"`
	// ModelFrequencies uses the frequencies of the model instead of
	// the empirical ones.
	ModelFrequencies bool `json:"modelFrequencies"`

	TS       float64         `json:"ts"`
	YR       float64         `json:"yr"`
	RateMode smodel.RateMode `json:"rateMode"`
	NCat     int             `json:"ncat"`
	Shape    float64         `json:"shape"`
	FracInv  float64         `json:"fracInv"`

	// Estimate selects how the model parameters are estimated, Method
	// is the optimizer (ml.MethodBrent or ml.MethodLBFGSB).
	Estimate ml.EstimateMode `json:"estimate"`
	Method   string          `json:"method"`

	// Approximate uses least squares branch lengths for quartets.
	Approximate bool            `json:"approximate"`
	TieMode     quartet.TieMode `json:"tieMode"`

	// Trials and Seed are not part of the checkpoint key: a
	// checkpoint of fewer trials can be continued.
	Trials   int    `json:"-"`
	Outgroup int    `json:"outgroup"`
	Seed     uint64 `json:"-"`

	Workers  int          `json:"-"`
	Policy   sched.Policy `json:"-"`
	MinChunk int64        `json:"-"`

	// MappingQuartets is the number of quartets in the likelihood
	// mapping: zero for all of them, negative for no mapping.
	MappingQuartets int64 `json:"-"`
}

// DefaultOptions returns the default options for the data type.
func DefaultOptions(dt align.DataType) Options {
	return Options{
		Model:           smodel.DefaultKind(dt),
		TS:              2,
		YR:              1,
		RateMode:        smodel.Uniform,
		NCat:            8,
		Shape:           1,
		Estimate:        ml.EstimateApproximate,
		Method:          ml.MethodBrent,
		Approximate:     true,
		TieMode:         quartet.WeightTies,
		Trials:          1000,
		Workers:         runtime.GOMAXPROCS(0),
		Policy:          sched.Guided,
		MinChunk:        1,
		MappingQuartets: -1,
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidOptions, fmt.Sprintf(format, args...))
}

func inRange(name string, v, min, max float64) error {
	if v < min || v > max {
		return invalid("%s=%v is out of range [%v, %v]", name, v, min, max)
	}
	return nil
}

// Validate checks the options against the alignment.
func (o *Options) Validate(a *align.Alignment) error {
	if a.NTaxa() < align.MinTaxa {
		return fmt.Errorf("%w: got %d", align.ErrTooFewTaxa, a.NTaxa())
	}
	if dt := o.Model.DataType(); dt != a.Type {
		return invalid("model %v is for %v data, alignment is %v", o.Model, dt, a.Type)
	}
	if o.Model == smodel.Empirical && o.Empirical == nil {
		return invalid("model %v needs a PAML model file", o.Model)
	}
	if o.Model.HasTS() {
		if err := inRange("ts", o.TS, smodel.MinTS, smodel.MaxTS); err != nil {
			return err
		}
	}
	if o.Model.HasYR() {
		if err := inRange("yr", o.YR, smodel.MinYR, smodel.MaxYR); err != nil {
			return err
		}
	}
	if o.RateMode.HasGamma() {
		if o.NCat < smodel.MinCat || o.NCat > smodel.MaxCat {
			return invalid("number of categories %d is out of range [%d, %d]", o.NCat, smodel.MinCat, smodel.MaxCat)
		}
		if err := inRange("shape", o.Shape, smodel.MinShape, smodel.MaxShape); err != nil {
			return err
		}
	}
	if o.RateMode.HasInvariant() {
		if err := inRange("fracinv", o.FracInv, smodel.MinFracInv, smodel.MaxFracInv); err != nil {
			return err
		}
	}
	if o.Method != ml.MethodBrent && o.Method != ml.MethodLBFGSB {
		return invalid("unknown optimization method %q", o.Method)
	}
	if o.Trials < 1 {
		return invalid("number of trials must be positive, got %d", o.Trials)
	}
	if o.Outgroup < 0 || o.Outgroup >= a.NTaxa() {
		return invalid("outgroup %d is out of range [0, %d)", o.Outgroup, a.NTaxa())
	}
	if o.Workers < 1 {
		return invalid("number of workers must be positive, got %d", o.Workers)
	}
	if o.MinChunk < 1 {
		return invalid("minimal chunk must be positive, got %d", o.MinChunk)
	}
	return nil
}
