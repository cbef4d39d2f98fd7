package smodel

import (
	"fmt"
	"strings"

	"bitbucket.org/Davydov/qpuzzle/dist"
)

// minRate is the floor for category rates.
const minRate = 1e-6

// RateMode is a model of rate heterogeneity among sites.
type RateMode int

const (
	// Uniform rates.
	Uniform RateMode = iota
	// Gamma distributed rates.
	Gamma
	// TwoRate is invariable sites plus one variable rate.
	TwoRate
	// Mixed is invariable sites plus Gamma distributed rates.
	Mixed
)

var rateModeNames = [...]string{"uniform", "gamma", "tworate", "mixed"}

// RateModeNames returns names of the rate heterogeneity modes.
func RateModeNames() []string {
	return rateModeNames[:]
}

func (r RateMode) String() string {
	if int(r) < len(rateModeNames) {
		return rateModeNames[r]
	}
	return fmt.Sprintf("RateMode(%d)", int(r))
}

// ParseRateMode converts a name to a rate mode.
func ParseRateMode(s string) (RateMode, error) {
	for i, name := range rateModeNames {
		if strings.EqualFold(s, name) {
			return RateMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown rate heterogeneity mode: %q", s)
}

// HasGamma is true for modes with Gamma distributed rates.
func (r RateMode) HasGamma() bool {
	return r == Gamma || r == Mixed
}

// HasInvariant is true for modes with invariable sites.
func (r RateMode) HasInvariant() bool {
	return r == TwoRate || r == Mixed
}

// Rates are the relative rates of the variable categories. Each
// variable category has probability (1-FracInv)/NCat; invariable
// sites have probability FracInv.
type Rates struct {
	Mode RateMode
	// Shape is the Gamma distribution shape parameter.
	Shape float64
	// FracInv is the fraction of invariable sites.
	FracInv float64
	// Rate is the relative rate of each variable category.
	Rate []float64
	tmp  []float64
}

// NewRates creates rate categories. ncat is ignored for modes
// without Gamma.
func NewRates(mode RateMode, ncat int, shape, fracInv float64) *Rates {
	if !mode.HasGamma() {
		ncat = 1
	}
	if !mode.HasInvariant() {
		fracInv = 0
	}
	r := &Rates{
		Mode:    mode,
		Shape:   shape,
		FracInv: fracInv,
		Rate:    make([]float64, ncat),
		tmp:     make([]float64, ncat*2),
	}
	r.Update()
	return r
}

// NCat returns the number of variable categories.
func (r *Rates) NCat() int {
	return len(r.Rate)
}

// CatProb returns the probability of each variable category.
func (r *Rates) CatProb() float64 {
	return (1 - r.FracInv) / float64(len(r.Rate))
}

// Copy returns an independent copy.
func (r *Rates) Copy() *Rates {
	return &Rates{
		Mode:    r.Mode,
		Shape:   r.Shape,
		FracInv: r.FracInv,
		Rate:    append([]float64(nil), r.Rate...),
		tmp:     make([]float64, len(r.tmp)),
	}
}

// SetShape changes the shape parameter and recomputes rates.
func (r *Rates) SetShape(shape float64) {
	r.Shape = shape
	r.Update()
}

// SetFracInv changes the fraction of invariable sites and recomputes
// rates.
func (r *Rates) SetFracInv(f float64) {
	r.FracInv = f
	r.Update()
}

// Update recomputes category rates. Gamma rates are the medians of
// the categories rescaled to mean one, then divided by (1-FracInv) so
// that the mean rate over all sites stays one.
func (r *Rates) Update() {
	ncat := len(r.Rate)
	if ncat == 1 {
		r.Rate[0] = 1 / (1 - r.FracInv)
		return
	}
	dist.DiscreteGamma(r.Shape, r.Shape, ncat, true, r.tmp, r.Rate)
	for i := range r.Rate {
		r.Rate[i] /= 1 - r.FracInv
		if r.Rate[i] < minRate {
			r.Rate[i] = minRate
		}
	}
}
