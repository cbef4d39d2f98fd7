// Package smodel provides substitution models: relative rate
// matrices, 1 PAM scaled rate matrices with their eigensystem,
// transition probability matrices and among-site rate categories.
package smodel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/qpuzzle/align"
)

var log = logging.MustGetLogger("smodel")

// ErrUnknownModel is returned for a model name which is not known.
var ErrUnknownModel = errors.New("unknown substitution model")

// Parameter bounds.
const (
	MinTS      = 0.2
	MaxTS      = 30
	MinYR      = 0.1
	MaxYR      = 6
	MinShape   = 0.01
	MaxShape   = 99
	MinFracInv = 0
	MaxFracInv = 0.99
	MinCat     = 4
	MaxCat     = 16
)

// Kind is a substitution model.
type Kind int

const (
	// HKY is the Hasegawa-Kishino-Yano nucleotide model.
	HKY Kind = iota
	// TN is the Tamura-Nei nucleotide model.
	TN
	// SH is the Schoeniger-von Haeseler doublet model.
	SH
	// Poisson is the amino acid model with equal rates.
	Poisson
	// Empirical is an amino acid model read from a PAML file.
	Empirical
	// Binary is the two state model.
	Binary
)

var kindNames = [...]string{"HKY", "TN", "SH", "POISSON", "PAML", "BINARY"}

// KindNames returns all the model names.
func KindNames() []string {
	return kindNames[:]
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind converts a model name to a model kind.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// DataType returns the data type the model applies to.
func (k Kind) DataType() align.DataType {
	switch k {
	case HKY, TN:
		return align.Nucleotide
	case SH:
		return align.Doublet
	case Poisson, Empirical:
		return align.AminoAcid
	}
	return align.Binary
}

// DefaultKind returns the default model for a data type.
func DefaultKind(dt align.DataType) Kind {
	switch dt {
	case align.Nucleotide:
		return HKY
	case align.Doublet:
		return SH
	case align.AminoAcid:
		return Poisson
	}
	return Binary
}

// HasTS is true if the model has the transition/transversion
// parameter.
func (k Kind) HasTS() bool {
	return k == HKY || k == TN || k == SH
}

// HasYR is true if the model has the Y/R transition parameter.
func (k Kind) HasYR() bool {
	return k == TN
}

// isTransition returns true for A<->G and C<->T changes.
func isTransition(a, b int) bool {
	return (a == 0 && b == 2) || (a == 2 && b == 0) ||
		(a == 1 && b == 3) || (a == 3 && b == 1)
}

// relativeRates fills the symmetric matrix of relative rates.
func relativeRates(k Kind, ts, yr float64, emp *EmpiricalModel) [][]float64 {
	n := k.DataType().NStates()
	r := make([][]float64, n)
	for i := range r {
		r[i] = make([]float64, n)
	}
	set := func(i, j int, v float64) {
		r[i][j] = v
		r[j][i] = v
	}

	switch k {
	case HKY, TN:
		alp := 2 * ts
		if k == HKY {
			yr = 1
		}
		alpr := alp * 2 / (yr + 1)
		alpy := yr * alpr
		set(0, 1, 1)
		set(0, 2, alpr)
		set(0, 3, 1)
		set(1, 2, 1)
		set(1, 3, alpy)
		set(2, 3, 1)
	case SH:
		alp := 2 * ts
		// doublets differing at exactly one position
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				i1, i2 := i/4, i%4
				j1, j2 := j/4, j%4
				var a, b int
				switch {
				case i1 == j1 && i2 != j2:
					a, b = i2, j2
				case i1 != j1 && i2 == j2:
					a, b = i1, j1
				default:
					continue
				}
				if isTransition(a, b) {
					set(i, j, alp)
				} else {
					set(i, j, 1)
				}
			}
		}
	case Poisson, Binary:
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				set(i, j, 1)
			}
		}
	case Empirical:
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				set(i, j, emp.R[i][j])
			}
		}
	default:
		panic(fmt.Sprintf("unknown model kind %d", int(k)))
	}
	return r
}

// ModelFrequencies returns the equilibrium frequencies of the model
// itself (equal for all but empirical models).
func ModelFrequencies(k Kind, emp *EmpiricalModel) []float64 {
	if k == Empirical {
		return append([]float64(nil), emp.Freq...)
	}
	n := k.DataType().NStates()
	f := make([]float64, n)
	for i := range f {
		f[i] = 1 / float64(n)
	}
	return f
}
