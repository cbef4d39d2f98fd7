package dist

import (
	"errors"
	"fmt"
	"math"
)

// ErrZeroExpected is returned by ChiSquareTest when a category has
// zero expected count.
var ErrZeroExpected = errors.New("zero expected frequency in chi-square test")

// ChiSquareProb returns the probability that the observed chi-square
// statistic exceeds chi2 even if the model is correct.
func ChiSquareProb(deg int, chi2 float64) float64 {
	return IncompleteGammaQ(0.5*float64(deg), 0.5*chi2)
}

// ChiSquareResult is the outcome of a goodness-of-fit test.
type ChiSquareResult struct {
	// Statistic is the chi-square statistic.
	Statistic float64 `json:"statistic"`
	// DF is the number of degrees of freedom.
	DF int `json:"df"`
	// PValue is the critical significance level.
	PValue float64 `json:"pValue"`
	// Unreliable is set if an expected count is below 1 or more
	// than one fifth of expected counts are below 5.
	Unreliable bool `json:"unreliable"`
}

// ChiSquareTest compares observed counts with expected frequencies
// (which sum up to 1).
func ChiSquareTest(expected []float64, observed []int) (res ChiSquareResult, err error) {
	if len(expected) != len(observed) {
		return res, fmt.Errorf("chi-square test: %d expected and %d observed categories", len(expected), len(observed))
	}
	if len(expected) < 2 {
		return res, errors.New("chi-square test needs at least two categories")
	}

	samples := 0
	for _, o := range observed {
		samples += o
	}

	below1 := 0
	below5 := 0
	for i, ef := range expected {
		efn := ef * float64(samples)
		if efn == 0 {
			return res, fmt.Errorf("%w (category %d)", ErrZeroExpected, i)
		}
		if efn < 1 {
			below1++
		}
		if efn < 5 {
			below5++
		}
		d := float64(observed[i]) - efn
		res.Statistic += d * d / efn
	}

	res.DF = len(expected) - 1
	res.PValue = ChiSquareProb(res.DF, res.Statistic)
	if below1 > 0 || below5 > int(math.Floor(float64(len(expected))/5)) {
		res.Unreliable = true
	}
	return
}
