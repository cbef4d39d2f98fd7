package quartet

import (
	"fmt"
	"math"
	"strings"
)

// TieMode selects how quartet log-likelihoods are turned into masks.
type TieMode int

const (
	// WeightTies compares the Bayesian weights with the (1,0,0),
	// (½,½,0) and (⅓,⅓,⅓) distributions and takes the closest one.
	WeightTies TieMode = iota
	// BestOnly takes the best topology and the topologies with
	// exactly the same likelihood.
	BestOnly
)

var tieModeNames = [...]string{"weights", "best"}

// TieModeNames returns the names of the tie modes.
func TieModeNames() []string {
	return tieModeNames[:]
}

func (t TieMode) String() string {
	if int(t) < len(tieModeNames) {
		return tieModeNames[t]
	}
	return fmt.Sprintf("TieMode(%d)", int(t))
}

// ParseTieMode converts a name to a tie mode.
func ParseTieMode(s string) (TieMode, error) {
	for i, name := range tieModeNames {
		if strings.EqualFold(s, name) {
			return TieMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown quartet tie mode: %q", s)
}

// topologyBit maps topology index to its mask.
var topologyBit = [3]Mask{AB, AC, AD}

// sort3 returns the indices of the values in descending order. Ties
// are resolved by the order of the comparisons, which makes the
// result deterministic.
func sort3(x [3]float64) [3]int {
	if x[0] > x[1] {
		switch {
		case x[2] > x[0]:
			return [3]int{2, 0, 1}
		case x[2] < x[1]:
			return [3]int{0, 1, 2}
		default:
			return [3]int{0, 2, 1}
		}
	}
	switch {
	case x[2] > x[1]:
		return [3]int{2, 1, 0}
	case x[2] < x[0]:
		return [3]int{1, 0, 2}
	default:
		return [3]int{1, 2, 0}
	}
}

// Weights returns the Bayesian weights of the topologies with the
// given log-likelihoods and their descending order.
func Weights(lnl [3]float64) (w [3]float64, order [3]int) {
	order = sort3(lnl)
	best := lnl[order[0]]
	w[order[0]] = 1
	w[order[1]] = math.Exp(lnl[order[1]] - best)
	w[order[2]] = math.Exp(lnl[order[2]] - best)
	sum := w[0] + w[1] + w[2]
	for i := range w {
		w[i] /= sum
	}
	return
}

// closest classifies weights by the closest of the three ideal
// distributions.
func closest(w [3]float64, order [3]int) Mask {
	var sqdiff [3]float64
	var discrete [3]Mask

	t := 1 - w[order[0]]
	sqdiff[0] = t*t + w[order[1]]*w[order[1]] + w[order[2]]*w[order[2]]
	discrete[0] = topologyBit[order[0]]

	t1 := 0.5 - w[order[0]]
	t2 := 0.5 - w[order[1]]
	sqdiff[1] = t1*t1 + t2*t2 + w[order[2]]*w[order[2]]
	discrete[1] = topologyBit[order[0]] | topologyBit[order[1]]

	sqdiff[2] = 0
	for _, v := range w {
		d := 1.0/3 - v
		sqdiff[2] += d * d
	}
	discrete[2] = Unresolved

	// the smallest deviation is last in descending order
	return discrete[sort3(sqdiff)[2]]
}

// Classify converts the log-likelihoods of the three topologies into
// a mask.
func Classify(lnl [3]float64, mode TieMode) Mask {
	w, order := Weights(lnl)
	if mode == WeightTies {
		return closest(w, order)
	}
	m := topologyBit[order[0]]
	for _, i := range order[1:] {
		if lnl[i] == lnl[order[0]] {
			m |= topologyBit[i]
		}
	}
	return m
}
