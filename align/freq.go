package align

import (
	"bitbucket.org/Davydov/qpuzzle/dist"
)

const (
	// MinFreq is the lower limit on state frequencies.
	MinFreq = 1e-4
	// MinFreqDiff is the difference introduced between equal
	// frequencies.
	MinFreqDiff = 2e-5
)

// Counts returns the number of each known state in the sequence of
// the taxon.
func (a *Alignment) Counts(taxon int) []int {
	nstates := a.NStates()
	c := make([]int, nstates)
	for _, s := range a.Seqs[taxon] {
		if int(s) < nstates {
			c[s]++
		}
	}
	return c
}

// EmpiricalFrequencies returns state frequencies counted over the
// whole alignment. Unknown states are ignored; if there are no known
// states the frequencies are equal.
func (a *Alignment) EmpiricalFrequencies() []float64 {
	nstates := a.NStates()
	f := make([]float64, nstates)
	total := 0
	for i := range a.Seqs {
		for s, c := range a.Counts(i) {
			f[s] += float64(c)
			total += c
		}
	}
	for s := range f {
		if total > 0 {
			f[s] /= float64(total)
		} else {
			f[s] = 1 / float64(nstates)
		}
	}
	return f
}

// ClampFrequencies makes every frequency at least MinFreq and all
// frequencies slightly different. The sum is restored on the largest
// frequency.
func ClampFrequencies(f []float64) {
	maxi := 0
	maxf := 0.0
	sum := 0.0
	for i, v := range f {
		if v < MinFreq {
			f[i] = MinFreq
		}
		if v > maxf {
			maxf = v
			maxi = i
		}
		sum += f[i]
	}
	f[maxi] += 1 - sum

	for i := 0; i < len(f)-1; i++ {
		for j := i + 1; j < len(f); j++ {
			if f[i] == f[j] {
				f[i] += MinFreqDiff / 2
				f[j] -= MinFreqDiff / 2
			}
		}
	}
}

// doubletPairs are the doublet states which are averaged when
// frequencies are symmetrized (AC/CA, AG/GA, AT/TA, CG/GC, CT/TC,
// GT/TG).
var doubletPairs = [6][2]int{{1, 4}, {2, 8}, {3, 12}, {6, 9}, {7, 13}, {11, 14}}

// SymmetrizeDoublets averages frequencies of reciprocal doublets.
func SymmetrizeDoublets(f []float64) {
	for _, p := range doubletPairs {
		m := (f[p[0]] + f[p[1]]) / 2
		f[p[0]] = m
		f[p[1]] = m
	}
}

func symmetrizeDoubletCounts(c []int) {
	for _, p := range doubletPairs {
		m := (c[p[0]] + c[p[1]]) / 2
		c[p[0]] = m
		c[p[1]] = m
	}
}

// TaxonComposition is the result of the composition test for one
// taxon.
type TaxonComposition struct {
	Name string `json:"name"`
	dist.ChiSquareResult
	// Failed is true if the p-value is below 5%.
	Failed bool `json:"failed"`
}

// CompositionTest compares the state composition of each sequence
// with the frequencies of the model using the chi-square test. For
// symmetrized doublet frequencies the counts are symmetrized too.
func (a *Alignment) CompositionTest(freq []float64, symmetric bool) ([]TaxonComposition, error) {
	res := make([]TaxonComposition, a.NTaxa())
	for i := range a.Seqs {
		counts := a.Counts(i)
		if symmetric && a.Type == Doublet {
			symmetrizeDoubletCounts(counts)
		}
		total := 0
		for _, c := range counts {
			total += c
		}
		if total == 0 {
			// nothing to test
			res[i] = TaxonComposition{
				Name:            a.Names[i],
				ChiSquareResult: dist.ChiSquareResult{DF: len(freq) - 1, PValue: 1, Unreliable: true},
			}
			continue
		}
		chi, err := dist.ChiSquareTest(freq, counts)
		if err != nil {
			return nil, err
		}
		res[i] = TaxonComposition{
			Name:            a.Names[i],
			ChiSquareResult: chi,
			Failed:          chi.PValue < 0.05,
		}
		if chi.Unreliable {
			log.Debugf("Composition test for %s may be unreliable", a.Names[i])
		}
	}
	return res, nil
}
