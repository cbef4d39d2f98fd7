package align

import (
	"errors"
	"testing"

	"github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/Davydov/qpuzzle/bio"
)

func init() {
	logging.SetLevel(logging.ERROR, "align")
	logging.SetLevel(logging.ERROR, "dist")
}

var testSeqs = bio.Sequences{
	{Name: "t0", Sequence: "AACGA-"},
	{Name: "t1", Sequence: "AACGA-"},
	{Name: "t2", Sequence: "AATGA-"},
	{Name: "t3", Sequence: "AACGC-"},
}

func TestNewErrors(tst *testing.T) {
	_, err := New(testSeqs[:3], Nucleotide)
	assert.True(tst, errors.Is(err, ErrTooFewTaxa))

	bad := append(bio.Sequences{}, testSeqs...)
	bad[2] = bio.Sequence{Name: "t2", Sequence: "AAT"}
	_, err = New(bad, Nucleotide)
	assert.True(tst, errors.Is(err, ErrLengthMismatch))

	_, err = New(bio.Sequences{{Name: "a", Sequence: "ACG"}, {Name: "b", Sequence: "ACG"}, {Name: "c", Sequence: "ACG"}, {Name: "d", Sequence: "ACG"}}, Doublet)
	assert.True(tst, errors.Is(err, ErrLengthMismatch))

	dup := append(bio.Sequences{}, testSeqs...)
	dup[3].Name = "t0"
	_, err = New(dup, Nucleotide)
	assert.Error(tst, err)
}

func TestEncoding(tst *testing.T) {
	seqs := bio.Sequences{{Name: "a", Sequence: "ACGTU-N?"}, {Name: "b", Sequence: "ACGTU-N?"}, {Name: "c", Sequence: "ACGTU-N?"}, {Name: "d", Sequence: "ACGTU-N?"}}
	a, err := New(seqs, Nucleotide)
	require.NoError(tst, err)
	assert.Equal(tst, []byte{0, 1, 2, 3, 3, 4, 4, 4}, a.Seqs[0])

	a, err = New(seqs, Doublet)
	require.NoError(tst, err)
	assert.Equal(tst, []byte{1, 11, 16, 16}, a.Seqs[0])
	assert.Equal(tst, "GT", Doublet.StateString(11))

	assert.Equal(tst, byte(1), AminoAcid.EncodeSite("R"))
	assert.Equal(tst, byte(19), AminoAcid.EncodeSite("V"))
	assert.Equal(tst, byte(20), AminoAcid.EncodeSite("X"))
	assert.Equal(tst, "W", AminoAcid.StateString(17))
	assert.Equal(tst, byte(1), Binary.EncodeSite("1"))
	assert.Equal(tst, byte(2), Binary.EncodeSite("?"))
	assert.Equal(tst, "1", Binary.StateString(1))
}

func TestGuessDataType(tst *testing.T) {
	assert.Equal(tst, Nucleotide, GuessDataType([]string{"ACGTN-", "ACGTTT"}))
	assert.Equal(tst, Binary, GuessDataType([]string{"0101-", "1100?"}))
	assert.Equal(tst, AminoAcid, GuessDataType([]string{"MKLV", "ACGW"}))

	dt, err := ParseDataType("AminoAcid")
	require.NoError(tst, err)
	assert.Equal(tst, AminoAcid, dt)
	_, err = ParseDataType("codon")
	assert.Error(tst, err)
}

func TestPatterns(tst *testing.T) {
	a, err := New(testSeqs, Nucleotide)
	require.NoError(tst, err)
	p := a.Patterns()
	require.Equal(tst, 5, p.NPatterns())

	sum := 0
	for _, w := range p.Weight {
		sum += w
	}
	assert.Equal(tst, a.NSites(), sum)
	assert.Equal(tst, 6, p.NSites)
	assert.Equal(tst, p.Alias[0], p.Alias[1])
	assert.Equal(tst, 3, p.NConstSites)
	assert.Equal(tst, 2, p.NConstPatterns())
	assert.InDelta(tst, 0.5, p.FracConstSites(), 1e-12)
	// the all-gap column is not constant
	assert.False(tst, p.Constant[p.Alias[5]])
	assert.True(tst, p.Constant[p.Alias[3]])

	for s := 0; s < a.NSites(); s++ {
		for i := 0; i < a.NTaxa(); i++ {
			assert.Equal(tst, a.Seqs[i][s], p.Data[i][p.Alias[s]])
		}
	}
}

func TestFrequencies(tst *testing.T) {
	a, err := New(testSeqs, Nucleotide)
	require.NoError(tst, err)
	f := a.EmpiricalFrequencies()
	assert.InDeltaSlice(tst, []float64{0.55, 0.2, 0.2, 0.05}, f, 1e-12)

	ClampFrequencies(f)
	assert.InDelta(tst, 0.2+MinFreqDiff/2, f[1], 1e-12)
	assert.InDelta(tst, 0.2-MinFreqDiff/2, f[2], 1e-12)
	sum := 0.0
	for _, v := range f {
		sum += v
	}
	assert.InDelta(tst, 1, sum, 1e-12)

	f = []float64{0.5, 0.5, 0, 0}
	ClampFrequencies(f)
	assert.InDelta(tst, 0.4998, f[0], 1e-12)
	assert.InDelta(tst, 0.5, f[1], 1e-12)
	assert.InDelta(tst, MinFreq+MinFreqDiff/2, f[2], 1e-12)
	assert.InDelta(tst, MinFreq-MinFreqDiff/2, f[3], 1e-12)
}

func TestSymmetrizeDoublets(tst *testing.T) {
	f := make([]float64, 16)
	f[1] = 0.2
	f[4] = 0.1
	SymmetrizeDoublets(f)
	assert.InDelta(tst, 0.15, f[1], 1e-12)
	assert.InDelta(tst, 0.15, f[4], 1e-12)
}

func TestCompositionTest(tst *testing.T) {
	a, err := New(testSeqs, Nucleotide)
	require.NoError(tst, err)
	f := a.EmpiricalFrequencies()
	ClampFrequencies(f)
	res, err := a.CompositionTest(f, false)
	require.NoError(tst, err)
	require.Len(tst, res, 4)
	for i, r := range res {
		assert.Equal(tst, a.Names[i], r.Name)
		assert.Equal(tst, 3, r.DF)
		assert.True(tst, r.PValue >= 0 && r.PValue <= 1)
		// five sites are too few for a reliable test
		assert.True(tst, r.Unreliable)
	}

	_, err = a.CompositionTest([]float64{0.5, 0.5, 0, 0}, false)
	assert.Error(tst, err)
}

func TestIdentical(tst *testing.T) {
	a, err := New(testSeqs, Nucleotide)
	require.NoError(tst, err)
	assert.Equal(tst, [][]int{{0, 1}}, a.Identical())
	assert.Equal(tst, 2, a.TaxonIndex("t2"))
	assert.Equal(tst, -1, a.TaxonIndex("x"))
}
