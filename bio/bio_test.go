package bio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fasta = `>one
ACGT
acgt
>two  
ACG-NNTT
`

func TestParseFasta(tst *testing.T) {
	seqs, err := ParseFasta(strings.NewReader(fasta))
	require.NoError(tst, err)
	require.Len(tst, seqs, 2)
	assert.Equal(tst, "one", seqs[0].Name)
	assert.Equal(tst, "ACGTACGT", seqs[0].Sequence)
	assert.Equal(tst, "two", seqs[1].Name)
	assert.Equal(tst, "ACG-NNTT", seqs[1].Sequence)

	_, err = ParseFasta(strings.NewReader("ACGT\n>x\nAC\n"))
	assert.Error(tst, err)
}

const sequential = `3 8
alpha     ACGTACGT
beta      ACGTACGA
gamma     AC GTAC GG
`

const interleaved = `3 8
alpha ACGT
beta  ACGT
gamma ACGT

ACGT
ACGA
ACGG
`

const multiline = `2 8
alpha
ACGT
ACGT
beta ACG
TACGA
`

func TestParsePhylip(tst *testing.T) {
	for _, s := range []string{sequential, interleaved} {
		seqs, err := ParsePhylip(strings.NewReader(s))
		require.NoError(tst, err)
		require.Len(tst, seqs, 3)
		assert.Equal(tst, []string{"alpha", "beta", "gamma"}, seqs.Names())
		assert.Equal(tst, "ACGTACGT", seqs[0].Sequence)
		assert.Equal(tst, "ACGTACGA", seqs[1].Sequence)
		assert.Equal(tst, "ACGTACGG", seqs[2].Sequence)
	}

	seqs, err := ParsePhylip(strings.NewReader(multiline))
	require.NoError(tst, err)
	require.Len(tst, seqs, 2)
	assert.Equal(tst, "ACGTACGT", seqs[0].Sequence)
	assert.Equal(tst, "ACGTACGA", seqs[1].Sequence)
}

func TestParsePhylipErrors(tst *testing.T) {
	for _, s := range []string{
		"",
		"3\nalpha ACGT\n",
		"x 4\nalpha ACGT\n",
		"2 4\nalpha ACGT\n",
		"2 4\nalpha ACGT\nbeta ACG\n",
	} {
		_, err := ParsePhylip(strings.NewReader(s))
		assert.Error(tst, err, "input %q", s)
	}
}

func TestParseAlignment(tst *testing.T) {
	seqs, err := ParseAlignment(strings.NewReader("\n\n" + fasta))
	require.NoError(tst, err)
	assert.Len(tst, seqs, 2)

	seqs, err = ParseAlignment(strings.NewReader(sequential))
	require.NoError(tst, err)
	assert.Len(tst, seqs, 3)

	_, err = ParseAlignment(strings.NewReader("  \n"))
	assert.Error(tst, err)
}

func TestFormat(tst *testing.T) {
	seqs := Sequences{{"a", "ACGT"}, {"b", "TTTT"}}
	assert.Equal(tst, ">a\nACGT\n>b\nTTTT", seqs.String())
	assert.Equal(tst, "2 4\na          ACGT\nb          TTTT\n", seqs.Phylip())
	assert.Equal(tst, "AC\nGT\n", Wrap("ACGT", 2))
}
