package align

import (
	"fmt"
	"strings"
)

// DataType is the kind of characters in the alignment.
type DataType int

const (
	// Nucleotide is a four state nucleotide alphabet (A, C, G, T/U).
	Nucleotide DataType = iota
	// Doublet is a sixteen state alphabet of nucleotide pairs,
	// formed by adjacent alignment columns.
	Doublet
	// AminoAcid is the twenty state protein alphabet.
	AminoAcid
	// Binary is a two state (0/1) alphabet.
	Binary
)

// aminoAcids is the order of amino acid states.
const aminoAcids = "ARNDCQEGHILKMFPSTWYV"

const nucleotides = "ACGT"

var dataTypeNames = map[DataType]string{
	Nucleotide: "nucleotide",
	Doublet:    "doublet",
	AminoAcid:  "aminoacid",
	Binary:     "binary",
}

// DataTypeNames returns names accepted by ParseDataType.
func DataTypeNames() []string {
	return []string{"nucleotide", "doublet", "aminoacid", "binary"}
}

// ParseDataType converts a name to a data type.
func ParseDataType(s string) (DataType, error) {
	for dt, name := range dataTypeNames {
		if strings.EqualFold(s, name) {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("unknown data type: %q", s)
}

func (dt DataType) String() string {
	if name, ok := dataTypeNames[dt]; ok {
		return name
	}
	return fmt.Sprintf("DataType(%d)", int(dt))
}

// NStates returns the number of character states. The unknown state
// is encoded as NStates.
func (dt DataType) NStates() int {
	switch dt {
	case Nucleotide:
		return 4
	case Doublet:
		return 16
	case AminoAcid:
		return 20
	case Binary:
		return 2
	}
	panic(fmt.Sprintf("unknown data type %d", int(dt)))
}

// Width is the number of alignment columns forming one site.
func (dt DataType) Width() int {
	if dt == Doublet {
		return 2
	}
	return 1
}

// nucState encodes a single nucleotide, returning 4 for unknown.
func nucState(c byte) byte {
	switch c {
	case 'A':
		return 0
	case 'C':
		return 1
	case 'G':
		return 2
	case 'T', 'U':
		return 3
	}
	return 4
}

// EncodeSite converts the characters of one site into a state.
// Characters which do not represent a single state are encoded as
// NStates.
func (dt DataType) EncodeSite(chars string) byte {
	switch dt {
	case Nucleotide:
		return nucState(chars[0])
	case Doublet:
		a, b := nucState(chars[0]), nucState(chars[1])
		if a == 4 || b == 4 {
			return 16
		}
		return a*4 + b
	case AminoAcid:
		if i := strings.IndexByte(aminoAcids, chars[0]); i >= 0 {
			return byte(i)
		}
		return 20
	case Binary:
		switch chars[0] {
		case '0':
			return 0
		case '1':
			return 1
		}
		return 2
	}
	panic(fmt.Sprintf("unknown data type %d", int(dt)))
}

// StateString returns the letter code for a state.
func (dt DataType) StateString(s byte) string {
	n := byte(dt.NStates())
	if s >= n {
		return strings.Repeat("?", dt.Width())
	}
	switch dt {
	case Nucleotide:
		return nucleotides[s : s+1]
	case Doublet:
		return nucleotides[s/4:s/4+1] + nucleotides[s%4:s%4+1]
	case AminoAcid:
		return aminoAcids[s : s+1]
	}
	return string('0' + s)
}

// GuessDataType guesses the data type from the sequences. Sequences
// of only 0 and 1 are binary; if at least 90% of the informative
// characters are nucleotides the data are nucleotide; otherwise amino
// acids.
func GuessDataType(seqs []string) DataType {
	binary := true
	nuc := 0
	total := 0
	for _, seq := range seqs {
		for i := 0; i < len(seq); i++ {
			c := seq[i]
			switch c {
			case '-', '?', '.', 'N', 'X':
				continue
			}
			total++
			if c != '0' && c != '1' {
				binary = false
			}
			if nucState(c) != 4 {
				nuc++
			}
		}
	}
	switch {
	case total > 0 && binary:
		return Binary
	case float64(nuc) >= 0.9*float64(total):
		return Nucleotide
	}
	return AminoAcid
}
