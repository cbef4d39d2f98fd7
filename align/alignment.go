// Package align holds encoded alignments: character encoding, site
// pattern compaction, state frequencies and the composition test.
package align

import (
	"errors"
	"fmt"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/qpuzzle/bio"
)

var log = logging.MustGetLogger("align")

var (
	// ErrTooFewTaxa is returned when the alignment has less than
	// four sequences.
	ErrTooFewTaxa = errors.New("at least four sequences are required")
	// ErrLengthMismatch is returned when sequences have different
	// lengths.
	ErrLengthMismatch = errors.New("sequences have different lengths")
	// ErrNoSites is returned for an alignment without sites.
	ErrNoSites = errors.New("alignment has no sites")
)

// MinTaxa is the minimal number of taxa.
const MinTaxa = 4

// Alignment is an encoded alignment. Taxa are numbered in input
// order.
type Alignment struct {
	Type  DataType
	Names []string
	// Seqs[taxon][site] is the state, the unknown state is
	// Type.NStates().
	Seqs [][]byte
}

// New encodes sequences. Doublet alignments need even number of
// columns.
func New(seqs bio.Sequences, dt DataType) (*Alignment, error) {
	if len(seqs) < MinTaxa {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewTaxa, len(seqs))
	}
	length := len(seqs[0].Sequence)
	names := make(map[string]int, len(seqs))
	for i, seq := range seqs {
		if len(seq.Sequence) != length {
			return nil, fmt.Errorf("%w: %q has %d characters, %q has %d",
				ErrLengthMismatch, seq.Name, len(seq.Sequence), seqs[0].Name, length)
		}
		if j, ok := names[seq.Name]; ok {
			return nil, fmt.Errorf("sequences %d and %d have the same name %q", j+1, i+1, seq.Name)
		}
		names[seq.Name] = i
	}
	w := dt.Width()
	if length%w != 0 {
		return nil, fmt.Errorf("%w: doublet alignment has odd number of columns (%d)", ErrLengthMismatch, length)
	}
	nsites := length / w
	if nsites == 0 {
		return nil, ErrNoSites
	}

	a := &Alignment{
		Type:  dt,
		Names: seqs.Names(),
		Seqs:  make([][]byte, len(seqs)),
	}
	for i, seq := range seqs {
		a.Seqs[i] = make([]byte, nsites)
		for s := 0; s < nsites; s++ {
			a.Seqs[i][s] = dt.EncodeSite(seq.Sequence[s*w : s*w+w])
		}
	}
	log.Debugf("Encoded %d %s sequences, %d sites", len(seqs), dt, nsites)
	return a, nil
}

// NTaxa returns the number of taxa.
func (a *Alignment) NTaxa() int {
	return len(a.Seqs)
}

// NSites returns the number of sites.
func (a *Alignment) NSites() int {
	return len(a.Seqs[0])
}

// NStates returns the number of states.
func (a *Alignment) NStates() int {
	return a.Type.NStates()
}

// TaxonIndex returns the index of the taxon with the name, or -1.
func (a *Alignment) TaxonIndex(name string) int {
	for i, n := range a.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Identical returns groups of taxa with identical encoded sequences.
// Only groups of two or more taxa are returned.
func (a *Alignment) Identical() (groups [][]int) {
	seen := make(map[string][]int, a.NTaxa())
	var order []string
	for i, seq := range a.Seqs {
		key := string(seq)
		if _, ok := seen[key]; !ok {
			order = append(order, key)
		}
		seen[key] = append(seen[key], i)
	}
	for _, key := range order {
		if len(seen[key]) > 1 {
			groups = append(groups, seen[key])
		}
	}
	return
}
