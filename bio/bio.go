// Package bio reads and writes sequence alignments in FASTA and
// PHYLIP formats.
package bio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

// Sequence is a type which is intended for storing nucleotide or
// protein sequence with it's name.
type Sequence struct {
	Name     string
	Sequence string
}

// Sequences stores multiple sequences. E.g. a sequence alignment.
type Sequences []Sequence

// Names returns the sequence names.
func (seqs Sequences) Names() []string {
	names := make([]string, len(seqs))
	for i, seq := range seqs {
		names[i] = seq.Name
	}
	return names
}

// cleanSequence removes white space and converts letters to upper
// case.
func cleanSequence(s string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s))
}

// ParseFasta parses FASTA sequences from a reader.
func ParseFasta(rd io.Reader) (seqs Sequences, err error) {
	seqs = make(Sequences, 0, 10)
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] == '>' {
			seq := Sequence{Name: strings.TrimSpace(line[1:])}
			seqs = append(seqs, seq)
		} else {
			if len(seqs) == 0 {
				return nil, errors.New("sequence w/o prefix")
			}
			seqs[len(seqs)-1].Sequence += cleanSequence(line)
		}
	}
	return seqs, scanner.Err()
}

// phylipName splits a PHYLIP taxon line into the name and the
// sequence part. Names are either separated by white space or occupy
// the first ten characters.
func phylipName(line string) (name, rest string) {
	fields := strings.Fields(line)
	if len(fields) > 1 {
		return fields[0], strings.Join(fields[1:], "")
	}
	if len(line) > 10 {
		return strings.TrimSpace(line[:10]), line[10:]
	}
	return strings.TrimSpace(line), ""
}

// ParsePhylip parses sequential or interleaved PHYLIP alignment.
func ParsePhylip(rd io.Reader) (Sequences, error) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, errors.New("empty PHYLIP file")
	}

	header := strings.Fields(lines[0])
	if len(header) < 2 {
		return nil, fmt.Errorf("PHYLIP header should contain number of taxa and sites: %q", lines[0])
	}
	ntaxa, err := strconv.Atoi(header[0])
	if err != nil || ntaxa <= 0 {
		return nil, fmt.Errorf("incorrect number of taxa in PHYLIP header: %q", header[0])
	}
	nsites, err := strconv.Atoi(header[1])
	if err != nil || nsites <= 0 {
		return nil, fmt.Errorf("incorrect number of sites in PHYLIP header: %q", header[1])
	}
	lines = lines[1:]
	if len(lines) < ntaxa {
		return nil, fmt.Errorf("expected %d taxa, found %d lines", ntaxa, len(lines))
	}

	seqs := make(Sequences, ntaxa)
	full := true
	for i := 0; i < ntaxa; i++ {
		name, rest := phylipName(lines[i])
		seqs[i].Name = name
		seqs[i].Sequence = cleanSequence(rest)
		if len(seqs[i].Sequence) != nsites {
			full = false
		}
	}

	switch {
	case full:
		// sequential, one line per taxon
		if len(lines) != ntaxa {
			return nil, errors.New("extra lines after PHYLIP alignment")
		}
	case (len(lines)-ntaxa)%ntaxa == 0:
		// interleaved
		for i, line := range lines[ntaxa:] {
			seqs[i%ntaxa].Sequence += cleanSequence(line)
		}
	default:
		// sequential, sequences span several lines
		line := 0
		for i := range seqs {
			name, rest := phylipName(lines[line])
			line++
			seqs[i].Name = name
			seqs[i].Sequence = cleanSequence(rest)
			for len(seqs[i].Sequence) < nsites && line < len(lines) {
				seqs[i].Sequence += cleanSequence(lines[line])
				line++
			}
		}
	}

	for _, seq := range seqs {
		if len(seq.Sequence) != nsites {
			return nil, fmt.Errorf("sequence %q has length %d, expected %d", seq.Name, len(seq.Sequence), nsites)
		}
	}
	return seqs, nil
}

// ParseAlignment detects the format (FASTA or PHYLIP) and parses the
// alignment.
func ParseAlignment(rd io.Reader) (Sequences, error) {
	br := bufio.NewReader(rd)
	for {
		b, err := br.Peek(1)
		if err != nil {
			if err == io.EOF {
				return nil, errors.New("empty alignment file")
			}
			return nil, err
		}
		if unicode.IsSpace(rune(b[0])) {
			br.ReadByte()
			continue
		}
		if b[0] == '>' {
			return ParseFasta(br)
		}
		return ParsePhylip(br)
	}
}

// Wrap inputs a string and wraps it so string length is n characters
// or less.
func Wrap(seq string, n int) string {
	var buf bytes.Buffer
	for i := 0; i < len(seq); i += n {
		end := i + n
		if end > len(seq) {
			end = len(seq)
		}
		buf.WriteString(seq[i:end])
		buf.WriteByte('\n')
	}
	return buf.String()
}

// String returns a sequence in FASTA format.
func (seq Sequence) String() (s string) {
	s = ">" + seq.Name + "\n" + Wrap(seq.Sequence, 80)
	return
}

// String returns sequences in FASTA format.
func (seqs Sequences) String() (s string) {
	for _, seq := range seqs {
		s += seq.String()
	}
	if len(s) == 0 {
		return s
	}
	return s[:len(s)-1]
}

// Phylip returns sequences in sequential relaxed PHYLIP format.
func (seqs Sequences) Phylip() string {
	var buf bytes.Buffer
	nsites := 0
	if len(seqs) > 0 {
		nsites = len(seqs[0].Sequence)
	}
	fmt.Fprintf(&buf, "%d %d\n", len(seqs), nsites)
	for _, seq := range seqs {
		fmt.Fprintf(&buf, "%-10s %s\n", seq.Name, seq.Sequence)
	}
	return buf.String()
}
