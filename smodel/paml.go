package smodel

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// EmpiricalModel is an amino acid model with fixed exchangeabilities
// and frequencies.
type EmpiricalModel struct {
	Name string
	// R is the symmetric exchangeability matrix.
	R [][]float64
	// Freq are the model frequencies.
	Freq []float64
}

// ReadPAML reads an amino acid model in the PAML .dat format: 190
// numbers of the lower triangle of the exchangeability matrix
// (row by row, amino acids in the ARNDCQEGHILKMFPSTWYV order) followed
// by 20 frequencies. Anything after that is ignored.
func ReadPAML(rd io.Reader, name string) (*EmpiricalModel, error) {
	const n = 20
	need := n*(n-1)/2 + n
	vals := make([]float64, 0, need)

	scanner := bufio.NewScanner(rd)
	scanner.Split(bufio.ScanWords)
	for len(vals) < need && scanner.Scan() {
		v, err := strconv.ParseFloat(scanner.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: value %d: %v", name, len(vals)+1, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("%s: negative value %v", name, v)
		}
		vals = append(vals, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(vals) < need {
		return nil, fmt.Errorf("%s: expected %d values, got %d", name, need, len(vals))
	}

	m := &EmpiricalModel{
		Name: name,
		R:    make([][]float64, n),
		Freq: make([]float64, n),
	}
	for i := range m.R {
		m.R[i] = make([]float64, n)
	}
	k := 0
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			m.R[i][j] = vals[k]
			m.R[j][i] = vals[k]
			k++
		}
	}
	sum := 0.0
	for i := range m.Freq {
		m.Freq[i] = vals[k]
		sum += vals[k]
		k++
	}
	if sum <= 0 {
		return nil, fmt.Errorf("%s: frequencies sum to zero", name)
	}
	for i := range m.Freq {
		m.Freq[i] /= sum
	}
	return m, nil
}
