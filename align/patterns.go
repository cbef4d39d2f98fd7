package align

// Patterns is an alignment compacted into distinct site patterns.
type Patterns struct {
	Type  DataType
	Names []string
	// Data[taxon][pattern] is the state.
	Data [][]byte
	// Weight is the number of sites with the pattern.
	Weight []int
	// Constant is true for patterns where every taxon has the same
	// known state.
	Constant []bool
	// Alias maps sites to patterns.
	Alias []int
	// NSites is the number of sites, sum of Weight.
	NSites int
	// NConstSites is the number of constant sites.
	NConstSites int
}

// radixSort returns site indices ordered by column content. The last
// taxon is the least significant digit.
func (a *Alignment) radixSort() []int {
	nsites := a.NSites()
	radix := a.NStates() + 1
	ali := make([]int, nsites)
	work := make([]int, nsites)
	count := make([]int, radix)
	for i := range ali {
		ali[i] = i
	}
	for pass := a.NTaxa() - 1; pass >= 0; pass-- {
		row := a.Seqs[pass]
		for j := range count {
			count[j] = 0
		}
		for _, s := range ali {
			count[row[s]]++
		}
		for j := 1; j < radix; j++ {
			count[j] += count[j-1]
		}
		for i := nsites - 1; i >= 0; i-- {
			c := row[ali[i]]
			count[c]--
			work[count[c]] = ali[i]
		}
		ali, work = work, ali
	}
	return ali
}

func (a *Alignment) sameColumn(s1, s2 int) bool {
	for _, row := range a.Seqs {
		if row[s1] != row[s2] {
			return false
		}
	}
	return true
}

// Patterns compacts the alignment. Patterns are ordered by their
// content.
func (a *Alignment) Patterns() *Patterns {
	ntaxa := a.NTaxa()
	nstates := byte(a.NStates())
	ali := a.radixSort()

	p := &Patterns{
		Type:   a.Type,
		Names:  a.Names,
		Data:   make([][]byte, ntaxa),
		Alias:  make([]int, a.NSites()),
		NSites: a.NSites(),
	}
	prev := -1
	for _, site := range ali {
		if prev < 0 || !a.sameColumn(prev, site) {
			for i := range p.Data {
				p.Data[i] = append(p.Data[i], a.Seqs[i][site])
			}
			p.Weight = append(p.Weight, 0)
		}
		n := len(p.Weight) - 1
		p.Weight[n]++
		p.Alias[site] = n
		prev = site
	}

	p.Constant = make([]bool, len(p.Weight))
	for k := range p.Weight {
		c := p.Data[0][k]
		constant := c != nstates
		for i := 1; i < ntaxa && constant; i++ {
			constant = p.Data[i][k] == c
		}
		if constant {
			p.Constant[k] = true
			p.NConstSites += p.Weight[k]
		}
	}
	log.Debugf("%d sites compacted into %d patterns, %d constant sites",
		p.NSites, len(p.Weight), p.NConstSites)
	return p
}

// NTaxa returns the number of taxa.
func (p *Patterns) NTaxa() int {
	return len(p.Data)
}

// NPatterns returns the number of distinct patterns.
func (p *Patterns) NPatterns() int {
	return len(p.Weight)
}

// NStates returns the number of states.
func (p *Patterns) NStates() int {
	return p.Type.NStates()
}

// NConstPatterns returns the number of constant patterns.
func (p *Patterns) NConstPatterns() (n int) {
	for _, c := range p.Constant {
		if c {
			n++
		}
	}
	return
}

// FracConstSites returns the fraction of constant sites. It is the
// upper bound for the fraction of invariable sites.
func (p *Patterns) FracConstSites() float64 {
	return float64(p.NConstSites) / float64(p.NSites)
}
