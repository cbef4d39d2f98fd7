package main

import (
	"math"

	"bitbucket.org/Davydov/qpuzzle/align"
	"bitbucket.org/Davydov/qpuzzle/diag"
	"bitbucket.org/Davydov/qpuzzle/ml"
	"bitbucket.org/Davydov/qpuzzle/puzzle"
	"bitbucket.org/Davydov/qpuzzle/quartet"
)

// maxTopologies is the number of puzzling step trees in the summary.
const maxTopologies = 20

// CallSummary describes the program call.
type CallSummary struct {
	// Version stores qpuzzle version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// RunID identifies the run, it is kept when a run is resumed.
	RunID string `json:"runId"`
	// Seed is the seed used for random number generation initialization.
	Seed uint64 `json:"seed"`
	// NThreads is the number of threads used.
	NThreads int `json:"nThreads"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
}

// AlignmentSummary describes the data.
type AlignmentSummary struct {
	Type        string                   `json:"type"`
	NTaxa       int                      `json:"nTaxa"`
	NSites      int                      `json:"nSites"`
	NPatterns   int                      `json:"nPatterns"`
	NConstSites int                      `json:"nConstSites"`
	Composition []align.TaxonComposition `json:"composition"`
}

// ModelSummary is the substitution model with estimated parameters.
// Parameters which are not part of the model are omitted.
type ModelSummary struct {
	Name        string    `json:"name"`
	Rates       string    `json:"rates"`
	NCat        int       `json:"nCat"`
	Frequencies []float64 `json:"frequencies"`
	Estimated   bool      `json:"estimated"`
	Method      string    `json:"method,omitempty"`
	TS          *float64  `json:"ts,omitempty"`
	TSErr       *float64  `json:"tsErr,omitempty"`
	YR          *float64  `json:"yr,omitempty"`
	YRErr       *float64  `json:"yrErr,omitempty"`
	Shape       *float64  `json:"shape,omitempty"`
	ShapeErr    *float64  `json:"shapeErr,omitempty"`
	FracInv     *float64  `json:"fracInv,omitempty"`
	FracInvErr  *float64  `json:"fracInvErr,omitempty"`
	LnL         *float64  `json:"lnL,omitempty"`
}

// MappingSummary is the likelihood mapping.
type MappingSummary struct {
	Quartets   int64    `json:"quartets"`
	Areas      [3]int64 `json:"areas"`
	Regions    [7]int64 `json:"regions"`
	Resolved   *float64 `json:"resolved,omitempty"`
	Unresolved *float64 `json:"unresolved,omitempty"`
}

// SplitSummary is a consensus split.
type SplitSummary struct {
	// Split has stars for the taxa on the side without the
	// outgroup.
	Split   string `json:"split"`
	Count   int    `json:"count"`
	Support int    `json:"support"`
}

// RunSummary is storing qpuzzle run summary information.
type RunSummary struct {
	CallSummary
	Alignment AlignmentSummary `json:"alignment"`
	Model     ModelSummary     `json:"model"`
	// Quartets are the bad quartet counts.
	Quartets *quartet.Result `json:"quartets"`
	BadTaxa  []string        `json:"badTaxa,omitempty"`
	Mapping  *MappingSummary `json:"mapping,omitempty"`
	// Distances are the pairwise ML distances in substitutions per
	// site.
	Distances [][]float64 `json:"distances"`
	Trials    int         `json:"trials"`
	// Topologies are the most frequent puzzling step trees.
	Topologies    []puzzle.TopologyCount `json:"topologies"`
	NTopologies   int                    `json:"nTopologies"`
	Splits        []SplitSummary         `json:"splits"`
	Consensus     string                 `json:"consensus"`
	ConsensusTree *ml.TreeResult         `json:"consensusTree"`
	BestTree      *ml.TreeResult         `json:"bestTree"`
	UserTrees     []*ml.TreeResult       `json:"userTrees,omitempty"`
	Warnings      diag.Warnings          `json:"warnings,omitempty"`
}

// finite returns nil for NaN and infinite values, which JSON cannot
// represent.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// fill copies the results of the analysis.
func (s *RunSummary) fill(an *puzzle.Analysis, res *puzzle.Result) {
	a := an.Alignment
	s.RunID = res.RunID
	s.Seed = res.Seed
	s.Alignment = AlignmentSummary{
		Type:        a.Type.String(),
		NTaxa:       a.NTaxa(),
		NSites:      a.NSites(),
		NPatterns:   an.Patterns.NPatterns(),
		NConstSites: an.Patterns.NConstSites,
		Composition: an.Composition,
	}

	q := an.Model.Q
	r := an.Model.Rates
	s.Model = ModelSummary{
		Name:        q.Kind.String(),
		Rates:       r.Mode.String(),
		NCat:        r.NCat(),
		Frequencies: q.Freq,
	}
	if q.Kind.HasTS() {
		s.Model.TS = finite(q.TS)
	}
	if q.Kind.HasYR() {
		s.Model.YR = finite(q.YR)
	}
	if r.Mode.HasGamma() {
		s.Model.Shape = finite(r.Shape)
	}
	if r.Mode.HasInvariant() {
		s.Model.FracInv = finite(r.FracInv)
	}
	if est := res.Estimates; est != nil {
		s.Model.Estimated = true
		s.Model.Method = est.Method
		s.Model.LnL = finite(est.LnL)
		if s.Model.TS != nil {
			s.Model.TSErr = finite(est.TSErr)
		}
		if s.Model.YR != nil {
			s.Model.YRErr = finite(est.YRErr)
		}
		if s.Model.Shape != nil {
			s.Model.ShapeErr = finite(est.ShapeErr)
		}
		if s.Model.FracInv != nil {
			s.Model.FracInvErr = finite(est.FracInvErr)
		}
	}

	s.Quartets = res.Quartets
	s.BadTaxa = res.Quartets.BadTaxa(a.Names)
	if mp := res.Mapping; mp != nil {
		s.Mapping = &MappingSummary{
			Quartets:   mp.Quartets,
			Areas:      mp.Areas,
			Regions:    mp.Regions,
			Resolved:   finite(mp.Resolved()),
			Unresolved: finite(mp.Unresolved()),
		}
	}

	s.Distances = make([][]float64, len(an.Dist))
	for i, row := range an.Dist {
		s.Distances[i] = make([]float64, len(row))
		for j, d := range row {
			s.Distances[i][j] = d / 100
		}
	}

	s.Trials = res.Trials
	s.NTopologies = len(res.Topologies)
	s.Topologies = res.Topologies
	if len(s.Topologies) > maxTopologies {
		s.Topologies = s.Topologies[:maxTopologies]
	}
	for _, sp := range res.Consensus.Splits {
		s.Splits = append(s.Splits, SplitSummary{
			Split:   sp.Format(a.NTaxa()),
			Count:   sp.Count,
			Support: sp.SupportPct,
		})
	}
	s.Consensus = res.Consensus.Newick()
	s.ConsensusTree = res.ConsensusTree
	s.BestTree = res.BestTree
	s.Warnings = res.Warnings
}
