package puzzle

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"bitbucket.org/Davydov/qpuzzle/align"
	"bitbucket.org/Davydov/qpuzzle/checkpoint"
	"bitbucket.org/Davydov/qpuzzle/consensus"
	"bitbucket.org/Davydov/qpuzzle/diag"
	"bitbucket.org/Davydov/qpuzzle/ml"
	"bitbucket.org/Davydov/qpuzzle/quartet"
	"bitbucket.org/Davydov/qpuzzle/rng"
	"bitbucket.org/Davydov/qpuzzle/sched"
	"bitbucket.org/Davydov/qpuzzle/smodel"
	"bitbucket.org/Davydov/qpuzzle/tree"
)

// mappingRank is the random stream rank of likelihood mapping, trials
// use ranks from zero.
const mappingRank = -1

// TransportFunc creates the transport of the puzzling step.
type TransportFunc func(ctx context.Context, workers int, newEngine func(worker int) *Engine) WorkTransport

// Analysis holds everything a run needs. It is built once and passed
// to every step.
type Analysis struct {
	Options   Options
	Alignment *align.Alignment
	Patterns  *align.Patterns
	// Freq are the equilibrium frequencies of the model.
	Freq        []float64
	Composition []align.TaxonComposition
	Model       *ml.Model
	// Dist are the ML distances (PAM) for the final parameters.
	Dist [][]float64
	// Checkpoint is optional.
	Checkpoint *checkpoint.IO
	// NewTransport defaults to NewChanTransport.
	NewTransport TransportFunc
	RunID        string
	Warnings     diag.Warnings
}

// NewAnalysis validates the options and sets up the model.
func NewAnalysis(a *align.Alignment, opts Options) (*Analysis, error) {
	if err := opts.Validate(a); err != nil {
		return nil, err
	}
	an := &Analysis{
		Options:   opts,
		Alignment: a,
		Patterns:  a.Patterns(),
		RunID:     uuid.NewString(),
	}
	log.Infof("%d taxa, %d sites, %d patterns, %d constant sites",
		a.NTaxa(), a.NSites(), an.Patterns.NPatterns(), an.Patterns.NConstSites)

	if opts.ModelFrequencies {
		an.Freq = smodel.ModelFrequencies(opts.Model, opts.Empirical)
	} else {
		an.Freq = a.EmpiricalFrequencies()
		if a.Type == align.Doublet {
			align.SymmetrizeDoublets(an.Freq)
		}
		align.ClampFrequencies(an.Freq)
	}
	comp, err := a.CompositionTest(an.Freq, a.Type == align.Doublet)
	if err != nil {
		return nil, fmt.Errorf("composition test: %w", err)
	}
	an.Composition = comp
	for _, c := range comp {
		if c.Failed {
			log.Warningf("Sequence %s deviates from the average composition (p=%.4f)", c.Name, c.PValue)
		}
	}

	q, err := smodel.NewRateMatrix(opts.Model, an.Freq, opts.Empirical)
	if err != nil {
		return nil, err
	}
	q.SetTS(opts.TS)
	q.SetYR(opts.YR)
	rates := smodel.NewRates(opts.RateMode, opts.NCat, opts.Shape, opts.FracInv)
	m, ws, err := ml.NewModel(an.Patterns, q, rates)
	if err != nil {
		return nil, err
	}
	an.Warnings.Merge(ws)
	q.ResetWarnings()
	an.Model = m
	return an, nil
}

// CheckpointKey returns the key of checkpoints of the analysis. It
// depends on the sequences and on the options which change the
// quartets or the bipartition table.
func CheckpointKey(a *align.Alignment, opts Options) []byte {
	o, err := json.Marshal(opts)
	if err != nil {
		panic(err)
	}
	parts := []string{a.Type.String(), string(o)}
	for i, name := range a.Names {
		parts = append(parts, name, string(a.Seqs[i]))
	}
	return checkpoint.Key(parts...)
}

// Estimate estimates the model parameters if requested and computes
// the ML distances.
func (an *Analysis) Estimate() (*ml.Estimates, error) {
	if an.Options.Estimate == ml.EstimateNone {
		an.Dist = an.Model.MLDistances()
		return nil, nil
	}
	e := ml.NewEstimator(an.Model, an.Alignment.Names, an.Options.Estimate)
	est, err := e.Estimate(an.Options.Method)
	if err != nil {
		return nil, err
	}
	an.Warnings.Merge(est.Warnings)
	an.Model.Q.ResetWarnings()
	an.Dist = e.Distances()
	return est, nil
}

func (an *Analysis) evaluator() *quartet.Evaluator {
	return quartet.NewEvaluator(an.Model, an.Dist, an.Options.Approximate, an.Options.TieMode)
}

// Quartets loads the quartet table from the checkpoint or computes
// and saves it.
func (an *Analysis) Quartets() (*quartet.Result, error) {
	n := an.Alignment.NTaxa()
	if an.Checkpoint != nil {
		res, err := an.Checkpoint.LoadQuartets(n)
		if err != nil {
			return nil, err
		}
		if res != nil {
			an.Warnings.Merge(res.Warnings)
			return res, nil
		}
	}
	res := an.evaluator().ComputeAll()
	an.Warnings.Merge(res.Warnings)
	if an.Checkpoint != nil {
		if err := an.Checkpoint.SaveQuartets(res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Mapping runs the likelihood mapping, or returns nil if it is
// switched off.
func (an *Analysis) Mapping() *quartet.Mapping {
	if an.Options.MappingQuartets < 0 {
		return nil
	}
	mp := an.evaluator().LikelihoodMapping(an.Options.MappingQuartets, rng.NewStream(an.Options.Seed, mappingRank))
	log.Infof("Likelihood mapping: %.1f%% resolved, %.1f%% unresolved", 100*mp.Resolved(), 100*mp.Unresolved())
	return mp
}

// resume restores the puzzling state from the checkpoint. It returns
// the number of completed trials.
func (an *Analysis) resume(table **consensus.Table, reg Registry) (int, error) {
	if an.Checkpoint == nil {
		return 0, nil
	}
	p, err := an.Checkpoint.LoadProgress()
	if err != nil || p == nil {
		return 0, err
	}
	t, err := consensus.Restore(p.Bipartitions)
	if err != nil {
		return 0, fmt.Errorf("checkpoint: %w", err)
	}
	switch {
	case t.NTaxa() != (*table).NTaxa() || t.Outgroup() != (*table).Outgroup():
		return 0, fmt.Errorf("checkpoint is for %d taxa and outgroup %d", t.NTaxa(), t.Outgroup())
	case t.Trials() != p.Trials:
		return 0, fmt.Errorf("checkpoint has %d trials in the table and %d done", t.Trials(), p.Trials)
	case p.Trials > an.Options.Trials:
		return 0, fmt.Errorf("checkpoint has %d trials, more than %d requested", p.Trials, an.Options.Trials)
	}
	if p.Seed != an.Options.Seed {
		log.Noticef("Continuing with the seed of the checkpoint, %d", p.Seed)
		an.Options.Seed = p.Seed
	}
	an.RunID = p.RunID
	*table = t
	reg.Merge(p.Topologies)
	return p.Trials, nil
}

func (an *Analysis) saveProgress(table *consensus.Table, reg Registry, final bool) error {
	return an.Checkpoint.SaveProgress(&checkpoint.Progress{
		RunID:        an.RunID,
		Seed:         an.Options.Seed,
		Trials:       table.Trials(),
		Bipartitions: table.Snapshot(),
		Topologies:   reg,
		Final:        final,
	})
}

// Puzzle runs the puzzling step trials on the workers and returns the
// bipartition table and the tree registry. Results are merged in
// trial order, so that a checkpoint always holds the first trials.
func (an *Analysis) Puzzle(ctx context.Context, store *quartet.Store) (*consensus.Table, Registry, error) {
	opts := an.Options
	table := consensus.NewTable(store.NTaxa(), opts.Outgroup)
	reg := make(Registry)
	done, err := an.resume(&table, reg)
	if err != nil {
		return nil, nil, err
	}
	// the seed may come from the checkpoint
	opts = an.Options
	total := int64(opts.Trials)
	if int64(done) == total {
		return table, reg, nil
	}
	log.Noticef("Running %d puzzling step trials on %d workers (%v scheduling)",
		total-int64(done), opts.Workers, opts.Policy)
	start := time.Now()

	s := sched.New(opts.Policy, total-int64(done), opts.Workers, opts.MinChunk)
	next := func() (sched.Range, bool) {
		r, ok := s.Next()
		r.Start += int64(done)
		r.End += int64(done)
		return r, ok
	}
	newTransport := an.NewTransport
	if newTransport == nil {
		newTransport = func(ctx context.Context, workers int, newEngine func(int) *Engine) WorkTransport {
			return NewChanTransport(ctx, workers, newEngine)
		}
	}
	tr := newTransport(ctx, opts.Workers, func(int) *Engine {
		return NewEngine(store, opts.Outgroup, opts.Seed)
	})
	defer tr.Close()

	inflight := 0
	for w := 0; w < tr.Workers(); w++ {
		r, ok := next()
		if !ok {
			break
		}
		if err := tr.SendBatch(w, r); err != nil {
			return nil, nil, err
		}
		inflight++
	}

	pending := make(map[int64]*BatchResult)
	merged := int64(done)
	step := total/10 + 1
	for inflight > 0 {
		res, err := tr.RecvResults(ctx)
		if err != nil {
			return nil, nil, err
		}
		inflight--
		if r, ok := next(); ok {
			if err := tr.SendBatch(res.Worker, r); err != nil {
				return nil, nil, err
			}
			inflight++
		}
		pending[res.Start] = res
		before := merged
		for p, ok := pending[merged]; ok; p, ok = pending[merged] {
			table.Merge(p.Table)
			reg.Merge(p.Topologies)
			delete(pending, merged)
			merged = p.End
		}
		if merged/step > before/step {
			log.Infof("%d%% of trials done (%v)", merged*100/total, time.Since(start).Round(time.Second))
		}
		if an.Checkpoint != nil && merged > before && an.Checkpoint.Old() {
			if err := an.saveProgress(table, reg, false); err != nil {
				return nil, nil, err
			}
		}
	}
	if err := tr.Close(); err != nil {
		return nil, nil, err
	}
	if merged != total {
		panic(fmt.Sprintf("%d of %d trials merged", merged, total))
	}
	if an.Checkpoint != nil {
		if err := an.saveProgress(table, reg, true); err != nil {
			return nil, nil, err
		}
	}
	log.Noticef("Puzzling step done in %v, %d distinct trees", time.Since(start).Round(time.Millisecond), len(reg))
	return table, reg, nil
}

// namedTree converts a canonical topology with taxa numbers to a tree
// with taxa names.
func (an *Analysis) namedTree(topology string) (*tree.Tree, error) {
	t, err := tree.ParseNewick(strings.NewReader(topology))
	if err != nil {
		return nil, err
	}
	for _, leaf := range t.Leaves() {
		i, err := strconv.Atoi(leaf.Name)
		if err != nil || i < 0 || i >= len(an.Alignment.Names) {
			return nil, fmt.Errorf("bad taxon %q in %s", leaf.Name, topology)
		}
		leaf.Name = an.Alignment.Names[i]
	}
	return t, nil
}

// EvaluateTree estimates the branch lengths of a tree over the taxa
// names and computes its likelihood.
func (an *Analysis) EvaluateTree(t *tree.Tree) (*ml.TreeResult, error) {
	res, err := ml.EvaluateTree(an.Model, t, an.Alignment.Names, an.Dist, false)
	if err != nil {
		return nil, err
	}
	an.Warnings.Merge(res.Warnings)
	return res, nil
}

// EvaluateTrees evaluates user trees.
func (an *Analysis) EvaluateTrees(trees []*tree.Tree) ([]*ml.TreeResult, error) {
	res, err := ml.EvaluateTrees(an.Model, trees, an.Alignment.Names, an.Dist, false)
	if err != nil {
		return nil, err
	}
	for _, r := range res {
		an.Warnings.Merge(r.Warnings)
	}
	return res, nil
}

// Result is the outcome of a quartet puzzling run.
type Result struct {
	RunID     string           `json:"runId"`
	Seed      uint64           `json:"seed"`
	Estimates *ml.Estimates    `json:"-"`
	Quartets  *quartet.Result  `json:"quartets"`
	Mapping   *quartet.Mapping `json:"mapping,omitempty"`
	Trials    int              `json:"trials"`
	// Topologies are the distinct puzzling step trees, most frequent
	// first.
	Topologies []TopologyCount `json:"topologies"`
	// BestTree is the most frequent puzzling step tree.
	BestTree *ml.TreeResult `json:"bestTree"`
	// Consensus holds the majority rule splits.
	Consensus *consensus.Consensus `json:"-"`
	// ConsensusTree is the consensus tree with ML branch lengths and
	// support values.
	ConsensusTree *ml.TreeResult   `json:"consensusTree"`
	Table         *consensus.Table `json:"-"`
	// BadQuartets is the number of fully unresolved quartets.
	BadQuartets int64         `json:"badQuartets"`
	Warnings    diag.Warnings `json:"warnings,omitempty"`
}

// Run runs all the steps of the analysis.
func (an *Analysis) Run(ctx context.Context) (*Result, error) {
	est, err := an.Estimate()
	if err != nil {
		return nil, err
	}
	qr, err := an.Quartets()
	if err != nil {
		return nil, err
	}
	if qr.BadQuartets > 0 {
		log.Noticef("%d fully unresolved quartets", qr.BadQuartets)
	}
	mp := an.Mapping()
	table, reg, err := an.Puzzle(ctx, qr.Store)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:       an.RunID,
		Seed:        an.Options.Seed,
		Estimates:   est,
		Quartets:    qr,
		Mapping:     mp,
		Trials:      table.Trials(),
		Topologies:  reg.Sorted(),
		Table:       table,
		BadQuartets: qr.BadQuartets,
	}
	res.Consensus = table.Majority(an.Alignment.Names)
	an.Warnings.Merge(res.Consensus.Warnings)

	best, err := an.namedTree(res.Topologies[0].Topology)
	if err != nil {
		return nil, err
	}
	if res.BestTree, err = an.EvaluateTree(best); err != nil {
		return nil, fmt.Errorf("best tree: %w", err)
	}
	log.Infof("Most frequent tree (%d of %d trials): lnL=%f", res.Topologies[0].Count, res.Trials, res.BestTree.LnL)
	if res.ConsensusTree, err = an.EvaluateTree(res.Consensus.Tree.Copy()); err != nil {
		return nil, fmt.Errorf("consensus tree: %w", err)
	}
	log.Infof("Consensus tree: lnL=%f", res.ConsensusTree.LnL)
	// rate matrix diagnostics after estimation, e.g. from quartets
	an.Warnings.Merge(an.Model.Q.Warnings())
	an.Model.Q.ResetWarnings()
	res.Warnings = an.Warnings
	return res, nil
}

// Run validates the options, sets up the model and runs the analysis.
// cp may be nil.
func Run(ctx context.Context, a *align.Alignment, opts Options, cp *checkpoint.IO) (*Result, error) {
	an, err := NewAnalysis(a, opts)
	if err != nil {
		return nil, err
	}
	an.Checkpoint = cp
	return an.Run(ctx)
}
