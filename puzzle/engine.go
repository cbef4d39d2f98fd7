// Package puzzle runs the quartet puzzling analysis: model setup and
// parameter estimation, quartet evaluation, the puzzling step trials
// distributed over workers, and the majority rule consensus.
package puzzle

import (
	"context"

	"github.com/bits-and-blooms/bitset"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/qpuzzle/consensus"
	"bitbucket.org/Davydov/qpuzzle/ptree"
	"bitbucket.org/Davydov/qpuzzle/quartet"
	"bitbucket.org/Davydov/qpuzzle/rng"
	"bitbucket.org/Davydov/qpuzzle/sched"
)

var log = logging.MustGetLogger("puzzle")

// Engine runs puzzling step trials. The quartet store is only read,
// so engines of different workers share it. An engine itself is not
// safe for concurrent use.
type Engine struct {
	store    *quartet.Store
	outgroup int
	seed     uint64
	t        *ptree.Tree
}

// NewEngine creates an engine. Trial i draws its random numbers from
// the stream (seed, i).
func NewEngine(store *quartet.Store, outgroup int, seed uint64) *Engine {
	return &Engine{
		store:    store,
		outgroup: outgroup,
		seed:     seed,
		t:        ptree.New(store.NTaxa()),
	}
}

// Trial builds one tree: taxa are added in random order, each on the
// edge with the fewest votes from the quartets it forms with the taxa
// already in the tree. It returns the canonical topology and the
// bipartitions.
func (e *Engine) Trial(index int64) (string, []*bitset.BitSet) {
	st := rng.NewStream(e.seed, int(index))
	n := e.store.NTaxa()
	perm := st.Permutation(n)
	t := e.t
	t.Init(perm[0], perm[1], perm[2])
	for k := 3; k < n; k++ {
		i := perm[k]
		t.ResetVotes()
		for c := 2; c < k; c++ {
			for b := 1; b < c; b++ {
				for a := 0; a < b; a++ {
					x, y := e.store.Together(perm[a], perm[b], perm[c], i, st)
					t.Vote(x, y)
				}
			}
		}
		t.Insert(i, t.MinVoteEdge(st))
	}
	return t.String(), t.Bipartitions(e.outgroup)
}

// RunBatch runs the trials of the range. The context is checked
// between trials.
func (e *Engine) RunBatch(ctx context.Context, r sched.Range) (*BatchResult, error) {
	res := &BatchResult{
		Range:      r,
		Table:      consensus.NewTable(e.store.NTaxa(), e.outgroup),
		Topologies: make(Registry),
	}
	for i := r.Start; i < r.End; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		topology, bps := e.Trial(i)
		res.Table.RecordTrial(bps)
		res.Topologies.Add(topology, 1)
	}
	log.Debugf("Trials %d-%d done", r.Start, r.End-1)
	return res, nil
}
