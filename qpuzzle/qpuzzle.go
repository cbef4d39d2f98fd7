/*

Qpuzzle reconstructs phylogenetic trees by quartet puzzling. Maximum
likelihood trees of all the quartets are combined into many
intermediate trees, and the majority rule consensus of these trees is
reported with support values.

The basic usage looks like this:

	qpuzzle alignment.fst

, this will use the default model for the data type (HKY for
nucleotides) with parameters estimated from the data and 1000
puzzling step trials.

Models and rate heterogeneity can be changed:

	qpuzzle -model TN -rates gamma -ncat 8 -trials 10000 alignment.phy

To see all the options run:

	qpuzzle -h

*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/op/go-logging"
	"gopkg.in/alecthomas/kingpin.v2"

	"bitbucket.org/Davydov/qpuzzle/align"
	"bitbucket.org/Davydov/qpuzzle/bio"
	"bitbucket.org/Davydov/qpuzzle/checkpoint"
	"bitbucket.org/Davydov/qpuzzle/ml"
	"bitbucket.org/Davydov/qpuzzle/puzzle"
	"bitbucket.org/Davydov/qpuzzle/quartet"
	"bitbucket.org/Davydov/qpuzzle/rng"
	"bitbucket.org/Davydov/qpuzzle/sched"
	"bitbucket.org/Davydov/qpuzzle/smodel"
	"bitbucket.org/Davydov/qpuzzle/tree"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("qpuzzle")
var formatter = logging.MustStringFormatter(`%{message}`)

// modules are the packages with loggers.
var modules = []string{"qpuzzle", "puzzle", "quartet", "consensus", "ml", "smodel", "align", "dist", "optimize", "checkpoint"}

// command-line options
var (
	// application
	app = kingpin.New("qpuzzle", "maximum likelihood trees by quartet puzzling").Version(version)

	// input alignment
	alignmentFileName = app.Arg("alignment", "sequence alignment (FASTA or PHYLIP)").Required().ExistingFile()
	dataType          = app.Flag("type", "data type").Default("auto").
				Enum(append([]string{"auto"}, align.DataTypeNames()...)...)

	// model
	model = app.Flag("model", "substitution model "+
		"(HKY, TN: nucleotides; SH: doublets; POISSON, PAML: amino acids; BINARY), "+
		"default depends on the data type").String()
	pamlFileName = app.Flag("paml", "PAML amino acid model file (for -model PAML)").ExistingFile()
	modelFreq    = app.Flag("modelfreq", "use model frequencies instead of the empirical ones").Bool()
	ts           = app.Flag("ts", "transition/transversion parameter").Default("2").Float64()
	yr           = app.Flag("yr", "Y/R transition parameter (TN model)").Default("1").Float64()
	rates        = app.Flag("rates", "rate heterogeneity "+
		"(uniform, gamma, tworate: invariable sites and one rate, mixed: invariable sites and gamma)").
		Default("uniform").Enum(smodel.RateModeNames()...)
	ncat    = app.Flag("ncat", "number of gamma rate categories").Default("8").Int()
	shape   = app.Flag("shape", "gamma distribution shape parameter").Default("1").Float64()
	fracInv = app.Flag("fracinv", "fraction of invariable sites").Default("0").Float64()

	// estimation
	estimate = app.Flag("estimate", "parameter estimation "+
		"(none, approximate: least squares branch lengths, exact: ML branch lengths)").
		Default("approximate").Enum(ml.EstimateModeNames()...)
	method = app.Flag("method", "optimization method "+
		"(brent: coordinate descent, lbfgsb: limited-memory Broyden–Fletcher–Goldfarb–Shanno with bounding constraints)").
		Default(ml.MethodBrent).Enum(ml.MethodBrent, ml.MethodLBFGSB)

	// quartets and puzzling
	exact    = app.Flag("exact", "optimize branch lengths of quartet trees").Bool()
	ties     = app.Flag("ties", "quartet classification (weights: closest weight distribution, best: best topology and ties)").Default("weights").Enum(quartet.TieModeNames()...)
	trials   = app.Flag("trials", "number of puzzling step trials").Default("1000").Int()
	outgroup = app.Flag("outgroup", "outgroup taxon name or number, first taxon by default").String()
	mapping  = app.Flag("mapping", "number of quartets for likelihood mapping, 0 for all of them, -1 for no mapping").Default("-1").Int64()

	// user trees
	userTreeFileName = app.Flag("usertree", "evaluate the likelihood of user trees").ExistingFile()

	// technical
	nThreads      = app.Flag("nt", "number of threads to use").Int()
	policy        = app.Flag("sched", "trial scheduling policy").Default("guided").Enum(sched.PolicyNames()...)
	minChunk      = app.Flag("minchunk", "minimal number of trials sent to a worker").Default("1").Int64()
	seed          = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()
	cpuProfile    = app.Flag("cpuprofile", "write cpu profile to file").String()
	checkpointF   = app.Flag("checkpoint", "checkpoint database file").String()
	checkpointSec = app.Flag("checkpointsec", "save checkpoint every N seconds").Default("60").Float64()

	// input/output
	outLogF       = app.Flag("log", "write log to a file").String()
	outTreeF      = app.Flag("tree", "write the most frequent puzzling step tree to a file").String()
	outConsensusF = app.Flag("consensus", "write the consensus tree to a file").String()
	outDistF      = app.Flag("dist", "write pairwise ML distances (substitutions per site) to a file").String()
	outPlotF      = app.Flag("lmplot", "write likelihood mapping plot to a file (png, svg, pdf)").String()
	logLevel      = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()
)

// readAlignment reads and encodes the alignment.
func readAlignment(fileName, dt string) (*align.Alignment, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seqs, err := bio.ParseAlignment(f)
	if err != nil {
		return nil, err
	}
	var t align.DataType
	if dt == "auto" {
		raw := make([]string, len(seqs))
		for i, s := range seqs {
			raw[i] = s.Sequence
		}
		t = align.GuessDataType(raw)
		log.Infof("Data type: %v", t)
	} else if t, err = align.ParseDataType(dt); err != nil {
		return nil, err
	}
	return align.New(seqs, t)
}

// findTaxon converts a taxon name or a number starting from one to
// the taxon index.
func findTaxon(a *align.Alignment, s string) (int, error) {
	if i := a.TaxonIndex(s); i >= 0 {
		return i, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= a.NTaxa() {
		return n - 1, nil
	}
	return 0, fmt.Errorf("unknown taxon: %q", s)
}

// options builds the analysis options from the command line.
func options(a *align.Alignment, seed uint64, workers int) (opts puzzle.Options, err error) {
	opts = puzzle.DefaultOptions(a.Type)
	if *model != "" {
		if opts.Model, err = smodel.ParseKind(*model); err != nil {
			return
		}
	}
	if *pamlFileName != "" {
		f, err := os.Open(*pamlFileName)
		if err != nil {
			return opts, err
		}
		defer f.Close()
		if opts.Empirical, err = smodel.ReadPAML(f, *pamlFileName); err != nil {
			return opts, err
		}
	}
	opts.ModelFrequencies = *modelFreq
	opts.TS = *ts
	opts.YR = *yr
	if opts.RateMode, err = smodel.ParseRateMode(*rates); err != nil {
		return
	}
	opts.NCat = *ncat
	opts.Shape = *shape
	opts.FracInv = *fracInv
	if opts.Estimate, err = ml.ParseEstimateMode(*estimate); err != nil {
		return
	}
	opts.Method = *method
	opts.Approximate = !*exact
	if opts.TieMode, err = quartet.ParseTieMode(*ties); err != nil {
		return
	}
	opts.Trials = *trials
	if *outgroup != "" {
		if opts.Outgroup, err = findTaxon(a, *outgroup); err != nil {
			return
		}
	}
	opts.MappingQuartets = *mapping
	opts.Seed = seed
	opts.Workers = workers
	if opts.Policy, err = sched.ParsePolicy(*policy); err != nil {
		return
	}
	opts.MinChunk = *minChunk
	return opts, opts.Validate(a)
}

// distanceMatrix formats the distances (PAM) as a PHYLIP distance
// matrix in substitutions per site. Names are padded to ten
// characters.
func distanceMatrix(names []string, dist [][]float64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "  %d\n", len(names))
	for i, name := range names {
		fmt.Fprintf(&sb, "%-10s", name)
		for _, d := range dist[i] {
			fmt.Fprintf(&sb, "  %.5f", d/100)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// writeFile writes a line to a file.
func writeFile(fileName, s string) {
	if err := os.WriteFile(fileName, []byte(s+"\n"), 0666); err != nil {
		log.Error("Error writing file:", err)
	}
}

func run(ctx context.Context, seed uint64, workers int) (summary *RunSummary) {
	startTime := time.Now()
	summary = &RunSummary{}

	a, err := readAlignment(*alignmentFileName, *dataType)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Read alignment of %d %v sequences, %d sites", a.NTaxa(), a.Type, a.NSites())
	for _, g := range a.Identical() {
		names := make([]string, len(g))
		for i, t := range g {
			names[i] = a.Names[t]
		}
		log.Infof("Identical sequences: %v", names)
	}

	opts, err := options(a, seed, workers)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Model: %v, rates: %v, outgroup: %s", opts.Model, opts.RateMode, a.Names[opts.Outgroup])

	an, err := puzzle.NewAnalysis(a, opts)
	if err != nil {
		log.Fatal(err)
	}

	if *checkpointF != "" {
		db, err := checkpoint.Open(*checkpointF)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		an.Checkpoint = checkpoint.New(db, puzzle.CheckpointKey(a, opts), *checkpointSec)
	}

	res, err := an.Run(ctx)
	if err != nil {
		log.Fatal(err)
	}

	if *userTreeFileName != "" {
		f, err := os.Open(*userTreeFileName)
		if err != nil {
			log.Fatal(err)
		}
		trees, err := tree.ParseNewickAll(f)
		f.Close()
		if err != nil {
			log.Fatal(err)
		}
		if summary.UserTrees, err = an.EvaluateTrees(trees); err != nil {
			log.Fatal(err)
		}
	}

	for _, s := range res.Consensus.Splits {
		log.Infof("%s %4d%%", s.Format(a.NTaxa()), s.SupportPct)
	}
	log.Noticef("Consensus tree: %s", res.ConsensusTree.Newick)
	log.Noticef("Most frequent tree (%d of %d): %s", res.Topologies[0].Count, res.Trials, res.BestTree.Newick)
	if res.Mapping != nil && *outPlotF != "" {
		if err := quartet.PlotMapping(res.Mapping, filepath.Base(*alignmentFileName), *outPlotF); err != nil {
			log.Error("Error plotting likelihood mapping:", err)
		}
	}
	if *outTreeF != "" {
		writeFile(*outTreeF, res.BestTree.Newick)
	}
	if *outConsensusF != "" {
		writeFile(*outConsensusF, res.ConsensusTree.Newick)
	}
	if *outDistF != "" {
		log.Infof("Writing pairwise distances to %s", *outDistF)
		if err := os.WriteFile(*outDistF, []byte(distanceMatrix(a.Names, an.Dist)), 0666); err != nil {
			log.Error("Error writing file:", err)
		}
	}
	if n := len(res.Warnings); n > 0 {
		log.Warningf("%d warnings", n)
		for _, w := range res.Warnings {
			log.Warning(w)
		}
	}

	summary.fill(an, res)

	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.Time = deltaT.Seconds()
	return
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	for _, module := range modules {
		logging.SetLevel(level, module)
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	var s uint64
	if *seed == -1 {
		s = rng.TimeSeed()
		log.Debug("Random seed from time")
	} else {
		s = uint64(*seed)
	}
	log.Infof("Random seed=%v", s)

	runtime.GOMAXPROCS(*nThreads)
	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.", effectiveNThreads)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	// interrupted runs keep their checkpoint
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	summary := run(ctx, s, effectiveNThreads)
	summary.NThreads = effectiveNThreads
	summary.Version = version
	summary.CommandLine = os.Args

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file:", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}
}
