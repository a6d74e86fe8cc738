/*

Epiinf simulates stochastic epidemics and computes the likelihood of
transmission trees and sample times under SIR, SIS and birth-death
models using particle filters.

Simulate an SIR epidemic and its transmission tree:

	epiinf --origin 5 --s0 200 --infection 0.01 --recovery 0.2 --psi 0.1 simulate --tree-out tree.nwk

Estimate the log likelihood of a tree:

	epiinf --origin 5 --s0 200 --infection 0.01 --recovery 0.2 --psi 0.1 density tree.nwk

Infer the rates with a pseudo-marginal Metropolis-Hastings sampler:

	epiinf --origin 5 --s0 200 --psi 0.1 infer --method mh tree.nwk

To see all the options run:

	epiinf --help-long

*/
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/op/go-logging"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/tgvaughan/EpiInf-sub000/dist"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("epiinf")
var formatter = logging.MustStringFormatter(`%{message}`)

// modules are the loggers controlled by --loglevel.
var modules = []string{"epiinf", "emodel", "traj", "tree", "obs", "smc", "master", "optimize", "checkpoint"}

// command-line options
var (
	// application
	app = kingpin.New("epiinf", "stochastic epidemic simulation and tree likelihood inference").Version(version)

	// model
	modelName  = app.Flag("model", "epidemic model (SIR, SIS or BD for linear birth-death)").Default("SIR").Enum("SIR", "SIS", "BD")
	s0         = app.Flag("s0", "initial number of susceptible individuals (SIR and SIS)").Default("1000").Float64()
	origin     = app.Flag("origin", "time between the start of the epidemic and the end of the observation").Default("10").Float64()
	backward   = app.Flag("backward", "rate shift and rho sampling times are ages before the end of the observation").Bool()
	tolerance  = app.Flag("tolerance", "tolerance for comparing event times").Default("0").Float64()
	infection  = app.Flag("infection", "infection rate, one value per rate interval").Default("1").Float64List()
	infectionT = app.Flag("infection-times", "infection rate shift times").Float64List()
	recovery   = app.Flag("recovery", "recovery rate, one value per rate interval").Default("0.5").Float64List()
	recoveryT  = app.Flag("recovery-times", "recovery rate shift times").Float64List()
	psi        = app.Flag("psi", "psi sampling rate, one value per rate interval").Default("0").Float64List()
	psiT       = app.Flag("psi-times", "psi sampling rate shift times").Float64List()
	psiProp    = app.Flag("psi-proportion", "psi values are sampling proportions instead of rates").Bool()
	removal    = app.Flag("removal", "probability of removal upon psi sampling").Default("1").Float64List()
	removalT   = app.Flag("removal-times", "removal probability shift times").Float64List()
	rho        = app.Flag("rho", "rho sampling probabilities").Float64List()
	rhoT       = app.Flag("rho-times", "rho sampling times").Float64List()

	// density
	method = app.Flag("density", "tree density "+
		"(standard: particle filter with exact simulation, "+
		"leaping: tau-leaping particle filter, "+
		"exact: master equation, small populations only)").
		Default("standard").Enum("standard", "leaping", "exact")
	nParticles   = app.Flag("particles", "number of particles").Default("1000").Int()
	epsilon      = app.Flag("epsilon", "tau leaping accuracy (leaping density)").Default("0.03").Float64()
	nResamples   = app.Flag("nresamples", "number of resampling times (leaping density)").Default("100").Int()
	resampThresh = app.Flag("resampthresh", "effective particle fraction triggering resampling (leaping density)").Default("1").Float64()
	maxStates    = app.Flag("maxstates", "maximum state space size (exact density)").Default("2000").Int()
	maxI         = app.Flag("maxi", "maximum number of infected individuals (exact density)").Default("200").Float64()

	// technical
	nThreads   = app.Flag("nt", "number of threads to use").Int()
	seed       = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()
	cpuProfile = app.Flag("cpuprofile", "write cpu profile to file").String()

	// output
	outLogF  = app.Flag("log", "write log to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()
)

// simulate command
var (
	simCmd         = app.Command("simulate", "simulate an epidemic trajectory and its transmission tree")
	simNSteps      = simCmd.Flag("nsteps", "number of tau leaping steps, exact simulation if zero").Default("0").Int()
	simDuration    = simCmd.Flag("duration", "simulation duration, origin by default").Default("0").Float64()
	simMinSamples  = simCmd.Flag("minsamples", "minimum number of sampled individuals").Default("0").Int()
	simSampleTimes = simCmd.Flag("sample-times", "psi sample times replacing psi sampling").Float64List()
	simMaxRetries  = simCmd.Flag("retries", "maximum number of simulation attempts").Default("10000").Int()
	simOutF        = simCmd.Flag("out", "write trajectory to a file, stdout by default").String()
	simTreeF       = simCmd.Flag("tree-out", "write transmission tree to a file").String()
	simPlotF       = simCmd.Flag("plot", "plot the trajectory to an image file").String()
)

// density command
var (
	densCmd        = app.Command("density", "compute the log likelihood of a tree and unsequenced samples")
	densTreeF      = densCmd.Arg("tree", "tree in newick format").ExistingFile()
	densIncidenceF = densCmd.Flag("incidence", "file with ages of unsequenced samples").ExistingFile()
	densReps       = densCmd.Flag("reps", "number of likelihood estimates").Default("1").Int()
	densTrajF      = densCmd.Flag("trajectory", "write a trajectory drawn from the particles to a file").String()
	densPlotF      = densCmd.Flag("plot", "plot the drawn trajectory to an image file").String()
	densEventsF    = densCmd.Flag("events", "write observed events to a file").String()
)

// infer command
var (
	inferCmd        = app.Command("infer", "infer the epidemic rates from a tree")
	inferTreeF      = inferCmd.Arg("tree", "tree in newick format").ExistingFile()
	inferIncidenceF = inferCmd.Flag("incidence", "file with ages of unsequenced samples").ExistingFile()
	inferParameters = inferCmd.Flag("parameter", "parameter to infer").Default("infection", "recovery").
			Enums("infection", "recovery", "psi", "removal")
	optMethod = inferCmd.Flag("method", "optimization method to use "+
		"(simplex: downhill simplex, "+
		"lbfgsb: limited-memory BFGS with bounds (exact density only), "+
		"annealing: simulated annealing, "+
		"mh: pseudo-marginal Metropolis-Hastings, "+
		"none: just compute likelihood, no optimization"+
		")").Default("mh").Enum("simplex", "lbfgsb", "annealing", "mh", "none")
	iterations  = inferCmd.Flag("iter", "number of iterations").Default("10000").Int()
	report      = inferCmd.Flag("report", "report every N iterations").Default("10").Int()
	accept      = inferCmd.Flag("accept", "report acceptance rate every N iterations").Default("200").Int()
	randomize   = inferCmd.Flag("randomize", "use uniformly distributed random starting point").Bool()
	prior       = inferCmd.Flag("prior", "rate prior (flat, lognormal or exponential)").Default("lognormal").Enum("flat", "lognormal", "exponential")
	priorScale  = inferCmd.Flag("prior-scale", "log standard deviation of the lognormal prior or mean of the exponential prior").Default("2").Float64()
	proposal    = inferCmd.Flag("proposal", "rate proposal (scale, normal or uniform)").Default("scale").Enum("scale", "normal", "uniform")
	propWidth   = inferCmd.Flag("proposal-width", "proposal width or standard deviation").Default("0.5").Float64()
	adaptive    = inferCmd.Flag("adaptive", "use adaptive MCMC").Bool()
	skip        = inferCmd.Flag("skip", "number of iterations to skip for adaptive mcmc (5% by default)").Default("-1").Int()
	maxAdapt    = inferCmd.Flag("maxadapt", "stop adapting after iteration (20% by default)").Default("-1").Int()
	outF        = inferCmd.Flag("out", "write optimization trajectory to a file").String()
	startF      = inferCmd.Flag("start", "read start position from the trajectory or JSON file").ExistingFile()
	checkpointF = inferCmd.Flag("checkpoint", "checkpoint database file").String()
	cpSeconds   = inferCmd.Flag("checkpoint-seconds", "time between checkpoints").Default("60").Float64()
)

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))
	startTime := time.Now()

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

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)
	rng := dist.NewRand(uint64(*seed))

	runtime.GOMAXPROCS(*nThreads)

	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.", effectiveNThreads)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	summary := &RunSummary{}
	switch cmd {
	case simCmd.FullCommand():
		summary.Result, err = runSimulate(rng)
	case densCmd.FullCommand():
		summary.Result, err = runDensity(rng)
	case inferCmd.FullCommand():
		summary.Result, err = runInference(rng)
	}
	if err != nil {
		log.Fatal(err)
	}

	summary.Command = cmd
	summary.NThreads = effectiveNThreads
	summary.Version = version
	summary.CommandLine = os.Args
	summary.Seed = *seed
	summary.TotalTime = time.Since(startTime).Seconds()
	log.Noticef("Running time: %v", time.Since(startTime))

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			if err := os.WriteFile(*jsonF, j, 0666); err != nil {
				log.Error("Error creating json output file:", err)
			}
		}
	}
}
