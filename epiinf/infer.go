package main

import (
	"bufio"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/exp/rand"

	bolt "go.etcd.io/bbolt"

	"github.com/tgvaughan/EpiInf-sub000/checkpoint"
	"github.com/tgvaughan/EpiInf-sub000/dist"
	"github.com/tgvaughan/EpiInf-sub000/optimize"
)

// lastLine returns the last line of a file content.
func lastLine(fn string) (line string, err error) {
	f, err := os.Open(fn)
	if err != nil {
		return line, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line = scanner.Text()
	}
	err = scanner.Err()
	return line, err
}

// readStart sets the parameters from the last line of a trajectory
// file or from a JSON file.
func readStart(par optimize.FloatParameters, fn string) error {
	l, err := lastLine(fn)
	if err == nil {
		err = par.ReadLine(l)
	}
	if err != nil {
		log.Debug("Reading start file as JSON")
		if err2 := par.ReadFromJSON(fn); err2 != nil {
			return fmt.Errorf("error reading start position: %v, %v", err, err2)
		}
	}
	return nil
}

// newParameterSettings creates the parameter settings from the
// command-line arguments.
func newParameterSettings() (*parameterSettings, error) {
	ps := &parameterSettings{
		names:   *inferParameters,
		rateGen: optimize.BasicFloatParameterGenerator,
		probGen: optimize.BasicFloatParameterGenerator,
	}

	switch *prior {
	case "flat":
		ps.ratePrior = optimize.FlatPrior
	case "lognormal":
		ps.ratePrior = optimize.LogNormalPrior(0, *priorScale)
	case "exponential":
		ps.ratePrior = optimize.ExponentialPrior(1 / *priorScale, true)
	default:
		return nil, fmt.Errorf("unknown prior: %s", *prior)
	}

	if *adaptive {
		as := optimize.NewAdaptiveSettings()
		if *skip < 0 {
			*skip = *iterations / 20
		}
		if *maxAdapt < 0 {
			*maxAdapt = *iterations / 5
		}
		log.Infof("Setting adaptive parameters, skip=%v, maxAdapt=%v", *skip, *maxAdapt)
		as.Skip = *skip
		as.MaxAdapt = *maxAdapt
		as.LogScale = true
		ps.rateGen = as.ParameterGenerator
		probSettings := *as
		probSettings.LogScale = false
		ps.probGen = probSettings.ParameterGenerator
		return ps, nil
	}

	switch *proposal {
	case "scale":
		ps.rateProposal = optimize.ScaleProposal(*propWidth)
	case "normal":
		ps.rateProposal = optimize.NormalProposal(*propWidth)
	case "uniform":
		ps.rateProposal = optimize.UniformProposal(*propWidth)
	default:
		return nil, fmt.Errorf("unknown proposal: %s", *proposal)
	}
	ps.probProposal = optimize.NormalProposal(0.1)
	return ps, nil
}

// newOptimizer returns an optimizer given its name.
func newOptimizer(name string, rng *rand.Rand) (optimize.Optimizer, error) {
	switch name {
	case "simplex":
		return optimize.NewDS(), nil
	case "lbfgsb":
		if *method != "exact" {
			return nil, fmt.Errorf("lbfgsb requires the exact density, got %s", *method)
		}
		return optimize.NewLBFGSB(), nil
	case "mh":
		chain := optimize.NewMH(rng, false, 0)
		chain.AccPeriod = *accept
		return chain, nil
	case "annealing":
		annealingSkip := 0
		if *adaptive {
			annealingSkip = *maxAdapt
		}
		chain := optimize.NewMH(rng, true, annealingSkip)
		chain.AccPeriod = *accept
		return chain, nil
	case "none":
		return optimize.NewNone(), nil
	}
	return nil, fmt.Errorf("unknown optimization method: %s", name)
}

// runInference optimizes or samples the rates given the observations.
func runInference(rng *rand.Rand) (*InferenceSummary, error) {
	o, err := readObservations(*inferTreeF, *inferIncidenceF)
	if err != nil {
		return nil, err
	}
	ps, err := newParameterSettings()
	if err != nil {
		return nil, err
	}
	e, err := newEpidemic(newModelSettings(), o, *method, ps, dist.SubStream(rng))
	if err != nil {
		return nil, err
	}
	par := e.GetFloatParameters()
	log.Infof("Inferring %d parameters: %s", len(par), par.NamesString())

	summary := &InferenceSummary{Density: *method}

	var cpIO *checkpoint.IO
	if *checkpointF != "" {
		db, err := bolt.Open(*checkpointF, 0666, nil)
		if err != nil {
			return nil, fmt.Errorf("error opening checkpoint database: %w", err)
		}
		defer db.Close()
		cpIO = checkpoint.NewIO(db, []byte(*optMethod), *cpSeconds)
		cpIO.Seed = uint64(*seed)

		data, err := cpIO.Load()
		if err != nil {
			return nil, fmt.Errorf("error loading checkpoint: %w", err)
		}
		if data != nil {
			if data.Seed != cpIO.Seed {
				log.Infof("Checkpoint was saved with seed=%v", data.Seed)
			}
			if err := par.SetFromMap(data.Parameters); err != nil {
				return nil, err
			}
			if data.Final {
				summary.Checkpoint = true
				summary.Optimizer = optimize.Summary{
					Method:         *optMethod,
					Iterations:     data.Iter,
					MaxLnL:         data.Likelihood,
					MaxLParameters: data.Parameters,
				}
				log.Noticef("Maximum lnL=%v", data.Likelihood)
				return summary, nil
			}
		}
	}

	switch {
	case *startF != "":
		if err := readStart(par, *startF); err != nil {
			return nil, err
		}
	case *randomize:
		log.Info("Using uniform (in the boundaries) random starting point")
		par.Randomize(rng)
	}
	if !par.InRange() {
		return nil, fmt.Errorf("initial parameters are not in the range: %s", par.ValuesString())
	}
	for _, p := range par {
		if p.Get() == 0 && (*proposal == "scale" || *adaptive) {
			log.Warningf("%s starts at zero and may not be changed by multiplicative proposals", p.Name())
		}
	}

	opt, err := newOptimizer(*optMethod, rng)
	if err != nil {
		return nil, err
	}
	log.Infof("Using %s optimization.", *optMethod)

	f := os.Stdout
	if *outF != "" {
		f, err = os.Create(*outF)
		if err != nil {
			return nil, fmt.Errorf("error creating trajectory file: %w", err)
		}
		defer f.Close()
	}

	opt.SetOutput(f)
	opt.SetOptimizable(e)
	opt.SetReportPeriod(*report)
	opt.SetCheckpointIO(cpIO)
	opt.WatchSignals(os.Interrupt, syscall.SIGTERM)

	opt.Run(*iterations)
	opt.PrintResults()
	summary.Optimizer = opt.Summary()
	return summary, nil
}
