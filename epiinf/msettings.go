package main

import (
	"fmt"
	"os"

	"github.com/tgvaughan/EpiInf-sub000/emodel"
	"github.com/tgvaughan/EpiInf-sub000/master"
	"github.com/tgvaughan/EpiInf-sub000/obs"
	"github.com/tgvaughan/EpiInf-sub000/optimize"
	"github.com/tgvaughan/EpiInf-sub000/smc"
	"github.com/tgvaughan/EpiInf-sub000/tree"
)

// modelSettings stores settings for creating a new model. The
// schedule values are owned by the settings, so that the inferred
// parameters can point to them.
type modelSettings struct {
	name   string
	s0     float64
	params emodel.Params
}

// schedule creates a schedule from command-line values.
func schedule(values, times []float64) emodel.Schedule {
	return emodel.Schedule{
		Values:   append([]float64(nil), values...),
		Times:    append([]float64(nil), times...),
		Backward: *backward,
	}
}

// newModelSettings initializes modelSettings from global
// variables (command-line arguments).
func newModelSettings() *modelSettings {
	return &modelSettings{
		name: *modelName,
		s0:   *s0,
		params: emodel.Params{
			Origin:        *origin,
			InfectionRate: schedule(*infection, *infectionT),
			RecoveryRate:  schedule(*recovery, *recoveryT),
			PsiSampling:   schedule(*psi, *psiT),
			PsiProportion: *psiProp,
			RemovalProb:   schedule(*removal, *removalT),
			RhoProbs:      append([]float64(nil), *rho...),
			RhoTimes:      append([]float64(nil), *rhoT...),
			RhoBackward:   *backward,
			Tolerance:     *tolerance,
		},
	}
}

func copySchedule(s emodel.Schedule) emodel.Schedule {
	return emodel.Schedule{
		Values:   append([]float64(nil), s.Values...),
		Times:    append([]float64(nil), s.Times...),
		Backward: s.Backward,
	}
}

// copy returns a deep copy of the settings.
func (ms *modelSettings) copy() *modelSettings {
	c := *ms
	c.params.InfectionRate = copySchedule(ms.params.InfectionRate)
	c.params.RecoveryRate = copySchedule(ms.params.RecoveryRate)
	c.params.PsiSampling = copySchedule(ms.params.PsiSampling)
	c.params.RemovalProb = copySchedule(ms.params.RemovalProb)
	c.params.RhoProbs = append([]float64(nil), ms.params.RhoProbs...)
	c.params.RhoTimes = append([]float64(nil), ms.params.RhoTimes...)
	return &c
}

// create creates a new model from modelSettings.
func (ms *modelSettings) create() (emodel.Model, error) {
	return emodel.New(ms.name, ms.params, ms.s0)
}

// rates returns the schedule of a rate by its command-line name.
func (ms *modelSettings) rates(name string) (*emodel.Schedule, error) {
	switch name {
	case "infection":
		return &ms.params.InfectionRate, nil
	case "recovery":
		return &ms.params.RecoveryRate, nil
	case "psi":
		return &ms.params.PsiSampling, nil
	case "removal":
		return &ms.params.RemovalProb, nil
	}
	return nil, fmt.Errorf("unknown rate: %s", name)
}

// isProbability returns true for rates restricted to [0, 1].
func (ms *modelSettings) isProbability(name string) bool {
	return name == "removal" || (name == "psi" && ms.params.PsiProportion)
}

// density is a tree density which can be evaluated for different
// models.
type density interface {
	smc.TreeDensity
	SetModel(emodel.Model) error
}

// newDensity creates a density given its name for the observed
// events.
func newDensity(name string, l *obs.List) (density, error) {
	switch name {
	case "standard":
		log.Debugf("Standard particle filter, %d particles", *nParticles)
		d, err := smc.NewStandard(l, *nParticles)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "leaping":
		log.Debugf("Leaping particle filter, %d particles, epsilon=%v", *nParticles, *epsilon)
		d, err := smc.NewLeaping(l, *nParticles)
		if err != nil {
			return nil, err
		}
		d.Epsilon = *epsilon
		d.NResamples = *nResamples
		d.ResampThresh = *resampThresh
		if err := d.Validate(); err != nil {
			return nil, err
		}
		return d, nil
	case "exact":
		log.Debug("Exact density")
		d, err := master.NewDensity(l, *maxStates, *maxI)
		if err != nil {
			return nil, err
		}
		log.Infof("Exact density state space: %d states", d.NStates())
		return d, nil
	}
	return nil, fmt.Errorf("unknown density: %s", name)
}

// observations stores the observed tree and unsequenced samples.
type observations struct {
	tree      *tree.Tree
	incidence []float64
}

// readObservations reads the tree and the unsequenced sample ages.
// Both files are optional.
func readObservations(treeFileName, incidenceFileName string) (*observations, error) {
	o := &observations{}
	if treeFileName != "" {
		treeFile, err := os.Open(treeFileName)
		if err != nil {
			return nil, err
		}
		defer treeFile.Close()

		o.tree, err = tree.ParseNewick(treeFile)
		if err != nil {
			return nil, err
		}
		log.Infof("Read tree with %d leaves", o.tree.NLeaves())
		log.Debugf("intree=%s", o.tree)
	}
	if incidenceFileName != "" {
		b, err := os.ReadFile(incidenceFileName)
		if err != nil {
			return nil, err
		}
		o.incidence, err = optimize.ReadFloats(string(b))
		if err != nil {
			return nil, fmt.Errorf("error reading incidence ages: %w", err)
		}
		log.Infof("Read %d unsequenced sample ages", len(o.incidence))
	}
	return o, nil
}

// list creates the observed event list for a model.
func (o *observations) list(m emodel.Model) (*obs.List, error) {
	return obs.NewList(o.tree, o.incidence, m)
}
