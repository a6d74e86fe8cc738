package main

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/tgvaughan/EpiInf-sub000/dist"
	"github.com/tgvaughan/EpiInf-sub000/emodel"
	"github.com/tgvaughan/EpiInf-sub000/optimize"
)

// parameterSettings describe how the inferred parameters are created.
type parameterSettings struct {
	names []string
	// rateGen and probGen create parameters for rates and
	// probabilities.
	rateGen, probGen optimize.FloatParameterGenerator
	ratePrior        func(float64) float64
	rateProposal     optimize.ProposalFunc
	probProposal     optimize.ProposalFunc
}

// epidemic is the likelihood of the observations as a function of the
// model rates. Every copy owns its observed event list, density and
// random number generator.
type epidemic struct {
	ms         *modelSettings
	obs        *observations
	method     string
	density    density
	rng        *rand.Rand
	ps         *parameterSettings
	parameters optimize.FloatParameters
}

// newEpidemic creates the likelihood of the observations. The
// density is created immediately to report configuration errors.
func newEpidemic(ms *modelSettings, o *observations, method string, ps *parameterSettings, rng *rand.Rand) (*epidemic, error) {
	e := &epidemic{
		ms:     ms,
		obs:    o,
		method: method,
		rng:    rng,
		ps:     ps,
	}
	m, err := ms.create()
	if err != nil {
		return nil, err
	}
	if e.density, err = e.newDensity(m); err != nil {
		return nil, err
	}
	if err := e.setupParameters(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *epidemic) newDensity(m emodel.Model) (density, error) {
	l, err := e.obs.list(m)
	if err != nil {
		return nil, err
	}
	return newDensity(e.method, l)
}

// setupParameters creates a parameter for every value of the inferred
// rate schedules.
func (e *epidemic) setupParameters() error {
	e.parameters = nil
	for _, name := range e.ps.names {
		s, err := e.ms.rates(name)
		if err != nil {
			return err
		}
		for i := range s.Values {
			pname := name
			if len(s.Values) > 1 {
				pname = fmt.Sprintf("%s.%d", name, i)
			}
			var par optimize.FloatParameter
			if e.ms.isProbability(name) {
				par = e.ps.probGen(&s.Values[i], pname)
				par.SetMin(0)
				par.SetMax(1)
				par.SetPriorFunc(optimize.UniformPrior(0, 1, true, true))
				if e.ps.probProposal != nil {
					par.SetProposalFunc(e.ps.probProposal)
				}
			} else {
				par = e.ps.rateGen(&s.Values[i], pname)
				par.SetMin(0)
				par.SetPriorFunc(e.ps.ratePrior)
				if e.ps.rateProposal != nil {
					par.SetProposalFunc(e.ps.rateProposal)
				}
			}
			e.parameters.Append(par)
		}
	}
	return nil
}

// GetFloatParameters returns the inferred parameters.
func (e *epidemic) GetFloatParameters() optimize.FloatParameters {
	return e.parameters
}

// Likelihood estimates the log likelihood for the current parameter
// values. Invalid parameters have zero likelihood.
func (e *epidemic) Likelihood() float64 {
	m, err := e.ms.create()
	if err != nil {
		log.Debug("Invalid model:", err)
		return math.Inf(-1)
	}
	if e.density == nil {
		e.density, err = e.newDensity(m)
	} else {
		err = e.density.SetModel(m)
	}
	if err != nil {
		log.Debug("Error setting model:", err)
		return math.Inf(-1)
	}
	return e.density.LogLikelihood(e.rng)
}

// Copy returns an independent copy with its own random number
// stream. The density of the copy is created on the first likelihood
// computation.
func (e *epidemic) Copy() optimize.Optimizable {
	c := &epidemic{
		ms:     e.ms.copy(),
		obs:    e.obs,
		method: e.method,
		rng:    dist.SubStream(e.rng),
		ps:     e.ps,
	}
	if err := c.setupParameters(); err != nil {
		// the rate names were checked when e was created
		panic(err)
	}
	return c
}
