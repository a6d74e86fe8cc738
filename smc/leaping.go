package smc

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/tgvaughan/EpiInf-sub000/dist"
	"github.com/tgvaughan/EpiInf-sub000/emodel"
	"github.com/tgvaughan/EpiInf-sub000/epi"
	"github.com/tgvaughan/EpiInf-sub000/obs"
	"github.com/tgvaughan/EpiInf-sub000/traj"
)

const (
	DefaultEpsilon      = 0.03
	DefaultNResamples   = 100
	DefaultResampThresh = 1
)

// Leaping is a particle filter advancing particles with tau leaps.
// Particles are resampled at evenly spaced checkpoints if the
// effective number of particles is low.
type Leaping struct {
	Model      emodel.Model
	Observed   *obs.List
	NParticles int
	NWorkers   int
	// Epsilon is the allowed relative change of the propensities
	// during a leap. Values of 1 and above make every leap span the
	// time to the next checkpoint or model event.
	Epsilon float64
	// NResamples is the number of checkpoints including time 0.
	NResamples int
	// ResampThresh is the fraction of effective particles below
	// which the particles are resampled. The last checkpoint always
	// resamples.
	ResampThresh float64
}

// NewLeaping creates a leaping particle filter with default
// parameters.
func NewLeaping(l *obs.List, nParticles int) (*Leaping, error) {
	d := &Leaping{
		Observed:     l,
		NParticles:   nParticles,
		Epsilon:      DefaultEpsilon,
		NResamples:   DefaultNResamples,
		ResampThresh: DefaultResampThresh,
	}
	if l != nil {
		d.Model = l.Model()
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the parameters.
func (d *Leaping) Validate() error {
	if d.Observed == nil {
		return errors.New("no observed events")
	}
	if d.Model == nil {
		return errors.New("no model")
	}
	if d.NParticles < 1 {
		return errNoParticles
	}
	if !(d.Epsilon > 0) {
		return fmt.Errorf("leap epsilon should be positive, got %v", d.Epsilon)
	}
	if d.NResamples < 2 {
		return fmt.Errorf("at least 2 resampling times required, got %d", d.NResamples)
	}
	if d.ResampThresh < 0 || math.IsNaN(d.ResampThresh) {
		return fmt.Errorf("negative resampling threshold: %v", d.ResampThresh)
	}
	return nil
}

// SetModel replaces the model of the filter and of the observed
// events.
func (d *Leaping) SetModel(m emodel.Model) error {
	if err := d.Observed.SetModel(m); err != nil {
		return err
	}
	d.Model = m
	return nil
}

// LogLikelihood returns the log density estimate.
func (d *Leaping) LogLikelihood(rng *rand.Rand) float64 {
	_, logP := d.run(rng, false)
	return logP
}

// RecordTrajectory returns the log density estimate and a trajectory
// drawn from the final particle generation.
func (d *Leaping) RecordTrajectory(rng *rand.Rand) (*traj.Trajectory, float64) {
	return d.run(rng, true)
}

func (d *Leaping) run(rng *rand.Rand, recording bool) (*traj.Trajectory, float64) {
	events := d.Observed.Events()
	if len(events) == 0 || d.Observed.FirstTime() < 0 {
		return nil, math.Inf(-1)
	}

	m := d.Model
	e := newEnsemble(d.NParticles, d.NWorkers, m.InitialState(), recording)
	n := float64(d.NParticles)
	origin := m.Origin()
	dtResamp := origin / float64(d.NResamples-1)
	logP := 0.0
	for ridx := 1; ridx < d.NResamples; ridx++ {
		tNext := float64(ridx) * dtResamp
		if ridx == d.NResamples-1 {
			tNext = origin
		}
		e.update(rng, func(p *particle, rng *rand.Rand) {
			p.logW += d.leap(p, events, tNext, rng)
		})

		max := e.maxLogW()
		if math.IsInf(max, -1) {
			log.Debugf("All particles failed before t=%g", tNext)
			return nil, math.Inf(-1)
		}
		sum, ess := e.scaledWeights(max)
		if ess < d.ResampThresh*n || ridx == d.NResamples-1 {
			logP += math.Log(sum/n) + max
			e.resample(rng)
		}
	}

	log.Debugf("Leaping filter log density: %g", logP)
	if !recording {
		return nil, logP
	}
	return e.trajectory(d.Observed.Origin()), logP
}

// deferred returns true for observed events which have to wait until
// the model event at the same time is applied.
func deferred(m emodel.Model, s epi.State, ev obs.Event) bool {
	me, ok := m.NextModelEvent(s)
	if !ok || !m.TimesEqual(ev.Time, me.Time) {
		return false
	}
	return me.Type == emodel.EpochBoundary || ev.Type == obs.Leaf
}

// leap advances a particle to tNext and returns the log weight
// increment.
func (d *Leaping) leap(p *particle, events []obs.Event, tNext float64, rng *rand.Rand) float64 {
	m := d.Model
	s := &p.state
	logW := 0.0
	for {
		prop := m.Propensities(*s)
		infection := prop[epi.Infection]
		k0 := lineages(events, s.ObservedEventIdx)
		allowedRecov, forbiddenRecov := prop[epi.Recovery], 0.0
		if s.I <= k0 {
			allowedRecov, forbiddenRecov = 0, prop[epi.Recovery]
		}
		removal := allowedRecov + prop[epi.PsiSampleRemove]

		tau := math.Inf(1)
		if d.Epsilon < 1 {
			tau = m.TauLeapStepSize(d.Epsilon, *s, infection, removal)
		}
		tModel := m.NextModelEventTime(*s)
		dt := math.Max(0, math.Min(tau, math.Min(tModel, tNext)-s.Time))

		unobserved := 0.0
		if s.I > 0 {
			unobserved = infection * (1 - k0*(k0-1)/(s.I*(s.I+1)))
		}
		logW -= dt * (prop.Psi() + infection - unobserved + forbiddenRecov)

		// Observed events inside the leap
		var nCoal, nLeaves, nSA, nUnseq int
		for s.ObservedEventIdx < len(events) {
			ev := events[s.ObservedEventIdx]
			if !m.TimesLEQ(ev.Time, s.Time+dt) || deferred(m, *s, ev) {
				break
			}
			switch ev.Type {
			case obs.Coalescence:
				nCoal += ev.Multiplicity
			case obs.Leaf:
				nLeaves += ev.Multiplicity
			case obs.SampledAncestor:
				nSA += ev.Multiplicity
			case obs.UnsequencedSample:
				nUnseq += ev.Multiplicity
			}
			s.ObservedEventIdx++
		}

		increment := func(t epi.EventType, n int) {
			if n > 0 {
				e := epi.Event{Type: t, Multiplicity: n}
				m.Increment(s, e)
				p.record(e)
			}
		}
		increment(epi.Infection, dist.Poisson(rng, dt*unobserved)+nCoal)
		increment(epi.Recovery, dist.Poisson(rng, dt*allowedRecov))

		psi := prop.Psi()
		removeProb := 0.0
		if psi > 0 {
			removeProb = prop[epi.PsiSampleRemove] / psi
		}
		nLeafRemovals := dist.Binomial(rng, nLeaves, removeProb)
		increment(epi.PsiSampleRemove, nLeafRemovals)

		k := lineages(events, s.ObservedEventIdx)
		if nCoal > 0 {
			if s.I < 2 {
				return math.Inf(-1)
			}
			logW += float64(nCoal) * math.Log(2/(s.I*(s.I-1))*infection)
		}
		if nSA > 0 {
			if s.I < 1 {
				return math.Inf(-1)
			}
			logW += float64(nSA) * math.Log(prop[epi.PsiSampleNoRemove]/s.I)
		}
		if nLeaves > 0 {
			logW += float64(nLeaves) * math.Log(psi)
			if nLeafRemovals < nLeaves {
				if s.I <= k {
					return math.Inf(-1)
				}
				logW += float64(nLeaves-nLeafRemovals) * math.Log1p(-k/s.I)
			}
		}
		if nUnseq > 0 {
			logW += float64(nUnseq) * math.Log(psi)
			nRemovals := dist.Binomial(rng, nUnseq, removeProb)
			if nRemovals > 0 {
				if s.I <= k {
					return math.Inf(-1)
				}
				logW += float64(nRemovals) * math.Log1p(-k/s.I)
				increment(epi.PsiSampleRemove, nRemovals)
			}
		}

		if math.IsInf(logW, -1) || math.IsNaN(logW) || !s.IsValid() || s.I < k {
			return math.Inf(-1)
		}

		if m.TimesLEQ(tModel, tNext) && s.Time+tau > tModel {
			me, _ := m.NextModelEvent(*s)
			s.Time = tModel
			if me.Type == emodel.RhoSampling {
				if s.ObservedEventIdx >= len(events) {
					return math.Inf(-1)
				}
				ev := events[s.ObservedEventIdx]
				if ev.Type != obs.Leaf || !m.TimesEqual(ev.Time, tModel) {
					return math.Inf(-1)
				}
				logW += LogRhoProb(s.I, ev.Multiplicity, me.Rho)
				increment(epi.RhoSample, ev.Multiplicity)
				s.ObservedEventIdx++
				if !s.IsValid() || s.I < lineages(events, s.ObservedEventIdx) {
					return math.Inf(-1)
				}
			}
			s.ModelIntervalIdx++
			if m.TimesEqual(tModel, tNext) {
				break
			}
		} else if s.Time+tau > tNext {
			s.Time = tNext
			break
		} else {
			s.Time += tau
		}
	}
	return logW
}
