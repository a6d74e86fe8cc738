package smc

import (
	"errors"
	"math"

	"golang.org/x/exp/rand"

	"github.com/tgvaughan/EpiInf-sub000/dist"
	"github.com/tgvaughan/EpiInf-sub000/emodel"
	"github.com/tgvaughan/EpiInf-sub000/epi"
	"github.com/tgvaughan/EpiInf-sub000/obs"
	"github.com/tgvaughan/EpiInf-sub000/traj"
)

// Standard is the bootstrap particle filter. Particles are simulated
// exactly between observed events and resampled after every one of
// them.
type Standard struct {
	Model      emodel.Model
	Observed   *obs.List
	NParticles int
	// NWorkers is the number of goroutines updating particles,
	// GOMAXPROCS if zero.
	NWorkers int
}

// NewStandard creates a standard particle filter for the observed
// events and their model.
func NewStandard(l *obs.List, nParticles int) (*Standard, error) {
	d := &Standard{Observed: l, NParticles: nParticles}
	if l != nil {
		d.Model = l.Model()
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Standard) validate() error {
	if d.Observed == nil {
		return errors.New("no observed events")
	}
	if d.Model == nil {
		return errors.New("no model")
	}
	if d.NParticles < 1 {
		return errNoParticles
	}
	return nil
}

// SetModel replaces the model of the filter and of the observed
// events.
func (d *Standard) SetModel(m emodel.Model) error {
	if err := d.Observed.SetModel(m); err != nil {
		return err
	}
	d.Model = m
	return nil
}

// LogLikelihood returns the log density estimate.
func (d *Standard) LogLikelihood(rng *rand.Rand) float64 {
	_, logP := d.run(rng, false)
	return logP
}

// RecordTrajectory returns the log density estimate and a trajectory
// drawn from the final particle generation.
func (d *Standard) RecordTrajectory(rng *rand.Rand) (*traj.Trajectory, float64) {
	return d.run(rng, true)
}

func (d *Standard) run(rng *rand.Rand, recording bool) (*traj.Trajectory, float64) {
	events := d.Observed.Events()
	if len(events) == 0 || d.Observed.FirstTime() < 0 {
		return nil, math.Inf(-1)
	}

	m := d.Model
	e := newEnsemble(d.NParticles, d.NWorkers, m.InitialState(), recording)
	logN := math.Log(float64(d.NParticles))
	logP := 0.0
	for i, ev := range events {
		e.update(rng, func(p *particle, rng *rand.Rand) {
			p.logW = interval(m, p, ev, rng)
		})

		max := e.maxLogW()
		if math.IsInf(max, -1) {
			log.Debugf("All particles failed at observed event %d (%v)", i, ev)
			return nil, math.Inf(-1)
		}
		sum, _ := e.scaledWeights(max)
		logP += math.Log(sum) + max - logN
		e.resample(rng)
	}

	log.Debugf("Standard filter log density: %g", logP)
	if !recording {
		return nil, logP
	}
	return e.trajectory(d.Observed.Origin()), logP
}

// interval simulates a particle up to the observed event ev and
// returns the log weight of the interval. Events which would
// contradict the observations are excluded from the simulation and
// accounted for in the weight.
func interval(m emodel.Model, p *particle, ev obs.Event, rng *rand.Rand) float64 {
	s := &p.state
	k := float64(ev.Lineages)
	logW := 0.0
	for {
		prop := m.Propensities(*s)
		forbidden := prop.Psi()
		recovery := prop[epi.Recovery]
		if s.I <= k {
			forbidden += recovery
			recovery = 0
		}
		allowed := prop[epi.Infection] + recovery

		tEnd := ev.Time
		me, ok := m.NextModelEvent(*s)
		midModel := ok && m.TimesLEQ(me.Time, ev.Time)
		if midModel && me.Type == emodel.RhoSampling && m.TimesEqual(me.Time, ev.Time) {
			// handled with the leaf at the same time
			midModel = false
		}
		if midModel {
			tEnd = math.Min(me.Time, ev.Time)
		}

		dt := dist.Exponential(rng, allowed)
		if s.Time+dt >= tEnd {
			if tEnd > s.Time {
				logW -= (tEnd - s.Time) * forbidden
			}
			if midModel {
				logW += modelEvent(m, p)
				continue
			}
			break
		}

		logW -= dt * forbidden
		s.Time += dt
		e := epi.Event{Type: epi.Recovery, Multiplicity: 1}
		if rng.Float64()*allowed < prop[epi.Infection] {
			e.Type = epi.Infection
			if k > 1 {
				logW += math.Log1p(-k * (k - 1) / (s.I * (s.I + 1)))
			}
		}
		m.Increment(s, e)
		p.record(e)
	}

	logW += observe(m, p, ev, rng)
	s.ObservedEventIdx++
	if math.IsInf(logW, -1) || math.IsNaN(logW) || !s.IsValid() ||
		s.I < float64(ev.LineagesAfter()) {
		return math.Inf(-1)
	}
	return logW
}
