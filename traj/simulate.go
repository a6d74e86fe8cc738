package traj

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"

	"github.com/tgvaughan/EpiInf-sub000/dist"
	"github.com/tgvaughan/EpiInf-sub000/emodel"
	"github.com/tgvaughan/EpiInf-sub000/epi"
)

// DefaultMaxRetries is the default maximum number of simulation
// attempts.
const DefaultMaxRetries = 10000

// ErrTooManyRetries is returned when no simulation attempt satisfied
// the constraints.
var ErrTooManyRetries = errors.New("maximum number of simulation attempts exceeded")

var errNoInfected = errors.New("forced sample with no infected individuals")

// leapTypes are the event types drawn during a tau leap.
var leapTypes = [...]epi.EventType{epi.Infection, epi.Recovery, epi.PsiSampleRemove, epi.PsiSampleNoRemove}

// Simulator simulates trajectories of an epidemic model.
type Simulator struct {
	Model emodel.Model
	// Duration is the simulation end time; the model origin if
	// zero. +Inf (exact mode only) simulates until no events are
	// possible.
	Duration float64
	// NSteps is the number of tau leaps; zero means exact
	// simulation.
	NSteps int
	// MinSampleCount is the minimum number of sampled individuals.
	MinSampleCount int
	// ForcedSampleTimes are sorted times of psi samples. If set,
	// no other psi samples are simulated.
	ForcedSampleTimes []float64
	// MaxRetries limits the number of attempts, DefaultMaxRetries
	// if zero.
	MaxRetries int
}

// Simulate simulates a trajectory. Attempts failing the constraints
// are discarded and restarted.
func (sim *Simulator) Simulate(rng *rand.Rand) (*Trajectory, error) {
	if sim.Model == nil {
		return nil, errors.New("no model")
	}
	if sim.NSteps < 0 {
		return nil, fmt.Errorf("negative number of steps: %d", sim.NSteps)
	}
	end := sim.Duration
	if end == 0 {
		end = sim.Model.Origin()
	}
	if !(end > 0) || (sim.NSteps > 0 && math.IsInf(end, 1)) {
		return nil, fmt.Errorf("incorrect simulation duration: %v", end)
	}
	if !sort.Float64sAreSorted(sim.ForcedSampleTimes) {
		return nil, errors.New("forced sample times are not sorted")
	}
	if len(sim.ForcedSampleTimes) > 0 && sim.ForcedSampleTimes[0] < 0 {
		return nil, errors.New("negative forced sample time")
	}
	maxRetries := sim.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		var t *Trajectory
		var err error
		if sim.NSteps > 0 {
			t, err = sim.leap(rng, end)
		} else {
			t, err = sim.exact(rng, end)
		}
		switch {
		case err == errNoInfected:
			log.Debugf("Attempt %d: %v", attempt, err)
			continue
		case err != nil:
			return nil, err
		case t.SampleCount() < sim.MinSampleCount:
			log.Debugf("Attempt %d: %d samples, need %d", attempt, t.SampleCount(), sim.MinSampleCount)
			continue
		}
		if t.Clamped > 0 {
			log.Warningf("Negative compartments clamped in %d leaps", t.Clamped)
		}
		return t, nil
	}
	return nil, fmt.Errorf("%w (%d)", ErrTooManyRetries, maxRetries)
}

func (sim *Simulator) propensities(s epi.State) epi.Propensities {
	p := sim.Model.Propensities(s)
	if len(sim.ForcedSampleTimes) > 0 {
		p[epi.PsiSampleRemove] = 0
		p[epi.PsiSampleNoRemove] = 0
	}
	return p
}

func (sim *Simulator) nextForced(idx int) float64 {
	if idx < len(sim.ForcedSampleTimes) {
		return sim.ForcedSampleTimes[idx]
	}
	return math.Inf(1)
}

// forcedSample applies a single psi sample at the current time.
func (sim *Simulator) forcedSample(rng *rand.Rand, t *Trajectory, s *epi.State) error {
	if s.I <= 0 {
		return errNoInfected
	}
	typ := epi.PsiSampleNoRemove
	if rng.Float64() < sim.Model.RemovalProb(*s) {
		typ = epi.PsiSampleRemove
	}
	e := epi.Event{Time: s.Time, Type: typ, Multiplicity: 1}
	sim.Model.Increment(s, e)
	t.Append(e, *s)
	return nil
}

// modelEvent applies the next model event at the current time.
func (sim *Simulator) modelEvent(rng *rand.Rand, t *Trajectory, s *epi.State) {
	me, ok := sim.Model.NextModelEvent(*s)
	if !ok {
		panic("no model event left")
	}
	s.ModelIntervalIdx++
	if me.Type != emodel.RhoSampling {
		return
	}
	n := dist.Binomial(rng, int(s.I), me.Rho)
	if n > 0 {
		e := epi.Event{Time: s.Time, Type: epi.RhoSample, Multiplicity: n}
		sim.Model.Increment(s, e)
		t.Append(e, *s)
	}
}

// chooseEvent draws an event type by inverse CDF.
func chooseEvent(rng *rand.Rand, p *epi.Propensities, total float64) epi.EventType {
	u := rng.Float64() * total
	for t, v := range p {
		if u < v {
			return epi.EventType(t)
		}
		u -= v
	}
	for t := len(p) - 1; t >= 0; t-- {
		if p[t] > 0 {
			return epi.EventType(t)
		}
	}
	panic("no event with non-zero propensity")
}

func (sim *Simulator) exact(rng *rand.Rand, end float64) (*Trajectory, error) {
	s := sim.Model.InitialState()
	t := NewTrajectory(s, end)
	forced := 0
	for {
		p := sim.propensities(s)
		total := p.Total()
		tEvent := s.Time + dist.Exponential(rng, total)
		tForced := sim.nextForced(forced)
		tModel := sim.Model.NextModelEventTime(s)

		next := math.Min(tEvent, math.Min(tForced, tModel))
		if math.IsInf(next, 1) || !sim.Model.TimesLEQ(next, end) {
			break
		}

		switch {
		case tForced <= tModel && tForced <= tEvent:
			s.Time = tForced
			if err := sim.forcedSample(rng, t, &s); err != nil {
				return nil, err
			}
			forced++
		case tModel <= tEvent:
			s.Time = tModel
			sim.modelEvent(rng, t, &s)
		default:
			s.Time = tEvent
			e := epi.Event{Time: tEvent, Type: chooseEvent(rng, &p, total), Multiplicity: 1}
			sim.Model.Increment(&s, e)
			t.Append(e, s)
		}
	}
	return t, nil
}

func (sim *Simulator) leap(rng *rand.Rand, end float64) (*Trajectory, error) {
	s := sim.Model.InitialState()
	t := NewTrajectory(s, end)
	dt := end / float64(sim.NSteps)
	forced := 0
	for step := 1; step <= sim.NSteps; {
		gridTime := float64(step) * dt
		if step == sim.NSteps {
			gridTime = end
		}
		tForced := sim.nextForced(forced)
		tModel := sim.Model.NextModelEventTime(s)
		stop := math.Min(gridTime, math.Min(tForced, tModel))

		p := sim.propensities(s)
		h := stop - s.Time
		s.Time = stop
		var events []epi.Event
		for _, typ := range leapTypes {
			n := dist.Poisson(rng, h*p[typ])
			if n == 0 {
				continue
			}
			e := epi.Event{Time: stop, Type: typ, Multiplicity: n}
			sim.Model.Increment(&s, e)
			events = append(events, e)
		}
		if s.Clamp() {
			t.Clamped++
		}
		// all the events of a leap share the clamped post-leap state
		for _, e := range events {
			t.Append(e, s)
		}

		switch stop {
		case tForced:
			if err := sim.forcedSample(rng, t, &s); err != nil {
				return nil, err
			}
			forced++
		case tModel:
			sim.modelEvent(rng, t, &s)
		}

		if stop == gridTime && sim.nextForced(forced) > stop && sim.Model.NextModelEventTime(s) > stop {
			step++
		}
	}
	return t, nil
}
