// Package master computes the exact density of observed events by
// integrating the master equation of the epidemic conditioned on the
// observations over an enumerated state space.
package master

import (
	"errors"
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"
	"golang.org/x/exp/rand"

	"github.com/tgvaughan/EpiInf-sub000/emodel"
	"github.com/tgvaughan/EpiInf-sub000/epi"
	"github.com/tgvaughan/EpiInf-sub000/obs"
	"github.com/tgvaughan/EpiInf-sub000/smc"
	"github.com/tgvaughan/EpiInf-sub000/traj"
)

var log = logging.MustGetLogger("master")

const (
	DefaultMaxStates = 2000
	DefaultMaxI      = 200
)

// ErrTooManyStates is returned if the reachable state space exceeds
// MaxStates.
var ErrTooManyStates = errors.New("too many states")

// key identifies a state. R does not affect the propensities and is
// not tracked.
type key struct {
	S, I float64
}

// Density is the exact density. States with I above MaxI are not
// enumerated, which truncates unbounded models.
type Density struct {
	Model     emodel.Model
	Observed  *obs.List
	MaxStates int
	MaxI      float64

	states []epi.State
	index  map[key]int
	// infection[i] and removal[i] are the states following the
	// events, -1 if not enumerated.
	infection, recovery, removal []int
}

// NewDensity creates a density and enumerates the state space.
func NewDensity(l *obs.List, maxStates int, maxI float64) (*Density, error) {
	if l == nil {
		return nil, errors.New("no observed events")
	}
	d := &Density{Observed: l, MaxStates: maxStates, MaxI: maxI}
	if err := d.SetModel(l.Model()); err != nil {
		return nil, err
	}
	return d, nil
}

// SetModel replaces the model and enumerates its state space.
func (d *Density) SetModel(m emodel.Model) error {
	if m == nil {
		return errors.New("no model")
	}
	if err := d.Observed.SetModel(m); err != nil {
		return err
	}
	d.Model = m
	if d.MaxStates <= 0 {
		d.MaxStates = DefaultMaxStates
	}
	if d.MaxI <= 0 {
		d.MaxI = DefaultMaxI
	}
	return d.enumerate()
}

// NStates returns the size of the state space.
func (d *Density) NStates() int {
	return len(d.states)
}

func (d *Density) lookup(s epi.State) int {
	if i, ok := d.index[key{s.S, s.I}]; ok {
		return i
	}
	return -1
}

// enumerate finds the states reachable from the initial state by
// infections and removals.
func (d *Density) enumerate() error {
	m := d.Model
	d.states = d.states[:0]
	d.index = make(map[key]int)
	add := func(s epi.State) {
		if !s.IsValid() || s.I > d.MaxI {
			return
		}
		if _, ok := d.index[key{s.S, s.I}]; ok {
			return
		}
		d.index[key{s.S, s.I}] = len(d.states)
		d.states = append(d.states, s)
	}

	add(m.InitialState())
	for i := 0; i < len(d.states); i++ {
		if len(d.states) > d.MaxStates {
			return fmt.Errorf("%w: more than %d", ErrTooManyStates, d.MaxStates)
		}
		for _, t := range []epi.EventType{epi.Infection, epi.Recovery, epi.PsiSampleRemove} {
			s := d.states[i]
			m.Increment(&s, epi.Event{Type: t, Multiplicity: 1})
			add(s)
		}
	}

	n := len(d.states)
	d.infection = make([]int, n)
	d.recovery = make([]int, n)
	d.removal = make([]int, n)
	for i, s := range d.states {
		d.infection[i] = d.next(s, epi.Infection)
		d.recovery[i] = d.next(s, epi.Recovery)
		d.removal[i] = d.next(s, epi.PsiSampleRemove)
	}
	log.Debugf("Enumerated %d states", n)
	return nil
}

func (d *Density) next(s epi.State, t epi.EventType) int {
	d.Model.Increment(&s, epi.Event{Type: t, Multiplicity: 1})
	return d.lookup(s)
}

// run holds the state distribution during an evaluation.
type run struct {
	*Density
	p    []float64
	idx  int
	time float64
}

func (r *run) state(i int) epi.State {
	s := r.states[i]
	s.ModelIntervalIdx = r.idx
	s.Time = r.time
	return s
}

// propagate integrates the killed master equation with k lineages up
// to time t.
func (r *run) propagate(t, k float64) {
	dt := t - r.time
	r.time = t
	if dt <= 0 {
		return
	}
	n := len(r.states)
	q := mat64.NewDense(n, n, nil)
	for i := range r.states {
		s := r.state(i)
		prop := r.Model.Propensities(s)
		q.Set(i, i, -prop.Total()*dt)
		if j := r.infection[i]; j >= 0 && prop[epi.Infection] > 0 {
			post := r.states[j].I
			q.Set(i, j, q.At(i, j)+prop[epi.Infection]*(1-k*(k-1)/(post*(post-1)))*dt)
		}
		if j := r.recovery[i]; j >= 0 && s.I > k {
			q.Set(i, j, q.At(i, j)+prop[epi.Recovery]*dt)
		}
	}
	var e mat64.Dense
	e.Exp(q)
	v := mat64.NewDense(1, n, r.p)
	var out mat64.Dense
	out.Mul(v, &e)
	for i := range r.p {
		r.p[i] = math.Max(0, out.At(0, i))
	}
}

// modelEvent applies an unobserved model event.
func (r *run) modelEvent(me emodel.ModelEvent) {
	r.idx++
	if me.Type != emodel.RhoSampling {
		return
	}
	for i := range r.p {
		r.p[i] *= math.Pow(1-me.Rho, r.states[i].I)
	}
}

// observe applies an observed event. New probabilities are
// accumulated in w.
func (r *run) observe(ev obs.Event, w []float64) {
	kAfter := float64(ev.LineagesAfter())
	step := func(f func(i int, s epi.State, prop *epi.Propensities)) {
		for i := range w {
			w[i] = 0
		}
		for i, pi := range r.p {
			if pi == 0 {
				continue
			}
			s := r.state(i)
			prop := r.Model.Propensities(s)
			f(i, s, &prop)
		}
		copy(r.p, w)
	}
	move := func(j int, v float64) {
		if j >= 0 {
			w[j] += v
		}
	}

	switch ev.Type {
	case obs.Coalescence:
		for c := 0; c < ev.Multiplicity; c++ {
			step(func(i int, s epi.State, prop *epi.Propensities) {
				j := r.infection[i]
				if j < 0 {
					return
				}
				post := r.states[j].I
				if post < 2 {
					return
				}
				move(j, r.p[i]*2/(post*(post-1))*prop[epi.Infection])
			})
		}

	case obs.Leaf:
		if me, ok := r.Model.NextModelEvent(r.state(0)); ok && me.Type == emodel.RhoSampling &&
			r.Model.TimesEqual(me.Time, ev.Time) {
			step(func(i int, s epi.State, prop *epi.Propensities) {
				post := s
				r.Model.Increment(&post, epi.Event{Type: epi.RhoSample, Multiplicity: ev.Multiplicity})
				move(r.lookup(post), r.p[i]*math.Exp(smc.LogRhoProb(s.I, ev.Multiplicity, me.Rho)))
			})
			r.idx++
			break
		}
		for c := 0; c < ev.Multiplicity; c++ {
			step(func(i int, s epi.State, prop *epi.Propensities) {
				move(r.removal[i], r.p[i]*prop[epi.PsiSampleRemove])
				if s.I > kAfter {
					move(i, r.p[i]*prop[epi.PsiSampleNoRemove]*(1-kAfter/s.I))
				}
			})
		}

	case obs.SampledAncestor:
		for c := 0; c < ev.Multiplicity; c++ {
			step(func(i int, s epi.State, prop *epi.Propensities) {
				if s.I >= 1 {
					move(i, r.p[i]*prop[epi.PsiSampleNoRemove]/s.I)
				}
			})
		}

	case obs.UnsequencedSample:
		k := float64(ev.Lineages)
		for c := 0; c < ev.Multiplicity; c++ {
			step(func(i int, s epi.State, prop *epi.Propensities) {
				if s.I > k {
					move(r.removal[i], r.p[i]*prop[epi.PsiSampleRemove]*(1-k/s.I))
				}
				move(i, r.p[i]*prop[epi.PsiSampleNoRemove])
			})
		}
	}

	for i, s := range r.states {
		if s.I < kAfter {
			r.p[i] = 0
		}
	}
}

// normalize rescales the distribution and returns the log of the
// scaling factor.
func (r *run) normalize() float64 {
	sum := 0.0
	for _, v := range r.p {
		sum += v
	}
	if !(sum > 0) {
		return math.Inf(-1)
	}
	for i := range r.p {
		r.p[i] /= sum
	}
	return math.Log(sum)
}

// LogLikelihood returns the log density. The random number generator
// is not used.
func (d *Density) LogLikelihood(rng *rand.Rand) float64 {
	events := d.Observed.Events()
	if len(events) == 0 || d.Observed.FirstTime() < 0 {
		return math.Inf(-1)
	}

	m := d.Model
	r := &run{Density: d, p: make([]float64, len(d.states))}
	r.p[d.lookup(m.InitialState())] = 1
	w := make([]float64, len(d.states))
	logP := 0.0
	for _, ev := range events {
		k := float64(ev.Lineages)
		for {
			me, ok := m.NextModelEvent(r.state(0))
			if !ok || !m.TimesLEQ(me.Time, ev.Time) ||
				(me.Type == emodel.RhoSampling && m.TimesEqual(me.Time, ev.Time)) {
				break
			}
			r.propagate(math.Min(me.Time, ev.Time), k)
			r.modelEvent(me)
		}
		r.propagate(ev.Time, k)
		r.observe(ev, w)
		lp := r.normalize()
		if math.IsInf(lp, -1) {
			log.Debugf("Zero probability at %v", ev)
			return lp
		}
		logP += lp
	}
	log.Debugf("Exact log density: %g", logP)
	return logP
}

// RecordTrajectory is not supported: the exact density does not
// sample trajectories. It returns a nil trajectory.
func (d *Density) RecordTrajectory(rng *rand.Rand) (*traj.Trajectory, float64) {
	return nil, d.LogLikelihood(rng)
}
