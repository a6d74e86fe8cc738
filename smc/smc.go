// Package smc estimates the probability density of a transmission
// tree under an epidemic model with particle filters.
package smc

import (
	"errors"
	"math"
	"runtime"
	"sync"

	"github.com/op/go-logging"
	"golang.org/x/exp/rand"

	"github.com/tgvaughan/EpiInf-sub000/dist"
	"github.com/tgvaughan/EpiInf-sub000/emodel"
	"github.com/tgvaughan/EpiInf-sub000/epi"
	"github.com/tgvaughan/EpiInf-sub000/obs"
	"github.com/tgvaughan/EpiInf-sub000/traj"
)

var log = logging.MustGetLogger("smc")

// TreeDensity computes the log density of the observed events.
type TreeDensity interface {
	// LogLikelihood returns the log density estimate, -Inf if the
	// observations are incompatible with the model.
	LogLikelihood(rng *rand.Rand) float64
	// RecordTrajectory returns the log density estimate and one
	// trajectory sampled from the conditioned process.
	RecordTrajectory(rng *rand.Rand) (*traj.Trajectory, float64)
}

var errNoParticles = errors.New("number of particles should be positive")

// particle is a single weighted realization of the epidemic.
type particle struct {
	state epi.State
	logW  float64
	// events and states are only kept when recording.
	events []epi.Event
	states []epi.State
}

func (p *particle) record(e epi.Event) {
	if p.states == nil {
		return
	}
	e.Time = p.state.Time
	p.events = append(p.events, e)
	p.states = append(p.states, p.state)
}

// copyFrom copies the state and history of another particle. History
// slices are shared with the capacity capped, so appends never
// overwrite the source.
func (p *particle) copyFrom(src *particle) {
	p.state = src.state
	p.logW = src.logW
	p.events = src.events[:len(src.events):len(src.events)]
	if src.states != nil {
		p.states = src.states[:len(src.states):len(src.states)]
	} else {
		p.states = nil
	}
}

// ensemble is a double-buffered set of particles, each with its own
// random stream.
type ensemble struct {
	cur, next []particle
	rngs      []*rand.Rand
	seeds     []uint64
	weights   []float64
	idx       []int
	nWorkers  int
}

func newEnsemble(n, nWorkers int, initial epi.State, recording bool) *ensemble {
	if nWorkers < 1 {
		nWorkers = runtime.GOMAXPROCS(0)
	}
	e := &ensemble{
		cur:      make([]particle, n),
		next:     make([]particle, n),
		rngs:     make([]*rand.Rand, n),
		seeds:    make([]uint64, n),
		weights:  make([]float64, n),
		idx:      make([]int, n),
		nWorkers: nWorkers,
	}
	for i := range e.cur {
		e.cur[i].state = initial
		if recording {
			e.cur[i].states = []epi.State{initial}
		}
		e.rngs[i] = dist.NewRand(0)
	}
	return e
}

// update runs f for every live particle on the worker pool. Seeds of
// the particle streams are drawn from rng beforehand, so the result
// does not depend on the number of workers.
func (e *ensemble) update(rng *rand.Rand, f func(p *particle, rng *rand.Rand)) {
	for i := range e.seeds {
		e.seeds[i] = rng.Uint64()
	}
	run := func(i int) {
		p := &e.cur[i]
		if math.IsInf(p.logW, -1) {
			return
		}
		e.rngs[i].Seed(e.seeds[i])
		f(p, e.rngs[i])
	}

	n := len(e.cur)
	if e.nWorkers == 1 || n == 1 {
		for i := 0; i < n; i++ {
			run(i)
		}
		return
	}

	tasks := make(chan int, n)
	var wg sync.WaitGroup
	for w := 0; w < e.nWorkers; w++ {
		wg.Add(1)
		go func() {
			for i := range tasks {
				run(i)
			}
			wg.Done()
		}()
	}
	for i := 0; i < n; i++ {
		tasks <- i
	}
	close(tasks)
	wg.Wait()
}

// maxLogW returns the largest log weight.
func (e *ensemble) maxLogW() float64 {
	max := math.Inf(-1)
	for i := range e.cur {
		max = math.Max(max, e.cur[i].logW)
	}
	return max
}

// scaledWeights fills weights with exp(logW - max) and returns their
// sum and the effective sample size.
func (e *ensemble) scaledWeights(max float64) (sum, ess float64) {
	sumSq := 0.0
	for i := range e.cur {
		w := math.Exp(e.cur[i].logW - max)
		e.weights[i] = w
		sum += w
		sumSq += w * w
	}
	return sum, sum * sum / sumSq
}

// resample draws a new generation proportionally to the weights
// filled by scaledWeights and resets the log weights.
func (e *ensemble) resample(rng *rand.Rand) {
	sampler, err := dist.NewReplacementSampler(e.weights)
	if err != nil {
		// callers check for a positive sum first
		panic(err)
	}
	sampler.Sample(rng, e.idx)
	for i, j := range e.idx {
		e.next[i].copyFrom(&e.cur[j])
		e.next[i].logW = 0
	}
	e.cur, e.next = e.next, e.cur
}

// trajectory returns the recorded trajectory of the first particle.
func (e *ensemble) trajectory(origin float64) *traj.Trajectory {
	p := &e.cur[0]
	t := traj.NewTrajectory(p.states[0], origin)
	for i, ev := range p.events {
		t.Append(ev, p.states[i+1])
	}
	return t
}

// lineages returns the number of lineages before the observed event
// idx, zero after the last one.
func lineages(events []obs.Event, idx int) float64 {
	if idx < len(events) {
		return float64(events[idx].Lineages)
	}
	return 0
}

// isRhoLeaf returns the rho sampling event coinciding with a leaf
// event.
func isRhoLeaf(m emodel.Model, s epi.State, ev obs.Event) (emodel.ModelEvent, bool) {
	if ev.Type != obs.Leaf {
		return emodel.ModelEvent{}, false
	}
	me, ok := m.NextModelEvent(s)
	if !ok || me.Type != emodel.RhoSampling || !m.TimesEqual(me.Time, ev.Time) {
		return emodel.ModelEvent{}, false
	}
	return me, true
}

// LogRhoProb returns the log probability of observing n labelled rho
// samples out of i infected individuals.
func LogRhoProb(i float64, n int, rho float64) float64 {
	nf := float64(n)
	lp := dist.LogChoose(i, nf) + dist.LogFactorial(nf)
	if n > 0 {
		lp += nf * math.Log(rho)
	}
	if i > nf {
		lp += (i - nf) * math.Log1p(-rho)
	}
	return lp
}

// modelEvent applies the next model event to a particle which was not
// matched by an observed rho leaf and returns its log weight.
func modelEvent(m emodel.Model, p *particle) float64 {
	me, ok := m.NextModelEvent(p.state)
	if !ok {
		panic("no model event left")
	}
	p.state.Time = me.Time
	p.state.ModelIntervalIdx++
	if me.Type == emodel.RhoSampling && p.state.I > 0 {
		// no samples observed
		return p.state.I * math.Log1p(-me.Rho)
	}
	return 0
}

// observe applies the observed event ending an interval to the
// particle and returns its log probability density.
func observe(m emodel.Model, p *particle, ev obs.Event, rng *rand.Rand) float64 {
	s := &p.state
	s.Time = ev.Time
	lp := 0.0
	switch ev.Type {
	case obs.Coalescence:
		for j := 0; j < ev.Multiplicity; j++ {
			prop := m.Propensities(*s)
			e := epi.Event{Type: epi.Infection, Multiplicity: 1}
			m.Increment(s, e)
			p.record(e)
			if s.I < 2 {
				return math.Inf(-1)
			}
			lp += math.Log(2 / (s.I * (s.I - 1)) * prop[epi.Infection])
		}

	case obs.Leaf:
		if me, ok := isRhoLeaf(m, *s, ev); ok {
			lp += LogRhoProb(s.I, ev.Multiplicity, me.Rho)
			e := epi.Event{Type: epi.RhoSample, Multiplicity: ev.Multiplicity}
			m.Increment(s, e)
			s.ModelIntervalIdx++
			p.record(e)
			break
		}
		kAfter := float64(ev.LineagesAfter())
		for j := 0; j < ev.Multiplicity; j++ {
			prop := m.Propensities(*s)
			psi := prop.Psi()
			if psi == 0 {
				return math.Inf(-1)
			}
			lp += math.Log(psi)
			e := epi.Event{Type: epi.PsiSampleRemove, Multiplicity: 1}
			if rng.Float64()*psi >= prop[epi.PsiSampleRemove] {
				if s.I <= kAfter {
					return math.Inf(-1)
				}
				lp += math.Log1p(-kAfter / s.I)
				e.Type = epi.PsiSampleNoRemove
			}
			m.Increment(s, e)
			p.record(e)
		}

	case obs.SampledAncestor:
		for j := 0; j < ev.Multiplicity; j++ {
			if s.I < 1 {
				return math.Inf(-1)
			}
			prop := m.Propensities(*s)
			lp += math.Log(prop[epi.PsiSampleNoRemove] / s.I)
			p.record(epi.Event{Type: epi.PsiSampleNoRemove, Multiplicity: 1})
		}

	case obs.UnsequencedSample:
		k := float64(ev.Lineages)
		for j := 0; j < ev.Multiplicity; j++ {
			prop := m.Propensities(*s)
			psi := prop.Psi()
			if psi == 0 {
				return math.Inf(-1)
			}
			lp += math.Log(psi)
			e := epi.Event{Type: epi.PsiSampleNoRemove, Multiplicity: 1}
			if rng.Float64()*psi < prop[epi.PsiSampleRemove] {
				// a removed individual cannot carry a lineage
				if s.I <= k {
					return math.Inf(-1)
				}
				lp += math.Log1p(-k / s.I)
				e.Type = epi.PsiSampleRemove
			}
			m.Increment(s, e)
			p.record(e)
		}
	}
	return lp
}
