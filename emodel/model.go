// Package emodel implements compartmental epidemic models as
// continuous-time Markov jump processes with piecewise-constant rates
// and scheduled rho sampling.
package emodel

import (
	"fmt"
	"math"
	"sort"

	"github.com/op/go-logging"

	"github.com/tgvaughan/EpiInf-sub000/epi"
)

var log = logging.MustGetLogger("emodel")

// DefaultTolerance is the time difference below which two events are
// considered simultaneous.
const DefaultTolerance = 1e-10

// Model is an epidemic model.
type Model interface {
	Name() string
	// InitialState returns the state at time 0.
	InitialState() epi.State
	// Propensities returns event rates in the given state.
	Propensities(s epi.State) epi.Propensities
	// RemovalProb returns the probability that a psi sample removes
	// the sampled individual.
	RemovalProb(s epi.State) float64
	// Increment applies an event (scaled by its multiplicity) to the
	// state.
	Increment(s *epi.State, e epi.Event)
	// NextModelEventTime returns the time of the next model event or
	// +Inf.
	NextModelEventTime(s epi.State) float64
	// NextModelEvent returns the next model event, false if there are
	// none left.
	NextModelEvent(s epi.State) (ModelEvent, bool)
	// TauLeapStepSize returns a leap length satisfying the leap
	// condition for the given infection and removal propensities.
	TauLeapStepSize(eps float64, s epi.State, infectionProp, removalProp float64) float64
	Origin() float64
	TimesEqual(a, b float64) bool
	TimesLEQ(a, b float64) bool
	// Events returns all model events sorted by time.
	Events() []ModelEvent
}

// ModelEventType is a type of a model event.
type ModelEventType int

const (
	EpochBoundary ModelEventType = iota
	RhoSampling
)

func (t ModelEventType) String() string {
	switch t {
	case EpochBoundary:
		return "EPOCH_BOUNDARY"
	case RhoSampling:
		return "RHO_SAMPLING"
	}
	return fmt.Sprintf("ModelEventType(%d)", int(t))
}

// ModelEvent is a scheduled change of the model.
type ModelEvent struct {
	Type ModelEventType
	Time float64
	// Rho is the sampling probability of a RhoSampling event.
	Rho float64
}

// RateVar identifies a rate in the per-interval rate cache.
type RateVar int

const (
	InfectionRate RateVar = iota
	RecoveryRate
	PsiSamplingRate
	RemovalProb
	nRateVars
)

// Params are the model parameters.
type Params struct {
	// Origin is the duration of the epidemic.
	Origin        float64
	InfectionRate Schedule
	RecoveryRate  Schedule
	// PsiSampling is a rate or, with PsiProportion, a sampling
	// proportion. Empty means no psi sampling.
	PsiSampling   Schedule
	PsiProportion bool
	// RemovalProb is the psi-sample removal probability. Empty means
	// 1.
	RemovalProb Schedule
	RhoProbs    []float64
	RhoTimes    []float64
	RhoBackward bool
	Tolerance   float64
}

// Base holds the read-only rate and sampling schedule shared by all
// the models.
type Base struct {
	origin    float64
	tolerance float64
	events    []ModelEvent
	// rates[i] are the rates after i model events.
	rates [][nRateVars]float64
}

func newBase(p Params) (*Base, error) {
	if !(p.Origin > 0) || math.IsInf(p.Origin, 0) {
		return nil, fmt.Errorf("origin should be positive and finite, got %v", p.Origin)
	}
	if p.InfectionRate.IsEmpty() {
		return nil, fmt.Errorf("infection rate: %w", ErrNoRate)
	}
	if p.RecoveryRate.IsEmpty() {
		return nil, fmt.Errorf("recovery rate: %w", ErrNoRate)
	}
	if p.PsiSampling.IsEmpty() {
		p.PsiSampling = Const(0)
	}
	if p.RemovalProb.IsEmpty() {
		p.RemovalProb = Const(1)
	}
	if err := p.InfectionRate.validate("infection rate", 0, math.Inf(1)); err != nil {
		return nil, err
	}
	if err := p.RecoveryRate.validate("recovery rate", 0, math.Inf(1)); err != nil {
		return nil, err
	}
	if p.PsiProportion {
		if err := p.PsiSampling.validate("psi sampling proportion", 0, 1); err != nil {
			return nil, err
		}
		for _, v := range p.PsiSampling.Values {
			if v >= 1 {
				return nil, fmt.Errorf("psi sampling proportion should be < 1, got %v", v)
			}
		}
	} else if err := p.PsiSampling.validate("psi sampling rate", 0, math.Inf(1)); err != nil {
		return nil, err
	}
	if err := p.RemovalProb.validate("removal probability", 0, 1); err != nil {
		return nil, err
	}
	if len(p.RhoProbs) != len(p.RhoTimes) {
		return nil, fmt.Errorf("%d rho probabilities for %d rho times", len(p.RhoProbs), len(p.RhoTimes))
	}

	b := &Base{
		origin:    p.Origin,
		tolerance: p.Tolerance,
	}
	if b.tolerance <= 0 {
		b.tolerance = DefaultTolerance
	}

	schedules := [nRateVars]Schedule{p.InfectionRate, p.RecoveryRate, p.PsiSampling, p.RemovalProb}
	for _, s := range schedules {
		times, _ := s.Forward(p.Origin)
		for _, t := range times {
			if t <= 0 || t > p.Origin+b.tolerance {
				log.Debugf("Ignoring rate shift outside of (0, origin]: %v", t)
				continue
			}
			b.events = append(b.events, ModelEvent{Type: EpochBoundary, Time: t})
		}
	}
	for i, rho := range p.RhoProbs {
		if math.IsNaN(rho) || rho < 0 || rho > 1 {
			return nil, fmt.Errorf("rho probability outside of [0, 1]: %v", rho)
		}
		t := p.RhoTimes[i]
		if p.RhoBackward {
			t = p.Origin - t
		}
		if rho == 0 {
			continue
		}
		if t < -b.tolerance || t > p.Origin+b.tolerance {
			log.Debugf("Ignoring rho sampling outside of [0, origin]: %v", t)
			continue
		}
		b.events = append(b.events, ModelEvent{Type: RhoSampling, Time: t, Rho: rho})
	}
	sort.SliceStable(b.events, func(i, j int) bool {
		if b.events[i].Time == b.events[j].Time {
			return b.events[i].Type < b.events[j].Type
		}
		return b.events[i].Time < b.events[j].Time
	})

	b.rates = make([][nRateVars]float64, len(b.events)+1)
	b.rates[0] = ratesAt(schedules, p.PsiProportion, 0, p.Origin)
	for i, ev := range b.events {
		if ev.Type == EpochBoundary {
			b.rates[i+1] = ratesAt(schedules, p.PsiProportion, ev.Time, p.Origin)
		} else {
			b.rates[i+1] = b.rates[i]
		}
	}
	return b, nil
}

func ratesAt(schedules [nRateVars]Schedule, proportion bool, t, origin float64) (r [nRateVars]float64) {
	for i, s := range schedules {
		r[i] = s.ValueAt(t, origin)
	}
	if proportion {
		p := r[PsiSamplingRate]
		if p > 0 {
			r[PsiSamplingRate] = r[RecoveryRate] / (1/p - 1)
		}
	}
	return
}

// Rate returns a rate in effect in the model interval of the state.
func (b *Base) Rate(s epi.State, v RateVar) float64 {
	idx := s.ModelIntervalIdx
	if idx > len(b.events) {
		idx = len(b.events)
	}
	return b.rates[idx][v]
}

// Origin returns the duration of the epidemic.
func (b *Base) Origin() float64 {
	return b.origin
}

// Tolerance returns the time tolerance.
func (b *Base) Tolerance() float64 {
	return b.tolerance
}

func (b *Base) TimesEqual(x, y float64) bool {
	return math.Abs(x-y) < b.tolerance
}

func (b *Base) TimesLEQ(x, y float64) bool {
	return x <= y+b.tolerance
}

func (b *Base) Events() []ModelEvent {
	return b.events
}

func (b *Base) NextModelEventTime(s epi.State) float64 {
	if s.ModelIntervalIdx < len(b.events) {
		return b.events[s.ModelIntervalIdx].Time
	}
	return math.Inf(1)
}

func (b *Base) NextModelEvent(s epi.State) (ModelEvent, bool) {
	if s.ModelIntervalIdx < len(b.events) {
		return b.events[s.ModelIntervalIdx], true
	}
	return ModelEvent{}, false
}

func (b *Base) RemovalProb(s epi.State) float64 {
	return b.Rate(s, RemovalProb)
}

// setPsi fills in the psi sampling propensities.
func (b *Base) setPsi(s epi.State, p *epi.Propensities) {
	if s.I <= 0 {
		return
	}
	psi := b.Rate(s, PsiSamplingRate) * s.I
	r := b.Rate(s, RemovalProb)
	p[epi.PsiSampleRemove] = psi * r
	p[epi.PsiSampleNoRemove] = psi * (1 - r)
}

// check panics on negative or NaN propensities.
func check(p *epi.Propensities) {
	for t, v := range p {
		if !(v >= 0) {
			panic(fmt.Sprintf("invalid %v propensity: %v", epi.EventType(t), v))
		}
	}
}

// leapBound bounds the leap length of a single compartment with drift
// mu and diffusion sigma2.
func leapBound(eps, count, mu, sigma2 float64) float64 {
	x := eps * math.Max(1, count)
	bound := math.Inf(1)
	if mu != 0 {
		bound = x / math.Abs(mu)
	}
	if sigma2 > 0 {
		bound = math.Min(bound, x*x/sigma2)
	}
	return bound
}

// New creates a model given its name: SIR, SIS or BD.
func New(name string, p Params, s0 float64) (Model, error) {
	switch name {
	case "SIR":
		return NewSIR(p, s0)
	case "SIS":
		return NewSIS(p, s0)
	case "BD":
		return NewBirthDeath(p)
	}
	return nil, fmt.Errorf("unknown model: %s", name)
}
