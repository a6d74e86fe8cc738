package emodel

import (
	"fmt"
	"math"

	"github.com/tgvaughan/EpiInf-sub000/epi"
)

// SIR is the susceptible-infected-recovered model.
type SIR struct {
	*Base
	S0 float64
}

// NewSIR creates a new SIR model with S0 susceptibles and one
// infected individual.
func NewSIR(p Params, s0 float64) (*SIR, error) {
	if s0 < 0 || math.IsNaN(s0) {
		return nil, fmt.Errorf("S0 should be non-negative, got %v", s0)
	}
	b, err := newBase(p)
	if err != nil {
		return nil, err
	}
	return &SIR{Base: b, S0: s0}, nil
}

func (m *SIR) Name() string {
	return "SIR"
}

func (m *SIR) InitialState() epi.State {
	return epi.State{S: m.S0, I: 1}
}

func (m *SIR) Propensities(s epi.State) (p epi.Propensities) {
	if s.I > 0 {
		if s.S > 0 {
			p[epi.Infection] = m.Rate(s, InfectionRate) * s.S * s.I
		}
		p[epi.Recovery] = m.Rate(s, RecoveryRate) * s.I
		m.setPsi(s, &p)
	}
	check(&p)
	return
}

func (m *SIR) Increment(s *epi.State, e epi.Event) {
	n := float64(e.Multiplicity)
	switch e.Type {
	case epi.Infection:
		s.S -= n
		s.I += n
	case epi.Recovery, epi.RhoSample, epi.PsiSampleRemove, epi.OtherSample:
		s.I -= n
		s.R += n
	}
}

func (m *SIR) TauLeapStepSize(eps float64, s epi.State, infectionProp, removalProp float64) float64 {
	return math.Min(
		leapBound(eps, s.S, -infectionProp, infectionProp),
		leapBound(eps, s.I, infectionProp-removalProp, infectionProp+removalProp))
}

// SIS is the susceptible-infected-susceptible model. Removed
// individuals return to the susceptible pool.
type SIS struct {
	*Base
	S0 float64
}

// NewSIS creates a new SIS model with S0 susceptibles and one
// infected individual.
func NewSIS(p Params, s0 float64) (*SIS, error) {
	if s0 < 0 || math.IsNaN(s0) {
		return nil, fmt.Errorf("S0 should be non-negative, got %v", s0)
	}
	b, err := newBase(p)
	if err != nil {
		return nil, err
	}
	return &SIS{Base: b, S0: s0}, nil
}

func (m *SIS) Name() string {
	return "SIS"
}

func (m *SIS) InitialState() epi.State {
	return epi.State{S: m.S0, I: 1}
}

func (m *SIS) Propensities(s epi.State) (p epi.Propensities) {
	if s.I > 0 {
		if s.S > 0 {
			p[epi.Infection] = m.Rate(s, InfectionRate) * s.S * s.I
		}
		p[epi.Recovery] = m.Rate(s, RecoveryRate) * s.I
		m.setPsi(s, &p)
	}
	check(&p)
	return
}

func (m *SIS) Increment(s *epi.State, e epi.Event) {
	n := float64(e.Multiplicity)
	switch e.Type {
	case epi.Infection:
		s.S -= n
		s.I += n
	case epi.Recovery, epi.RhoSample, epi.PsiSampleRemove, epi.OtherSample:
		s.I -= n
		s.S += n
	}
}

func (m *SIS) TauLeapStepSize(eps float64, s epi.State, infectionProp, removalProp float64) float64 {
	return math.Min(
		leapBound(eps, s.S, removalProp-infectionProp, infectionProp+removalProp),
		leapBound(eps, s.I, infectionProp-removalProp, infectionProp+removalProp))
}

// BirthDeath is the linear birth-death model: infection is a birth at
// rate beta*I and recovery a death at rate gamma*I. Only I is
// constrained; R counts removed individuals.
type BirthDeath struct {
	*Base
}

// NewBirthDeath creates a new birth-death model starting with one
// infected individual.
func NewBirthDeath(p Params) (*BirthDeath, error) {
	b, err := newBase(p)
	if err != nil {
		return nil, err
	}
	return &BirthDeath{Base: b}, nil
}

func (m *BirthDeath) Name() string {
	return "BD"
}

func (m *BirthDeath) InitialState() epi.State {
	return epi.State{I: 1}
}

func (m *BirthDeath) Propensities(s epi.State) (p epi.Propensities) {
	if s.I > 0 {
		p[epi.Infection] = m.Rate(s, InfectionRate) * s.I
		p[epi.Recovery] = m.Rate(s, RecoveryRate) * s.I
		m.setPsi(s, &p)
	}
	check(&p)
	return
}

func (m *BirthDeath) Increment(s *epi.State, e epi.Event) {
	n := float64(e.Multiplicity)
	switch e.Type {
	case epi.Infection:
		s.I += n
	case epi.Recovery, epi.RhoSample, epi.PsiSampleRemove, epi.OtherSample:
		s.I -= n
		s.R += n
	}
}

func (m *BirthDeath) TauLeapStepSize(eps float64, s epi.State, infectionProp, removalProp float64) float64 {
	return leapBound(eps, s.I, infectionProp-removalProp, infectionProp+removalProp)
}
