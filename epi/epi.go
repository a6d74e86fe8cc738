// Package epi defines epidemic states and events shared by the
// models, the trajectory simulator and the particle filters.
package epi

import (
	"fmt"
)

// EventType is a tag of an epidemic event. It doubles as an index
// into Propensities.
type EventType int

const (
	Infection EventType = iota
	Recovery
	RhoSample
	PsiSampleRemove
	PsiSampleNoRemove
	OtherSample
	// NEventTypes is the number of event types.
	NEventTypes
)

var eventTypeNames = [NEventTypes]string{
	"INFECTION",
	"RECOVERY",
	"RHO_SAMPLE",
	"PSI_SAMPLE_REMOVE",
	"PSI_SAMPLE_NOREMOVE",
	"OTHER_SAMPLE",
}

func (t EventType) String() string {
	if t < 0 || t >= NEventTypes {
		return fmt.Sprintf("EventType(%d)", int(t))
	}
	return eventTypeNames[t]
}

// IsSample returns true for all the sampling event types.
func (t EventType) IsSample() bool {
	return t != Infection && t != Recovery
}

// Event is a single (possibly multiple) epidemic event.
type Event struct {
	Time         float64
	Type         EventType
	Multiplicity int
}

// IsSample returns true if the event is a sampling event.
func (e Event) IsSample() bool {
	return e.Type.IsSample()
}

func (e Event) String() string {
	return fmt.Sprintf("%s x%d @ %g", e.Type, e.Multiplicity, e.Time)
}

// State is a snapshot of compartment sizes. States are copied by
// assignment.
type State struct {
	S, I, R float64
	Time    float64
	// ModelIntervalIdx is the index of the next model event.
	ModelIntervalIdx int
	// ObservedEventIdx is the index of the next observed tree event.
	ObservedEventIdx int
}

// IsValid returns false if any of the compartments is negative.
func (s State) IsValid() bool {
	return s.S >= 0 && s.I >= 0 && s.R >= 0
}

// Clamp sets negative compartments to zero. It returns true if
// anything was changed.
func (s *State) Clamp() (changed bool) {
	if s.S < 0 {
		s.S = 0
		changed = true
	}
	if s.I < 0 {
		s.I = 0
		changed = true
	}
	if s.R < 0 {
		s.R = 0
		changed = true
	}
	return
}

func (s State) String() string {
	return fmt.Sprintf("t=%g S=%g I=%g R=%g", s.Time, s.S, s.I, s.R)
}

// Propensities stores event rates indexed by event type.
type Propensities [NEventTypes]float64

// Total returns the sum of all propensities.
func (p *Propensities) Total() (total float64) {
	for _, v := range p {
		total += v
	}
	return
}

// Psi returns the total psi-sampling propensity.
func (p *Propensities) Psi() float64 {
	return p[PsiSampleRemove] + p[PsiSampleNoRemove]
}
