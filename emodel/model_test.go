package emodel

import (
	"errors"
	"math"
	"testing"

	"github.com/op/go-logging"

	"github.com/tgvaughan/EpiInf-sub000/epi"
)

const smallDiff = 1e-12

var (
	_ Model = (*SIR)(nil)
	_ Model = (*SIS)(nil)
	_ Model = (*BirthDeath)(nil)
)

func init() {
	logging.SetLevel(logging.WARNING, "emodel")
}

func testParams() Params {
	return Params{
		Origin:        10,
		InfectionRate: Schedule{Values: []float64{0.01, 0.02}, Times: []float64{4}},
		RecoveryRate:  Const(0.1),
		PsiSampling:   Const(0.05),
		RemovalProb:   Const(0.7),
		RhoProbs:      []float64{0.5, 0, 0.2},
		RhoTimes:      []float64{4, 5, 10},
	}
}

func allModels(tst *testing.T) []Model {
	sir, err := NewSIR(testParams(), 99)
	if err != nil {
		tst.Fatal(err)
	}
	sis, err := NewSIS(testParams(), 99)
	if err != nil {
		tst.Fatal(err)
	}
	bd, err := NewBirthDeath(testParams())
	if err != nil {
		tst.Fatal(err)
	}
	return []Model{sir, sis, bd}
}

func TestPropensitySum(tst *testing.T) {
	for _, m := range allModels(tst) {
		for _, s := range []epi.State{
			{S: 99, I: 1},
			{S: 50, I: 30, R: 20},
			{S: 0, I: 5, R: 95, ModelIntervalIdx: 2},
			{S: 10, I: 0, R: 90},
		} {
			p := m.Propensities(s)
			sum := 0.0
			for _, v := range p {
				if v < 0 {
					tst.Errorf("%s: negative propensity %v", m.Name(), p)
				}
				sum += v
			}
			if math.Abs(sum-p.Total()) > smallDiff {
				tst.Errorf("%s: expected total %v, got %v", m.Name(), sum, p.Total())
			}
		}
	}
}

func TestPsiSplit(tst *testing.T) {
	m, err := NewSIR(testParams(), 99)
	if err != nil {
		tst.Fatal(err)
	}
	p := m.Propensities(epi.State{S: 90, I: 10})
	if math.Abs(p[epi.PsiSampleRemove]-10*0.05*0.7) > smallDiff {
		tst.Error("Expected", 10*0.05*0.7, ", got", p[epi.PsiSampleRemove])
	}
	if math.Abs(p[epi.PsiSampleNoRemove]-10*0.05*0.3) > smallDiff {
		tst.Error("Expected", 10*0.05*0.3, ", got", p[epi.PsiSampleNoRemove])
	}
	if math.Abs(p[epi.Infection]-0.01*90*10) > smallDiff {
		tst.Error("Expected", 0.01*90*10, ", got", p[epi.Infection])
	}
}

func TestPsiProportion(tst *testing.T) {
	p := testParams()
	p.PsiSampling = Const(0.5)
	p.PsiProportion = true
	m, err := NewSIS(p, 10)
	if err != nil {
		tst.Fatal(err)
	}
	// psi = gamma*p/(1-p) = gamma
	if r := m.Rate(m.InitialState(), PsiSamplingRate); math.Abs(r-0.1) > smallDiff {
		tst.Error("Expected 0.1, got", r)
	}
	p.PsiSampling = Const(1)
	if _, err := NewSIS(p, 10); err == nil {
		tst.Error("Expected error for psi proportion of 1")
	}
}

func TestIncrementReversible(tst *testing.T) {
	for _, m := range allModels(tst) {
		for t := epi.EventType(0); t < epi.NEventTypes; t++ {
			s := epi.State{S: 20, I: 10, R: 5}
			orig := s
			m.Increment(&s, epi.Event{Type: t, Multiplicity: 3})
			m.Increment(&s, epi.Event{Type: t, Multiplicity: -3})
			if s != orig {
				tst.Errorf("%s: %v is not reversible: %v != %v", m.Name(), t, s, orig)
			}
		}
	}
}

func TestIncrementNoRemove(tst *testing.T) {
	for _, m := range allModels(tst) {
		s := epi.State{S: 20, I: 10, R: 5}
		orig := s
		m.Increment(&s, epi.Event{Type: epi.PsiSampleNoRemove, Multiplicity: 2})
		if s != orig {
			tst.Errorf("%s: no-remove sample changed the state", m.Name())
		}
	}
}

func TestModelEvents(tst *testing.T) {
	m, err := NewSIR(testParams(), 99)
	if err != nil {
		tst.Fatal(err)
	}
	events := m.Events()
	// epoch at 4, rho at 4, rho at 10 (rho=0 skipped)
	if len(events) != 3 {
		tst.Fatal("Expected 3 model events, got", events)
	}
	if events[0].Type != EpochBoundary || events[1].Type != RhoSampling || events[1].Rho != 0.5 {
		tst.Error("Incorrect event order:", events)
	}
	if events[2].Time != 10 || events[2].Rho != 0.2 {
		tst.Error("Incorrect final rho event:", events[2])
	}

	s := m.InitialState()
	if m.NextModelEventTime(s) != 4 {
		tst.Error("Expected 4, got", m.NextModelEventTime(s))
	}
	if r := m.Rate(s, InfectionRate); r != 0.01 {
		tst.Error("Expected 0.01, got", r)
	}
	s.ModelIntervalIdx = 1
	if r := m.Rate(s, InfectionRate); r != 0.02 {
		tst.Error("Expected 0.02, got", r)
	}
	s.ModelIntervalIdx = 3
	if !math.IsInf(m.NextModelEventTime(s), 1) {
		tst.Error("Expected +Inf, got", m.NextModelEventTime(s))
	}
	if _, ok := m.NextModelEvent(s); ok {
		tst.Error("Expected no more model events")
	}
}

func TestBackwardSchedule(tst *testing.T) {
	s := Schedule{Values: []float64{1, 2, 3}, Times: []float64{1, 4}, Backward: true}
	times, values := s.Forward(10)
	if times[0] != 6 || times[1] != 9 {
		tst.Error("Incorrect forward times:", times)
	}
	if values[0] != 3 || values[1] != 2 || values[2] != 1 {
		tst.Error("Incorrect forward values:", values)
	}
	for _, c := range []struct{ t, v float64 }{{0, 3}, {5.9, 3}, {6, 2}, {8, 2}, {9.5, 1}, {10, 1}} {
		if v := s.ValueAt(c.t, 10); v != c.v {
			tst.Errorf("ValueAt(%v): expected %v, got %v", c.t, c.v, v)
		}
	}
}

func TestConfigErrors(tst *testing.T) {
	p := testParams()
	p.InfectionRate = Schedule{}
	if _, err := NewSIR(p, 10); !errors.Is(err, ErrNoRate) {
		tst.Error("Expected ErrNoRate, got", err)
	}

	p = testParams()
	p.InfectionRate = Schedule{Values: []float64{1, 2}, Times: nil}
	if _, err := NewSIR(p, 10); err == nil {
		tst.Error("Expected error for mismatched schedule")
	}

	p = testParams()
	p.RecoveryRate = Schedule{Values: []float64{1, 2, 3}, Times: []float64{5, 2}}
	if _, err := NewSIR(p, 10); err == nil {
		tst.Error("Expected error for unordered shift times")
	}

	p = testParams()
	p.RhoTimes = p.RhoTimes[:1]
	if _, err := NewSIR(p, 10); err == nil {
		tst.Error("Expected error for rho length mismatch")
	}

	p = testParams()
	p.RemovalProb = Const(1.5)
	if _, err := NewSIR(p, 10); err == nil {
		tst.Error("Expected error for removal probability > 1")
	}

	p = testParams()
	p.Origin = 0
	if _, err := NewSIR(p, 10); err == nil {
		tst.Error("Expected error for zero origin")
	}

	if _, err := New("SEIR", testParams(), 10); err == nil {
		tst.Error("Expected error for unknown model")
	}
}

func TestTauLeapStepSize(tst *testing.T) {
	m, err := NewSIR(testParams(), 99)
	if err != nil {
		tst.Fatal(err)
	}
	s := epi.State{S: 100, I: 50}
	infProp, remProp := 50.0, 10.0
	tau := m.TauLeapStepSize(0.03, s, infProp, remProp)
	// S: min(3/50, 9/50), I: min(1.5/40, 2.25/60)
	exp := math.Min(3.0/50, math.Min(1.5/40, 2.25/60))
	if math.Abs(tau-exp) > smallDiff {
		tst.Error("Expected", exp, ", got", tau)
	}

	bd, err := NewBirthDeath(testParams())
	if err != nil {
		tst.Fatal(err)
	}
	if tau := bd.TauLeapStepSize(0.03, epi.State{I: 10}, 0, 0); !math.IsInf(tau, 1) {
		tst.Error("Expected +Inf for zero propensities, got", tau)
	}
}

func TestTimes(tst *testing.T) {
	m, err := NewSIR(testParams(), 99)
	if err != nil {
		tst.Fatal(err)
	}
	if !m.TimesEqual(1, 1+1e-12) || m.TimesEqual(1, 1+1e-8) {
		tst.Error("Incorrect TimesEqual")
	}
	if !m.TimesLEQ(1+1e-12, 1) || m.TimesLEQ(1+1e-8, 1) {
		tst.Error("Incorrect TimesLEQ")
	}
}
