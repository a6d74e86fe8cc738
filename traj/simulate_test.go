package traj

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/op/go-logging"

	"github.com/tgvaughan/EpiInf-sub000/dist"
	"github.com/tgvaughan/EpiInf-sub000/emodel"
	"github.com/tgvaughan/EpiInf-sub000/epi"
)

func init() {
	logging.SetLevel(logging.ERROR, "traj")
	logging.SetLevel(logging.ERROR, "emodel")
}

func checkConsistency(tst *testing.T, t *Trajectory) {
	if len(t.States) != len(t.Events)+1 {
		tst.Fatalf("%d states for %d events", len(t.States), len(t.Events))
	}
	for i, e := range t.Events {
		if e.Multiplicity < 1 {
			tst.Errorf("Event %v has multiplicity < 1", e)
		}
		if i > 0 && e.Time < t.Events[i-1].Time {
			tst.Errorf("Events out of order: %v after %v", e, t.Events[i-1])
		}
		if t.States[i+1].Time != e.Time {
			tst.Errorf("State %v does not match event %v", t.States[i+1], e)
		}
	}
}

func TestSIRAbsorption(tst *testing.T) {
	m, err := emodel.NewSIR(emodel.Params{
		Origin:        1,
		InfectionRate: emodel.Const(0.001),
		RecoveryRate:  emodel.Const(0.2),
	}, 999)
	if err != nil {
		tst.Fatal(err)
	}
	sim := &Simulator{Model: m, Duration: math.Inf(1)}
	for seed := uint64(1); seed <= 5; seed++ {
		t, err := sim.Simulate(dist.NewRand(seed))
		if err != nil {
			tst.Fatal(err)
		}
		checkConsistency(tst, t)
		for _, s := range t.States {
			if !s.IsValid() {
				tst.Fatal("Negative compartment in", s)
			}
			if s.S+s.I+s.R != 1000 {
				tst.Fatal("Population size changed:", s)
			}
		}
		final := t.FinalState()
		if final.I != 0 {
			tst.Error("Expected I=0, got", final.I)
		}
		if final.S+final.R != 1000 {
			tst.Error("Expected S+R=1000, got", final.S+final.R)
		}
		infections := 0
		for _, e := range t.Events {
			if e.Type == epi.Infection {
				infections++
			}
		}
		if len(t.Events) != 2*infections+1 {
			tst.Errorf("Expected %d events, got %d", 2*infections+1, len(t.Events))
		}
	}
}

func TestPureBirth(tst *testing.T) {
	m, err := emodel.NewBirthDeath(emodel.Params{
		Origin:        3,
		InfectionRate: emodel.Const(1),
		RecoveryRate:  emodel.Const(0),
	})
	if err != nil {
		tst.Fatal(err)
	}
	t, err := (&Simulator{Model: m}).Simulate(dist.NewRand(3))
	if err != nil {
		tst.Fatal(err)
	}
	checkConsistency(tst, t)
	for i := 1; i < len(t.States); i++ {
		if t.States[i].I < t.States[i-1].I {
			tst.Fatal("I decreased:", t.States[i-1], t.States[i])
		}
	}
	if t.FinalState().Time > 3 {
		tst.Error("Simulation went past the origin:", t.FinalState())
	}
	if t.Origin != 3 {
		tst.Error("Expected the trajectory to end at the origin, got", t.Origin)
	}
}

func TestForcedSamples(tst *testing.T) {
	m, err := emodel.NewBirthDeath(emodel.Params{
		Origin:        4,
		InfectionRate: emodel.Const(0.5),
		RecoveryRate:  emodel.Const(0),
		PsiSampling:   emodel.Const(10),
		RemovalProb:   emodel.Const(0),
	})
	if err != nil {
		tst.Fatal(err)
	}
	forced := []float64{1, 2, 3.5}
	for _, nSteps := range []int{0, 50} {
		sim := &Simulator{Model: m, ForcedSampleTimes: forced, NSteps: nSteps}
		t, err := sim.Simulate(dist.NewRand(11))
		if err != nil {
			tst.Fatal(err)
		}
		checkConsistency(tst, t)
		var times []float64
		for _, e := range t.Events {
			if e.IsSample() {
				if e.Type != epi.PsiSampleNoRemove || e.Multiplicity != 1 {
					tst.Error("Unexpected sample event:", e)
				}
				times = append(times, e.Time)
			}
		}
		if len(times) != len(forced) {
			tst.Fatalf("nSteps=%d: expected samples at %v, got %v", nSteps, forced, times)
		}
		for i := range times {
			if times[i] != forced[i] {
				tst.Errorf("nSteps=%d: expected samples at %v, got %v", nSteps, forced, times)
			}
		}
	}
}

func TestRhoSampling(tst *testing.T) {
	m, err := emodel.NewBirthDeath(emodel.Params{
		Origin:        2,
		InfectionRate: emodel.Const(1),
		RecoveryRate:  emodel.Const(0),
		RhoProbs:      []float64{1},
		RhoTimes:      []float64{2},
	})
	if err != nil {
		tst.Fatal(err)
	}
	t, err := (&Simulator{Model: m}).Simulate(dist.NewRand(5))
	if err != nil {
		tst.Fatal(err)
	}
	checkConsistency(tst, t)
	last := t.Events[len(t.Events)-1]
	if last.Type != epi.RhoSample || last.Time != 2 {
		tst.Fatal("Expected final rho sample, got", last)
	}
	before := t.States[len(t.States)-2]
	if float64(last.Multiplicity) != before.I {
		tst.Error("Expected", before.I, "samples, got", last.Multiplicity)
	}
	if t.FinalState().I != 0 {
		tst.Error("Expected I=0 after rho=1 sampling, got", t.FinalState().I)
	}
}

func TestMinSampleCount(tst *testing.T) {
	m, err := emodel.NewSIR(emodel.Params{
		Origin:        5,
		InfectionRate: emodel.Const(0.01),
		RecoveryRate:  emodel.Const(0.1),
		PsiSampling:   emodel.Const(0.1),
	}, 100)
	if err != nil {
		tst.Fatal(err)
	}
	sim := &Simulator{Model: m, MinSampleCount: 3}
	t, err := sim.Simulate(dist.NewRand(1))
	if err != nil {
		tst.Fatal(err)
	}
	if t.SampleCount() < 3 {
		tst.Error("Expected at least 3 samples, got", t.SampleCount())
	}

	sim = &Simulator{Model: m, MinSampleCount: 1000, MaxRetries: 5}
	if _, err := sim.Simulate(dist.NewRand(1)); !errors.Is(err, ErrTooManyRetries) {
		tst.Error("Expected ErrTooManyRetries, got", err)
	}
}

func TestTauLeap(tst *testing.T) {
	m, err := emodel.NewSIR(emodel.Params{
		Origin:        10,
		InfectionRate: emodel.Schedule{Values: []float64{0.005, 0.002}, Times: []float64{5}},
		RecoveryRate:  emodel.Const(0.3),
		PsiSampling:   emodel.Const(0.05),
		RemovalProb:   emodel.Const(1),
	}, 500)
	if err != nil {
		tst.Fatal(err)
	}
	sim := &Simulator{Model: m, NSteps: 200, MinSampleCount: 1}
	t, err := sim.Simulate(dist.NewRand(9))
	if err != nil {
		tst.Fatal(err)
	}
	checkConsistency(tst, t)
	final := t.FinalState()
	if final.ModelIntervalIdx != 1 {
		tst.Error("Expected model interval 1, got", final.ModelIntervalIdx)
	}
	if t.Clamped == 0 && final.S+final.I+final.R != 501 {
		tst.Error("Population size changed without clamping:", final)
	}
	for _, s := range t.States {
		if !s.IsValid() {
			tst.Fatal("Invalid state recorded:", s)
		}
	}
}

func TestLeapClamping(tst *testing.T) {
	m, err := emodel.NewSIR(emodel.Params{
		Origin:        10,
		InfectionRate: emodel.Const(0.01),
		RecoveryRate:  emodel.Const(3),
		PsiSampling:   emodel.Const(3),
		RemovalProb:   emodel.Const(1),
	}, 1000)
	if err != nil {
		tst.Fatal(err)
	}
	sim := &Simulator{Model: m, NSteps: 3}
	clamped := 0
	for seed := uint64(1); seed <= 200; seed++ {
		t, err := sim.Simulate(dist.NewRand(seed))
		if err != nil {
			tst.Fatal(err)
		}
		checkConsistency(tst, t)
		clamped += t.Clamped
		for _, s := range t.States {
			if !s.IsValid() {
				tst.Fatalf("Seed %d: invalid state recorded: %v", seed, s)
			}
		}
	}
	if clamped == 0 {
		tst.Error("Expected clamped leaps with coarse steps")
	}
}

func TestDump(tst *testing.T) {
	t := NewTrajectory(epi.State{S: 2, I: 1}, 1)
	t.Append(epi.Event{Time: 0.5, Type: epi.Infection, Multiplicity: 1}, epi.State{S: 1, I: 2, Time: 0.5})
	var buf bytes.Buffer
	if err := t.Dump(&buf); err != nil {
		tst.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		tst.Fatal("Expected 3 lines, got", lines)
	}
	if lines[2] != "0.5\t1\t2\t0\tINFECTION\t1" {
		tst.Error("Unexpected line:", lines[2])
	}
}
