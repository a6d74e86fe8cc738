package epi

import "testing"

func TestClamp(tst *testing.T) {
	s := State{S: -1, I: 2, R: -0.5}
	if s.IsValid() {
		tst.Error("Expected invalid state")
	}
	if !s.Clamp() {
		tst.Error("Expected clamp to change the state")
	}
	if !s.IsValid() || s.S != 0 || s.R != 0 || s.I != 2 {
		tst.Error("Incorrect clamped state:", s)
	}
	if s.Clamp() {
		tst.Error("Valid state should not be changed")
	}
}

func TestIsSample(tst *testing.T) {
	for t := EventType(0); t < NEventTypes; t++ {
		exp := t != Infection && t != Recovery
		if (Event{Type: t}).IsSample() != exp {
			tst.Errorf("IsSample(%v) should be %v", t, exp)
		}
	}
}

func TestPropensitiesTotal(tst *testing.T) {
	p := Propensities{1, 2, 0, 0.5, 0.25, 0}
	if p.Total() != 3.75 {
		tst.Error("Expected 3.75, got", p.Total())
	}
	if p.Psi() != 0.75 {
		tst.Error("Expected 0.75, got", p.Psi())
	}
}

func TestEventTypeString(tst *testing.T) {
	if PsiSampleNoRemove.String() != "PSI_SAMPLE_NOREMOVE" {
		tst.Error("Unexpected name:", PsiSampleNoRemove)
	}
	if EventType(42).String() != "EventType(42)" {
		tst.Error("Unexpected name:", EventType(42))
	}
}
