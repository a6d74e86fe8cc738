package obs

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/op/go-logging"

	"github.com/tgvaughan/EpiInf-sub000/emodel"
	"github.com/tgvaughan/EpiInf-sub000/tree"
)

const smallDiff = 1e-9

func init() {
	logging.SetLevel(logging.WARNING, "obs")
}

func newModel(tst *testing.T, rhoProbs, rhoTimes []float64) emodel.Model {
	m, err := emodel.NewSIR(emodel.Params{
		Origin:        2,
		InfectionRate: emodel.Const(0.5),
		RecoveryRate:  emodel.Const(0.3),
		PsiSampling:   emodel.Const(0.2),
		RhoProbs:      rhoProbs,
		RhoTimes:      rhoTimes,
	}, 5)
	if err != nil {
		tst.Fatal(err)
	}
	return m
}

func parse(tst *testing.T, s string) *tree.Tree {
	t, err := tree.ParseNewick(bytes.NewBufferString(s))
	if err != nil {
		tst.Fatal(err)
	}
	return t
}

func check(tst *testing.T, events []Event, exp []Event) {
	if len(events) != len(exp) {
		tst.Fatalf("Expected %v, got %v", exp, events)
	}
	for i := range exp {
		e, x := events[i], exp[i]
		if math.Abs(e.Time-x.Time) > smallDiff || e.Type != x.Type ||
			e.Multiplicity != x.Multiplicity || e.Lineages != x.Lineages ||
			e.IsFinal != x.IsFinal {
			tst.Errorf("Event %d: expected %v, got %v", i, x, e)
		}
	}
}

func TestTwoLeaves(tst *testing.T) {
	l, err := NewList(parse(tst, "(a:1.0,b:0.5):0.3;"), nil, newModel(tst, nil, nil))
	if err != nil {
		tst.Fatal(err)
	}
	check(tst, l.Events(), []Event{
		{Time: 1, Type: Coalescence, Multiplicity: 1, Lineages: 1},
		{Time: 1.5, Type: Leaf, Multiplicity: 1, Lineages: 2},
		{Time: 2, Type: Leaf, Multiplicity: 1, Lineages: 1},
		{Time: 2, Type: ObservationEnd, Multiplicity: 0, Lineages: 0, IsFinal: true},
	})
	if l.NSamples() != 2 {
		tst.Error("Expected 2 samples, got", l.NSamples())
	}
}

func TestCollateRho(tst *testing.T) {
	// three contemporaneous leaves at the rho time 2 and one
	// unsequenced sample
	l, err := NewList(parse(tst, "((a:0.5,b:0.5):0.5,c:1):0;"), []float64{0.25},
		newModel(tst, []float64{0.5}, []float64{2}))
	if err != nil {
		tst.Fatal(err)
	}
	check(tst, l.Events(), []Event{
		{Time: 1, Type: Coalescence, Multiplicity: 1, Lineages: 1},
		{Time: 1.5, Type: Coalescence, Multiplicity: 1, Lineages: 2},
		{Time: 1.75, Type: UnsequencedSample, Multiplicity: 1, Lineages: 3},
		{Time: 2, Type: Leaf, Multiplicity: 3, Lineages: 3},
		{Time: 2, Type: ObservationEnd, Multiplicity: 0, Lineages: 0, IsFinal: true},
	})
}

func TestSampledAncestor(tst *testing.T) {
	l, err := NewList(parse(tst, "((a:1,b:0):0.5,c:1.5):0;"), nil, newModel(tst, nil, nil))
	if err != nil {
		tst.Fatal(err)
	}
	events := l.Events()
	types := []EventType{Coalescence, SampledAncestor, Leaf, ObservationEnd}
	if len(events) != len(types) {
		tst.Fatal("Unexpected events:", events)
	}
	for i, t := range types {
		if events[i].Type != t {
			tst.Errorf("Event %d: expected %v, got %v", i, t, events[i])
		}
	}
	// sampled ancestor does not change the lineage count
	if events[1].Lineages != 2 || events[2].Lineages != 2 || events[2].Multiplicity != 2 {
		tst.Error("Unexpected lineage counts:", events)
	}
}

func TestDirty(tst *testing.T) {
	t := parse(tst, "(a:1.0,b:0.5):0.3;")
	l, err := NewList(t, nil, newModel(tst, nil, nil))
	if err != nil {
		tst.Fatal(err)
	}
	if l.FirstTime() != 1 {
		tst.Fatal("Expected first time 1, got", l.FirstTime())
	}
	t.ChildNodes()[0].BranchLength = 1.5
	// cached until marked dirty
	if l.FirstTime() != 1 {
		tst.Error("List was rebuilt without MakeDirty")
	}
	l.MakeDirty()
	if math.Abs(l.FirstTime()-0.5) > smallDiff {
		tst.Error("Expected first time 0.5, got", l.FirstTime())
	}
}

func TestOldTree(tst *testing.T) {
	l, err := NewList(parse(tst, "(a:3.0,b:2.5):0;"), nil, newModel(tst, nil, nil))
	if err != nil {
		tst.Fatal(err)
	}
	if l.FirstTime() >= 0 {
		tst.Error("Expected negative first time, got", l.FirstTime())
	}
}

func TestNoSamples(tst *testing.T) {
	if _, err := NewList(nil, nil, newModel(tst, nil, nil)); !errors.Is(err, ErrNoSamples) {
		tst.Error("Expected ErrNoSamples, got", err)
	}
	l, err := NewList(nil, nil, newModel(tst, []float64{0.1}, []float64{1}))
	if err != nil {
		tst.Fatal("Rho sampling alone should be accepted:", err)
	}
	events := l.Events()
	if len(events) != 2 || events[0].Multiplicity != 0 || events[0].Lineages != 0 {
		tst.Error("Unexpected events:", events)
	}
}

func TestFromEvents(tst *testing.T) {
	l, err := NewListFromEvents([]Event{
		{Time: 1.5, Type: Leaf, Multiplicity: 1},
		{Time: 1, Type: Coalescence, Multiplicity: 1},
		{Time: 2, Type: Leaf, Multiplicity: 1},
	}, newModel(tst, nil, nil))
	if err != nil {
		tst.Fatal(err)
	}
	if k := l.Events()[1].Lineages; k != 2 {
		tst.Error("Expected 2 lineages, got", k)
	}
	var buf bytes.Buffer
	if err := l.Dump(&buf); err != nil {
		tst.Fatal(err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 5 {
		tst.Error("Expected 5 lines, got", n)
	}
}
