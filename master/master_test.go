package master

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/op/go-logging"

	"github.com/tgvaughan/EpiInf-sub000/dist"
	"github.com/tgvaughan/EpiInf-sub000/emodel"
	"github.com/tgvaughan/EpiInf-sub000/obs"
	"github.com/tgvaughan/EpiInf-sub000/smc"
	"github.com/tgvaughan/EpiInf-sub000/tree"
)

const smallDiff = 1e-6

func init() {
	logging.SetLevel(logging.WARNING, "master")
	logging.SetLevel(logging.WARNING, "smc")
	logging.SetLevel(logging.WARNING, "obs")
}

func sirList(tst *testing.T, newick string) *obs.List {
	m, err := emodel.NewSIR(emodel.Params{
		Origin:        2,
		InfectionRate: emodel.Const(0.5),
		RecoveryRate:  emodel.Const(0.3),
		PsiSampling:   emodel.Const(0.2),
		RemovalProb:   emodel.Const(1),
	}, 5)
	if err != nil {
		tst.Fatal(err)
	}
	t, err := tree.ParseNewick(bytes.NewBufferString(newick))
	if err != nil {
		tst.Fatal(err)
	}
	l, err := obs.NewList(t, nil, m)
	if err != nil {
		tst.Fatal(err)
	}
	return l
}

// A single lineage without births: the only event is the sample.
func TestClosedForm(tst *testing.T) {
	psi, gamma, t := 0.7, 0.4, 1.5
	m, err := emodel.NewBirthDeath(emodel.Params{
		Origin:        3,
		InfectionRate: emodel.Const(0),
		RecoveryRate:  emodel.Const(gamma),
		PsiSampling:   emodel.Const(psi),
	})
	if err != nil {
		tst.Fatal(err)
	}
	l, err := obs.NewListFromEvents([]obs.Event{{Time: t, Type: obs.Leaf, Multiplicity: 1}}, m)
	if err != nil {
		tst.Fatal(err)
	}
	exp := math.Log(psi) - (psi+gamma)*t

	d, err := NewDensity(l, 0, 0)
	if err != nil {
		tst.Fatal(err)
	}
	if res := d.LogLikelihood(nil); math.Abs(res-exp) > smallDiff {
		tst.Errorf("Exact density: expected %v, got %v", exp, res)
	}

	sd, err := smc.NewStandard(l, 10)
	if err != nil {
		tst.Fatal(err)
	}
	if res := sd.LogLikelihood(dist.NewRand(1)); math.Abs(res-exp) > smallDiff {
		tst.Errorf("Standard filter: expected %v, got %v", exp, res)
	}
}

func parseList(tst *testing.T, m emodel.Model, newick string, incidence []float64) *obs.List {
	t, err := tree.ParseNewick(bytes.NewBufferString(newick))
	if err != nil {
		tst.Fatal(err)
	}
	l, err := obs.NewList(t, incidence, m)
	if err != nil {
		tst.Fatal(err)
	}
	return l
}

func TestCompareFilters(tst *testing.T) {
	if testing.Short() {
		tst.Skip("skipping particle filter comparison in short mode")
	}
	sirParams := func() emodel.Params {
		return emodel.Params{
			Origin:        2,
			InfectionRate: emodel.Const(0.5),
			RecoveryRate:  emodel.Const(0.3),
			PsiSampling:   emodel.Const(0.2),
			RemovalProb:   emodel.Const(1),
		}
	}
	newSIR := func(p emodel.Params) emodel.Model {
		m, err := emodel.NewSIR(p, 5)
		if err != nil {
			tst.Fatal(err)
		}
		return m
	}

	shifts := sirParams()
	shifts.InfectionRate = emodel.Schedule{Values: []float64{0.8, 0.3}, Times: []float64{1.2}}
	shifts.RecoveryRate = emodel.Schedule{Values: []float64{0.2, 0.5}, Times: []float64{1.7}}

	ancestors := sirParams()
	ancestors.PsiSampling = emodel.Const(0.4)
	ancestors.RemovalProb = emodel.Const(0.5)

	rho := sirParams()
	rho.PsiSampling = emodel.Schedule{}
	rho.RemovalProb = emodel.Schedule{}
	rho.RhoProbs = []float64{0.5, 0.5}
	rho.RhoTimes = []float64{1.5, 2}

	sis, err := emodel.NewSIS(sirParams(), 5)
	if err != nil {
		tst.Fatal(err)
	}
	bd, err := emodel.NewBirthDeath(sirParams())
	if err != nil {
		tst.Fatal(err)
	}

	data := []struct {
		name string
		l    *obs.List
	}{
		{"SIR", parseList(tst, newSIR(sirParams()), "(a:1.0,b:0.5):0.3;", nil)},
		{"rate shifts", parseList(tst, newSIR(shifts), "(a:1.0,b:0.5):0.3;", nil)},
		{"sampled ancestors", parseList(tst, newSIR(ancestors), "((a:1,b:0):0.5,c:1.5):0;", nil)},
		{"unsequenced samples", parseList(tst, newSIR(sirParams()), "(a:1.0,b:0.5):0.3;", []float64{0.2, 0.9})},
		{"rho before origin", parseList(tst, newSIR(rho), "((a:0.5,b:0.5):0.5,c:1.5):0.2;", nil)},
		{"SIS", parseList(tst, sis, "(a:1.0,b:0.5):0.3;", nil)},
		{"BD", parseList(tst, bd, "(a:1.0,b:0.5):0.3;", nil)},
	}

	for _, d := range data {
		ed, err := NewDensity(d.l, 0, 0)
		if err != nil {
			tst.Fatalf("%s: %v", d.name, err)
		}
		exact := ed.LogLikelihood(nil)
		if math.IsInf(exact, 0) || math.IsNaN(exact) {
			tst.Errorf("%s: exact density is not finite: %v", d.name, exact)
			continue
		}

		sd, err := smc.NewStandard(d.l, 20000)
		if err != nil {
			tst.Fatal(err)
		}
		if res := sd.LogLikelihood(dist.NewRand(7)); math.Abs(res-exact) > 0.15 {
			tst.Errorf("%s, standard filter: expected %v, got %v", d.name, exact, res)
		}

		ld, err := smc.NewLeaping(d.l, 2000)
		if err != nil {
			tst.Fatal(err)
		}
		ld.Epsilon = 0.01
		if res := ld.LogLikelihood(dist.NewRand(7)); math.Abs(res-exact) > 0.5 {
			tst.Errorf("%s, leaping filter: expected %v, got %v", d.name, exact, res)
		}
	}
}

func TestStateCount(tst *testing.T) {
	d, err := NewDensity(sirList(tst, "(a:1.0,b:0.5):0.3;"), 0, 0)
	if err != nil {
		tst.Fatal(err)
	}
	if d.NStates() != 27 {
		tst.Error("Expected 27 states, got", d.NStates())
	}
}

func TestRho(tst *testing.T) {
	m, err := emodel.NewSIR(emodel.Params{
		Origin:        2,
		InfectionRate: emodel.Const(0.5),
		RecoveryRate:  emodel.Const(0.3),
		RhoProbs:      []float64{0.5},
		RhoTimes:      []float64{2},
	}, 5)
	if err != nil {
		tst.Fatal(err)
	}
	t, err := tree.ParseNewick(bytes.NewBufferString("(a:1.0,b:1.0):0.5;"))
	if err != nil {
		tst.Fatal(err)
	}
	l, err := obs.NewList(t, nil, m)
	if err != nil {
		tst.Fatal(err)
	}
	d, err := NewDensity(l, 0, 0)
	if err != nil {
		tst.Fatal(err)
	}
	exact := d.LogLikelihood(nil)
	if math.IsInf(exact, 0) || math.IsNaN(exact) {
		tst.Fatal("Exact density is not finite:", exact)
	}
	sd, err := smc.NewStandard(l, 10000)
	if err != nil {
		tst.Fatal(err)
	}
	if res := sd.LogLikelihood(dist.NewRand(3)); math.Abs(res-exact) > 0.1 {
		tst.Errorf("Standard filter: expected %v, got %v", exact, res)
	}
}

func TestOldTree(tst *testing.T) {
	l := sirList(tst, "(a:3.0,b:2.5):0;")
	d, err := NewDensity(l, 0, 0)
	if err != nil {
		tst.Fatal(err)
	}
	if res := d.LogLikelihood(nil); !math.IsInf(res, -1) {
		tst.Error("Expected -Inf, got", res)
	}
}

func TestTooManyStates(tst *testing.T) {
	l := sirList(tst, "(a:1.0,b:0.5):0.3;")
	if _, err := NewDensity(l, 10, 0); !errors.Is(err, ErrTooManyStates) {
		tst.Error("Expected ErrTooManyStates, got", err)
	}
}
