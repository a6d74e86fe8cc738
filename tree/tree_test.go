package tree

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/op/go-logging"

	"github.com/tgvaughan/EpiInf-sub000/dist"
	"github.com/tgvaughan/EpiInf-sub000/emodel"
	"github.com/tgvaughan/EpiInf-sub000/traj"
)

const (
	smallDiff = 1e-9
	tree1     = "((a:1,b:0.5):0.3,c:1.3):0.2;"
	treeSA    = "((a:1,b:0):0.5,c:1.5):0;"
)

func init() {
	logging.SetLevel(logging.WARNING, "tree")
	logging.SetLevel(logging.WARNING, "traj")
}

func TestParseHeights(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree1))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	if t.NNodes() != 5 || t.NLeaves() != 3 {
		tst.Fatalf("Expected 5 nodes and 3 leaves, got %d and %d", t.NNodes(), t.NLeaves())
	}
	heights := map[string]float64{"a": 0, "b": 0.5, "c": 0}
	for node := range t.Terminals() {
		if math.Abs(node.Height-heights[node.Name]) > smallDiff {
			tst.Errorf("Height of %s: expected %v, got %v", node.Name, heights[node.Name], node.Height)
		}
	}
	if math.Abs(t.RootHeight()-1.3) > smallDiff {
		tst.Error("Expected root height 1.3, got", t.RootHeight())
	}
	if t.BranchLength != 0.2 {
		tst.Error("Expected root edge 0.2, got", t.BranchLength)
	}
	for i, node := range t.Nodes() {
		if node.Id != i {
			tst.Error("Node id mismatch:", i, node.Id)
		}
	}
	if t.String() != "((a:1.000000,b:0.500000):0.300000,c:1.300000):0.200000;" {
		tst.Error("Unexpected tree string:", t)
	}
}

func TestClearCache(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree1))
	if err != nil {
		tst.Fatal(err)
	}
	for node := range t.Terminals() {
		if node.Name == "c" {
			node.BranchLength = 2
		}
	}
	t.ClearCache()
	if math.Abs(t.RootHeight()-2) > smallDiff {
		tst.Error("Expected root height 2, got", t.RootHeight())
	}
	for node := range t.Terminals() {
		if node.Name == "a" && math.Abs(node.Height-0.7) > smallDiff {
			tst.Error("Expected height 0.7, got", node.Height)
		}
	}
	if t.NNodes() != 5 {
		tst.Error("Expected 5 nodes, got", t.NNodes())
	}
}

func TestParseErrors(tst *testing.T) {
	for _, s := range []string{"((a,b);", "(a,b)", "(a:-1,b:1);", "(a:x,b:1);", "(a,b));"} {
		if _, err := ParseNewick(bytes.NewBufferString(s)); err == nil {
			tst.Error("Expected error parsing", s)
		}
	}
}

func TestSampledAncestor(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(treeSA))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	nSA := 0
	for node := range t.Terminals() {
		if node.IsSampledAncestor() {
			nSA++
			if node.Name != "b" {
				tst.Error("Unexpected sampled ancestor", node.Name)
			}
			if !node.Parent.IsFake() {
				tst.Error("Parent of a sampled ancestor should be fake")
			}
		}
	}
	if nSA != 1 {
		tst.Error("Expected 1 sampled ancestor, got", nSA)
	}
	if t.IsFake() {
		tst.Error("Root should not be fake")
	}
}

func sirTrajectory(tst *testing.T, nSteps int) *traj.Trajectory {
	m, err := emodel.NewSIR(emodel.Params{
		Origin:        10,
		InfectionRate: emodel.Const(0.05),
		RecoveryRate:  emodel.Const(0.2),
		PsiSampling:   emodel.Const(0.3),
		RemovalProb:   emodel.Const(0.5),
	}, 50)
	if err != nil {
		tst.Fatal(err)
	}
	sim := &traj.Simulator{Model: m, MinSampleCount: 5, NSteps: nSteps}
	t, err := sim.Simulate(dist.NewRand(17))
	if err != nil {
		tst.Fatal(err)
	}
	return t
}

func TestSimulate(tst *testing.T) {
	rng := dist.NewRand(23)
	for rep := 0; rep < 5; rep++ {
		t := sirTrajectory(tst, 0)
		tr, err := Simulate(t, rng)
		if err != nil {
			tst.Fatal(err)
		}
		if tr.NLeaves() != t.SampleCount() {
			tst.Errorf("Expected %d leaves, got %d", t.SampleCount(), tr.NLeaves())
		}
		for node := range tr.Walker(nil) {
			if node.BranchLength < 0 {
				tst.Error("Negative branch length:", node.Name)
			}
			if !node.IsTerminal() && len(node.ChildNodes()) != 2 {
				tst.Error("Non-binary node:", node.Name)
			}
		}
		total := tr.RootHeight() + tr.FinalSampleOffset + tr.BranchLength
		if math.Abs(total-10) > smallDiff {
			tst.Error("Tree does not span the trajectory:", total)
		}

		// Newick round trip keeps the shape.
		tr2, err := ParseNewick(bytes.NewBufferString(tr.String()))
		if err != nil {
			tst.Fatal("Error parsing simulated tree", err)
		}
		if tr2.NLeaves() != tr.NLeaves() || math.Abs(tr2.RootHeight()-tr.RootHeight()) > 1e-4 {
			tst.Error("Round trip changed the tree:", tr, tr2)
		}
	}
}

func TestSimulateErrors(tst *testing.T) {
	t := sirTrajectory(tst, 100)
	if _, err := Simulate(t, dist.NewRand(1)); !errors.Is(err, ErrApproximate) {
		tst.Error("Expected ErrApproximate, got", err)
	}

	t = traj.NewTrajectory(sirTrajectory(tst, 0).States[0], 10)
	if _, err := Simulate(t, dist.NewRand(1)); !errors.Is(err, ErrNoSamples) {
		tst.Error("Expected ErrNoSamples, got", err)
	}
}
