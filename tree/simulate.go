package tree

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/tgvaughan/EpiInf-sub000/epi"
	"github.com/tgvaughan/EpiInf-sub000/traj"
)

var (
	// ErrNoSamples is returned when a trajectory has no sampled
	// individuals.
	ErrNoSamples = errors.New("trajectory has no samples")
	// ErrApproximate is returned for trajectories with simultaneous
	// or multiple events, such as tau-leaping trajectories.
	ErrApproximate = errors.New("tree simulation requires an exact trajectory")
)

// checkExact returns ErrApproximate if events other than rho samples
// have multiplicities or share their times.
func checkExact(t *traj.Trajectory) error {
	for i, e := range t.Events {
		if e.Type == epi.RhoSample {
			continue
		}
		if e.Multiplicity != 1 || (i > 0 && t.Events[i-1].Time == e.Time) {
			return fmt.Errorf("%w: %v", ErrApproximate, e)
		}
	}
	return nil
}

// Simulate simulates a transmission tree of the sampled individuals
// given an exact trajectory. The trajectory is traversed backwards:
// samples start lineages, an infection merges a random pair of
// lineages with probability k(k-1)/(N(N-1)), where N is the number of
// infected individuals after the infection, and a sample without
// removal hits an existing lineage with probability k/N, producing a
// sampled ancestor.
func Simulate(t *traj.Trajectory, rng *rand.Rand) (*Tree, error) {
	if err := checkExact(t); err != nil {
		return nil, err
	}
	var lineages []*Node
	times := make(map[*Node]float64)
	nLeaves := 0
	youngest := math.Inf(-1)
	newLeaf := func(time float64) *Node {
		nLeaves++
		node := &Node{Name: fmt.Sprintf("t%d", nLeaves)}
		times[node] = time
		youngest = math.Max(youngest, time)
		return node
	}

	for i := len(t.Events) - 1; i >= 0; i-- {
		e := t.Events[i]
		n := t.States[i+1].I
		switch e.Type {
		case epi.Infection:
			k := float64(len(lineages))
			if k < 2 || rng.Float64()*n*(n-1) >= k*(k-1) {
				continue
			}
			a := rng.Intn(len(lineages))
			b := rng.Intn(len(lineages) - 1)
			if b >= a {
				b++
			}
			parent := &Node{}
			times[parent] = e.Time
			parent.AddChild(lineages[a])
			parent.AddChild(lineages[b])
			lineages[a] = parent
			last := len(lineages) - 1
			lineages[b] = lineages[last]
			lineages = lineages[:last]
		case epi.Recovery:
		case epi.PsiSampleNoRemove:
			leaf := newLeaf(e.Time)
			if rng.Float64()*n < float64(len(lineages)) {
				a := rng.Intn(len(lineages))
				fake := &Node{}
				times[fake] = e.Time
				fake.AddChild(lineages[a])
				fake.AddChild(leaf)
				lineages[a] = fake
			} else {
				lineages = append(lineages, leaf)
			}
		default:
			for j := 0; j < e.Multiplicity; j++ {
				lineages = append(lineages, newLeaf(e.Time))
			}
		}
	}

	if nLeaves == 0 {
		return nil, ErrNoSamples
	}
	if len(lineages) != 1 {
		return nil, fmt.Errorf("%d lineages left at the start of the epidemic", len(lineages))
	}

	root := lineages[0]
	for node, time := range times {
		if node.Parent != nil {
			node.BranchLength = time - times[node.Parent]
		} else {
			node.BranchLength = time
		}
	}
	tree := &Tree{Node: root}
	tree.renumber()
	tree.ComputeHeights()
	if !math.IsInf(t.Origin, 0) {
		tree.FinalSampleOffset = t.Origin - youngest
	}
	log.Debugf("Simulated tree with %d leaves, root height %g", nLeaves, tree.RootHeight())
	return tree, nil
}
