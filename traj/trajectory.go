// Package traj simulates epidemic trajectories, exactly or with tau
// leaping.
package traj

import (
	"bufio"
	"fmt"
	"io"

	"github.com/op/go-logging"

	"github.com/tgvaughan/EpiInf-sub000/epi"
)

var log = logging.MustGetLogger("traj")

// Trajectory is a sequence of events and the states following them.
// States[0] is the initial state and States[i+1] follows Events[i].
type Trajectory struct {
	Events []epi.Event
	States []epi.State
	// Origin is the end of the simulated period. The last state
	// holds from its time until Origin.
	Origin float64
	// Clamped is the number of tau-leaping steps which produced
	// negative compartments and were clamped to zero. Clamping does
	// not conserve the population size.
	Clamped int
}

// NewTrajectory creates a trajectory starting in the given state.
func NewTrajectory(initial epi.State, origin float64) *Trajectory {
	return &Trajectory{
		States: []epi.State{initial},
		Origin: origin,
	}
}

// Append adds an event and the state after it.
func (t *Trajectory) Append(e epi.Event, s epi.State) {
	t.Events = append(t.Events, e)
	t.States = append(t.States, s)
}

// FinalState returns the last state.
func (t *Trajectory) FinalState() epi.State {
	return t.States[len(t.States)-1]
}

// SampleCount returns the number of sampled individuals.
func (t *Trajectory) SampleCount() (n int) {
	for _, e := range t.Events {
		if e.IsSample() {
			n += e.Multiplicity
		}
	}
	return
}

// Dump writes the trajectory as a tab-separated table.
func (t *Trajectory) Dump(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "t\tS\tI\tR\tevent\tmultiplicity")
	for i, s := range t.States {
		ev, mult := "START", 0
		if i > 0 {
			ev, mult = t.Events[i-1].Type.String(), t.Events[i-1].Multiplicity
		}
		fmt.Fprintf(bw, "%g\t%g\t%g\t%g\t%s\t%d\n", s.Time, s.S, s.I, s.R, ev, mult)
	}
	return bw.Flush()
}
