package main

import (
	"errors"
	"os"
	"sort"

	"golang.org/x/exp/rand"

	"github.com/tgvaughan/EpiInf-sub000/traj"
	"github.com/tgvaughan/EpiInf-sub000/tree"
)

// writeTrajectory writes the trajectory table to a file or to stdout
// if the file name is empty.
func writeTrajectory(t *traj.Trajectory, fn string) error {
	if fn == "" {
		return t.Dump(os.Stdout)
	}
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	if err := t.Dump(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// runSimulate simulates a trajectory and its transmission tree.
func runSimulate(rng *rand.Rand) (*SimulationSummary, error) {
	m, err := newModelSettings().create()
	if err != nil {
		return nil, err
	}
	log.Infof("Using %s model", m.Name())

	sort.Float64s(*simSampleTimes)
	sim := &traj.Simulator{
		Model:             m,
		Duration:          *simDuration,
		NSteps:            *simNSteps,
		MinSampleCount:    *simMinSamples,
		ForcedSampleTimes: *simSampleTimes,
		MaxRetries:        *simMaxRetries,
	}
	t, err := sim.Simulate(rng)
	if err != nil {
		return nil, err
	}

	summary := &SimulationSummary{
		Events:     len(t.Events),
		Samples:    t.SampleCount(),
		Clamped:    t.Clamped,
		FinalState: t.FinalState(),
	}
	log.Noticef("Simulated %d events, %d samples", summary.Events, summary.Samples)
	log.Noticef("Final state: %v", summary.FinalState)

	if err := writeTrajectory(t, *simOutF); err != nil {
		return nil, err
	}

	if *simPlotF != "" {
		if err := plotTrajectory(t, "Simulated "+m.Name()+" trajectory", *simPlotF); err != nil {
			log.Error("Error plotting trajectory:", err)
		}
	}

	if *simTreeF != "" || summary.Samples > 0 {
		tr, err := tree.Simulate(t, rng)
		switch {
		case errors.Is(err, tree.ErrNoSamples), errors.Is(err, tree.ErrApproximate):
			log.Warning("No transmission tree:", err)
		case err != nil:
			return nil, err
		default:
			summary.Tree = tr.String()
			log.Infof("Tree with %d leaves", tr.NLeaves())
			if *simTreeF != "" {
				if err := os.WriteFile(*simTreeF, []byte(summary.Tree+"\n"), 0666); err != nil {
					return nil, err
				}
			}
		}
	}
	return summary, nil
}
