package main

import (
	"math"
	"os"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

// runDensity computes log likelihood estimates of the observations.
func runDensity(rng *rand.Rand) (*DensitySummary, error) {
	o, err := readObservations(*densTreeF, *densIncidenceF)
	if err != nil {
		return nil, err
	}
	m, err := newModelSettings().create()
	if err != nil {
		return nil, err
	}
	log.Infof("Using %s model", m.Name())
	l, err := o.list(m)
	if err != nil {
		return nil, err
	}
	log.Infof("%d observed samples", l.NSamples())

	if *densEventsF != "" {
		f, err := os.Create(*densEventsF)
		if err != nil {
			return nil, err
		}
		err = l.Dump(f)
		f.Close()
		if err != nil {
			return nil, err
		}
	}

	d, err := newDensity(*method, l)
	if err != nil {
		return nil, err
	}

	summary := &DensitySummary{Density: *method}
	if *method != "exact" {
		summary.NParticles = *nParticles
	}
	for i := 0; i < *densReps; i++ {
		logL := d.LogLikelihood(rng)
		log.Noticef("lnL=%v", logL)
		if math.IsInf(logL, -1) || math.IsNaN(logL) {
			summary.Failed++
			continue
		}
		summary.LogLikelihoods = append(summary.LogLikelihoods, logL)
	}
	if n := len(summary.LogLikelihoods); n > 1 {
		summary.Mean, summary.SD = stat.MeanStdDev(summary.LogLikelihoods, nil)
		log.Noticef("Mean lnL=%v, SD=%v", summary.Mean, summary.SD)
	} else if n == 1 {
		summary.Mean = summary.LogLikelihoods[0]
	}
	if summary.Failed > 0 {
		log.Warningf("%d of %d estimates are zero", summary.Failed, *densReps)
	}

	if *densTrajF != "" || *densPlotF != "" {
		t, logL := d.RecordTrajectory(rng)
		if t == nil {
			log.Warningf("No trajectory recorded (lnL=%v)", logL)
			return summary, nil
		}
		if *densTrajF != "" {
			if err := writeTrajectory(t, *densTrajF); err != nil {
				return nil, err
			}
		}
		if *densPlotF != "" {
			if err := plotTrajectory(t, "Trajectory conditioned on the tree", *densPlotF); err != nil {
				log.Error("Error plotting trajectory:", err)
			}
		}
	}
	return summary, nil
}
