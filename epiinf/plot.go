package main

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/tgvaughan/EpiInf-sub000/traj"
)

// plotTrajectory plots the compartment sizes of a trajectory. The
// image format is chosen by the file extension.
func plotTrajectory(t *traj.Trajectory, title, fn string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time"
	p.Y.Label.Text = "individuals"

	s := make(plotter.XYs, len(t.States))
	i := make(plotter.XYs, len(t.States))
	r := make(plotter.XYs, len(t.States))
	for j, state := range t.States {
		s[j].X, s[j].Y = state.Time, state.S
		i[j].X, i[j].Y = state.Time, state.I
		r[j].X, r[j].Y = state.Time, state.R
	}

	if err := plotutil.AddLines(p, "S", s, "I", i, "R", r); err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, fn)
}
