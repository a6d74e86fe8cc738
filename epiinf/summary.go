package main

import (
	"github.com/tgvaughan/EpiInf-sub000/epi"
	"github.com/tgvaughan/EpiInf-sub000/optimize"
)

// CallSummary stores information on the program call.
type CallSummary struct {
	// Version stores epiinf version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Command is the executed command.
	Command string `json:"command"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
	// Time is the computations time in seconds.
	TotalTime float64 `json:"time"`
}

// RunSummary is the JSON output of a run.
type RunSummary struct {
	CallSummary
	// Result is the summary of the executed command.
	Result interface{} `json:"result,omitempty"`
}

// SimulationSummary stores the outcome of the simulate command.
type SimulationSummary struct {
	// Events is the number of events in the trajectory.
	Events int `json:"events"`
	// Samples is the number of sampled individuals.
	Samples int `json:"samples"`
	// Clamped is the number of tau leaps with negative compartments.
	Clamped int `json:"clamped,omitempty"`
	// FinalState is the state at the end of the simulation.
	FinalState epi.State `json:"finalState"`
	// Tree is the transmission tree in newick format.
	Tree string `json:"tree,omitempty"`
}

// DensitySummary stores the outcome of the density command.
type DensitySummary struct {
	// Density is the density method.
	Density string `json:"density"`
	// NParticles is the number of particles (particle filters only).
	NParticles int `json:"nParticles,omitempty"`
	// LogLikelihoods are the finite log likelihood estimates.
	LogLikelihoods []float64 `json:"logLikelihoods"`
	// Failed is the number of zero likelihood estimates.
	Failed int `json:"failed,omitempty"`
	// Mean and SD are the mean and the standard deviation of the
	// finite estimates.
	Mean float64 `json:"mean"`
	SD   float64 `json:"sd,omitempty"`
}

// InferenceSummary stores the outcome of the infer command.
type InferenceSummary struct {
	// Density is the density method.
	Density string `json:"density"`
	// Optimizer is the optimizer summary.
	Optimizer optimize.Summary `json:"optimizer"`
	// Checkpoint is true if the run finished from a checkpoint.
	Checkpoint bool `json:"checkpoint,omitempty"`
}
