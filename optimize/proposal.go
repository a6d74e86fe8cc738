package optimize

import (
	"math"

	"golang.org/x/exp/rand"
)

// ProposalFunc returns a new value and the log Hastings ratio of the
// move.
type ProposalFunc func(rng *rand.Rand, x float64) (float64, float64)

// Rand returns a random value in the range [0, 1], including 1.
func Rand(rng *rand.Rand) float64 {
	// 1.0 is not included and we would like to be symmetric
	r := float64(1)
	for r > 0.999 {
		r = rng.Float64()
	}
	return r / 0.999
}

// UniformProposal returns uniform proposal function.
func UniformProposal(width float64) ProposalFunc {
	if width <= 0 {
		panic("width should be positive")
	}
	return func(rng *rand.Rand, x float64) (float64, float64) {
		return x + Rand(rng)*width - width/2, 0
	}
}

// UniformGlobalProposal returns uniform proposal function given max
// and min.
func UniformGlobalProposal(min, max float64) ProposalFunc {
	if max <= min {
		panic("max <= min")
	}
	return func(rng *rand.Rand, x float64) (float64, float64) {
		return Rand(rng)*(max-min) + min, 0
	}
}

// NormalProposal returns normal proposal function.
func NormalProposal(sd float64) ProposalFunc {
	if sd <= 0 {
		panic("sd should be positive")
	}
	return func(rng *rand.Rand, x float64) (float64, float64) {
		return x + rng.NormFloat64()*sd, 0
	}
}

// ScaleProposal multiplies the value by exp(u), u uniform in
// [-width/2, width/2]. The sign of the value is kept.
func ScaleProposal(width float64) ProposalFunc {
	if width <= 0 {
		panic("width should be positive")
	}
	return func(rng *rand.Rand, x float64) (float64, float64) {
		u := Rand(rng)*width - width/2
		return x * math.Exp(u), u
	}
}
