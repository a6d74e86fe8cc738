// Package dist implements random variates and probability functions
// used by the epidemic simulators and particle filters.
package dist

import (
	"math"

	"github.com/gonum/mathext"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// NewRand creates a random number generator given a seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// SubStream creates an independent generator seeded from rng.
func SubStream(rng *rand.Rand) *rand.Rand {
	return NewRand(rng.Uint64())
}

// Poisson draws a Poisson variate. Non-positive means give 0.
func Poisson(rng *rand.Rand, mean float64) int {
	if !(mean > 0) {
		return 0
	}
	return int(distuv.Poisson{Lambda: mean, Src: rng}.Rand())
}

// Binomial draws the number of successes out of n trials.
func Binomial(rng *rand.Rand, n int, p float64) int {
	switch {
	case n <= 0 || p <= 0:
		return 0
	case p >= 1:
		return n
	}
	return int(distuv.Binomial{N: float64(n), P: p, Src: rng}.Rand())
}

// Exponential draws a waiting time given a rate. Zero rate gives
// +Inf.
func Exponential(rng *rand.Rand, rate float64) float64 {
	if !(rate > 0) {
		return math.Inf(1)
	}
	return rng.ExpFloat64() / rate
}

// LogChoose returns log of the binomial coefficient.
func LogChoose(n, k float64) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	if k == 0 || k == n {
		return 0
	}
	return -math.Log(n+1) - mathext.Lbeta(n-k+1, k+1)
}

// LogFactorial returns log(n!).
func LogFactorial(n float64) float64 {
	l, _ := math.Lgamma(n + 1)
	return l
}

// LogPoissonProb returns the log probability of k events given the
// mean.
func LogPoissonProb(k int, mean float64) float64 {
	if k < 0 {
		return math.Inf(-1)
	}
	if mean == 0 {
		if k == 0 {
			return 0
		}
		return math.Inf(-1)
	}
	return float64(k)*math.Log(mean) - mean - LogFactorial(float64(k))
}

// LogSumExp returns log(sum(exp(v))). All -Inf gives -Inf.
func LogSumExp(v []float64) float64 {
	if len(v) == 0 || math.IsInf(floats.Max(v), -1) {
		return math.Inf(-1)
	}
	return floats.LogSumExp(v)
}
