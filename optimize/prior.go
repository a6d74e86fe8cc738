package optimize

import (
	"math"
)

// FlatPrior is an improper prior with constant density.
func FlatPrior(x float64) float64 {
	return 0
}

func UniformPrior(min, max float64, incmin, incmax bool) func(float64) float64 {
	if max <= min {
		panic("max <= min")
	}
	return func(x float64) float64 {
		if (incmin && x < min) ||
			(!incmin && x <= min) ||
			(incmax && x > max) ||
			(!incmax && x >= max) {
			return math.Inf(-1)
		}
		return -math.Log(max - min)
	}
}

func GammaPrior(shape, scale float64, inczero bool) func(float64) float64 {
	if shape <= 0 || scale <= 0 {
		panic("shape and scale of gamma distribution must be > 0")
	}
	g, _ := math.Lgamma(shape)
	return func(x float64) float64 {
		if x < 0 || (x == 0 && !inczero) {
			return math.Inf(-1)
		}
		return (shape-1)*math.Log(x) - x/scale - shape*math.Log(scale) - g
	}
}

func ExponentialPrior(rate float64, inczero bool) func(float64) float64 {
	if rate <= 0 {
		panic("exponential rate should be > 0")
	}
	return func(x float64) float64 {
		if x < 0 || (x == 0 && !inczero) {
			return math.Inf(-1)
		}
		return math.Log(rate) - rate*x
	}
}

// LogNormalPrior returns the log density of a log-normal distribution
// with the given mean and standard deviation of the logarithm.
func LogNormalPrior(mu, sigma float64) func(float64) float64 {
	if sigma <= 0 {
		panic("sigma of log-normal distribution must be > 0")
	}
	return func(x float64) float64 {
		if x <= 0 {
			return math.Inf(-1)
		}
		z := (math.Log(x) - mu) / sigma
		return -z*z/2 - math.Log(x*sigma) - 0.5*math.Log(2*math.Pi)
	}
}

// ProductPrior returns the log density of the product of two
// densities.
func ProductPrior(f, g func(float64) float64) func(float64) float64 {
	return func(x float64) float64 {
		return f(x) + g(x)
	}
}
