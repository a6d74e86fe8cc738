// This code implements ideas and pseudocode presented by Xavier Meyer
// <Xavier.Meyer.2 at unil.ch>.

package optimize

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

// AdaptiveParameter is an adaptive parameter for adaptive MCMC. The
// proposal variance is learned from the accepted values.
type AdaptiveParameter struct {
	*BasicFloatParameter
	*AdaptiveSettings

	// t counts the updates, loct the sign changes of the batch
	// mean drift.
	t, loct int

	mean, variance float64
	drift          bool

	// batch running mean and sum of squares
	bmean, bm2 float64

	// window holds the last WSize mean estimates used for the
	// convergence check.
	window    []float64
	next      int
	converged bool
}

// AdaptiveSettings are settings for an adaptive MCMC.
type AdaptiveSettings struct {
	// WSize window size to compute mean and variance.
	WSize int
	// K specifies how often Mu should be updated.
	K int
	// Skip is the number of iterations to skip before starting
	// adaptation.
	Skip int
	// MaxAdapt is the number of iterations to adapt.
	MaxAdapt int
	// MaxUpdate maximum number of update for a parameter.
	MaxUpdate int
	// Epsilon is part of stopping criteria for stopping
	// adaptation.
	Epsilon float64
	// C is a Robbins-Monro algorithm parameter
	C float64
	// Nu is a Robbins-Monro algorithm parameter
	Nu float64
	// Lambda is the proposal multiplier.
	Lambda float64
	// SD is initial standard deviation.
	SD float64
	// LogScale makes the parameters adapt and move on the log scale.
	// Used for rates which must stay positive.
	LogScale bool
}

// square computes x^2.
func square(x float64) float64 {
	return x * x
}

// NewAdaptiveSettings creates new settings for adaptive MCMC.
func NewAdaptiveSettings() *AdaptiveSettings {
	return &AdaptiveSettings{
		WSize:     10,
		K:         20,
		Skip:      500,
		MaxAdapt:  2000,
		MaxUpdate: 200,
		Epsilon:   5e-1,
		C:         1,
		Nu:        3,
		Lambda:    2.4,
		SD:        1e-2,
	}
}

// ParameterGenerator generates an adaptive MCMC parameter.
func (as *AdaptiveSettings) ParameterGenerator(par *float64, name string) FloatParameter {
	return NewAdaptiveParameter(par, name, as)
}

// NewAdaptiveParameter creates a new adaptive MCMC parameter.
func NewAdaptiveParameter(par *float64, name string, as *AdaptiveSettings) *AdaptiveParameter {
	if as.SD <= 0 {
		panic("SD should be > 0")
	}
	if as.K < 2 {
		panic("K should be >= 2")
	}
	a := &AdaptiveParameter{
		BasicFloatParameter: NewBasicFloatParameter(par, name),
		AdaptiveSettings:    as,
		mean:                math.NaN(),
		variance:            square(as.SD),
		window:              make([]float64, 0, as.WSize),
	}
	a.proposalFunc = a.AdaptiveProposal()
	return a
}

// value is the current value on the adaptation scale.
func (a *AdaptiveParameter) value() float64 {
	if a.LogScale {
		return math.Log(*a.float64)
	}
	return *a.float64
}

// Accept is called if value is accepted.
func (a *AdaptiveParameter) Accept(iter int) {
	if iter >= a.Skip && iter < a.MaxAdapt {
		a.update()
	}
}

// gain returns the Robbins-Monro step size, which decreases every
// time the batch mean changes its drift direction.
func (a *AdaptiveParameter) gain() float64 {
	up := a.bmean > a.mean
	if a.bmean != a.mean && up != a.drift {
		a.loct++
	}
	a.drift = up
	beta := 1 / math.Max(1, 1+a.Nu)
	return a.C / math.Pow(float64(a.loct+1), beta)
}

// checkConvergence stops the adaptation once the relative spread of
// the recent mean estimates is below Epsilon or after MaxUpdate
// batches.
func (a *AdaptiveParameter) checkConvergence() {
	if len(a.window) < a.WSize {
		a.window = append(a.window, a.mean)
	} else {
		a.window[a.next] = a.mean
		a.next = (a.next + 1) % a.WSize
	}
	if a.t/a.K > a.MaxUpdate {
		a.converged = true
		log.Infof("%s converged, reason: max update", a.Name())
		return
	}
	if len(a.window) < a.WSize {
		return
	}
	mean, sd := stat.MeanStdDev(a.window, nil)
	if sd/math.Abs(mean) < a.Epsilon {
		a.converged = true
		log.Infof("%s converged, reason: SD/mean", a.Name())
	}
}

// update adds the current value to the batch. At the end of every
// batch of K values the mean and the variance move towards the batch
// estimates.
func (a *AdaptiveParameter) update() {
	if a.converged {
		return
	}
	v := a.value()
	if math.IsNaN(a.mean) {
		a.mean = v
	}
	bi := a.t % a.K
	if a.t > 0 && bi == 0 {
		gamma := a.gain()
		a.mean += gamma * (a.bmean - a.mean)
		a.variance += gamma * (a.bm2/float64(a.K-1) - a.variance)
		a.checkConvergence()
		a.bmean, a.bm2 = 0, 0
	}

	delta := v - a.bmean
	a.bmean += delta / float64(bi+1)
	a.bm2 += delta * (v - a.bmean)
	a.t++
}

// AdaptiveProposal proposes a new point using adaptive MCMC.
func (a *AdaptiveParameter) AdaptiveProposal() ProposalFunc {
	return func(rng *rand.Rand, x float64) (float64, float64) {
		step := rng.NormFloat64() * math.Sqrt(a.variance) * a.Lambda
		if a.LogScale {
			return x * math.Exp(step), step
		}
		return x + step, 0
	}
}
