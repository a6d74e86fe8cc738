package optimize

import (
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"
)

// LBFGSB is a bounded quasi-Newton optimizer with a finite difference
// gradient. It requires a deterministic likelihood.
type LBFGSB struct {
	BaseOptimizer
	// DH is the finite difference step.
	DH         float64
	grad       []float64
	iterations int
	// stopped makes the objective flat, which ends the minimization.
	stopped bool
	lastF   float64
}

// NewLBFGSB creates a new L-BFGS-B optimizer.
func NewLBFGSB() *LBFGSB {
	l := &LBFGSB{DH: 1e-6}
	l.name = "lbfgsb"
	l.repPeriod = 1
	return l
}

// logger is called by the minimizer after every iteration.
func (l *LBFGSB) logger(info *lbfgsb.OptimizationIterationInformation) {
	l.i = info.Iteration
	l.PrintLine(l.parameters, -info.F, l.repPeriod)
	l.SaveCheckpoint(false)
	if l.interrupted() {
		l.stopped = true
	}
	if l.iterations > 0 && l.i >= l.iterations {
		log.Warningf("Iterations exceeded (%d)", l.iterations)
		l.stopped = true
	}
}

// likelihood computes the log likelihood at x.
func (l *LBFGSB) likelihood(x []float64) float64 {
	if !l.parameters.ValuesInRange(x) {
		return math.Inf(-1)
	}
	if err := l.parameters.SetValues(x); err != nil {
		log.Error(err)
		return math.Inf(-1)
	}
	res := l.Likelihood()
	l.calls++
	l.updateMax(l.parameters, res)
	return res
}

// EvaluateFunction returns the negative log likelihood.
func (l *LBFGSB) EvaluateFunction(x []float64) float64 {
	if l.stopped {
		return l.lastF
	}
	l.lastF = -l.likelihood(x)
	return l.lastF
}

// EvaluateGradient returns the central difference gradient of the
// negative log likelihood.
func (l *LBFGSB) EvaluateGradient(x []float64) []float64 {
	if l.grad == nil {
		l.grad = make([]float64, len(x))
	}
	if l.stopped {
		for i := range l.grad {
			l.grad[i] = 0
		}
		return l.grad
	}
	y := append([]float64(nil), x...)
	for i := range x {
		y[i] = x[i] - l.DH
		l1 := l.likelihood(y)
		y[i] = x[i] + l.DH
		l2 := l.likelihood(y)
		y[i] = x[i]
		l.grad[i] = -(l2 - l1) / 2 / l.DH
	}
	if err := l.parameters.SetValues(x); err != nil {
		log.Error(err)
	}
	return l.grad
}

// Run minimizes the negative log likelihood. The minimization stops
// after the given number of iterations if it is positive.
func (l *LBFGSB) Run(iterations int) {
	l.iterations = iterations
	l.SaveStart()
	l.lastF = -l.startL
	l.PrintHeader(l.parameters)
	l.PrintLine(l.parameters, l.l, l.repPeriod)

	bounds := make([][2]float64, len(l.parameters))
	for i, par := range l.parameters {
		bounds[i][0] = par.GetMin() + 1e-5
		bounds[i][1] = par.GetMax() - 1e-5
	}

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(1e-9)
	opt.SetGTolerance(1e-9)
	opt.SetBounds(bounds)
	opt.SetLogger(l.logger)

	_, exitStatus := opt.Minimize(l, l.parameters.Values(nil))
	log.Infof("Exit status: %v", exitStatus)

	if l.maxLPar != nil {
		if err := l.parameters.SetValues(l.maxLPar); err != nil {
			log.Error(err)
		}
	}
	log.Info("Finished L-BFGS-B")
	log.Infof("Likelihood function calls: %v", l.calls)
	l.SaveCheckpoint(true)
	l.saveDeltaT()
}
