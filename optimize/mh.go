package optimize

import (
	"math"

	"golang.org/x/exp/rand"
)

// MH is a Metropolis-Hastings sampler. The likelihood of the current
// state is never recomputed, so a noisy but unbiased likelihood
// estimate gives a pseudo-marginal chain targeting the exact
// posterior.
type MH struct {
	BaseOptimizer
	// AccPeriod is the number of iterations between acceptance rate
	// reports.
	AccPeriod int
	annealing bool
	// iteration to skip before annealing
	annealingSkip int
	rng           *rand.Rand
}

// NewMH creates a new MH sampler. With annealing the prior is ignored
// and the temperature decreases after annealingSkip iterations.
func NewMH(rng *rand.Rand, annealing bool, annealingSkip int) (mcmc *MH) {
	name := "mh"
	if annealing {
		name = "annealing"
	}
	mcmc = &MH{
		BaseOptimizer: BaseOptimizer{
			name:      name,
			repPeriod: 10,
		},
		AccPeriod:     10,
		annealing:     annealing,
		annealingSkip: annealingSkip,
		rng:           rng,
	}
	return
}

// temperature returns the annealing temperature at the current
// iteration.
func (m *MH) temperature(iterations int) float64 {
	if !m.annealing || m.i < m.annealingSkip {
		return 1
	}
	return math.Pow(0.9, float64(m.i-m.annealingSkip)/float64(iterations-m.annealingSkip)*100)
}

// Run starts sampling.
func (m *MH) Run(iterations int) {
	m.SaveStart()
	m.PrintHeader(m.parameters)
	accepted := 0
	lastReported := -1
	l := m.startL
	for m.i = 0; m.i < iterations; m.i++ {
		T := m.temperature(iterations)
		if m.i > 0 && m.AccPeriod > 0 && m.i%m.AccPeriod == 0 {
			log.Infof("Acceptance rate %.2f%%", 100*float64(accepted)/float64(m.AccPeriod))
			accepted = 0
		}

		m.PrintLine(m.parameters, l, m.repPeriod)
		if m.repPeriod > 0 && m.i%m.repPeriod == 0 {
			if m.annealing {
				log.Debugf("%d: L=%f, T=%f", m.i, l, T)
			} else {
				log.Debugf("%d: L=%f", m.i, l)
			}
			lastReported = m.i
		}

		par := m.parameters[m.rng.Intn(len(m.parameters))]
		logHR := par.Propose(m.rng)
		logPrior := par.Prior() - par.OldPrior()
		if math.IsInf(par.Prior(), -1) {
			par.Reject()
			m.SaveCheckpoint(false)
			if m.interrupted() {
				break
			}
			continue
		}
		newL := m.Likelihood()
		m.calls++

		var a float64
		if m.annealing {
			a = math.Exp((newL-l)/T + logHR)
		} else {
			a = math.Exp(logPrior + newL - l + logHR)
		}

		if a > 1 || m.rng.Float64() < a {
			l = newL
			par.Accept(m.i)
			accepted++
			m.accepted++
			m.updateMax(m.parameters, l)
		} else {
			par.Reject()
		}
		m.l = l

		m.SaveCheckpoint(false)
		if m.interrupted() {
			break
		}
	}

	if m.i != lastReported {
		m.PrintLine(m.parameters, l, 1)
	}

	m.SaveCheckpoint(true)
	m.saveDeltaT()
}
