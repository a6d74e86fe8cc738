package optimize

import (
	"math"
	"time"
)

const (
	TINY  = 1e-10
	SMALL = 1e-6
)

// DS is the downhill simplex (Nelder-Mead) maximizer. The simplex is
// restarted once around the best point after convergence.
type DS struct {
	BaseOptimizer
	// Delta is the initial simplex size.
	Delta      float64
	ftol       float64
	repeat     bool
	oldL       float64
	points     []Optimizable
	psum       []float64
	parameters []FloatParameters
	l          []float64
	newOpt     Optimizable
	newPar     FloatParameters
}

// NewDS creates a new downhill simplex optimizer.
func NewDS() (ds *DS) {
	ds = &DS{
		Delta: 1,
		ftol:  TINY,
	}
	ds.name = "simplex"
	ds.repPeriod = 10
	return
}

func (ds *DS) likelihood(i int) float64 {
	if !ds.parameters[i].InRange() {
		return math.Inf(-1)
	}
	ds.calls++
	return ds.points[i].Likelihood()
}

func (ds *DS) createSimplex(opt Optimizable, delta float64) {
	parameters := opt.GetFloatParameters()
	ds.points = make([]Optimizable, len(parameters)+1)
	ds.parameters = make([]FloatParameters, len(ds.points))
	ds.l = make([]float64, len(ds.points))
	ds.points[0] = opt
	ds.parameters[0] = parameters
	for i := 1; i < len(ds.points); i++ {
		point := opt.Copy()
		ds.points[i] = point
		ds.parameters[i] = point.GetFloatParameters()
	}
	for i := 0; i < len(parameters); i++ {
		parameter := ds.parameters[i+1][i]
		parameter.Set(parameter.Get() + delta)
	}
	for i := range ds.points {
		ds.l[i] = ds.likelihood(i)
	}
}

// amotry extrapolates by factor fac through the face of the simplex
// across from the low point, tries it, and replaces the low point if
// the new point is better.
func (ds *DS) amotry(ilo int, fac float64) float64 {
	if ds.newOpt == nil {
		ds.newOpt = ds.points[0].Copy()
		ds.newPar = ds.newOpt.GetFloatParameters()
	}
	ds.calcPsum()
	ndim := len(ds.newPar)
	fac1 := (1 - fac) / float64(ndim)
	fac2 := fac1 - fac
	for j := 0; j < ndim; j++ {
		ds.newPar[j].Set(ds.psum[j]*fac1 - ds.parameters[ilo][j].Get()*fac2)
	}
	l := math.Inf(-1)
	if ds.newPar.InRange() {
		l = ds.newOpt.Likelihood()
		ds.calls++
	}
	if l > ds.l[ilo] {
		ds.points[ilo], ds.newOpt = ds.newOpt, ds.points[ilo]
		ds.parameters[ilo], ds.newPar = ds.newPar, ds.parameters[ilo]
		ds.l[ilo] = l
	}
	return l
}

func (ds *DS) calcPsum() {
	if len(ds.psum) != len(ds.parameters[0]) {
		ds.psum = make([]float64, len(ds.parameters[0]))
	}
	for i := range ds.psum {
		ds.psum[i] = 0
		for _, parameters := range ds.parameters {
			ds.psum[i] += parameters[i].Get()
		}
	}
}

// SetOptimizable sets the model and creates the simplex around its
// parameters.
func (ds *DS) SetOptimizable(opt Optimizable) {
	ds.BaseOptimizer.SetOptimizable(opt)
	ds.startTime = time.Now()
	ds.createSimplex(opt, ds.Delta)
	ds.startL = ds.l[0]
	ds.maxL = math.Inf(-1)
}

// Run maximizes the likelihood. The parameters of the optimizable are
// set to the best point found.
func (ds *DS) Run(iterations int) {
	// Lowest (worst), next-lowest and highest points
	var ilo, inlo, ihi int
	var llo, lnlo, lhi float64
	if len(ds.points) < 2 {
		log.Warning("Nothing to optimize")
		ds.updateMax(ds.parameters[0], ds.l[0])
		ds.saveDeltaT()
		return
	}
	ds.PrintHeader(ds.parameters[0])
	for ds.i = 1; ds.i <= iterations; ds.i++ {
		if ds.l[0] < ds.l[1] {
			ilo, inlo, ihi = 0, 1, 1
		} else {
			ilo, inlo, ihi = 1, 0, 0
		}
		llo = ds.l[ilo]
		lnlo = ds.l[inlo]
		lhi = ds.l[ihi]
		for i := 2; i < len(ds.points); i++ {
			if ds.l[i] >= lhi {
				lhi = ds.l[i]
				ihi = i
			}
			if ds.l[i] < llo {
				lnlo = llo
				inlo = ilo
				llo = ds.l[i]
				ilo = i
			} else if ds.l[i] < lnlo {
				lnlo = ds.l[i]
				inlo = i
			}
		}
		ds.updateMax(ds.parameters[ihi], lhi)
		ds.BaseOptimizer.l = lhi
		if ds.repPeriod > 0 && ds.i%ds.repPeriod == 0 {
			log.Debugf("%d: L=%f (%f)", ds.i, lhi, lhi-llo)
		}
		ds.PrintLine(ds.parameters[ihi], lhi, ds.repPeriod)
		ds.SaveCheckpoint(false)

		rtol := 2 * math.Abs(ds.l[ihi]-ds.l[ilo]) / (math.Abs(ds.l[ilo]) + math.Abs(ds.l[ihi]) + TINY)
		if rtol < ds.ftol {
			if ds.repeat && math.Abs(ds.oldL-lhi) < SMALL {
				break
			}
			ds.repeat = true
			ds.oldL = lhi
			log.Infof("converged. retrying")
			ds.createSimplex(ds.points[ihi], ds.Delta)
			continue
		}
		l := ds.amotry(ilo, -1)
		switch {
		case l >= lhi:
			ds.amotry(ilo, 2)
		case l <= lnlo:
			lsave := llo
			l := ds.amotry(ilo, 0.5)
			if l <= lsave {
				for i := range ds.points {
					if i == ihi {
						continue
					}
					for j := range ds.parameters[i] {
						ds.parameters[i][j].Set(0.5 * (ds.parameters[i][j].Get() + ds.parameters[ihi][j].Get()))
					}
					ds.l[i] = ds.likelihood(i)
				}
			}
		}
		if ds.interrupted() {
			break
		}
	}
	if ds.i > iterations {
		ds.i = iterations
		log.Warningf("Iterations exceeded (%d)", iterations)
	}

	if ds.maxLPar != nil {
		if err := ds.BaseOptimizer.parameters.SetValues(ds.maxLPar); err != nil {
			log.Error(err)
		}
	}
	log.Info("Finished downhill simplex")
	log.Infof("Parameter  names: %v", ds.BaseOptimizer.parameters.NamesString())
	log.Infof("Parameter values: %v", ds.BaseOptimizer.parameters.ValuesString())
	ds.SaveCheckpoint(true)
	ds.saveDeltaT()
}
