// Package optimize implements samplers and optimizers over the
// parameters of a model with a possibly noisy likelihood.
package optimize

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/op/go-logging"

	"github.com/tgvaughan/EpiInf-sub000/checkpoint"
)

var log = logging.MustGetLogger("optimize")

// Optimizable is a model which can be optimized or sampled.
type Optimizable interface {
	GetFloatParameters() FloatParameters
	// Likelihood returns the log likelihood or its estimate.
	Likelihood() float64
	// Copy returns an independent copy.
	Copy() Optimizable
}

// Optimizer is an optimizer or a sampler.
type Optimizer interface {
	SetOptimizable(Optimizable)
	SetOutput(io.Writer)
	SetCheckpointIO(*checkpoint.IO)
	WatchSignals(...os.Signal)
	SetReportPeriod(period int)
	Run(iterations int)
	PrintResults()
	Summary() Summary
}

// Summary stores the results of an optimization run.
type Summary struct {
	// Method is the optimization method name.
	Method string `json:"method"`
	// Iterations is the number of performed iterations.
	Iterations int `json:"iterations"`
	// Calls is the number of likelihood computations.
	Calls int `json:"likelihoodCalls"`
	// StartLnL is the log likelihood at the starting point.
	StartLnL float64 `json:"startLnL"`
	// MaxLnL is the maximum log likelihood encountered.
	MaxLnL float64 `json:"maxLnL"`
	// MaxLParameters are the parameter values of MaxLnL.
	MaxLParameters map[string]float64 `json:"maxLParameters"`
	// AcceptanceRate is the overall acceptance rate of a sampler.
	AcceptanceRate float64 `json:"acceptanceRate,omitempty"`
	// Time is the run time in seconds.
	Time float64 `json:"time"`
}

// BaseOptimizer contains the code shared by the optimizers.
type BaseOptimizer struct {
	Optimizable
	name       string
	parameters FloatParameters
	i          int
	calls      int
	accepted   int
	startL     float64
	l          float64
	maxL       float64
	maxLPar    []float64
	repPeriod  int
	sig        chan os.Signal
	out        io.Writer
	cpIO       *checkpoint.IO
	startTime  time.Time
	deltaT     time.Duration
	// Quiet disables the trajectory output.
	Quiet bool
}

// SetOptimizable sets the model to optimize.
func (o *BaseOptimizer) SetOptimizable(opt Optimizable) {
	o.Optimizable = opt
	o.parameters = opt.GetFloatParameters()
}

// SetOutput sets the trajectory output, os.Stdout by default.
func (o *BaseOptimizer) SetOutput(w io.Writer) {
	o.out = w
}

// SetCheckpointIO enables periodic checkpoints.
func (o *BaseOptimizer) SetCheckpointIO(cpIO *checkpoint.IO) {
	o.cpIO = cpIO
}

// WatchSignals makes the optimizer stop after receiving one of the
// signals.
func (o *BaseOptimizer) WatchSignals(sigs ...os.Signal) {
	o.sig = make(chan os.Signal, 1)
	signal.Notify(o.sig, sigs...)
}

// SetReportPeriod sets the number of iterations between the
// trajectory lines.
func (o *BaseOptimizer) SetReportPeriod(period int) {
	o.repPeriod = period
}

// interrupted returns true if one of the watched signals was received.
func (o *BaseOptimizer) interrupted() bool {
	select {
	case s := <-o.sig:
		log.Warningf("Received signal %v, exiting.", s)
		return true
	default:
		return false
	}
}

// SaveStart computes the likelihood at the starting point.
func (o *BaseOptimizer) SaveStart() {
	o.startTime = time.Now()
	o.startL = o.Likelihood()
	o.calls++
	o.l = o.startL
	o.maxL = o.startL
	o.maxLPar = o.parameters.Values(o.maxLPar)
	log.Infof("Starting lnL=%v", o.startL)
}

// saveDeltaT stores the running time.
func (o *BaseOptimizer) saveDeltaT() {
	o.deltaT = time.Since(o.startTime)
}

// updateMax records the current parameters if l is the maximum.
func (o *BaseOptimizer) updateMax(par FloatParameters, l float64) {
	if l > o.maxL {
		o.maxL = l
		o.maxLPar = par.Values(o.maxLPar)
	}
}

func (o *BaseOptimizer) output() io.Writer {
	if o.out == nil {
		return os.Stdout
	}
	return o.out
}

// PrintHeader prints the header of the trajectory table.
func (o *BaseOptimizer) PrintHeader(par FloatParameters) {
	if !o.Quiet {
		fmt.Fprintf(o.output(), "iteration\tlikelihood\t%s\n", par.NamesString())
	}
}

// PrintLine prints a line of the trajectory every repPeriod
// iterations.
func (o *BaseOptimizer) PrintLine(par FloatParameters, l float64, repPeriod int) {
	if o.Quiet || repPeriod <= 0 || o.i%repPeriod != 0 {
		return
	}
	fmt.Fprintf(o.output(), "%d\t%f\t%s\n", o.i, l, par.ValuesString())
}

// PrintResults logs the maximum likelihood parameters.
func (o *BaseOptimizer) PrintResults() {
	log.Noticef("Maximum lnL=%v", o.maxL)
	names := o.parameters.Names(nil)
	for i, v := range o.maxLPar {
		log.Noticef("%s=%v", names[i], v)
	}
}

// SaveCheckpoint saves the maximum likelihood parameters if the last
// checkpoint is old or final is set.
func (o *BaseOptimizer) SaveCheckpoint(final bool) {
	if o.cpIO == nil || !(final || o.cpIO.Old()) {
		return
	}
	if err := o.cpIO.Save(&checkpoint.Data{
		Parameters: o.maxLParMap(),
		Likelihood: o.maxL,
		Iter:       o.i,
		Final:      final,
	}); err != nil {
		log.Error("Error saving checkpoint:", err)
	}
}

func (o *BaseOptimizer) maxLParMap() map[string]float64 {
	res := make(map[string]float64, len(o.maxLPar))
	names := o.parameters.Names(nil)
	for i, v := range o.maxLPar {
		res[names[i]] = v
	}
	return res
}

// Summary returns the run summary.
func (o *BaseOptimizer) Summary() Summary {
	s := Summary{
		Method:         o.name,
		Iterations:     o.i,
		Calls:          o.calls,
		StartLnL:       o.startL,
		MaxLnL:         o.maxL,
		MaxLParameters: o.maxLParMap(),
		Time:           o.deltaT.Seconds(),
	}
	if o.i > 0 {
		s.AcceptanceRate = float64(o.accepted) / float64(o.i)
	}
	return s
}

// GetL returns the current log likelihood.
func (o *BaseOptimizer) GetL() float64 {
	return o.l
}

// GetMaxL returns the maximum log likelihood.
func (o *BaseOptimizer) GetMaxL() float64 {
	return o.maxL
}

// GetMaxLParameters returns the maximum likelihood parameter values.
func (o *BaseOptimizer) GetMaxLParameters() []float64 {
	return o.maxLPar
}
