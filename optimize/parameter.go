package optimize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"

	"golang.org/x/exp/rand"
)

// Starting points drawn by Randomize are limited to [MIN, MAX].
const (
	MIN = -10
	MAX = +10
)

// FloatParameter is a real-valued model parameter.
type FloatParameter interface {
	Name() string
	Prior() float64
	OldPrior() float64
	// Propose changes the value and returns the log Hastings ratio of
	// the move.
	Propose(rng *rand.Rand) float64
	Accept(int)
	Reject()
	String() string
	SetMin(float64)
	SetMax(float64)
	GetMin() float64
	GetMax() float64
	SetOnChange(func())
	SetProposalFunc(ProposalFunc)
	SetPriorFunc(func(float64) float64)
	Get() float64
	Set(float64)
	InRange() bool
	ValueInRange(float64) bool
}

// FloatParameterGenerator creates a parameter given the pointer to
// its value and a name.
type FloatParameterGenerator func(*float64, string) FloatParameter

// FloatParameters is a list of parameters. It is marshalled to JSON as
// an object mapping names to values.
type FloatParameters []FloatParameter

func (p *FloatParameters) Append(par FloatParameter) {
	*p = append(*p, par)
}

func (p *FloatParameters) Names(is []string) (s []string) {
	if len(is) != len(*p) {
		s = make([]string, len(*p))
	} else {
		s = is
	}
	for i, par := range *p {
		s[i] = par.Name()
	}
	return
}

func (p *FloatParameters) Values(iv []float64) (v []float64) {
	if len(iv) != len(*p) {
		v = make([]float64, len(*p))
	} else {
		v = iv
	}
	for i, par := range *p {
		v[i] = par.Get()
	}
	return
}

func (p *FloatParameters) ValuesInRange(vals []float64) bool {
	if len(vals) != len(*p) {
		panic("Incorrect number of parameters")
	}
	for i, par := range *p {
		if !par.ValueInRange(vals[i]) {
			return false
		}
	}
	return true
}

func (p *FloatParameters) SetValues(v []float64) error {
	if len(v) != len(*p) {
		return fmt.Errorf("incorrect number of parameters: expected %d, got %d", len(*p), len(v))
	}
	for i, par := range *p {
		par.Set(v[i])
	}
	return nil
}

// SetFromMap sets the parameter values from a name to value map. All
// the names should be known.
func (p *FloatParameters) SetFromMap(m map[string]float64) error {
	byName := make(map[string]FloatParameter, len(*p))
	for _, par := range *p {
		byName[par.Name()] = par
	}
	for name, v := range m {
		par, ok := byName[name]
		if !ok {
			return fmt.Errorf("unknown parameter: %s", name)
		}
		par.Set(v)
	}
	return nil
}

// ReadLine sets the values from a trajectory line.
func (p *FloatParameters) ReadLine(l string) error {
	v, err := ReadFloats(l)
	if err != nil {
		return err
	}
	if len(v) < 2 {
		return fmt.Errorf("trajectory line is too short: %q", l)
	}
	return p.SetValues(v[2:])
}

// ReadFromJSON sets the values from a JSON file.
func (p *FloatParameters) ReadFromJSON(fn string) error {
	b, err := os.ReadFile(fn)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, p)
}

func (p *FloatParameters) Update(pSrc *FloatParameters) {
	for i := range *p {
		(*p)[i].Set((*pSrc)[i].Get())
	}
}

// Randomize draws uniform values within the parameter ranges.
func (p *FloatParameters) Randomize(rng *rand.Rand) {
	for _, par := range *p {
		min := math.Max(MIN, par.GetMin())
		max := math.Min(MAX, par.GetMax())
		d := max - min
		par.Set(min + rng.Float64()*d)
	}
}

func (p *FloatParameters) InRange() bool {
	for _, par := range *p {
		if !par.InRange() {
			return false
		}
	}
	return true
}

// Prior returns the sum of log priors.
func (p *FloatParameters) Prior() (res float64) {
	for _, par := range *p {
		res += par.Prior()
	}
	return
}

func (p *FloatParameters) NamesString() (s string) {
	for i, par := range *p {
		if i != 0 {
			s += "\t"
		}
		s += par.Name()
	}
	return
}

func (p *FloatParameters) ValuesString() (s string) {
	for i, par := range *p {
		if i != 0 {
			s += "\t"
		}
		s += par.String()
	}
	return
}

// MarshalJSON encodes the parameters as an object keeping their order.
func (p FloatParameters) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, par := range p {
		if i != 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(par.Name())
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(par.Get())
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON sets the values of existing parameters.
func (p *FloatParameters) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	return p.SetFromMap(m)
}

// BasicFloatParameter is a parameter with a flat prior and a normal
// proposal by default. Proposals outside the range are reflected.
type BasicFloatParameter struct {
	*float64
	old          float64
	name         string
	priorFunc    func(float64) float64
	proposalFunc ProposalFunc
	min          float64
	max          float64
	onChange     func()
}

func NewBasicFloatParameter(par *float64, name string) *BasicFloatParameter {
	return &BasicFloatParameter{
		float64:      par,
		name:         name,
		priorFunc:    FlatPrior,
		proposalFunc: NormalProposal(1),
		min:          math.Inf(-1),
		max:          math.Inf(+1),
	}
}

func BasicFloatParameterGenerator(par *float64, name string) FloatParameter {
	return NewBasicFloatParameter(par, name)
}

func (p *BasicFloatParameter) SetMin(min float64) {
	p.min = min
}

func (p *BasicFloatParameter) SetMax(max float64) {
	p.max = max
}

func (p *BasicFloatParameter) SetPriorFunc(f func(float64) float64) {
	p.priorFunc = f
}

func (p *BasicFloatParameter) SetProposalFunc(f ProposalFunc) {
	p.proposalFunc = f
}

func (p *BasicFloatParameter) SetOnChange(f func()) {
	p.onChange = f
}

func (p *BasicFloatParameter) Get() float64 {
	return *p.float64
}

func (p *BasicFloatParameter) Set(v float64) {
	if *p.float64 == v {
		// do nothing if value has not changed
		return
	}
	*p.float64 = v
	if p.onChange != nil {
		p.onChange()
	}
}

func (p *BasicFloatParameter) GetMin() float64 {
	return p.min
}

func (p *BasicFloatParameter) GetMax() float64 {
	return p.max
}

func (p *BasicFloatParameter) ValueInRange(v float64) bool {
	return v >= p.min && v <= p.max
}

func (p *BasicFloatParameter) InRange() bool {
	return p.ValueInRange(*p.float64)
}

func (p *BasicFloatParameter) Name() string {
	return p.name
}

func (p *BasicFloatParameter) Prior() float64 {
	return p.priorFunc(*p.float64)
}

func (p *BasicFloatParameter) OldPrior() float64 {
	return p.priorFunc(p.old)
}

func (p *BasicFloatParameter) reflect() {
	if math.IsInf(*p.float64, 0) || math.IsNaN(*p.float64) {
		*p.float64 = p.old
		return
	}
	for *p.float64 < p.min || *p.float64 > p.max {
		if *p.float64 < p.min {
			*p.float64 = p.min + (p.min - *p.float64)
		}
		if *p.float64 > p.max {
			*p.float64 = p.max - (*p.float64 - p.max)
		}
	}
}

func (p *BasicFloatParameter) Propose(rng *rand.Rand) (logHR float64) {
	p.old = *p.float64
	*p.float64, logHR = p.proposalFunc(rng, *p.float64)
	p.reflect()
	if p.onChange != nil {
		p.onChange()
	}
	return
}

func (p *BasicFloatParameter) Reject() {
	*p.float64, p.old = p.old, *p.float64
	if p.onChange != nil {
		p.onChange()
	}
}

func (p *BasicFloatParameter) Accept(iter int) {
}

func (p *BasicFloatParameter) String() string {
	return strconv.FormatFloat(*p.float64, 'f', 6, 64)
}
