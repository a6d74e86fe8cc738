package emodel

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Schedule is a piecewise-constant rate. Values has one more element
// than Times. If Backward is set, Times are ages before the origin
// and Values[0] applies to the youngest interval.
type Schedule struct {
	Values   []float64
	Times    []float64
	Backward bool
}

// Const returns a schedule with a single constant value.
func Const(v float64) Schedule {
	return Schedule{Values: []float64{v}}
}

// IsEmpty returns true if no values were supplied.
func (s Schedule) IsEmpty() bool {
	return len(s.Values) == 0
}

func (s Schedule) validate(name string, min, max float64) error {
	if len(s.Values) == 0 {
		return fmt.Errorf("%s: no values", name)
	}
	if len(s.Values) != len(s.Times)+1 {
		return fmt.Errorf("%s: %d values require %d shift times, got %d",
			name, len(s.Values), len(s.Values)-1, len(s.Times))
	}
	for i, t := range s.Times {
		if math.IsNaN(t) {
			return fmt.Errorf("%s: shift time %d is NaN", name, i)
		}
		if i > 0 && t <= s.Times[i-1] {
			return fmt.Errorf("%s: shift times are not strictly increasing", name)
		}
	}
	for _, v := range s.Values {
		if math.IsNaN(v) || v < min || v > max {
			return fmt.Errorf("%s: value %v outside of [%v, %v]", name, v, min, max)
		}
	}
	return nil
}

// Forward returns shift times and values ordered in forward time.
func (s Schedule) Forward(origin float64) (times, values []float64) {
	n := len(s.Times)
	times = make([]float64, n)
	values = make([]float64, len(s.Values))
	if !s.Backward {
		copy(times, s.Times)
		copy(values, s.Values)
		return
	}
	for i := 0; i < n; i++ {
		times[i] = origin - s.Times[n-1-i]
	}
	for i := range values {
		values[i] = s.Values[len(s.Values)-1-i]
	}
	return
}

// ValueAt returns the value in effect at forward time t. A shift at
// exactly t is already in effect.
func (s Schedule) ValueAt(t, origin float64) float64 {
	if len(s.Values) == 0 {
		panic("empty schedule")
	}
	times, values := s.Forward(origin)
	return values[intervalIndex(times, t)]
}

// intervalIndex returns the number of shift times <= t.
func intervalIndex(times []float64, t float64) int {
	return sort.Search(len(times), func(i int) bool {
		return times[i] > t
	})
}

// ErrNoRate is returned when a required rate is missing.
var ErrNoRate = errors.New("required rate is missing")
