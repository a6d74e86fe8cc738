package dist

import (
	"errors"
	"math"
	"sort"

	"golang.org/x/exp/rand"
)

// ReplacementSampler draws indices with replacement with
// probabilities proportional to the weights.
type ReplacementSampler struct {
	cumulative []float64
}

// NewReplacementSampler creates a sampler from non-negative weights
// which do not need to be normalized.
func NewReplacementSampler(weights []float64) (*ReplacementSampler, error) {
	if len(weights) == 0 {
		return nil, errors.New("no weights")
	}
	s := &ReplacementSampler{cumulative: make([]float64, len(weights))}
	sum := 0.0
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 1) {
			return nil, errors.New("weights should be finite and non-negative")
		}
		sum += w
		s.cumulative[i] = sum
	}
	if sum == 0 {
		return nil, errors.New("all weights are zero")
	}
	return s, nil
}

// Next draws an index.
func (s *ReplacementSampler) Next(rng *rand.Rand) int {
	n := len(s.cumulative)
	u := rng.Float64() * s.cumulative[n-1]
	i := sort.Search(n, func(i int) bool {
		return s.cumulative[i] > u
	})
	if i == n {
		// u can only reach the total through rounding
		i = n - 1
		for i > 0 && s.cumulative[i] == s.cumulative[i-1] {
			i--
		}
	}
	return i
}

// Sample fills idx with independent draws.
func (s *ReplacementSampler) Sample(rng *rand.Rand, idx []int) {
	for i := range idx {
		idx[i] = s.Next(rng)
	}
}
