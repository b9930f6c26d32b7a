// Package selector provides weighted task selection and think time sampling
// for virtual users.
package selector

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"slices"
)

// Errors returned by the selector package.
var (
	// ErrNoOptions is returned when there is nothing with a positive weight to select.
	ErrNoOptions = errors.New("selector: no options available")
	// ErrInvalidWeight is returned when an option has a negative weight.
	ErrInvalidWeight = errors.New("selector: invalid weight")
)

// weightedEntry represents an entry in the weighted selection pool.
type weightedEntry struct {
	name             string
	weight           int
	cumulativeWeight int
}

// Weighted selects names with probability proportional to their weight.
// Thread Safety: immutable after construction, safe for concurrent use.
type Weighted struct {
	entries     []weightedEntry
	totalWeight int
}

// NewWeighted builds a selector from name to weight. Zero-weight names are
// excluded; negative weights are rejected.
func NewWeighted(weights map[string]int) (*Weighted, error) {
	// Sort names for deterministic ordering
	names := make([]string, 0, len(weights))
	for name, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: %s=%d", ErrInvalidWeight, name, w)
		}
		names = append(names, name)
	}
	slices.Sort(names)

	s := &Weighted{}
	for _, name := range names {
		w := weights[name]
		if w == 0 {
			continue
		}
		s.totalWeight += w
		s.entries = append(s.entries, weightedEntry{
			name:             name,
			weight:           w,
			cumulativeWeight: s.totalWeight,
		})
	}

	if len(s.entries) == 0 {
		return nil, ErrNoOptions
	}
	return s, nil
}

// Select chooses a name by weighted random selection.
func (s *Weighted) Select() (string, error) {
	// Generate random number in range [0, totalWeight)
	n, err := rand.Int(rand.Reader, big.NewInt(int64(s.totalWeight)))
	if err != nil {
		return "", err
	}
	return s.pick(int(n.Int64())), nil
}

// pick returns the entry whose cumulative range contains target.
func (s *Weighted) pick(target int) string {
	// Binary search for the entry
	low, high := 0, len(s.entries)-1
	for low < high {
		mid := (low + high) / 2
		if s.entries[mid].cumulativeWeight <= target {
			low = mid + 1
		} else {
			high = mid
		}
	}
	return s.entries[low].name
}

// Names returns the selectable names in sorted order.
func (s *Weighted) Names() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.name
	}
	return names
}

// Weight returns the weight of name, zero if it is not selectable.
func (s *Weighted) Weight(name string) int {
	for _, e := range s.entries {
		if e.name == name {
			return e.weight
		}
	}
	return 0
}

// TotalWeight returns the sum of all weights.
func (s *Weighted) TotalWeight() int {
	return s.totalWeight
}

// Probability returns the expected selection share of name.
func (s *Weighted) Probability(name string) float64 {
	return float64(s.Weight(name)) / float64(s.totalWeight)
}
