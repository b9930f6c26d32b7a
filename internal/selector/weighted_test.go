package selector

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWeighted(t *testing.T) {
	tests := []struct {
		name    string
		weights map[string]int
		wantErr error
	}{
		{name: "valid", weights: map[string]int{"view_products": 3, "create_user": 2}},
		{name: "zero weights excluded", weights: map[string]int{"a": 1, "b": 0}},
		{name: "empty", weights: map[string]int{}, wantErr: ErrNoOptions},
		{name: "all zero", weights: map[string]int{"a": 0}, wantErr: ErrNoOptions},
		{name: "negative", weights: map[string]int{"a": -1}, wantErr: ErrInvalidWeight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewWeighted(tt.weights)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestWeighted_Metadata(t *testing.T) {
	s, err := NewWeighted(map[string]int{"view_products": 3, "create_user": 2, "disabled": 0, "get_user": 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"create_user", "get_user", "view_products"}, s.Names())
	assert.Equal(t, 7, s.TotalWeight())
	assert.Equal(t, 3, s.Weight("view_products"))
	assert.Equal(t, 0, s.Weight("disabled"))
	assert.InDelta(t, 3.0/7.0, s.Probability("view_products"), 1e-9)
}

func TestWeighted_Pick(t *testing.T) {
	s, err := NewWeighted(map[string]int{"a": 1, "b": 2, "c": 3})
	require.NoError(t, err)

	// cumulative: a=[0,1) b=[1,3) c=[3,6)
	expected := []string{"a", "b", "b", "c", "c", "c"}
	for target, want := range expected {
		assert.Equal(t, want, s.pick(target), "target %d", target)
	}
}

// TestWeighted_Distribution checks that selection frequencies follow the weights.
func TestWeighted_Distribution(t *testing.T) {
	weights := map[string]int{
		"view_products":    3,
		"create_user":      2,
		"get_user":         2,
		"create_order":     1,
		"add_order_item":   1,
		"view_orders":      1,
		"view_order_items": 1,
	}
	s, err := NewWeighted(weights)
	require.NoError(t, err)

	const iterations = 22000
	counts := make(map[string]int)
	for range iterations {
		name, err := s.Select()
		require.NoError(t, err)
		counts[name]++
	}

	for name, w := range weights {
		expected := float64(w) / 11.0
		actual := float64(counts[name]) / iterations
		assert.True(t, math.Abs(actual-expected) < 0.03,
			"%s: expected ~%.3f, got %.3f", name, expected, actual)
	}
}

func TestWeighted_SingleOption(t *testing.T) {
	s, err := NewWeighted(map[string]int{"only": 5})
	require.NoError(t, err)

	for range 100 {
		name, err := s.Select()
		require.NoError(t, err)
		assert.Equal(t, "only", name)
	}
}

func TestWeighted_Concurrent(t *testing.T) {
	s, err := NewWeighted(map[string]int{"a": 1, "b": 1})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			for range 100 {
				name, err := s.Select()
				assert.NoError(t, err)
				assert.Contains(t, []string{"a", "b"}, name)
			}
		})
	}
	wg.Wait()
}
