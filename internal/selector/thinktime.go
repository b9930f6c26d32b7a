package selector

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Think time distributions.
const (
	Uniform     = "uniform"
	Exponential = "exponential"
	Normal      = "normal"
)

// ThinkTime samples the pause between two actions of a user.
// Samples always fall within [Min, Max].
type ThinkTime struct {
	Min          time.Duration
	Max          time.Duration
	Distribution string
}

// Next returns the next think time.
func (t ThinkTime) Next() time.Duration {
	if t.Min >= t.Max {
		return t.Min
	}

	switch t.Distribution {
	case Exponential:
		return exponentialDuration(t.Min, t.Max)
	case Normal:
		return normalDuration(t.Min, t.Max)
	default: // "uniform"
		return uniformDuration(t.Min, t.Max)
	}
}

// uniformDuration generates a uniformly distributed random duration.
func uniformDuration(min, max time.Duration) time.Duration {
	rangeNs := int64(max - min)
	n, err := rand.Int(rand.Reader, big.NewInt(rangeNs+1))
	if err != nil {
		return min
	}
	return min + time.Duration(n.Int64())
}

// exponentialDuration samples min plus an exponential offset with mean
// (max - min) / 2, clamped to max.
func exponentialDuration(min, max time.Duration) time.Duration {
	u := unitFloat()
	mean := float64(max-min) / 2
	offset := -math.Log(1-u) * mean
	return clamp(min+time.Duration(offset), min, max)
}

// normalDuration uses the Box-Muller transform with mean (min + max) / 2 and a
// standard deviation of one sixth of the range.
func normalDuration(min, max time.Duration) time.Duration {
	u1 := unitFloat()
	u2 := unitFloat()
	if u1 == 0 {
		u1 = math.SmallestNonzeroFloat64
	}
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

	mean := float64(min+max) / 2
	stddev := float64(max-min) / 6
	return clamp(time.Duration(mean+z*stddev), min, max)
}

// unitFloat returns a random float in [0, 1).
func unitFloat() float64 {
	const precision = 1 << 53
	n, err := rand.Int(rand.Reader, big.NewInt(precision))
	if err != nil {
		return 0
	}
	return float64(n.Int64()) / precision
}

func clamp(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
