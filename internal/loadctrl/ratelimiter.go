// Package loadctrl paces how fast virtual users are started.
package loadctrl

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// SpawnLimiter releases one user start at a time at a fixed rate, using a
// token bucket from golang.org/x/time/rate with a burst of one.
//
// Thread Safety: Safe for concurrent use.
type SpawnLimiter struct {
	limiter *rate.Limiter
	perSec  float64

	// Statistics
	totalAcquired atomic.Int64
	totalWaitTime atomic.Int64 // in nanoseconds
}

// SpawnStats contains statistics about spawn pacing.
type SpawnStats struct {
	// TotalAcquired is the total number of users released.
	TotalAcquired int64
	// CurrentRate is the configured users per second.
	CurrentRate float64
	// AvgWaitTime is the average time spent waiting in Acquire calls.
	AvgWaitTime time.Duration
}

// NewSpawnLimiter creates a limiter releasing usersPerSec users per second.
// A non-positive or infinite rate releases users without waiting.
func NewSpawnLimiter(usersPerSec float64) *SpawnLimiter {
	return &SpawnLimiter{
		limiter: rate.NewLimiter(limitFor(usersPerSec), 1),
		perSec:  usersPerSec,
	}
}

func limitFor(usersPerSec float64) rate.Limit {
	if usersPerSec <= 0 || math.IsInf(usersPerSec, 1) {
		return rate.Inf
	}
	return rate.Limit(usersPerSec)
}

// Acquire blocks until the next user may start or ctx is done.
func (l *SpawnLimiter) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	l.totalAcquired.Add(1)
	l.totalWaitTime.Add(int64(time.Since(start)))
	return nil
}

// CurrentRate returns the spawn rate in users per second.
func (l *SpawnLimiter) CurrentRate() float64 {
	return l.perSec
}

// Stats returns current statistics about the limiter.
func (l *SpawnLimiter) Stats() SpawnStats {
	acquired := l.totalAcquired.Load()

	var avgWait time.Duration
	if acquired > 0 {
		avgWait = time.Duration(l.totalWaitTime.Load() / acquired)
	}

	return SpawnStats{
		TotalAcquired: acquired,
		CurrentRate:   l.CurrentRate(),
		AvgWaitTime:   avgWait,
	}
}

// RampDuration returns how long it takes to start users at usersPerSec.
// The first user starts immediately.
func RampDuration(users int, usersPerSec float64) time.Duration {
	if users <= 1 || usersPerSec <= 0 || math.IsInf(usersPerSec, 1) {
		return 0
	}
	return time.Duration(float64(users-1) / usersPerSec * float64(time.Second))
}
