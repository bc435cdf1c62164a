// Package concurrency provides the bounded-parallelism primitive used when
// a pure processor stage is fanned out across records.
package concurrency

import (
	"context"
	"sync/atomic"
	"time"
)

// Metrics tracks limiter usage.
type Metrics struct {
	TotalAcquired   int64
	TotalReleased   int64
	PeakConcurrent  int64
	TotalWaitTimeNs int64
}

// Limiter is a context-aware semaphore with usage metrics.
type Limiter struct {
	sem    chan struct{}
	active atomic.Int64

	totalAcquired atomic.Int64
	totalReleased atomic.Int64
	peak          atomic.Int64
	totalWaitNs   atomic.Int64
}

// NewLimiter creates a limiter allowing at most maxConcurrent holders.
func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{sem: make(chan struct{}, maxConcurrent)}
}

// Acquire blocks until a slot is free or the context is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	select {
	case l.sem <- struct{}{}:
		l.totalWaitNs.Add(time.Since(start).Nanoseconds())
		l.totalAcquired.Add(1)
		current := l.active.Add(1)
		for {
			peak := l.peak.Load()
			if current <= peak || l.peak.CompareAndSwap(peak, current) {
				break
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot to the limiter.
func (l *Limiter) Release() {
	select {
	case <-l.sem:
		l.active.Add(-1)
		l.totalReleased.Add(1)
	default:
		// Release without a matching Acquire.
	}
}

// CurrentActive returns the number of currently held slots.
func (l *Limiter) CurrentActive() int64 {
	return l.active.Load()
}

// Capacity returns the maximum number of concurrent holders.
func (l *Limiter) Capacity() int {
	return cap(l.sem)
}

// GetMetrics returns a snapshot of limiter usage.
func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalAcquired:   l.totalAcquired.Load(),
		TotalReleased:   l.totalReleased.Load(),
		PeakConcurrent:  l.peak.Load(),
		TotalWaitTimeNs: l.totalWaitNs.Load(),
	}
}
