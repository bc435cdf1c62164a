package concurrency

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterBoundsConcurrency(t *testing.T) {
	l := NewLimiter(2)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, int64(2), l.CurrentActive())

	// Third acquire must block until a release.
	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, l.Acquire(cancelCtx))

	l.Release()
	require.NoError(t, l.Acquire(ctx))

	l.Release()
	l.Release()
	assert.Equal(t, int64(0), l.CurrentActive())
}

func TestLimiterDefaultsToOne(t *testing.T) {
	l := NewLimiter(0)
	assert.Equal(t, 1, l.Capacity())
}

func TestLimiterReleaseWithoutAcquireIsSafe(t *testing.T) {
	l := NewLimiter(1)
	l.Release()
	assert.Equal(t, int64(0), l.CurrentActive())
}

func TestLimiterMetrics(t *testing.T) {
	l := NewLimiter(4)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx); err == nil {
				l.Release()
			}
		}()
	}
	wg.Wait()

	m := l.GetMetrics()
	assert.Equal(t, int64(10), m.TotalAcquired)
	assert.Equal(t, int64(10), m.TotalReleased)
	assert.GreaterOrEqual(t, m.PeakConcurrent, int64(1))
	assert.LessOrEqual(t, m.PeakConcurrent, int64(4))
}
