package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_NilAdmitsEverything(t *testing.T) {
	var l *Limiter
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	release()
}

func TestLimiter_BoundsConcurrency(t *testing.T) {
	l := NewLimiter(3, 0)

	var inFlight, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(3))
}

func TestLimiter_AcquireHonorsContext(t *testing.T) {
	l := NewLimiter(1, 0)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiter_RatePacesCalls(t *testing.T) {
	l := NewLimiter(0, 50)

	start := time.Now()
	for i := 0; i < 60; i++ {
		release, err := l.Acquire(context.Background())
		require.NoError(t, err)
		release()
	}
	// 50 burst tokens, then 10 more at 50/s.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}
