package engine

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter bounds and paces oracle calls across a whole query. A nil Limiter
// admits every call immediately.
//
// Slots are held only for the duration of a single oracle call. A delegating
// node releases its slot before waiting on children, so any positive bound
// is deadlock free.
type Limiter struct {
	sem  *semaphore.Weighted
	rate *rate.Limiter
}

// NewLimiter creates a limiter allowing maxConcurrent calls at once and at
// most rps calls per second. Zero disables either bound.
func NewLimiter(maxConcurrent int, rps float64) *Limiter {
	l := &Limiter{}
	if maxConcurrent > 0 {
		l.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	if rps > 0 {
		l.rate = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
	return l
}

// Acquire blocks until a call may start. The returned release func must be
// called when the call returns.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	if l == nil {
		return func() {}, nil
	}
	if l.rate != nil {
		if err := l.rate.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if l.sem == nil {
		return func() {}, nil
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { l.sem.Release(1) }, nil
}
