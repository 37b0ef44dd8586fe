// Package limiter gates tile downloads behind two independent admission
// controls: a concurrency semaphore bounding simultaneous workers, and a
// paced rate gate keeping admissions under a per-window cap.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter admits tile download tasks. A task must pass both gates before
// its worker runs; releasing a permit frees a concurrency slot, while the
// rate admission ages out with the window on its own.
type Limiter struct {
	sem  *semaphore.Weighted
	rate *rate.Limiter
}

// New creates a limiter allowing maxConcurrent simultaneous downloads and
// at most requests admissions per window. Admissions are paced evenly
// across the window, which keeps every rolling window-length interval at
// or under the cap.
func New(maxConcurrent int64, requests int, window time.Duration) (*Limiter, error) {
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("limiter: max concurrent downloads must be positive, got %d", maxConcurrent)
	}
	if requests <= 0 {
		return nil, fmt.Errorf("limiter: rate limit requests must be positive, got %d", requests)
	}
	if window <= 0 {
		return nil, fmt.Errorf("limiter: rate limit window must be positive, got %s", window)
	}

	return &Limiter{
		sem:  semaphore.NewWeighted(maxConcurrent),
		rate: rate.NewLimiter(rate.Every(window / time.Duration(requests)), 1),
	}, nil
}

// Acquire blocks until both gates admit the caller, in request order.
// The returned permit must be released when the download reaches a
// terminal state.
func (l *Limiter) Acquire(ctx context.Context) (*Permit, error) {
	// Concurrency slot first: a task waiting on the rate gate should
	// already count as an active worker, otherwise a burst of admissions
	// could pile up more simultaneous downloads than configured.
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := l.rate.Wait(ctx); err != nil {
		l.sem.Release(1)
		return nil, err
	}
	return &Permit{release: func() { l.sem.Release(1) }}, nil
}

// Permit represents authorization to run one download.
type Permit struct {
	once    sync.Once
	release func()
}

// Release frees the concurrency slot. Safe to call more than once.
func (p *Permit) Release() {
	p.once.Do(p.release)
}
