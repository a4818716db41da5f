package generator

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many model calls run at once across all generations.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// NewPool returns a pool of n slots; n <= 0 uses the number of CPUs.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(n)), size: int64(n)}
}

// Size is the number of slots.
func (p *Pool) Size() int { return int(p.size) }

// Do runs fn once a slot is free. Waiting for a slot honors ctx; fn itself
// is never interrupted.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if p == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
