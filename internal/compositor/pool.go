package compositor

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of compositing jobs running at once. Each job holds
// a decoded document and image in memory.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool returns a pool admitting n concurrent jobs; n below 1 means 1.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(n))}
}

// Do runs fn once a slot is free, or returns ctx.Err() if ctx ends first.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
