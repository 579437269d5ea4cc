package generator

import (
	"context"
	"errors"
	"fmt"
)

// Pool is a fixed set of generators leased to one holder at a time. Its size
// bounds the number of transactions in flight.
type Pool struct {
	free chan *Generator
	all  []*Generator
}

// NewPool builds size generators with factory, ids starting at 1.
func NewPool(size int, factory func(id int) (*Generator, error)) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be >= 1, got %d", size)
	}
	p := &Pool{
		free: make(chan *Generator, size),
		all:  make([]*Generator, 0, size),
	}
	for id := 1; id <= size; id++ {
		g, err := factory(id)
		if err != nil {
			return nil, fmt.Errorf("creating generator %d: %w", id, err)
		}
		g.owner = p
		p.all = append(p.all, g)
		p.free <- g
	}
	return p, nil
}

// Lease blocks until a generator is free or ctx is done.
func (p *Pool) Lease(ctx context.Context) (*Generator, error) {
	select {
	case g := <-p.free:
		g.leased.Store(true)
		return g, nil
	default:
	}

	select {
	case g := <-p.free:
		g.leased.Store(true)
		return g, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release hands a leased generator back. Releasing a generator twice, or one
// from another pool, returns ErrNotLeased.
func (p *Pool) Release(g *Generator) error {
	if g == nil || g.owner != p || !g.leased.CompareAndSwap(true, false) {
		return ErrNotLeased
	}
	p.free <- g
	return nil
}

func (p *Pool) Size() int { return len(p.all) }

// Available returns the number of generators waiting to be leased.
func (p *Pool) Available() int { return len(p.free) }

// InUse returns the number of leased generators.
func (p *Pool) InUse() int { return len(p.all) - len(p.free) }

// Close closes every generator. Call it once no generator is leased.
func (p *Pool) Close() error {
	var errs []error
	for _, g := range p.all {
		if err := g.Close(); err != nil {
			errs = append(errs, fmt.Errorf("generator %d: %w", g.id, err))
		}
	}
	return errors.Join(errs...)
}
