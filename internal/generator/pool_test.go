package generator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	p, err := NewPool(size, func(id int) (*Generator, error) {
		return New(id, newCycleScript(3), 0)
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return p
}

func TestNewPool_InvalidSize(t *testing.T) {
	if _, err := NewPool(0, nil); err == nil {
		t.Error("expected error for size 0")
	}
}

func TestNewPool_FactoryError(t *testing.T) {
	_, err := NewPool(2, func(id int) (*Generator, error) {
		return New(id, nil, 0)
	})
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestPool_LeaseRelease(t *testing.T) {
	p := newTestPool(t, 2)
	ctx := context.Background()

	g1, err := p.Lease(ctx)
	if err != nil {
		t.Fatal(err)
	}
	g2, err := p.Lease(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if g1 == g2 {
		t.Fatal("same generator leased twice")
	}
	if p.Available() != 0 || p.InUse() != 2 {
		t.Errorf("Available=%d InUse=%d, want 0/2", p.Available(), p.InUse())
	}

	if err := p.Release(g1); err != nil {
		t.Errorf("Release: %v", err)
	}
	if err := p.Release(g1); !errors.Is(err, ErrNotLeased) {
		t.Errorf("double release: expected ErrNotLeased, got %v", err)
	}
	if p.Available() != 1 {
		t.Errorf("Available = %d, want 1", p.Available())
	}
}

func TestPool_ReleaseForeignGenerator(t *testing.T) {
	p := newTestPool(t, 1)
	other := newTestPool(t, 1)

	g, _ := other.Lease(context.Background())
	if err := p.Release(g); !errors.Is(err, ErrNotLeased) {
		t.Errorf("expected ErrNotLeased, got %v", err)
	}
	if err := p.Release(nil); !errors.Is(err, ErrNotLeased) {
		t.Errorf("expected ErrNotLeased for nil, got %v", err)
	}
}

func TestPool_LeaseBlocksUntilRelease(t *testing.T) {
	p := newTestPool(t, 1)
	g, _ := p.Lease(context.Background())

	got := make(chan *Generator)
	go func() {
		next, err := p.Lease(context.Background())
		if err != nil {
			t.Error(err)
		}
		got <- next
	}()

	select {
	case <-got:
		t.Fatal("Lease returned while the only generator was leased")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(g)

	select {
	case next := <-got:
		if next != g {
			t.Error("expected the released generator")
		}
	case <-time.After(time.Second):
		t.Fatal("Lease did not return after Release")
	}
}

func TestPool_LeaseContextCancelled(t *testing.T) {
	p := newTestPool(t, 1)
	p.Lease(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := p.Lease(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestPool_ExclusiveUnderContention(t *testing.T) {
	p := newTestPool(t, 4)
	ctx := context.Background()

	holders := make(map[*Generator]*atomic.Int32)
	for _, g := range p.all {
		holders[g] = &atomic.Int32{}
	}

	var wg sync.WaitGroup
	var violations atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g, err := p.Lease(ctx)
				if err != nil {
					t.Error(err)
					return
				}
				if holders[g].Add(1) != 1 {
					violations.Add(1)
				}
				g.Peek()
				holders[g].Add(-1)
				if err := p.Release(g); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	if violations.Load() != 0 {
		t.Errorf("%d concurrent holders observed", violations.Load())
	}
	if p.Available() != p.Size() {
		t.Errorf("Available = %d after all releases, want %d", p.Available(), p.Size())
	}
}

type closingScript struct {
	cycleScript
	closed *int
}

func (c *closingScript) Close() error {
	*c.closed++
	return nil
}

func TestPool_CloseClosesScripts(t *testing.T) {
	closed := 0
	p, err := NewPool(3, func(id int) (*Generator, error) {
		return New(id, &closingScript{cycleScript: cycleScript{end: 2}, closed: &closed}, 0)
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed != 3 {
		t.Errorf("closed %d scripts, want 3", closed)
	}
}
