// Package gate implements the platform-wide concurrency gate: a bounded
// number of reconcile slots, acquired FIFO, with latest-wins coalescing
// so a superseded waiter for the same resource can be cancelled instead
// of holding a place in line.
package gate

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of in-flight reconciles.
type Gate struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	waiters int64
	cancels map[string]*cancelToken
}

// cancelToken gives each waiter's registration a distinct identity, so a
// waiter can tell whether it's still the one registered for its key
// before deleting the map entry — pointer equality on a bare
// context.CancelFunc isn't available in Go, and comparing by key alone
// would let a superseded waiter's cleanup delete a newer waiter's entry.
type cancelToken struct {
	cancel context.CancelFunc
}

// New creates a Gate with the given capacity.
func New(capacity int64) *Gate {
	return &Gate{
		sem:     semaphore.NewWeighted(capacity),
		cancels: make(map[string]*cancelToken),
	}
}

// Acquire blocks (FIFO among current waiters) until a slot is free or ctx
// is cancelled. key identifies the resource on whose behalf this waiter
// is queued; if a newer Acquire call for the same key arrives while this
// one is still waiting, the older call's context is cancelled
// (latest-wins coalescing) and it returns ctx.Err().
func (g *Gate) Acquire(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithCancel(ctx)
	token := &cancelToken{cancel: cancel}

	g.mu.Lock()
	if prior, ok := g.cancels[key]; ok {
		prior.cancel()
	}
	g.cancels[key] = token
	g.waiters++
	g.mu.Unlock()

	err := g.sem.Acquire(waitCtx, 1)

	g.mu.Lock()
	g.waiters--
	if g.cancels[key] == token {
		// Only clear if we're still the registered waiter for this key;
		// a chain of supersessions may have already replaced us.
		delete(g.cancels, key)
	}
	g.mu.Unlock()

	if err != nil {
		cancel()
		return nil, err
	}

	release := func() {
		cancel()
		g.sem.Release(1)
	}
	return release, nil
}

// Waiters reports the number of goroutines currently queued for a slot,
// backing the concurrency_gate_waiters gauge.
func (g *Gate) Waiters() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiters
}
