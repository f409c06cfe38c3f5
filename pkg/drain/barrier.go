// Package drain tracks in-flight responses so a host can be told that all
// asynchronous per-response work — cache writes, metric flushes — has
// finished before it freezes or recycles the process.
package drain

import (
	"context"
	"sync"
)

// Barrier is a process-wide registry of in-flight response ids.
//
// Wait resolves only when the registry is empty. A Start that lands while
// a Wait is outstanding extends the wait: drain never resolves while any
// response, including ones started after the call, remains in flight.
// The zero value is not usable; create with New.
type Barrier struct {
	mu       sync.Mutex
	inflight map[string]struct{}
	waiters  []chan struct{}
}

// New creates an idle Barrier.
func New() *Barrier {
	return &Barrier{
		inflight: make(map[string]struct{}),
	}
}

// Start registers an in-flight response id.
func (b *Barrier) Start(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflight[id] = struct{}{}
}

// Finish removes a response id. When the registry becomes empty, every
// outstanding Wait resolves. Finishing an unknown id is a no-op.
func (b *Barrier) Finish(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.inflight, id)
	if len(b.inflight) != 0 {
		return
	}
	for _, w := range b.waiters {
		close(w)
	}
	b.waiters = nil
}

// Pending returns the number of in-flight responses.
func (b *Barrier) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inflight)
}

// Wait blocks until the registry is next empty or ctx is done. It returns
// immediately when the barrier is already idle.
func (b *Barrier) Wait(ctx context.Context) error {
	b.mu.Lock()
	if len(b.inflight) == 0 {
		b.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	b.waiters = append(b.waiters, w)
	b.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
