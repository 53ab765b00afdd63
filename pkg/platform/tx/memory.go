package tx

import (
	"context"
	"sync"
)

// Snapshotter is implemented by in-memory stores that can take part in a MemoryRunner
// unit of work. Snapshot captures current state and returns a func that restores it.
type Snapshotter interface {
	Snapshot() (restore func())
}

// MemoryRunner serializes units of work over in-memory stores and restores every
// participating store when fn fails, giving the same all-or-nothing outcome as a
// database transaction.
type MemoryRunner struct {
	mu     sync.Mutex
	stores []Snapshotter
}

// NewMemoryRunner creates a runner over the given stores.
func NewMemoryRunner(stores ...Snapshotter) *MemoryRunner {
	return &MemoryRunner{stores: stores}
}

// RunInTx runs fn while holding the runner lock.
func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	restores := make([]func(), 0, len(r.stores))
	for _, s := range r.stores {
		restores = append(restores, s.Snapshot())
	}

	if err := fn(ctx); err != nil {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
		return err
	}
	return nil
}
