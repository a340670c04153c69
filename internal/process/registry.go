package process

import (
	"context"
	"log"
	"sync"
)

// Registry is the table of live worker channels, keyed by member id. All
// access is funneled through its methods so the single-in-flight-send
// invariant and the attach/deliver buffering contract hold per worker, and
// so multiple engine instances can coexist without ambient state.
type Registry struct {
	mu      sync.Mutex
	workers map[string]*Channel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]*Channel)}
}

// Ensure returns the live channel for the given member, starting a fresh
// process from cfg when none is running. Workers exit at end-of-turn (their
// input stream is closed to signal it), so restarts here are routine.
func (r *Registry) Ensure(ctx context.Context, memberID string, cfg Config) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.workers[memberID]; ok && ch.Alive() {
		return ch, nil
	}

	ch := NewChannel(cfg)
	if err := ch.Start(ctx); err != nil {
		return nil, err
	}
	log.Printf("[process] started worker for %s (pid %d)", memberID, ch.PID())
	r.workers[memberID] = ch
	return ch, nil
}

// Get returns the channel registered for the member, or nil.
func (r *Registry) Get(memberID string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.workers[memberID]
}

// Cancel aborts the member's in-flight send, if any.
func (r *Registry) Cancel(memberID string) bool {
	if ch := r.Get(memberID); ch != nil {
		return ch.CancelSend()
	}
	return false
}

// Stop terminates the member's worker and removes it from the table.
func (r *Registry) Stop(memberID string) error {
	r.mu.Lock()
	ch := r.workers[memberID]
	delete(r.workers, memberID)
	r.mu.Unlock()

	if ch == nil {
		return nil
	}
	return ch.Stop()
}

// StopAll terminates every registered worker.
func (r *Registry) StopAll() {
	r.mu.Lock()
	workers := r.workers
	r.workers = make(map[string]*Channel)
	r.mu.Unlock()

	for id, ch := range workers {
		if err := ch.Stop(); err != nil {
			log.Printf("[process] stop worker %s: %v", id, err)
		}
	}
}
