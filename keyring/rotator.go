// Package keyring spreads provider calls across a pool of equivalent API keys
// so that per-credential rate limits hit one key at a time, not the pipeline.
package keyring

import (
	"sync"

	"shortvid-pipeline/faults"
)

// Rotator is a thread-safe round-robin credential dispenser. The pool is
// immutable after construction; only the cursor moves.
type Rotator struct {
	mu   sync.Mutex
	keys []string
	next int
}

// New creates a Rotator over a non-empty credential pool.
func New(keys []string) (*Rotator, error) {
	if len(keys) == 0 {
		return nil, faults.InvalidConfig("credential pool is empty")
	}
	pool := make([]string, len(keys))
	copy(pool, keys)
	return &Rotator{keys: pool}, nil
}

// Next atomically returns the next credential, wrapping at the end of the
// pool. Over any window of Size() calls every key is returned exactly once.
func (r *Rotator) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.keys[r.next]
	r.next = (r.next + 1) % len(r.keys)
	return key
}

// Size returns the pool size.
func (r *Rotator) Size() int {
	return len(r.keys)
}
