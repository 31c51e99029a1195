package search

import (
	"sync"
	"sync/atomic"
)

// cancelRegistry implements cooperative per-tab cancellation: starting a
// new search for a tab immediately flips the prior flag (if any), so an
// in-flight search for that tab observes cancellation at its next batch
// boundary and returns SearchStopped; the loop that started it gets a
// fresh flag of its own.
type cancelRegistry struct {
	mu    sync.Mutex
	flags map[string]*atomic.Bool
}

// cancelReg is the process-wide cancellation flag map.
var cancelReg = &cancelRegistry{flags: map[string]*atomic.Bool{}}

func (r *cancelRegistry) begin(tab string) *atomic.Bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.flags[tab]; ok {
		old.Store(true)
	}
	f := &atomic.Bool{}
	r.flags[tab] = f
	return f
}
