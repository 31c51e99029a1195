// Package events implements the rate-limited, priority-aware event
// fan-out in front of the UI bridge sink: a token bucket gate, a bounded
// drop-oldest retry queue, and a periodic flush. Renderer-independent, so
// the engine supervisor, the search executor, and the checkpoint builder
// all publish through it the same way.
package events

import (
	"sync"
	"time"

	"github.com/arcbishop/chessbench/internal/uci"
	"github.com/arcbishop/chessbench/internal/wberr"
)

const (
	tokenRate     = 15.0 // events/sec
	tokenCapacity = 15.0
	queueCapacity = 10
)

// BestLines is the per-session multipv payload delivered to the UI
// bridge.
type BestLines struct {
	Lines    []uci.BestLine
	Engine   string
	Tab      string
	FEN      string
	Moves    []string
	Progress int
}

// Progress is a standalone long-running-command progress payload.
type Progress struct {
	Progress int
	ID       string
	Finished bool
}

// Event is either a BestLines or a Progress payload, tagged by which field
// is non-nil.
type Event struct {
	Best     *BestLines
	Progress *Progress

	// firstInSession marks one of the two priority-override cases: the
	// first BestLines of a session, like any finished=true Progress,
	// bypasses the rate gate entirely.
	firstInSession bool
}

// Sink is the UI bridge collaborator an event is ultimately delivered
// to. It returns an error (wrapped as EventEmissionFailed by the caller)
// when the event is refused.
type Sink interface {
	Emit(Event) error
}

// Fan-out owns one token bucket, one bounded drop-oldest queue, and the
// per-session "have we emitted yet" bookkeeping needed for the priority
// override. One Fanout belongs to exactly one supervisor loop; queues are
// never shared across loops.
type Fanout struct {
	sink Sink

	mu          sync.Mutex
	tokens      float64
	lastRefill  time.Time
	queue       []Event
	emittedOnce map[string]bool // sessionID -> has a BestLines gone out yet
}

// dropSink accepts and discards every event, standing in when a caller has
// no UI bridge attached (headless checkpoint builds, tests).
type dropSink struct{}

func (dropSink) Emit(Event) error { return nil }

// New creates a Fanout delivering to sink. A nil sink drops every event.
func New(sink Sink) *Fanout {
	if sink == nil {
		sink = dropSink{}
	}
	return &Fanout{
		sink:        sink,
		tokens:      tokenCapacity,
		lastRefill:  time.Now(),
		emittedOnce: map[string]bool{},
	}
}

// EmitBestLines publishes a BestLines payload for sessionID, applying the
// rate gate unless this is the first publication of the session.
func (f *Fanout) EmitBestLines(sessionID string, payload BestLines) error {
	f.mu.Lock()
	first := !f.emittedOnce[sessionID]
	if first {
		f.emittedOnce[sessionID] = true
	}
	f.mu.Unlock()
	return f.dispatch(Event{Best: &payload, firstInSession: first})
}

// EmitProgress publishes a Progress payload; finished=true always
// bypasses the rate gate.
func (f *Fanout) EmitProgress(payload Progress) error {
	return f.dispatch(Event{Progress: &payload})
}

func (f *Fanout) bypassesGate(ev Event) bool {
	if ev.firstInSession {
		return true
	}
	if ev.Progress != nil && ev.Progress.Finished {
		return true
	}
	return false
}

func (f *Fanout) dispatch(ev Event) error {
	f.mu.Lock()
	f.refill()
	allowed := f.bypassesGate(ev) || f.tryTake()
	if !allowed {
		f.enqueueLocked(ev)
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	if err := f.sink.Emit(ev); err != nil {
		f.mu.Lock()
		f.enqueueLocked(ev)
		f.mu.Unlock()
		return wberr.Wrap(wberr.EventEmissionFailed, "ui sink refused event", err)
	}
	return nil
}

// refill tops up the token bucket based on elapsed time. Caller holds f.mu.
func (f *Fanout) refill() {
	now := time.Now()
	elapsed := now.Sub(f.lastRefill).Seconds()
	f.lastRefill = now
	f.tokens += elapsed * tokenRate
	if f.tokens > tokenCapacity {
		f.tokens = tokenCapacity
	}
}

// tryTake consumes one token if available. Caller holds f.mu.
func (f *Fanout) tryTake() bool {
	if f.tokens < 1 {
		return false
	}
	f.tokens--
	return true
}

// enqueueLocked appends ev, dropping the oldest entry once the bounded
// queue is full. Caller holds f.mu.
func (f *Fanout) enqueueLocked(ev Event) {
	if len(f.queue) >= queueCapacity {
		f.queue = f.queue[1:]
	}
	f.queue = append(f.queue, ev)
}

// Flush attempts to drain the queue under the same token-bucket gate,
// meant to be called periodically by the owning supervisor loop.
func (f *Fanout) Flush() {
	for {
		f.mu.Lock()
		f.refill()
		if len(f.queue) == 0 || !f.tryTake() {
			f.mu.Unlock()
			return
		}
		ev := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()

		if err := f.sink.Emit(ev); err != nil {
			f.mu.Lock()
			f.enqueueLocked(ev)
			f.mu.Unlock()
			return
		}
	}
}

// QueueLen reports the current backlog, mainly for tests and diagnostics.
func (f *Fanout) QueueLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}
