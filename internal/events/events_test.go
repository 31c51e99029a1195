package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	refuse bool
}

func (s *recordingSink) Emit(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse {
		return assertErr
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

var assertErr = errSentinel("refused")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }

func TestFirstBestLinesInSessionBypassesGate(t *testing.T) {
	sink := &recordingSink{}
	f := New(sink)
	// Drain tokens so the gate would otherwise block.
	for i := 0; i < int(tokenCapacity); i++ {
		require.NoError(t, f.EmitProgress(Progress{Progress: i}))
	}

	require.NoError(t, f.EmitBestLines("sess1", BestLines{Progress: 10}))
	require.Equal(t, int(tokenCapacity)+1, sink.count())
}

func TestFinishedProgressBypassesGate(t *testing.T) {
	sink := &recordingSink{}
	f := New(sink)
	for i := 0; i < int(tokenCapacity); i++ {
		require.NoError(t, f.EmitProgress(Progress{Progress: i}))
	}

	require.NoError(t, f.EmitProgress(Progress{Progress: 100, Finished: true}))
	require.Equal(t, int(tokenCapacity)+1, sink.count())
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	sink := &recordingSink{refuse: true}
	f := New(sink)
	for i := 0; i < int(tokenCapacity); i++ {
		_ = f.EmitProgress(Progress{Progress: i})
	}
	// Gate now drained; further non-priority events queue instead of send.
	for i := 0; i < queueCapacity+5; i++ {
		_ = f.EmitProgress(Progress{Progress: i})
	}
	require.Equal(t, queueCapacity, f.QueueLen())
}

func TestEmissionFailureRequeues(t *testing.T) {
	sink := &recordingSink{}
	f := New(sink)
	require.NoError(t, f.EmitBestLines("sess1", BestLines{Progress: 1})) // first, bypasses, succeeds

	sink.refuse = true
	for i := 0; i < int(tokenCapacity)+1; i++ {
		_ = f.EmitProgress(Progress{Progress: i})
	}
	require.Greater(t, f.QueueLen(), 0)
}

func TestFlushDrainsQueueUnderGate(t *testing.T) {
	sink := &recordingSink{}
	f := New(sink)
	for i := 0; i < int(tokenCapacity); i++ {
		_ = f.EmitProgress(Progress{Progress: i})
	}
	_ = f.EmitProgress(Progress{Progress: 99}) // queued, tokens exhausted

	require.Equal(t, 1, f.QueueLen())
	f.tokens = tokenCapacity // simulate time passing without sleeping in the test
	f.Flush()
	require.Equal(t, 0, f.QueueLen())
}
