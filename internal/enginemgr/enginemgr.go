// Package enginemgr is the registry and supervisor-task orchestration
// layer for UCI engine subprocesses: it owns one engineproc.Process and
// one analysis.Handler per (tab, engine path), retries
// spawn/configure/start each with its own backoff schedule, and runs the
// per-record supervisor loop that drives engine stdout through the
// analysis handler and out through the event fan-out.
package enginemgr

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcbishop/chessbench/internal/analysis"
	"github.com/arcbishop/chessbench/internal/enginelog"
	"github.com/arcbishop/chessbench/internal/engineproc"
	"github.com/arcbishop/chessbench/internal/events"
	"github.com/arcbishop/chessbench/internal/uci"
	"github.com/arcbishop/chessbench/internal/wberr"
	"github.com/arcbishop/chessbench/internal/wblog"
)

// Key identifies one live engine registry entry.
type Key struct {
	Tab        string
	EnginePath string
}

// StartRequest bundles the arguments to StartAnalysis.
type StartRequest struct {
	Key        Key
	Args       []string
	FEN        string
	Moves      []string
	UCIOptions map[string]string
	MultiPV    int
	Go         uci.GoMode
}

type record struct {
	proc    *engineproc.Process
	handler *analysis.Handler
	fan     *events.Fanout

	fen   string
	moves []string

	cancel context.CancelFunc
	done   chan struct{}
}

// Manager is the keyed registry of live engines.
type Manager struct {
	mu      sync.Mutex
	records map[Key]*record

	sink events.Sink
	log  *wblog.Logger
	logs *enginelog.Store // optional; nil means transcripts aren't persisted past teardown
}

// New creates a Manager delivering events to sink.
func New(sink events.Sink, log *wblog.Logger) *Manager {
	return &Manager{records: map[Key]*record{}, sink: sink, log: log}
}

// WithLogStore attaches a persistent transcript store: teardown mirrors
// each record's in-memory transcript into it, and GetEngineLogs falls
// back to it once the record is gone.
func (m *Manager) WithLogStore(store *enginelog.Store) *Manager {
	m.logs = store
	return m
}

// StartAnalysis starts or replaces analysis for (tab, engine_path): an
// existing entry is fully killed first, then the engine is spawned,
// initialized, configured, and started, each stage with its own retry
// schedule, and a supervisor task is spawned.
func (m *Manager) StartAnalysis(req StartRequest) error {
	if _, live := m.get(req.Key); live {
		_ = m.KillEngine(req.Key)
		time.Sleep(100 * time.Millisecond)
	}

	var proc *engineproc.Process
	err := retry(3, 500*time.Millisecond, func() error {
		p, spawnErr := engineproc.Spawn(req.Key.EnginePath, req.Args, m.log.With(req.Key.Tab+"/"+req.Key.EnginePath))
		if spawnErr != nil {
			return spawnErr
		}
		if initErr := p.Initialize(); initErr != nil {
			return initErr
		}
		proc = p
		return nil
	})
	if err != nil {
		return err
	}

	err = retry(3, 200*time.Millisecond, func() error {
		return proc.Configure(engineproc.ConfigureRequest{
			FEN:              req.FEN,
			Moves:            req.Moves,
			UCIOptions:       req.UCIOptions,
			RequestedMultiPV: req.MultiPV,
		})
	})
	if err != nil {
		_ = proc.Kill()
		return err
	}

	effectiveMultiPV, err := uci.CalculateEffectiveMultiPV(req.MultiPV, req.FEN, req.Moves)
	if err != nil {
		_ = proc.Kill()
		return err
	}
	handler := analysis.New(effectiveMultiPV)

	err = retry(3, 100*time.Millisecond, func() error {
		return proc.StartAnalysis(req.Go)
	})
	if err != nil {
		_ = proc.Kill()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	rec := &record{
		proc:    proc,
		handler: handler,
		fan:     events.New(m.sink),
		fen:     req.FEN,
		moves:   req.Moves,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	m.records[req.Key] = rec
	m.mu.Unlock()

	sessionID := uuid.NewString()
	go m.supervise(ctx, req.Key, rec, sessionID)

	return nil
}

// retry runs fn up to attempts times, sleeping n*backoff before the
// (n+1)th try, n being the 1-based attempt count.
func retry(attempts int, backoff time.Duration, fn func() error) error {
	var lastErr error
	for n := 1; n <= attempts; n++ {
		if err := fn(); err != nil {
			lastErr = err
			time.Sleep(time.Duration(n) * backoff)
			continue
		}
		return nil
	}
	return lastErr
}

func (m *Manager) get(key Key) (*record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key]
	return r, ok
}

func (m *Manager) remove(key Key) {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
}

// StopEngine attempts a graceful stop, returning with the engine
// observable as Idle and still registered, ready for a new session. A
// StopTimeout from the staged stop is swallowed: the stop protocol has
// already forced the state to Idle by then, so the entry stays. Only a
// non-timeout failure (the engine is wedged or gone) falls back to a full
// kill-and-remove.
func (m *Manager) StopEngine(key Key) error {
	rec, ok := m.get(key)
	if !ok {
		return nil
	}
	if err := rec.proc.Stop(); err != nil {
		m.log.Warn("stop_engine: %v", err)
		if wberr.KindOf(err) != wberr.StopTimeout {
			_ = rec.proc.Kill()
			m.teardown(key, rec)
		}
	}
	return nil
}

// KillEngine transitions the engine to Terminated immediately, removes
// the registry entry, and aborts the supervisor task. Idempotent.
func (m *Manager) KillEngine(key Key) error {
	rec, ok := m.get(key)
	if !ok {
		return nil
	}
	_ = rec.proc.Kill()
	m.teardown(key, rec)
	return nil
}

// KillEnginesForTab kills every engine registered under tab.
func (m *Manager) KillEnginesForTab(tab string) {
	m.mu.Lock()
	var keys []Key
	for k := range m.records {
		if k.Tab == tab {
			keys = append(keys, k)
		}
	}
	m.mu.Unlock()
	for _, k := range keys {
		_ = m.KillEngine(k)
	}
}

func (m *Manager) teardown(key Key, rec *record) {
	rec.cancel()
	select {
	case <-rec.done:
	case <-time.After(500 * time.Millisecond):
	}
	if m.logs != nil {
		if err := m.logs.Put(key.Tab, key.EnginePath, rec.proc.Logs()); err != nil {
			m.log.Warn("persisting engine transcript for %s/%s: %v", key.Tab, key.EnginePath, err)
		}
	}
	m.remove(key)
}

// GetEngineLogs returns the transcript captured for this engine: the
// live in-memory one if the engine is still registered, otherwise the
// persisted copy left behind at its last teardown.
func (m *Manager) GetEngineLogs(key Key) []string {
	if rec, ok := m.get(key); ok {
		return rec.proc.Logs()
	}
	if m.logs == nil {
		return nil
	}
	lines, err := m.logs.Get(key.Tab, key.EnginePath)
	if err != nil {
		m.log.Warn("reading persisted engine transcript for %s/%s: %v", key.Tab, key.EnginePath, err)
		return nil
	}
	return lines
}

// GetBestMoves returns the current analysis snapshot for a live engine:
// the last depth-complete multipv set and the session's progress
// percentage. ok is false when no engine is registered under key or
// nothing complete has been assembled yet.
func (m *Manager) GetBestMoves(key Key) (progress int, lines []uci.BestLine, ok bool) {
	rec, live := m.get(key)
	if !live {
		return 0, nil, false
	}
	lines = rec.handler.LastComplete()
	if len(lines) == 0 {
		return 0, nil, false
	}
	return rec.handler.Progress(), lines, true
}

// GetEngineConfig returns the engine's advertised identity and option
// descriptors collected during initialization.
func (m *Manager) GetEngineConfig(key Key) (name string, options []uci.OptionDescriptor, ok bool) {
	rec, live := m.get(key)
	if !live {
		return "", nil, false
	}
	return rec.proc.Name, rec.proc.Options, true
}
