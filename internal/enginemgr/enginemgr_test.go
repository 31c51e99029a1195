package enginemgr

import (
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcbishop/chessbench/internal/events"
	"github.com/arcbishop/chessbench/internal/uci"
	"github.com/arcbishop/chessbench/internal/wblog"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type capturingSink struct {
	mu   sync.Mutex
	best []events.BestLines
}

func (s *capturingSink) Emit(ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Best != nil {
		s.best = append(s.best, *ev.Best)
	}
	return nil
}

func (s *capturingSink) sawFinal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.best {
		if b.Progress == 100 {
			return true
		}
	}
	return false
}

func fakeEnginePath(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine script requires a POSIX shell")
	}
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "engineproc", "testdata", "fakeengine.sh")
}

func TestStartAnalysisRunsToFinalBestLines(t *testing.T) {
	sink := &capturingSink{}
	mgr := New(sink, wblog.Default("test"))

	key := Key{Tab: "tab1", EnginePath: fakeEnginePath(t)}
	err := mgr.StartAnalysis(StartRequest{
		Key:     key,
		FEN:     startFEN,
		Go:      uci.GoDepth(1),
		MultiPV: 1,
	})
	require.NoError(t, err)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !sink.sawFinal() {
		time.Sleep(20 * time.Millisecond)
	}
	require.True(t, sink.sawFinal())

	progress, lines, ok := mgr.GetBestMoves(key)
	require.True(t, ok)
	require.Equal(t, 100, progress)
	require.Len(t, lines, 1)

	require.NoError(t, mgr.KillEngine(key))
	require.NoError(t, mgr.KillEngine(key)) // idempotent
}

func TestStopEngineLeavesEntryRegisteredAtIdle(t *testing.T) {
	sink := &capturingSink{}
	mgr := New(sink, wblog.Default("test"))
	key := Key{Tab: "tab1", EnginePath: fakeEnginePath(t)}

	require.NoError(t, mgr.StartAnalysis(StartRequest{Key: key, FEN: startFEN, Go: uci.GoDepth(1), MultiPV: 1}))
	defer mgr.KillEngine(key)

	start := time.Now()
	require.NoError(t, mgr.StopEngine(key))
	require.Less(t, time.Since(start), 8*time.Second)

	// The entry survives a graceful stop, ready for a new session.
	_, _, ok := mgr.GetEngineConfig(key)
	require.True(t, ok)
}

func stubbornEnginePath(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub engine script requires a POSIX shell")
	}
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "engineproc", "testdata", "stubbornengine.sh")
}

func TestStopEngineDeadlineKeepsEntryWhenEngineIgnoresStop(t *testing.T) {
	if testing.Short() {
		t.Skip("exercises the full 8s staged stop deadline")
	}
	sink := &capturingSink{}
	mgr := New(sink, wblog.Default("test"))
	key := Key{Tab: "tab1", EnginePath: stubbornEnginePath(t)}

	require.NoError(t, mgr.StartAnalysis(StartRequest{Key: key, FEN: startFEN, Go: uci.GoInfinite(), MultiPV: 1}))
	defer mgr.KillEngine(key)

	started := time.Now()
	require.NoError(t, mgr.StopEngine(key))
	require.Less(t, time.Since(started), 10*time.Second)

	// The entry survives the forced stop, ready for a new session.
	_, _, ok := mgr.GetEngineConfig(key)
	require.True(t, ok)
}

func TestGetEngineConfigReflectsAdvertisedOptions(t *testing.T) {
	sink := &capturingSink{}
	mgr := New(sink, wblog.Default("test"))
	key := Key{Tab: "tab1", EnginePath: fakeEnginePath(t)}

	require.NoError(t, mgr.StartAnalysis(StartRequest{Key: key, FEN: startFEN, Go: uci.GoDepth(1), MultiPV: 1}))
	defer mgr.KillEngine(key)

	name, opts, ok := mgr.GetEngineConfig(key)
	require.True(t, ok)
	require.Equal(t, "FakeEngine 1.0", name)
	require.Len(t, opts, 1)
}

func TestKillEnginesForTabRemovesAll(t *testing.T) {
	sink := &capturingSink{}
	mgr := New(sink, wblog.Default("test"))
	key := Key{Tab: "tabX", EnginePath: fakeEnginePath(t)}

	require.NoError(t, mgr.StartAnalysis(StartRequest{Key: key, FEN: startFEN, Go: uci.GoDepth(1), MultiPV: 1}))
	mgr.KillEnginesForTab("tabX")

	_, _, ok := mgr.GetEngineConfig(key)
	require.False(t, ok)
}
