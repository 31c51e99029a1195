package analyzer

import (
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcbishop/chessbench/internal/events"
	"github.com/arcbishop/chessbench/internal/uci"
	"github.com/arcbishop/chessbench/internal/wblog"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type capturingSink struct {
	mu       sync.Mutex
	progress []events.Progress
}

func (s *capturingSink) Emit(ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Progress != nil {
		s.progress = append(s.progress, *ev.Progress)
	}
	return nil
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

func TestBuildPositionListSkipsNothingShortGame(t *testing.T) {
	entries, err := buildPositionList(startFEN, []string{"e2e4", "e7e5"})
	require.NoError(t, err)
	require.Len(t, entries, 3) // start + 2 plies
	require.Equal(t, []string{"e2e4"}, entries[1].MovesPrefix)
	require.Equal(t, []string{"e2e4", "e7e5"}, entries[2].MovesPrefix)
}

func TestBuildPositionListRejectsIllegalMove(t *testing.T) {
	_, err := buildPositionList(startFEN, []string{"e2e5"})
	require.Error(t, err)
}

func TestAnalyzeRunsEachPositionAndEmitsFinalProgress(t *testing.T) {
	sink := &capturingSink{}
	results, err := Analyze(Request{
		StartFEN:   startFEN,
		Moves:      []string{"e2e4"},
		EnginePath: fakeEnginePath(t),
		Go:         uci.GoDepth(1),
		MultiPV:    1,
		SessionID:  "sess1",
		Sink:       sink,
		Log:        wblog.Default("test"),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
		require.NotEmpty(t, r.BestLines)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.NotEmpty(t, sink.progress)
	last := sink.progress[len(sink.progress)-1]
	require.Equal(t, 100, last.Progress)
	require.True(t, last.Finished)
}

func TestAnalyzeReversedRestoresOrder(t *testing.T) {
	sink := &capturingSink{}
	results, err := Analyze(Request{
		StartFEN:   startFEN,
		Moves:      []string{"e2e4", "e7e5"},
		EnginePath: fakeEnginePath(t),
		Go:         uci.GoDepth(1),
		MultiPV:    1,
		Reversed:   true,
		SessionID:  "sess2",
		Sink:       sink,
		Log:        wblog.Default("test"),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Nil(t, results[0].MovesPrefix)
	require.Equal(t, []string{"e2e4", "e7e5"}, results[2].MovesPrefix)
}

type stubOracle struct {
	calls    int
	notInIdx int
}

func (o *stubOracle) InArchive(fen string) (bool, error) {
	defer func() { o.calls++ }()
	return o.calls != o.notInIdx, nil
}

func TestAnalyzeAnnotatesFirstNoveltyOnly(t *testing.T) {
	sink := &capturingSink{}
	oracle := &stubOracle{notInIdx: 1}
	results, err := Analyze(Request{
		StartFEN:          startFEN,
		Moves:             []string{"e2e4", "e7e5"},
		EnginePath:        fakeEnginePath(t),
		Go:                uci.GoDepth(1),
		MultiPV:           1,
		AnnotateNovelties: true,
		Oracle:            oracle,
		SessionID:         "sess3",
		Sink:              sink,
		Log:               wblog.Default("test"),
	})
	require.NoError(t, err)
	require.False(t, results[0].Novelty)
	require.True(t, results[1].Novelty)
	require.False(t, results[2].Novelty)
}
