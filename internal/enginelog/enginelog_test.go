package enginelog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "logs"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndGetRoundTrips(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Append("tab1", "/bin/stockfish", []string{"> uci", "< uciok"}))
	require.NoError(t, s.Append("tab1", "/bin/stockfish", []string{"> isready", "< readyok"}))

	lines, err := s.Get("tab1", "/bin/stockfish")
	require.NoError(t, err)
	require.Equal(t, []string{"> uci", "< uciok", "> isready", "< readyok"}, lines)
}

func TestGetUnknownKeyReturnsNil(t *testing.T) {
	s := openTestStore(t)
	lines, err := s.Get("tabX", "/no/such/engine")
	require.NoError(t, err)
	require.Nil(t, lines)
}

func TestAppendDropsOldestBeyondCap(t *testing.T) {
	s := openTestStore(t)

	first := make([]string, maxStoredLines)
	for i := range first {
		first[i] = "old"
	}
	require.NoError(t, s.Append("tab1", "engine", first))
	require.NoError(t, s.Append("tab1", "engine", []string{"new1", "new2"}))

	lines, err := s.Get("tab1", "engine")
	require.NoError(t, err)
	require.Len(t, lines, maxStoredLines)
	require.Equal(t, "new1", lines[len(lines)-2])
	require.Equal(t, "new2", lines[len(lines)-1])
}

func TestPutOverwritesPriorTranscript(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Append("tab1", "engine", []string{"a", "b"}))
	require.NoError(t, s.Put("tab1", "engine", []string{"x", "y", "z"}))

	lines, err := s.Get("tab1", "engine")
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y", "z"}, lines)
}

func TestDataDirReturnsNonEmptyPath(t *testing.T) {
	dir, err := DataDir()
	require.NoError(t, err)
	require.NotEmpty(t, dir)
}
