package search

import (
	"testing"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/require"
)

func TestDecodedMainLineCachesByArchiveGameAndStartFEN(t *testing.T) {
	start := chess.StartingPosition()
	blob := encodeMainLineForTest(t, start, []string{"e2e4", "e7e5"})

	steps1 := decodedMainLine("archX", 101, start, blob)
	require.Len(t, steps1, 2)

	steps2 := decodedMainLine("archX", 101, start, blob)
	require.Equal(t, steps1, steps2)

	// A different game id under the same archive must not share the entry.
	steps3 := decodedMainLine("archX", 102, start, encodeMainLineForTest(t, start, []string{"d2d4"}))
	require.Len(t, steps3, 1)
}
