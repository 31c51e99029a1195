package movecodec

import (
	"testing"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/require"
)

func TestExtractMainLineMatchesIterate(t *testing.T) {
	start := chess.StartingPosition()
	blob := []byte{12, 12}

	steps := IterateMainLine(blob, start)
	moves := ExtractMainLine(blob, start)

	require.Len(t, moves, len(steps))
	for i, s := range steps {
		require.Equal(t, s.Move.String(), moves[i].String())
	}
}

func TestIterateMainLineSkipsVariationsAndComments(t *testing.T) {
	start := chess.StartingPosition()

	// move, NAG(id=1), comment("hi"), variation{move}, move
	blob := []byte{12, tokenNAG, 1, tokenComment, 0, 0, 0, 0, 0, 0, 0, 2, 'h', 'i',
		tokenStart, 5, tokenEnd, 12}

	steps := IterateMainLine(blob, start)
	require.Len(t, steps, 2)
}

func TestTruncatedCommentStopsCleanly(t *testing.T) {
	start := chess.StartingPosition()
	blob := []byte{12, tokenComment, 0, 0, 0, 0, 0, 0, 0xFF, 0xFF} // absurd length

	require.NotPanics(t, func() {
		steps := IterateMainLine(blob, start)
		require.Len(t, steps, 1)
	})
}

func TestIllegalIndexStopsCleanly(t *testing.T) {
	start := chess.StartingPosition()
	blob := []byte{250, 12} // 250 legal moves never exist from the start position

	require.NotPanics(t, func() {
		steps := IterateMainLine(blob, start)
		require.Len(t, steps, 0)
	})
}

func TestDecodeSingleRejectsReservedBytes(t *testing.T) {
	start := chess.StartingPosition()
	_, ok := DecodeSingle(tokenNAG, start)
	require.False(t, ok)

	mv, ok := DecodeSingle(12, start)
	require.True(t, ok)
	require.NotNil(t, mv)
}
