package search

import (
	"testing"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/require"

	"github.com/arcbishop/chessbench/internal/chessutil"
	"github.com/arcbishop/chessbench/internal/posquery"
)

// encodeMainLineForTest mirrors internal/checkpoint's test helper of the
// same name: it builds a move blob using the legal-move-index scheme
// movecodec decodes, by locating each move in the position's own legal
// move list rather than hardcoding byte values that depend on the
// library's move ordering.
func encodeMainLineForTest(t *testing.T, start *chess.Position, uciMoves []string) []byte {
	t.Helper()
	pos := start
	var blob []byte
	for _, mvStr := range uciMoves {
		legal := pos.ValidMoves()
		idx := -1
		for i, lm := range legal {
			if lm.String() == mvStr {
				idx = i
				break
			}
		}
		require.GreaterOrEqual(t, idx, 0, "move %s not found in legal move list", mvStr)
		require.Less(t, idx, 251)
		blob = append(blob, byte(idx))
		pos = pos.Update(legal[idx])
	}
	return blob
}

func playMoves(t *testing.T, pos *chess.Position, moves ...string) *chess.Position {
	t.Helper()
	for _, mvStr := range moves {
		mv, err := chessutil.DecodeUCIMove(pos, mvStr)
		require.NoError(t, err)
		pos = pos.Update(mv)
	}
	return pos
}

func TestNextMoveAfterMatchExactStartPosition(t *testing.T) {
	start := chess.StartingPosition()
	blob := encodeMainLineForTest(t, start, []string{"e2e4", "e7e5"})

	q, err := posquery.NewExact(chessutil.StartingFEN)
	require.NoError(t, err)

	move, ok, err := nextMoveAfterMatch("arch", 1, blob, chessutil.StartingFEN, q)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "e4", move)
}

func TestNextMoveAfterMatchMidGame(t *testing.T) {
	start := chess.StartingPosition()
	blob := encodeMainLineForTest(t, start, []string{"e2e4", "e7e5", "g1f3"})

	afterE4E5 := playMoves(t, start, "e2e4", "e7e5")

	q, err := posquery.NewExact(afterE4E5.String())
	require.NoError(t, err)

	move, ok, err := nextMoveAfterMatch("arch", 2, blob, chessutil.StartingFEN, q)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Nf3", move)
}

func TestNextMoveAfterMatchAtGameEndReturnsTerminator(t *testing.T) {
	start := chess.StartingPosition()
	blob := encodeMainLineForTest(t, start, []string{"e2e4"})

	after := playMoves(t, start, "e2e4")

	q, err := posquery.NewExact(after.String())
	require.NoError(t, err)

	move, ok, err := nextMoveAfterMatch("arch", 3, blob, chessutil.StartingFEN, q)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "*", move)
}

func TestNextMoveAfterMatchNeverReachedReturnsNotOK(t *testing.T) {
	start := chess.StartingPosition()
	blob := encodeMainLineForTest(t, start, []string{"e2e4", "e7e5"})

	// A position that can never occur in this 2-ply game (black knight to
	// f6 never happened).
	q, err := posquery.NewExact("rnbqkb1r/pppp1ppp/5n2/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 2 3")
	require.NoError(t, err)

	_, ok, err := nextMoveAfterMatch("arch", 4, blob, chessutil.StartingFEN, q)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNextMoveAfterMatchReachabilityCutoffOnPartialQuery(t *testing.T) {
	start := chess.StartingPosition()
	blob := encodeMainLineForTest(t, start, []string{"e2e4", "e7e5"})

	afterE4E5 := playMoves(t, start, "e2e4", "e7e5")

	// Planes drawn from a later, reachable position, but paired with a
	// material floor no ply of this capture-free game ever drops to —
	// pruning must reject the game on the material check alone, before
	// ever re-testing the (otherwise eventually-matching) planes.
	planes := posquery.PlanesOf(afterE4E5)
	q := posquery.NewPartial(planes, [2]uint8{100, 100})

	_, ok, err := nextMoveAfterMatch("arch", 5, blob, chessutil.StartingFEN, q)
	require.NoError(t, err)
	require.False(t, ok)
}
