package fingerprint

import (
	"testing"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/require"

	"github.com/arcbishop/chessbench/internal/chessutil"
)

func playMoves(t *testing.T, pos *chess.Position, moves ...string) *chess.Position {
	t.Helper()
	for _, mvStr := range moves {
		mv, err := chessutil.DecodeUCIMove(pos, mvStr)
		require.NoError(t, err)
		pos = pos.Update(mv)
	}
	return pos
}

func TestMaterialStartPosition(t *testing.T) {
	pos := chess.StartingPosition()
	w, b := Material(pos)
	require.Equal(t, uint8(39), w) // 8P + 2N + 2B + 2R + Q = 8 + 6 + 6 + 10 + 9
	require.Equal(t, uint8(39), b)
}

func TestPawnHomeStartPositionAllBitsSet(t *testing.T) {
	pos := chess.StartingPosition()
	require.Equal(t, uint16(0xFFFF), PawnHome(pos))
}

func TestPawnHomeClearsAsPawnsLeave(t *testing.T) {
	pos := playMoves(t, chess.StartingPosition(), "e2e4")

	home := PawnHome(pos)
	require.Zero(t, home&(1<<4), "white e-pawn bit should clear")
	require.Equal(t, uint16(0xFFFF&^(1<<4)), home)
}

// Material never increases and pawn-home bits never reappear along a game.
func TestFingerprintMonotoneAlongGame(t *testing.T) {
	pos := chess.StartingPosition()
	prevW, prevB := Material(pos)
	prevHome := PawnHome(pos)

	for _, mvStr := range []string{"e2e4", "d7d5", "e4d5", "d8d5", "b1c3", "d5a5", "d2d4", "g8f6"} {
		pos = playMoves(t, pos, mvStr)

		w, b := Material(pos)
		home := PawnHome(pos)
		require.LessOrEqual(t, w, prevW)
		require.LessOrEqual(t, b, prevB)
		require.Zero(t, home&^prevHome, "no pawn-home bit may reappear")
		prevW, prevB, prevHome = w, b, home
	}

	// The game above trades a pawn each way.
	require.Equal(t, uint8(38), prevW)
	require.Equal(t, uint8(38), prevB)
}

func TestIsContainedReflexive(t *testing.T) {
	for _, bb := range []uint64{0, 1, 0xFF00, 0xFFFFFFFFFFFFFFFF, 0x8100000000000081} {
		require.True(t, IsContained(bb, bb))
	}
	require.True(t, IsContained(0, 0xFF))
	require.False(t, IsContained(0xFF, 0))
}

func TestIsEndReachableReflexive(t *testing.T) {
	for _, x := range []uint16{0, 1, 0x00FF, 0xFF00, 0xFFFF, 0xA5A5} {
		require.True(t, IsEndReachable(x, x))
	}
}

func TestMaterialReachable(t *testing.T) {
	require.True(t, MaterialReachable(39, 39, 39, 39))
	require.True(t, MaterialReachable(39, 39, 10, 10))
	require.False(t, MaterialReachable(38, 39, 39, 39))
	require.False(t, MaterialReachable(39, 38, 39, 39))
}

func TestPawnHomeReachable(t *testing.T) {
	require.True(t, PawnHomeReachable(0xFFFF, 0x00FF))
	require.False(t, PawnHomeReachable(0xFFFE, 0x0001), "target needs a bit the current position already lost")
}
