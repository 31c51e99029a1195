package staticeval

import (
	"math"
	"testing"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/require"

	"github.com/arcbishop/chessbench/internal/chessutil"
)

func TestMaterialBalanceStartPositionIsLevel(t *testing.T) {
	pos := chess.StartingPosition()
	require.Equal(t, 0, MaterialBalance(pos))
}

func TestMaterialBalanceCheckmateIsMateScore(t *testing.T) {
	pos, err := chessutil.ParseFEN("R6k/6pp/8/8/8/8/8/K7 b - - 0 1")
	require.NoError(t, err)
	require.Equal(t, chess.Checkmate, pos.Status())
	require.Equal(t, MateScore, MaterialBalance(pos))
}

func TestNaiveEvalNoMovesIsMinInt(t *testing.T) {
	pos, err := chessutil.ParseFEN("R6k/6pp/8/8/8/8/8/K7 b - - 0 1")
	require.NoError(t, err)
	require.Equal(t, math.MinInt32, NaiveEval(pos))
}

func TestIsSacrificeDetectsMaterialGiveaway(t *testing.T) {
	// White queen on a4 against a lone black pawn on d5: NaiveEval(prev) is
	// 800 (queen minus pawn, nothing to capture).
	prev, err := chessutil.ParseFEN("7k/8/8/3p4/Q7/8/8/4K3 w - - 0 1")
	require.NoError(t, err)

	// The blunder: the queen steps to c4, where dxc4 takes it for free, so
	// NaiveEval(curr) is +100 for black and white drops from 800 to -100.
	qMove, err := chessutil.DecodeUCIMove(prev, "a4c4")
	require.NoError(t, err)
	curr := prev.Update(qMove)
	require.True(t, IsSacrifice(prev, curr, 100))

	// A quiet queen move keeps the 800 and is not flagged.
	quietMove, err := chessutil.DecodeUCIMove(prev, "a4a3")
	require.NoError(t, err)
	require.False(t, IsSacrifice(prev, prev.Update(quietMove), 100))
}
