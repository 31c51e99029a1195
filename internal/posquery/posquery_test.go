package posquery

import (
	"testing"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/require"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

const (
	rank2Mask uint64 = 0x000000000000FF00
	rank7Mask uint64 = 0x00FF000000000000
	d4Mask    uint64 = 1 << 27
)

func TestExactMatchesStartPosition(t *testing.T) {
	q, err := NewExact(startFEN)
	require.NoError(t, err)

	pos := chess.StartingPosition()
	require.True(t, q.Matches(pos))
}

func TestExactIgnoresCastlingRights(t *testing.T) {
	q, err := NewExact(startFEN)
	require.NoError(t, err)

	pos := &chess.Position{}
	require.NoError(t, pos.UnmarshalText([]byte("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w - - 0 1")))

	require.True(t, q.Matches(pos))
}

func TestExactRejectsIllegalStart(t *testing.T) {
	_, err := NewExact("8/8/8/8/8/8/8/8 w - - 0 1") // no kings at all
	require.Error(t, err)
}

func TestPartialMatchesOnPawnPlanesOnly(t *testing.T) {
	pos := chess.StartingPosition()
	planes := Planes{Pawns: rank2Mask | rank7Mask}
	q := NewPartial(planes, [2]uint8{0, 0})

	require.True(t, q.Matches(pos))
}

func TestPartialRejectsWhenPieceMissing(t *testing.T) {
	pos := chess.StartingPosition()
	planes := Planes{Queens: d4Mask} // no queen on d4 at start
	q := NewPartial(planes, [2]uint8{0, 0})

	require.False(t, q.Matches(pos))
}

func TestReachabilityCutsOffOnMaterialDrop(t *testing.T) {
	q, err := NewExact(startFEN)
	require.NoError(t, err)

	require.True(t, q.IsReachableBy(39, 39, 0xFFFF))
	require.False(t, q.IsReachableBy(38, 39, 0xFFFF)) // white already lost material
}

func TestReachabilityCutsOffOnPawnHome(t *testing.T) {
	q, err := NewExact(startFEN)
	require.NoError(t, err)

	// white's a-pawn has left home (bit 0 clear)
	require.False(t, q.IsReachableBy(39, 39, 0xFFFE))
}
