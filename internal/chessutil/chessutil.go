// Package chessutil is the narrow seam between chessbench and the
// external chess rules library (github.com/notnil/chess): FEN parsing,
// UCI move resolution against a position's legal-move list, SAN encoding,
// and per-piece bitboard extraction for the fingerprint and hash layers.
// Everything rules-shaped lives behind these few calls; chessbench never
// generates moves or interprets board geometry itself.
package chessutil

import (
	"github.com/notnil/chess"

	"github.com/arcbishop/chessbench/internal/wberr"
)

// StartingFEN is the FEN of the standard initial position, used as the
// default when an archive row carries no explicit starting FEN.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Bitboard slot indices for the array Bitboards returns.
const (
	SlotWP = iota
	SlotBP
	SlotWN
	SlotBN
	SlotWB
	SlotBB
	SlotWR
	SlotBR
	SlotWQ
	SlotBQ
	SlotWK
	SlotBK
)

// ParseFEN parses fen into a Position, wrapping failures as FenParsing.
func ParseFEN(fen string) (*chess.Position, error) {
	pos := &chess.Position{}
	if err := pos.UnmarshalText([]byte(fen)); err != nil {
		return nil, wberr.Wrap(wberr.FenParsing, "parsing fen", err)
	}
	return pos, nil
}

// DecodeUCIMove resolves a UCI move string against pos's legal moves.
// A string that isn't UCI-shaped fails with UciMoveParsing; a well-formed
// move that isn't legal in pos fails with IllegalMove.
func DecodeUCIMove(pos *chess.Position, s string) (*chess.Move, error) {
	if !validUCISyntax(s) {
		return nil, wberr.WithFields(wberr.UciMoveParsing, "malformed uci move",
			map[string]any{"move": s})
	}
	for _, mv := range pos.ValidMoves() {
		if mv.String() == s {
			return mv, nil
		}
	}
	return nil, wberr.WithFields(wberr.IllegalMove, "move not legal in this position",
		map[string]any{"move": s})
}

func validUCISyntax(s string) bool {
	if len(s) != 4 && len(s) != 5 {
		return false
	}
	if s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' ||
		s[2] < 'a' || s[2] > 'h' || s[3] < '1' || s[3] > '8' {
		return false
	}
	if len(s) == 5 {
		switch s[4] {
		case 'q', 'r', 'b', 'n':
		default:
			return false
		}
	}
	return true
}

// SAN encodes m as standard algebraic notation in the context of pos.
func SAN(pos *chess.Position, m *chess.Move) string {
	return chess.AlgebraicNotation{}.Encode(pos, m)
}

// Bitboards returns the 12 piece-color occupancy masks of pos in the
// fixed order WP, BP, WN, BN, WB, BB, WR, BR, WQ, BQ, WK, BK (the Slot*
// constants), bit i representing square i with A1 = 0 through H8 = 63.
func Bitboards(pos *chess.Position) [12]uint64 {
	var bb [12]uint64
	for sq, piece := range pos.Board().SquareMap() {
		bb[slotOf(piece)] |= 1 << uint(sq)
	}
	return bb
}

func slotOf(p chess.Piece) int {
	var slot int
	switch p.Type() {
	case chess.Pawn:
		slot = SlotWP
	case chess.Knight:
		slot = SlotWN
	case chess.Bishop:
		slot = SlotWB
	case chess.Rook:
		slot = SlotWR
	case chess.Queen:
		slot = SlotWQ
	default:
		slot = SlotWK
	}
	if p.Color() == chess.Black {
		slot++
	}
	return slot
}
