// Package fingerprint computes the position-summary values the search
// executor uses to prune games without replaying every move: a pawn-home
// bitfield and a capped material count, plus the reachability test that
// lets a forward scan stop early.
package fingerprint

import "github.com/notnil/chess"

// pieceScale: P=1, N/B=3, R=5, Q=9, king excluded.
var pieceScale = map[chess.PieceType]int{
	chess.Pawn:   1,
	chess.Knight: 3,
	chess.Bishop: 3,
	chess.Rook:   5,
	chess.Queen:  9,
}

// Material returns the capped u8 material count for white and black on
// the pieceScale values (king excluded).
func Material(pos *chess.Position) (white, black uint8) {
	w, b := 0, 0
	for _, piece := range pos.Board().SquareMap() {
		v := pieceScale[piece.Type()]
		if piece.Color() == chess.White {
			w += v
		} else {
			b += v
		}
	}
	return capped(w), capped(b)
}

func capped(n int) uint8 {
	if n > 255 {
		n = 255
	}
	return uint8(n)
}

// PawnHome returns the 16-bit pawn-home bitfield: bit i set iff white's
// file-i pawn still sits on rank 2, bit i+8 set iff black's file-i pawn
// still sits on rank 7.
func PawnHome(pos *chess.Position) uint16 {
	var home uint16
	for sq, piece := range pos.Board().SquareMap() {
		if piece.Type() != chess.Pawn {
			continue
		}
		switch {
		case piece.Color() == chess.White && sq.Rank() == chess.Rank2:
			home |= 1 << uint(sq.File())
		case piece.Color() == chess.Black && sq.Rank() == chess.Rank7:
			home |= 1 << uint(8+int(sq.File()))
		}
	}
	return home
}

// Of computes both fingerprint values for pos in one pass.
func Of(pos *chess.Position) (white, black uint8, pawnHome uint16) {
	w, b := Material(pos)
	return w, b, PawnHome(pos)
}

// MaterialReachable reports whether a position with (targetWhite,
// targetBlack) material can still be reached from a position with
// (currentWhite, currentBlack) material: material is monotone
// non-increasing along a game, so reachability requires
// target <= current componentwise.
func MaterialReachable(currentWhite, currentBlack, targetWhite, targetBlack uint8) bool {
	return targetWhite <= currentWhite && targetBlack <= currentBlack
}

// PawnHomeReachable reports whether a target pawn-home bitfield can still
// be reached from the current one: pawn-home bits only clear as pawns
// leave their home squares, so every bit set in target must also be set
// in current; equivalently IsEndReachable(current, target).
func PawnHomeReachable(current, target uint16) bool {
	return target&^current == 0
}

// IsContained reports whether bitboard a's set bits are a subset of b's;
// trivially reflexive for a==b.
func IsContained(a, b uint64) bool {
	return a&^b == 0
}

// IsEndReachable is the u16 analogue of PawnHomeReachable.
func IsEndReachable(current, target uint16) bool {
	return PawnHomeReachable(current, target)
}

// Reachable combines the material and pawn-home legs of the reachability
// predicate for a full (material, pawn_home) fingerprint pair.
func Reachable(currentWhite, currentBlack uint8, currentPawnHome uint16,
	targetWhite, targetBlack uint8, targetPawnHome uint16) bool {
	return MaterialReachable(currentWhite, currentBlack, targetWhite, targetBlack) &&
		PawnHomeReachable(currentPawnHome, targetPawnHome)
}
