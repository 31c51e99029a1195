// Package staticeval is the toy evaluator used purely to annotate
// sacrifices during game analysis. It makes no claim to chess strength:
// material counting plus a capture-only quiescence search, nothing else.
// The real analysis strength comes from whatever UCI engine the
// supervisor spawns.
package staticeval

import (
	"math"

	"github.com/notnil/chess"
)

// MateScore is returned (negated as appropriate) for a position that is
// checkmate, from the side-to-move's perspective.
const MateScore = -10000

// pieceCentipawns is the conventional centipawn scale used by the
// material count.
var pieceCentipawns = map[chess.PieceType]int{
	chess.Pawn:   100,
	chess.Knight: 320,
	chess.Bishop: 330,
	chess.Rook:   500,
	chess.Queen:  900,
}

// MaterialBalance returns the material count from the side-to-move's
// perspective: -10000 if side-to-move is checkmated, otherwise
// white_material - black_material, negated when black is to move.
func MaterialBalance(pos *chess.Position) int {
	if pos.Status() == chess.Checkmate {
		return MateScore
	}
	balance := 0
	for _, piece := range pos.Board().SquareMap() {
		v := pieceCentipawns[piece.Type()]
		if piece.Color() == chess.White {
			balance += v
		} else {
			balance -= v
		}
	}
	if pos.Turn() == chess.Black {
		return -balance
	}
	return balance
}

// Quiescence performs a capture-only negamax search from pos within window
// (alpha, beta), returning a score from the side-to-move's perspective.
func Quiescence(pos *chess.Position, alpha, beta int) int {
	standPat := MaterialBalance(pos)
	if standPat >= beta {
		return beta
	}
	if standPat > alpha {
		alpha = standPat
	}

	captures := sortedCaptures(pos)
	for _, mv := range captures {
		child := pos.Update(mv)

		score := -Quiescence(child, -beta, -alpha)

		if score >= beta {
			return beta
		}
		if score > alpha {
			alpha = score
		}
	}

	return alpha
}

// NaiveEval plays every legal move from pos and returns the best resulting
// score for the side to move (i.e. the negamax value at depth 1 backed by
// Quiescence), or math.MinInt32 if pos has no legal moves.
func NaiveEval(pos *chess.Position) int {
	legal := pos.ValidMoves()
	if len(legal) == 0 {
		return math.MinInt32
	}

	best := math.MinInt32
	for _, mv := range legal {
		child := pos.Update(mv)

		score := -Quiescence(child, math.MinInt32/2, math.MaxInt32/2)
		if score > best {
			best = score
		}
	}
	return best
}

// IsSacrifice reports whether the move from prev to curr gave up more than
// threshold centipawns of naive static value, the only chess-content
// signal chessbench's game analyzer uses to flag a move as a sacrifice
// (default threshold 100).
func IsSacrifice(prev, curr *chess.Position, threshold int) bool {
	return NaiveEval(prev) > -NaiveEval(curr)+threshold
}

// victimValue returns the material value of whatever mv captures, 0 if it
// captures nothing (shouldn't occur for capture-tagged moves, but kept
// defensive rather than panicking).
func victimValue(pos *chess.Position, mv *chess.Move) int {
	if mv.HasTag(chess.EnPassant) {
		return pieceCentipawns[chess.Pawn]
	}
	target := pos.Board().Piece(mv.S2())
	if target == chess.NoPiece {
		return 0
	}
	return pieceCentipawns[target.Type()]
}

// sortedCaptures returns pos's legal captures ordered by victim value
// descending.
func sortedCaptures(pos *chess.Position) []*chess.Move {
	var captures []*chess.Move
	for _, mv := range pos.ValidMoves() {
		if mv.HasTag(chess.Capture) || mv.HasTag(chess.EnPassant) {
			captures = append(captures, mv)
		}
	}

	// Small N (almost always < 8): insertion sort avoids pulling in sort
	// for a comparison this cheap, and keeps ties in generation order.
	for i := 1; i < len(captures); i++ {
		key := captures[i]
		v := victimValue(pos, key)
		j := i - 1
		for j >= 0 && victimValue(pos, captures[j]) < v {
			captures[j+1] = captures[j]
			j--
		}
		captures[j+1] = key
	}
	return captures
}
